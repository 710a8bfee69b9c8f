package repository

import (
	"context"
	"database/sql"

	"github.com/jask/bookkeeper/internal/database"
)

// CategoryRepo reads the label table. Only user-assignable labels are visible.
type CategoryRepo struct {
	store *Store
}

func NewCategoryRepo(s *Store) *CategoryRepo {
	return &CategoryRepo{store: s}
}

// ListAssignable returns user-assignable category names in alphabetical order.
func (r *CategoryRepo) ListAssignable(ctx context.Context) ([]string, error) {
	var out []string
	err := r.store.withDB(ctx, database.ReadOnly, "list categories", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT ZNAME FROM ZTAG WHERE ZUSERASSIGNABLE = 1 AND ZNAME IS NOT NULL ORDER BY ZNAME`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lookupAssignable resolves a category name to its key. Matching is exact and
// case-sensitive; ok is false when no user-assignable label has that name.
func lookupAssignable(ctx context.Context, tx *sql.Tx, name string) (id int64, ok bool, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT Z_PK FROM ZTAG WHERE ZNAME = ? AND ZUSERASSIGNABLE = 1 ORDER BY Z_PK LIMIT 1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
