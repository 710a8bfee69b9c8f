package repository

import (
	"context"
	"database/sql"

	"github.com/jask/bookkeeper/internal/database"
)

// AccountRepo reads accounts.
type AccountRepo struct {
	store *Store
}

func NewAccountRepo(s *Store) *AccountRepo {
	return &AccountRepo{store: s}
}

// ListByType groups account names under their type label. Accounts without a
// type are left out; names are sorted within each type.
func (r *AccountRepo) ListByType(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	err := r.store.withDB(ctx, database.ReadOnly, "list accounts", func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
		SELECT ZTYPENAME, COALESCE(ZNAME, '')
		FROM ZACCOUNT
		WHERE ZTYPENAME IS NOT NULL
		ORDER BY ZTYPENAME, ZNAME`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var typ, name string
			if err := rows.Scan(&typ, &name); err != nil {
				return err
			}
			out[typ] = append(out[typ], name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
