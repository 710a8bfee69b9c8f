package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jask/bookkeeper/internal/database"
	"github.com/jask/bookkeeper/internal/logger"
)

// TransactionFilters defines list filters. Zero value lists everything.
type TransactionFilters struct {
	Range              *DateRange
	AccountTypes       []string
	WithAccountContext bool
}

// TransactionRepo reads transactions.
type TransactionRepo struct {
	store *Store
}

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{store: s} }

// effectiveDate prefers the posted timestamp over the entered one.
const effectiveDate = "COALESCE(t.ZPOSTEDDATE, t.ZENTEREDDATE)"

// The cashflow join picks the lowest entry so a split transaction still
// yields exactly one row.
const selectTransactions = `
SELECT
	t.Z_PK,
	CAST(t.ZENTEREDDATE AS REAL),
	CAST(t.ZPOSTEDDATE AS REAL),
	t.ZAMOUNT,
	t.ZNOTE,
	t.ZREFERENCE,
	t.ZCHECKNUMBER,
	t.ZACCOUNT,
	p.ZNAME,
	c.ZNAME,
	a.ZNAME,
	a.ZTYPENAME,
	%s
FROM ZTRANSACTION t
LEFT JOIN ZUSERPAYEE p ON t.ZUSERPAYEE = p.Z_PK
LEFT JOIN ZCASHFLOWTRANSACTIONENTRY cfte ON cfte.Z_PK = (
	SELECT MIN(e.Z_PK) FROM ZCASHFLOWTRANSACTIONENTRY e WHERE e.ZPARENT = t.Z_PK
)
LEFT JOIN ZTAG c ON cfte.ZCATEGORYTAG = c.Z_PK
LEFT JOIN ZACCOUNT a ON t.ZACCOUNT = a.Z_PK
WHERE t.ZAMOUNT IS NOT NULL`

// List returns transactions newest first by effective date.
func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var out []Transaction
	err := r.store.withDB(ctx, database.ReadOnly, "list transactions", func(db *sql.DB) error {
		noteCol, err := accountNoteColumn(ctx, db, f.WithAccountContext)
		if err != nil {
			return err
		}

		var where []string
		var args []any
		if len(f.AccountTypes) > 0 {
			where = append(where, "a.ZTYPENAME IN ("+placeholders(len(f.AccountTypes))+")")
			for _, at := range f.AccountTypes {
				args = append(args, at)
			}
		}
		if f.Range != nil {
			m := r.store.mapper
			if !f.Range.Start.IsZero() {
				where = append(where, effectiveDate+" >= ?")
				args = append(args, m.ToEpoch(f.Range.Start, database.BoundaryStart))
			}
			if !f.Range.End.IsZero() {
				where = append(where, effectiveDate+" <= ?")
				args = append(args, m.ToEpoch(f.Range.End, database.BoundaryEnd))
			}
		}

		query := fmt.Sprintf(selectTransactions, noteCol)
		if len(where) > 0 {
			query += " AND " + strings.Join(where, " AND ")
		}
		query += " ORDER BY " + effectiveDate + " DESC, t.Z_PK DESC"

		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := r.scanTransaction(ctx, rows, f.WithAccountContext)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a single transaction, or nil when the id does not exist or has no amount.
func (r *TransactionRepo) Get(ctx context.Context, id int64) (*Transaction, error) {
	var out *Transaction
	err := r.store.withDB(ctx, database.ReadOnly, "get transaction", func(db *sql.DB) error {
		noteCol, err := accountNoteColumn(ctx, db, true)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(selectTransactions, noteCol) + " AND t.Z_PK = ?"
		t, err := r.scanTransaction(ctx, db.QueryRowContext(ctx, query, id), true)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out = &t
		return nil
	})
	return out, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepo) scanTransaction(ctx context.Context, row scanner, withAccount bool) (Transaction, error) {
	var (
		t                          Transaction
		entered, posted            sql.NullFloat64
		account                    sql.NullInt64
		note, ref, check           sql.NullString
		payee, category            sql.NullString
		acctName, acctType, fiNote sql.NullString
	)
	if err := row.Scan(&t.ID, &entered, &posted, &t.Amount, &note, &ref, &check, &account,
		&payee, &category, &acctName, &acctType, &fiNote); err != nil {
		return Transaction{}, err
	}

	m := r.store.mapper
	switch {
	case posted.Valid:
		t.Date = m.ToDate(posted.Float64)
	case entered.Valid:
		t.Date = m.ToDate(entered.Float64)
	default:
		t.Date = m.Today()
		t.DateMissing = true
		log := logger.FromContext(ctx)
		log.Warn().Int64("transaction_id", t.ID).Msg("transaction has no posted or entered date; using today")
	}

	t.Payee = UnknownPayee
	if payee.Valid && payee.String != "" {
		t.Payee = payee.String
	}
	t.AccountID = account.Int64
	t.Category = nullable(category)
	t.Memo = nullable(note)
	t.Reference = nullable(ref)
	t.CheckNumber = nullable(check)
	if withAccount {
		t.AccountName = nullable(acctName)
		t.AccountType = nullable(acctType)
		t.FINote = nullable(fiNote)
	}
	return t, nil
}

// accountNoteColumn returns the SQL expression for the account's institution
// note. Older stores have no ZNOTE column on ZACCOUNT.
func accountNoteColumn(ctx context.Context, db *sql.DB, wanted bool) (string, error) {
	if !wanted {
		return "NULL", nil
	}
	ok, err := hasColumn(ctx, db, "ZACCOUNT", "ZNOTE")
	if err != nil {
		return "", err
	}
	if !ok {
		return "NULL", nil
	}
	return "a.ZNOTE", nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
