// Package fixture builds finance packages with the same table layout as the
// desktop application's store. Tests and the `fixture` command use it to get a
// disposable package to categorize against.
package fixture

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jask/bookkeeper/internal/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entity numbers registered in Z_PRIMARYKEY by the schema migration.
const (
	EntAccount   = 12
	EntCashflow  = 80
	EntTag       = 94
	EntTxn       = 101
	EntUserPayee = 109
)

type Account struct {
	ID   int64
	Name string
	Type string // empty stores NULL
	Note string
}

type Payee struct {
	ID   int64
	Name string
}

type Tag struct {
	ID         int64
	Name       string
	Assignable bool
}

type Transaction struct {
	ID          int64
	AccountID   int64
	PayeeID     int64 // zero stores NULL
	Entered     *float64
	Posted      *float64
	Amount      *float64
	Note        string
	Reference   string
	CheckNumber string
}

type Entry struct {
	ID       int64
	ParentID int64
	TagID    int64 // zero stores NULL
	Amount   float64
}

// Dataset is the content written by Seed.
type Dataset struct {
	Accounts     []Account
	Payees       []Payee
	Tags         []Tag
	Transactions []Transaction
	Entries      []Entry
}

// Create makes a package directory at dir holding an empty store and returns the store path.
func Create(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fixture: mkdir package: %w", err)
	}
	path := filepath.Join(dir, database.DataFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("fixture: %s already exists", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", fmt.Errorf("fixture: open: %w", err)
	}
	// migrate closes db along with the driver.
	if err := runMigrations(db); err != nil {
		return "", err
	}
	return path, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("fixture: migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("fixture: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("fixture: migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("fixture: apply schema: %w", err)
	}
	return nil
}

// Seed inserts ds into the store at path and advances the Z_PRIMARYKEY counters.
func Seed(ctx context.Context, path string, ds Dataset) error {
	db, err := database.Open(path, database.ReadWrite)
	if err != nil {
		return fmt.Errorf("fixture: open: %w", err)
	}
	defer db.Close()

	return database.WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, a := range ds.Accounts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ZACCOUNT (Z_PK, Z_ENT, Z_OPT, ZNAME, ZTYPENAME, ZNOTE) VALUES (?, ?, 1, ?, ?, ?)`,
				a.ID, EntAccount, a.Name, nullString(a.Type), nullString(a.Note)); err != nil {
				return fmt.Errorf("insert account %q: %w", a.Name, err)
			}
		}
		for _, p := range ds.Payees {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ZUSERPAYEE (Z_PK, Z_ENT, Z_OPT, ZNAME) VALUES (?, ?, 1, ?)`,
				p.ID, EntUserPayee, p.Name); err != nil {
				return fmt.Errorf("insert payee %q: %w", p.Name, err)
			}
		}
		for _, t := range ds.Tags {
			assignable := 0
			if t.Assignable {
				assignable = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ZTAG (Z_PK, Z_ENT, Z_OPT, ZUSERASSIGNABLE, ZNAME) VALUES (?, ?, 1, ?, ?)`,
				t.ID, EntTag, assignable, t.Name); err != nil {
				return fmt.Errorf("insert tag %q: %w", t.Name, err)
			}
		}
		for _, t := range ds.Transactions {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO ZTRANSACTION (Z_PK, Z_ENT, Z_OPT, ZACCOUNT, ZUSERPAYEE, ZENTEREDDATE, ZPOSTEDDATE,
			 ZAMOUNT, ZNOTE, ZREFERENCE, ZCHECKNUMBER)
			VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, EntTxn, t.AccountID, nullID(t.PayeeID), t.Entered, t.Posted, t.Amount,
				nullString(t.Note), nullString(t.Reference), nullString(t.CheckNumber)); err != nil {
				return fmt.Errorf("insert transaction %d: %w", t.ID, err)
			}
		}
		for _, e := range ds.Entries {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO ZCASHFLOWTRANSACTIONENTRY (Z_PK, Z_ENT, Z_OPT, ZSEQUENCENUMBER, ZCATEGORYTAG, ZPARENT, ZAMOUNT)
			VALUES (?, ?, 1, 0, ?, ?, ?)`,
				e.ID, EntCashflow, nullID(e.TagID), e.ParentID, e.Amount); err != nil {
				return fmt.Errorf("insert entry %d: %w", e.ID, err)
			}
		}
		counters := map[int]string{
			EntAccount:   "ZACCOUNT",
			EntUserPayee: "ZUSERPAYEE",
			EntTag:       "ZTAG",
			EntTxn:       "ZTRANSACTION",
			EntCashflow:  "ZCASHFLOWTRANSACTIONENTRY",
		}
		for ent, table := range counters {
			if _, err := tx.ExecContext(ctx,
				`UPDATE Z_PRIMARYKEY SET Z_MAX = (SELECT COALESCE(MAX(Z_PK), 0) FROM `+table+`) WHERE Z_ENT = ?`, ent); err != nil {
				return fmt.Errorf("advance counter %s: %w", table, err)
			}
		}
		return nil
	})
}

// Float is a convenience for the nullable numeric fields of Transaction.
func Float(v float64) *float64 { return &v }

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
