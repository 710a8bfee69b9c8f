package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DataFileName is the SQLite file inside a finance package directory.
const DataFileName = "data"

// Mode selects how a package database is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Locate returns the path of the SQLite store inside pkg, or ErrStorageNotFound.
func Locate(pkg string) (string, error) {
	info, err := os.Stat(pkg)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a package directory", ErrStorageNotFound, pkg)
	}
	path := filepath.Join(pkg, DataFileName)
	info, err = os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: no %q file in %s", ErrStorageNotFound, DataFileName, pkg)
	}
	return path, nil
}

// Open opens the store at path. It never creates a missing file. Write mode
// takes the SQLite write lock at BEGIN so batches from separate processes
// serialize instead of failing half-way.
func Open(path string, mode Mode) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	return db, nil
}

func dsn(path string, mode Mode) string {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	if mode == ReadWrite {
		q.Set("mode", "rw")
		q.Set("_txlock", "immediate")
	} else {
		q.Set("mode", "ro")
	}
	u := url.URL{Scheme: "file", Opaque: (&url.URL{Path: path}).EscapedPath(), RawQuery: q.Encode()}
	return u.String()
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}
