package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"

	"github.com/jask/bookkeeper/internal/database"
)

// Store points at one finance package. It holds no connection: every
// operation opens the database, does its work, and closes it again.
type Store struct {
	path   string
	mapper database.Mapper
}

// NewStore locates the SQLite file inside pkg. It fails with
// database.ErrStorageNotFound when the package has no store.
func NewStore(pkg string, mapper database.Mapper) (*Store, error) {
	path, err := database.Locate(pkg)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Store{path: path, mapper: mapper}, nil
}

// Path is the absolute path of the SQLite file.
func (s *Store) Path() string { return s.path }

// Mapper is the timestamp mapper used for dates.
func (s *Store) Mapper() database.Mapper { return s.mapper }

func (s *Store) withDB(ctx context.Context, mode database.Mode, op string, fn func(db *sql.DB) error) (err error) {
	if _, statErr := database.Locate(filepath.Dir(s.path)); statErr != nil {
		return statErr
	}
	db, err := database.Open(s.path, mode)
	if err != nil {
		return database.Wrap(op, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = database.Wrap(op, cerr)
		}
	}()
	return database.Wrap(op, fn(db))
}

var writeLocks sync.Map // path -> *sync.Mutex

// writeLock serializes write batches against one file within this process.
func writeLock(path string) *sync.Mutex {
	mu, _ := writeLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
