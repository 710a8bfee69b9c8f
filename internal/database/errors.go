package database

import (
	"errors"
	"fmt"
)

// ErrStorageNotFound reports a package directory without its SQLite store.
var ErrStorageNotFound = errors.New("storage not found")

// StorageError wraps a failed query or transaction against the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Wrap returns err as a *StorageError for op. Nil and sentinel errors pass through.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrStorageNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
