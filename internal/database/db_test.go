package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Locate(dir)
	require.ErrorIs(t, err, ErrStorageNotFound)

	_, err = Locate(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrStorageNotFound)

	path := filepath.Join(dir, DataFileName)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	got, err := Locate(dir)
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestOpenReadOnlyDoesNotCreate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DataFileName)
	db, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer db.Close()
	require.Error(t, db.Ping())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	require.NoError(t, Wrap("noop", nil))

	notFound := Wrap("list", ErrStorageNotFound)
	require.Same(t, ErrStorageNotFound, notFound)

	base := errors.New("disk I/O error")
	err := Wrap("list", base)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "list", se.Op)
	require.ErrorIs(t, err, base)
	require.Equal(t, "storage: list: disk I/O error", err.Error())

	require.Same(t, err, Wrap("outer", err))
}
