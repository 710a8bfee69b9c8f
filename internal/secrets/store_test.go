package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutFetchDelete(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "cfg"))
	_, err := s.Fetch("gemini")
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Put(" Gemini ", "sk-test-123"))
	got, err := s.Fetch("gemini")
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "sk-test-123"))
	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Delete("GEMINI"))
	require.NoError(t, s.Delete("gemini"))
	_, err = s.Fetch("gemini")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRejectsBlankInput(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	require.Error(t, s.Put("", "k"))
	require.Error(t, s.Put("gemini", "  "))
	_, err := s.Fetch(" ")
	require.Error(t, err)
}

func TestForeignSeedCannotUnseal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Put("gemini", "secret"))

	other := &Store{dir: dir, seed: "someone-else"}
	_, err := other.Fetch("gemini")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrKeyNotFound)
}
