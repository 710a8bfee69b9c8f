package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/bookkeeper/internal/database"
	"github.com/jask/bookkeeper/internal/database/fixture"
)

func removeFile(path string) error { return os.Remove(path) }

func openRaw(t *testing.T, s *Store) *sql.DB {
	t.Helper()
	db, err := database.Open(s.Path(), database.ReadOnly)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func entryCount(t *testing.T, db *sql.DB, parent int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ZCASHFLOWTRANSACTIONENTRY WHERE ZPARENT = ?`, parent).Scan(&n))
	return n
}

func TestSetCategoryCreatesSingleEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSampleStore(t)
	repo := NewCashflowRepo(s)

	ok, err := repo.SetCategory(ctx, 2, "Dining")
	require.NoError(t, err)
	require.True(t, ok)

	db := openRaw(t, s)
	require.Equal(t, 1, entryCount(t, db, 2))

	var (
		entryID, ent, opt int64
		entryAmount       float64
		txnAmount         float64
		counter           int64
	)
	require.NoError(t, db.QueryRow(`SELECT Z_PK, Z_ENT, Z_OPT, ZAMOUNT FROM ZCASHFLOWTRANSACTIONENTRY WHERE ZPARENT = 2`).
		Scan(&entryID, &ent, &opt, &entryAmount))
	require.NoError(t, db.QueryRow(`SELECT ZAMOUNT FROM ZTRANSACTION WHERE Z_PK = 2`).Scan(&txnAmount))
	require.NoError(t, db.QueryRow(`SELECT Z_MAX FROM Z_PRIMARYKEY WHERE Z_ENT = ?`, fixture.EntCashflow).Scan(&counter))
	require.Equal(t, int64(2), entryID)
	require.Equal(t, int64(fixture.EntCashflow), ent)
	require.Equal(t, txnAmount, entryAmount)
	require.Equal(t, entryID, counter)

	txn, err := NewTransactionRepo(s).Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "Dining", Str(txn.Category))

	// Writing the same category again is a no-op on the row version.
	ok, err = repo.SetCategory(ctx, 2, "Dining")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, entryCount(t, db, 2))
	var optAfter int64
	require.NoError(t, db.QueryRow(`SELECT Z_OPT FROM ZCASHFLOWTRANSACTIONENTRY WHERE Z_PK = ?`, entryID).Scan(&optAfter))
	require.Equal(t, opt, optAfter)

	ok, err = repo.SetCategory(ctx, 2, "Shopping")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, entryCount(t, db, 2))
	require.NoError(t, db.QueryRow(`SELECT Z_OPT FROM ZCASHFLOWTRANSACTIONENTRY WHERE Z_PK = ?`, entryID).Scan(&optAfter))
	require.Equal(t, opt+1, optAfter)
}

func TestSetCategoryRejectsUnknownNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSampleStore(t)
	repo := NewCashflowRepo(s)

	for _, name := range []string{"NoSuchCategory", "groceries", "Transfer:Internal", ""} {
		ok, err := repo.SetCategory(ctx, 3, name)
		require.NoError(t, err)
		require.False(t, ok, name)
	}
	ok, err := repo.SetCategory(ctx, 9999, "Dining")
	require.NoError(t, err)
	require.False(t, ok)

	db := openRaw(t, s)
	require.Equal(t, 0, entryCount(t, db, 3))
	require.Equal(t, 0, entryCount(t, db, 9999))
	var counter int64
	require.NoError(t, db.QueryRow(`SELECT Z_MAX FROM Z_PRIMARYKEY WHERE Z_ENT = ?`, fixture.EntCashflow).Scan(&counter))
	require.Equal(t, int64(1), counter)
}

func TestSetCategoriesMixedBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSampleStore(t)

	res, err := NewCashflowRepo(s).SetCategories(ctx, map[int64]string{
		1: "Groceries",
		2: "NoSuchCategory",
		4: "Entertainment",
		5: "Entertainment",
	})
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{1: true, 2: false, 4: true, 5: true}, res)

	db := openRaw(t, s)
	require.Equal(t, 1, entryCount(t, db, 1))
	require.Equal(t, 0, entryCount(t, db, 2))

	// Keys are allocated in ascending transaction order.
	var first, second int64
	require.NoError(t, db.QueryRow(`SELECT Z_PK FROM ZCASHFLOWTRANSACTIONENTRY WHERE ZPARENT = 4`).Scan(&first))
	require.NoError(t, db.QueryRow(`SELECT Z_PK FROM ZCASHFLOWTRANSACTIONENTRY WHERE ZPARENT = 5`).Scan(&second))
	require.Equal(t, int64(2), first)
	require.Equal(t, int64(3), second)
}

func TestSetCategoriesCancelledWritesNothing(t *testing.T) {
	t.Parallel()
	s := newSampleStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewCashflowRepo(s).SetCategories(ctx, map[int64]string{3: "Dining"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, res)

	require.Equal(t, 0, entryCount(t, openRaw(t, s), 3))
}
