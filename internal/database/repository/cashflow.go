package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jask/bookkeeper/internal/database"
	"github.com/jask/bookkeeper/internal/logger"
)

const (
	cashflowEntityName = "CashFlowTransactionEntry"
	// cashflowEntityDefault is used when the store has no Z_PRIMARYKEY row for the entity.
	cashflowEntityDefault = 80
)

// CashflowRepo writes category assignments through the cashflow entry join
// table. A transaction has at most one entry; it is created on first write.
type CashflowRepo struct {
	store *Store
}

func NewCashflowRepo(s *Store) *CashflowRepo { return &CashflowRepo{store: s} }

// SetCategory assigns categoryName to one transaction. It returns false, and
// writes nothing, when the name is not a user-assignable category or the
// transaction does not exist.
func (r *CashflowRepo) SetCategory(ctx context.Context, transactionID int64, categoryName string) (bool, error) {
	res, err := r.SetCategories(ctx, map[int64]string{transactionID: categoryName})
	if err != nil {
		return false, err
	}
	return res[transactionID], nil
}

// SetCategories applies every update in one database transaction. Entries
// that cannot be resolved are reported as false and skipped; any storage
// failure rolls the whole batch back and returns a nil map.
func (r *CashflowRepo) SetCategories(ctx context.Context, updates map[int64]string) (map[int64]bool, error) {
	mu := writeLock(r.store.path)
	mu.Lock()
	defer mu.Unlock()

	ids := make([]int64, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	log := logger.FromContext(ctx)
	results := make(map[int64]bool, len(updates))
	err := r.store.withDB(ctx, database.ReadWrite, "set categories", func(db *sql.DB) error {
		return database.WithTx(ctx, db, func(tx *sql.Tx) error {
			b := &batch{tx: tx, tags: map[string]int64{}}
			if err := b.loadEntity(ctx); err != nil {
				return fmt.Errorf("load entity counter: %w", err)
			}
			for _, id := range ids {
				if err := ctx.Err(); err != nil {
					return err
				}
				ok, err := b.apply(ctx, id, updates[id])
				if err != nil {
					return fmt.Errorf("transaction %d: %w", id, err)
				}
				if !ok {
					log.Debug().Int64("transaction_id", id).Str("category", updates[id]).Msg("category update skipped")
				}
				results[id] = ok
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// batch carries per-call lookups so a batch resolves each name once.
type batch struct {
	tx      *sql.Tx
	tags    map[string]int64
	entity  int64
	counter bool // whether Z_PRIMARYKEY tracks the entity
}

func (b *batch) loadEntity(ctx context.Context) error {
	b.entity = cashflowEntityDefault
	var n int
	if err := b.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Z_PRIMARYKEY'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	err := b.tx.QueryRowContext(ctx,
		`SELECT Z_ENT FROM Z_PRIMARYKEY WHERE Z_NAME = ?`, cashflowEntityName).Scan(&b.entity)
	if errors.Is(err, sql.ErrNoRows) {
		b.entity = cashflowEntityDefault
		return nil
	}
	if err != nil {
		return err
	}
	b.counter = true
	return nil
}

func (b *batch) apply(ctx context.Context, transactionID int64, categoryName string) (bool, error) {
	tagID, ok := b.tags[categoryName]
	if !ok {
		id, found, err := lookupAssignable(ctx, b.tx, categoryName)
		if err != nil {
			return false, fmt.Errorf("resolve category %q: %w", categoryName, err)
		}
		if !found {
			return false, nil
		}
		b.tags[categoryName] = id
		tagID = id
	}

	entryID, ok, err := b.entryFor(ctx, transactionID)
	if err != nil || !ok {
		return false, err
	}

	// Z_OPT is the store's optimistic-lock version; bump it only on a real change.
	if _, err := b.tx.ExecContext(ctx, `
	UPDATE ZCASHFLOWTRANSACTIONENTRY
	SET ZCATEGORYTAG = ?, Z_OPT = COALESCE(Z_OPT, 0) + 1
	WHERE Z_PK = ? AND ZCATEGORYTAG IS NOT ?`, tagID, entryID, tagID); err != nil {
		return false, fmt.Errorf("update entry %d: %w", entryID, err)
	}
	return true, nil
}

// entryFor returns the transaction's cashflow entry, creating it when missing.
// ok is false when the transaction itself does not exist.
func (b *batch) entryFor(ctx context.Context, transactionID int64) (id int64, ok bool, err error) {
	err = b.tx.QueryRowContext(ctx,
		`SELECT Z_PK FROM ZCASHFLOWTRANSACTIONENTRY WHERE ZPARENT = ? ORDER BY Z_PK LIMIT 1`, transactionID).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("find entry: %w", err)
	}

	var exists int
	if err := b.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ZTRANSACTION WHERE Z_PK = ?`, transactionID).Scan(&exists); err != nil {
		return 0, false, fmt.Errorf("find transaction: %w", err)
	}
	if exists == 0 {
		return 0, false, nil
	}

	id, err = b.nextKey(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("allocate entry key: %w", err)
	}
	// The amount is copied in SQL so the stored value is mirrored exactly.
	if _, err := b.tx.ExecContext(ctx, `
	INSERT INTO ZCASHFLOWTRANSACTIONENTRY (Z_PK, Z_ENT, Z_OPT, ZPARENT, ZAMOUNT, ZSEQUENCENUMBER)
	SELECT ?, ?, 1, Z_PK, ZAMOUNT, 0 FROM ZTRANSACTION WHERE Z_PK = ?`, id, b.entity, transactionID); err != nil {
		return 0, false, fmt.Errorf("insert entry: %w", err)
	}
	if b.counter {
		if _, err := b.tx.ExecContext(ctx,
			`UPDATE Z_PRIMARYKEY SET Z_MAX = ? WHERE Z_ENT = ?`, id, b.entity); err != nil {
			return 0, false, fmt.Errorf("advance entity counter: %w", err)
		}
	}
	return id, true, nil
}

// nextKey is one past the larger of the table's highest key and the entity counter.
func (b *batch) nextKey(ctx context.Context) (int64, error) {
	var maxPK int64
	if err := b.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(Z_PK), 0) FROM ZCASHFLOWTRANSACTIONENTRY`).Scan(&maxPK); err != nil {
		return 0, err
	}
	if b.counter {
		var counter sql.NullInt64
		if err := b.tx.QueryRowContext(ctx,
			`SELECT Z_MAX FROM Z_PRIMARYKEY WHERE Z_ENT = ?`, b.entity).Scan(&counter); err != nil {
			return 0, err
		}
		if counter.Int64 > maxPK {
			maxPK = counter.Int64
		}
	}
	return maxPK + 1, nil
}
