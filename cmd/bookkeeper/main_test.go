package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"github.com/jask/bookkeeper/internal/config"
	"github.com/jask/bookkeeper/internal/database"
	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/evallog"
	"github.com/jask/bookkeeper/internal/secrets"
)

type harness struct {
	dir string
	pkg string
	cfg config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir: dir,
		pkg: filepath.Join(dir, "Household.quicken"),
		cfg: config.Config{
			LLM:        config.LLMConfig{Provider: "gemini", APIKeyEnv: "BOOKKEEPER_TEST_UNSET_KEY", MaxToolRounds: 5},
			Lookup:     config.LookupConfig{MaxAttempts: 3},
			Classifier: config.ClassifierConfig{SuggestionThreshold: 0.5, Concurrency: 2},
			Backup:     config.BackupConfig{Dir: filepath.Join(dir, "backups")},
			Eval:       config.EvalConfig{Dir: filepath.Join(dir, "eval")},
			Log:        config.LogConfig{Level: "error"},
		},
	}
	_, err := h.run("fixture", h.pkg, "--end-date", "2024-06-30")
	require.NoError(t, err)
	return h
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	a := newApp(&out, io.Discard)
	a.load = func() (config.Config, error) { return h.cfg, nil }
	a.keys = func() (*secrets.Store, error) { return secrets.New(filepath.Join(h.dir, "keys")), nil }
	a.now = func() time.Time { return time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC) }
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) category(t *testing.T, id int64) string {
	t.Helper()
	s, err := repository.NewStore(h.pkg, database.NewMapper(time.Local))
	require.NoError(t, err)
	txn, err := repository.NewTransactionRepo(s).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, txn)
	return repository.Str(txn.Category)
}

func TestCategorizeRulesOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("categorize", h.pkg)
	require.NoError(t, err)
	require.Contains(t, out, "Found 30 transactions")
	require.Contains(t, out, "Found 29 uncategorized transactions")
	require.Contains(t, out, "Successfully updated 17 transactions")
	require.NotContains(t, out, "Failed")

	require.Equal(t, "Auto:Fuel", h.category(t, 2))
	require.Equal(t, "Groceries", h.category(t, 11))
	require.Equal(t, "", h.category(t, 3), "no rule for the coffee shop")

	backups, err := os.ReadDir(h.cfg.Backup.Dir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, "Household_backup_20240701_120000.quicken", backups[0].Name())

	elog, err := evallog.Open(h.cfg.Eval.Dir)
	require.NoError(t, err)
	recs, err := elog.Records()
	require.NoError(t, err)
	require.Len(t, recs, 17)
	require.Equal(t, "rule", recs[0].Source)
}

func TestCategorizeDryRunWritesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("categorize", h.pkg, "--dry-run", "--start-date", "2024-06-01", "--account-type", "CHECKING")
	require.NoError(t, err)
	require.Contains(t, out, "DRY RUN - No changes applied")
	require.Contains(t, out, "SAFEWAY #1234")
	require.NotContains(t, out, "SHELL OIL 57442", "credit card rows are filtered out")
	require.Equal(t, "", h.category(t, 2))
	_, err = os.Stat(h.cfg.Backup.Dir)
	require.True(t, os.IsNotExist(err))
}

func TestSetCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run("set", h.pkg, "3", "Groceris")
	require.ErrorContains(t, err, "did you mean Groceries")

	out, err := h.run("set", h.pkg, "3", "Dining", "--no-backup")
	require.NoError(t, err)
	require.Contains(t, out, "Transaction 3 set to Dining")
	require.Equal(t, "Dining", h.category(t, 3))

	_, err = h.run("set", h.pkg, "9999", "Dining", "--no-backup")
	require.ErrorContains(t, err, "not found")
}

func TestInspectCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.run("categories", h.pkg)
	require.NoError(t, err)
	require.Contains(t, out, "Auto:Fuel\n")
	require.NotContains(t, out, "Transfer:Internal")
	require.Contains(t, out, "11 categories")

	out, err = h.run("accounts", h.pkg)
	require.NoError(t, err)
	require.Contains(t, out, "  Everyday Checking\n")
	require.Contains(t, out, "  Rewards Visa\n")

	_, err = h.run("categories", filepath.Join(h.dir, "missing.quicken"))
	require.ErrorIs(t, err, database.ErrStorageNotFound)
}

func TestEvalCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run("categorize", h.pkg)
	require.NoError(t, err)
	_, err = h.run("eval", "correct", "2", "Auto:Fuel")
	require.NoError(t, err)
	_, err = h.run("eval", "correct", "12", "Dining")
	require.NoError(t, err)
	_, err = h.run("eval", "correct", "3", "Dining")
	require.ErrorIs(t, err, evallog.ErrNoRecord)

	out, err := h.run("eval", "stats")
	require.NoError(t, err)
	require.Contains(t, out, "Corrected")
	require.Contains(t, out, "50.0%")
}

func TestResolveAPIKey(t *testing.T) {
	a := newApp(io.Discard, io.Discard)
	a.cfg = config.Config{LLM: config.LLMConfig{Provider: "gemini", APIKeyEnv: "BOOKKEEPER_TEST_KEY", APIKey: "from-config"}}
	store := secrets.New(t.TempDir())
	a.keys = func() (*secrets.Store, error) { return store, nil }

	require.Equal(t, "from-config", a.resolveAPIKey(""))
	require.NoError(t, store.Put("gemini", "from-store"))
	require.Equal(t, "from-store", a.resolveAPIKey(""))
	t.Setenv("BOOKKEEPER_TEST_KEY", "from-env")
	require.Equal(t, "from-env", a.resolveAPIKey(""))
	require.Equal(t, "from-flag", a.resolveAPIKey(" from-flag "))
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	r, err := parseRange("", "")
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = parseRange("2024-01-01", "")
	require.NoError(t, err)
	require.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 1}, r.Start)
	require.True(t, r.End.IsZero(), "end stays open")

	r, err = parseRange("", "2024-03-31")
	require.NoError(t, err)
	require.True(t, r.Start.IsZero())

	_, err = parseRange("2024-02-30", "")
	require.Error(t, err)
	_, err = parseRange("2024-06-01", "2024-05-01")
	require.Error(t, err)
}

func TestClosestCategories(t *testing.T) {
	t.Parallel()
	names := []string{"Auto:Fuel", "Dining", "Groceries", "Health"}
	require.Equal(t, []string{"Groceries"}, closestCategories("grocery", names))
	require.Equal(t, []string{"Auto:Fuel"}, closestCategories("auto", names))
	require.Empty(t, closestCategories("zzzzzzzz", names))
}
