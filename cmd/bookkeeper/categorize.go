package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jask/bookkeeper/internal/backup"
	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/evallog"
	"github.com/jask/bookkeeper/internal/llm"
	"github.com/jask/bookkeeper/internal/rules"
	"github.com/jask/bookkeeper/internal/service"
)

type categorizeOpts struct {
	start, end   string
	accountTypes []string
	dryRun       bool
	apiKey       string
	rulesFile    string
}

func newCategorizeCmd(a *app) *cobra.Command {
	var o categorizeOpts
	cmd := &cobra.Command{
		Use:   "categorize <package>",
		Short: "Suggest and apply categories for uncategorized transactions",
		Example: `  bookkeeper categorize Household.quicken --start-date 2024-01-01 --dry-run
  bookkeeper categorize Household.quicken --start-date 2024-01-01 --end-date 2024-12-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.categorize(cmd.Context(), args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.start, "start-date", "", "first day to include (YYYY-MM-DD)")
	f.StringVar(&o.end, "end-date", "", "last day to include (YYYY-MM-DD)")
	f.StringSliceVar(&o.accountTypes, "account-type", nil, "only accounts of these types (e.g. CHECKING,CREDITCARD)")
	f.BoolVar(&o.dryRun, "dry-run", false, "preview suggestions without writing")
	f.StringVar(&o.apiKey, "api-key", "", "LLM API key (overrides env, key store and config)")
	f.StringVar(&o.rulesFile, "rules", "", "TOML rule table to use instead of the built-in rules")
	return cmd
}

// parseRange builds the optional date filter. An omitted bound stays open so
// scheduled and future-dated transactions are still listed.
func parseRange(start, end string) (*repository.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	r := &repository.DateRange{}
	var err error
	if start != "" {
		if r.Start, err = civil.ParseDate(start); err != nil {
			return nil, fmt.Errorf("invalid --start-date %q: %w", start, err)
		}
	}
	if end != "" {
		if r.End, err = civil.ParseDate(end); err != nil {
			return nil, fmt.Errorf("invalid --end-date %q: %w", end, err)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return nil, fmt.Errorf("--end-date %s is before --start-date %s", r.End, r.Start)
	}
	return r, nil
}

func rangeBound(d civil.Date, open string) string {
	if d.IsZero() {
		return open
	}
	return d.String()
}

func (a *app) matcher(flag string) (*rules.Matcher, error) {
	path := flag
	if path == "" {
		path = a.cfg.Classifier.RulesFile
	}
	if path == "" {
		return rules.Default(), nil
	}
	return rules.LoadFile(path)
}

func (a *app) categorize(ctx context.Context, pkg string, o categorizeOpts) error {
	w := a.out
	store, err := a.openStore(pkg)
	if err != nil {
		return err
	}
	dr, err := parseRange(o.start, o.end)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(strings.TrimRight(pkg, "/"), ".quicken") {
		fmt.Fprintln(w, warnStyle.Render("Warning: expected a .quicken package"))
	}

	mode := "UPDATE"
	if o.dryRun {
		mode = "DRY RUN"
	}
	rangeText := "all"
	if dr != nil {
		rangeText = fmt.Sprintf("%s to %s", rangeBound(dr.Start, "beginning"), rangeBound(dr.End, "latest"))
	}
	kv(w, "File", pkg)
	kv(w, "Date range", rangeText)
	kv(w, "Mode", mode)
	fmt.Fprintln(w)

	if !o.dryRun {
		path, err := backup.Create(pkg, a.cfg.Backup.Dir, a.now())
		if err != nil {
			return err
		}
		kv(w, "Backup created", path)
	}

	txns, err := repository.NewTransactionRepo(store).List(ctx, repository.TransactionFilters{
		Range:              dr,
		AccountTypes:       o.accountTypes,
		WithAccountContext: true,
	})
	if err != nil {
		return err
	}
	categories, err := repository.NewCategoryRepo(store).ListAssignable(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Found %s", plural(len(txns), "transaction", "transactions"))))
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Available categories: %d", len(categories))))

	pending := service.Uncategorized(txns)
	if len(pending) == 0 {
		fmt.Fprintln(w, successStyle.Render("All transactions are already categorized!"))
		return nil
	}
	fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Found %s", plural(len(pending), "uncategorized transaction", "uncategorized transactions"))))

	cat, err := a.categorizer(ctx, o)
	if err != nil {
		return err
	}
	cat.Progress = func(done, total int) {
		fmt.Fprintf(a.errOut, "\r%s", infoStyle.Render(fmt.Sprintf("Classifying transactions... %d/%d", done, total)))
	}
	all, err := cat.ClassifyAll(ctx, pending, categories)
	fmt.Fprintln(a.errOut)
	if err != nil {
		return fmt.Errorf("classification stopped after %d of %d: %w", len(all), len(pending), err)
	}

	suggestions := service.Confident(all, a.cfg.Classifier.SuggestionThreshold)
	if len(suggestions) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No high-confidence suggestions available"))
		if cat.LLM == nil {
			fmt.Fprintln(w, dimStyle.Render("Tip: provide an API key to enable LLM classification"))
		}
		return nil
	}
	a.recordSuggestions(ctx, suggestions)

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Suggested Categorizations (%s)", plural(len(suggestions), "transaction", "transactions"))))
	fmt.Fprintln(w, suggestionsTable(suggestions))

	if o.dryRun {
		fmt.Fprintln(w, warnStyle.Bold(true).Render("DRY RUN - No changes applied"))
		return nil
	}

	updates := make(map[int64]string, len(suggestions))
	for _, s := range suggestions {
		updates[s.Transaction.ID] = s.Category
	}
	results, err := repository.NewCashflowRepo(store).SetCategories(ctx, updates)
	if err != nil {
		return err
	}
	var failed []int64
	for id, ok := range results {
		if !ok {
			failed = append(failed, id)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Successfully updated %s", plural(len(results)-len(failed), "transaction", "transactions"))))
	if len(failed) > 0 {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Failed to update %s: %v", plural(len(failed), "transaction", "transactions"), failed)))
	}
	fmt.Fprintln(w, successStyle.Bold(true).Render("Done!"))
	return nil
}

// categorizer wires rules and, when a key is available, the LLM.
func (a *app) categorizer(ctx context.Context, o categorizeOpts) (*service.Categorizer, error) {
	m, err := a.matcher(o.rulesFile)
	if err != nil {
		return nil, err
	}
	c := &service.Categorizer{Rules: m, Concurrency: a.cfg.Classifier.Concurrency}

	key := a.resolveAPIKey(o.apiKey)
	if key == "" {
		a.log.Info().Msg("no LLM API key; using rules only")
		return c, nil
	}
	cl, err := llm.NewFromConfig(ctx, a.cfg, key)
	if err != nil {
		return nil, err
	}
	c.LLM = cl
	if rps := a.cfg.LLM.RequestsPerSecond; rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c, nil
}

func (a *app) recordSuggestions(ctx context.Context, s []service.Suggestion) {
	elog, err := evallog.Open(a.cfg.Eval.Dir)
	if err != nil {
		a.log.Warn().Err(err).Msg("evaluation log unavailable")
		return
	}
	for _, sg := range s {
		if ctx.Err() != nil {
			return
		}
		if err := elog.Record(sg.Transaction, sg.Category, sg.Confidence, string(sg.Source)); err != nil {
			a.log.Warn().Err(err).Int64("transaction_id", sg.Transaction.ID).Msg("record suggestion")
			return
		}
	}
	a.log.Debug().Str("run_id", elog.RunID()).Int("records", len(s)).Msg("suggestions recorded")
}
