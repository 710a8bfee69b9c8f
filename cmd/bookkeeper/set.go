package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/jask/bookkeeper/internal/backup"
	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/evallog"
)

const maxSuggestDistance = 3

// closestCategories returns up to three names near input, nearest first.
// Case-only differences count as distance zero.
func closestCategories(input string, names []string) []string {
	type cand struct {
		name string
		dist int
	}
	lower := strings.ToLower(input)
	var cands []cand
	for _, n := range names {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(n))
		if d <= maxSuggestDistance || (lower != "" && strings.Contains(strings.ToLower(n), lower)) {
			cands = append(cands, cand{n, d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	var out []string
	for i := 0; i < len(cands) && i < 3; i++ {
		out = append(out, cands[i].name)
	}
	return out
}

func newSetCmd(a *app) *cobra.Command {
	var noBackup bool
	cmd := &cobra.Command{
		Use:   "set <package> <transaction-id> <category>",
		Short: "Assign a category to one transaction",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[1])
			}
			category := args[2]

			store, err := a.openStore(args[0])
			if err != nil {
				return err
			}
			names, err := repository.NewCategoryRepo(store).ListAssignable(ctx)
			if err != nil {
				return err
			}
			known := false
			for _, n := range names {
				if n == category {
					known = true
					break
				}
			}
			if !known {
				msg := fmt.Sprintf("unknown category %q", category)
				if near := closestCategories(category, names); len(near) > 0 {
					msg += "; did you mean " + strings.Join(near, ", ") + "?"
				}
				return errors.New(msg)
			}

			if !noBackup {
				path, err := backup.Create(args[0], a.cfg.Backup.Dir, a.now())
				if err != nil {
					return err
				}
				kv(a.out, "Backup created", path)
			}
			ok, err := repository.NewCashflowRepo(store).SetCategory(ctx, id, category)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("transaction %d not found", id)
			}
			a.noteCorrection(id, category)
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Transaction %d set to %s", id, category)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the package backup")
	return cmd
}

// noteCorrection feeds a manual assignment back to the evaluation log when
// the transaction was suggested before.
func (a *app) noteCorrection(id int64, category string) {
	elog, err := evallog.Open(a.cfg.Eval.Dir)
	if err != nil {
		a.log.Debug().Err(err).Msg("evaluation log unavailable")
		return
	}
	if err := elog.RecordCorrection(id, category); err != nil && !errors.Is(err, evallog.ErrNoRecord) {
		a.log.Warn().Err(err).Int64("transaction_id", id).Msg("record correction")
	}
}
