package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jask/bookkeeper/internal/evallog"
)

func newEvalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Inspect and correct the classification log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show accuracy over corrected suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			elog, err := evallog.Open(a.cfg.Eval.Dir)
			if err != nil {
				return err
			}
			s, err := elog.AccuracyStats()
			if err != nil {
				return err
			}
			kv(a.out, "Corrected", strconv.Itoa(s.Total))
			kv(a.out, "Correct", strconv.Itoa(s.Correct))
			kv(a.out, "Accuracy", fmt.Sprintf("%.1f%%", s.Accuracy*100))
			return nil
		},
	}, &cobra.Command{
		Use:   "correct <transaction-id> <category>",
		Short: "Record the category a suggestion should have been",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}
			elog, err := evallog.Open(a.cfg.Eval.Dir)
			if err != nil {
				return err
			}
			if err := elog.RecordCorrection(id, args[1]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Recorded %s for transaction %d", args[1], id)))
			return nil
		},
	})
	return cmd
}
