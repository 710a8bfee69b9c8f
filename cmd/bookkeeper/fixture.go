package main

import (
	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/jask/bookkeeper/internal/database/fixture"
)

func newFixtureCmd(a *app) *cobra.Command {
	var end string
	cmd := &cobra.Command{
		Use:   "fixture <package>",
		Short: "Create a sample package to try the tool against",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := civil.DateOf(a.now())
			if end != "" {
				d, err := civil.ParseDate(end)
				if err != nil {
					return err
				}
				day = d
			}
			path, err := fixture.Create(args[0])
			if err != nil {
				return err
			}
			ds := fixture.Sample(day)
			if err := fixture.Seed(cmd.Context(), path, ds); err != nil {
				return err
			}
			kv(a.out, "Created", args[0])
			kv(a.out, "Transactions", plural(len(ds.Transactions), "row", "rows"))
			return nil
		},
	}
	cmd.Flags().StringVar(&end, "end-date", "", "date of the newest sample transaction (YYYY-MM-DD, default today)")
	return cmd
}
