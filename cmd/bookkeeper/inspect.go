package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jask/bookkeeper/internal/database/repository"
)

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories <package>",
		Short: "List user-assignable categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(args[0])
			if err != nil {
				return err
			}
			names, err := repository.NewCategoryRepo(store).ListAssignable(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.out, n)
			}
			fmt.Fprintln(a.out, dimStyle.Render(plural(len(names), "category", "categories")))
			return nil
		},
	}
}

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts <package>",
		Short: "List accounts grouped by type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(args[0])
			if err != nil {
				return err
			}
			groups, err := repository.NewAccountRepo(store).ListByType(cmd.Context())
			if err != nil {
				return err
			}
			types := make([]string, 0, len(groups))
			for t := range groups {
				types = append(types, t)
			}
			sort.Strings(types)
			printGrouped(a.out, groups, types)
			return nil
		},
	}
}
