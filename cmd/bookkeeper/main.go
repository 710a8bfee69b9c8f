package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jask/bookkeeper/internal/config"
	"github.com/jask/bookkeeper/internal/database"
	"github.com/jask/bookkeeper/internal/database/repository"
	"github.com/jask/bookkeeper/internal/logger"
	"github.com/jask/bookkeeper/internal/secrets"
)

// app is the state shared by every command.
type app struct {
	load    func() (config.Config, error)
	keys    func() (*secrets.Store, error)
	now     func() time.Time
	out     io.Writer
	errOut  io.Writer
	cfg     config.Config
	log     zerolog.Logger
	verbose string
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		load:   config.Load,
		keys:   secrets.Default,
		now:    time.Now,
		out:    out,
		errOut: errOut,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookkeeper",
		Short:         "Categorize transactions in a finance package",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := cfg.Log.Level
			if a.verbose != "" {
				level = a.verbose
			}
			a.log = logger.New(level)
			cmd.SetContext(logger.WithContext(cmd.Context(), a.log))
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().StringVar(&a.verbose, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCategorizeCmd(a),
		newCategoriesCmd(a),
		newAccountsCmd(a),
		newSetCmd(a),
		newEvalCmd(a),
		newFixtureCmd(a),
		newKeyCmd(a),
	)
	return root
}

// openStore resolves the package store using the configured timezone.
func (a *app) openStore(pkg string) (*repository.Store, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return repository.NewStore(pkg, database.NewMapper(loc))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		if errors.Is(err, database.ErrStorageNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
