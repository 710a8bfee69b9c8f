package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// resolveAPIKey picks the LLM key: flag, then environment, then the key
// store, then config. Empty means the LLM stage is off.
func (a *app) resolveAPIKey(flag string) string {
	if k := strings.TrimSpace(flag); k != "" {
		return k
	}
	env := strings.TrimSpace(a.cfg.LLM.APIKeyEnv)
	if env == "" {
		env = "GEMINI_API_KEY"
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if store, err := a.keys(); err == nil {
		if k, err := store.Fetch(a.provider()); err == nil {
			return k
		}
	}
	return strings.TrimSpace(a.cfg.LLM.APIKey)
}

func (a *app) provider() string {
	if p := strings.TrimSpace(a.cfg.LLM.Provider); p != "" {
		return p
	}
	return "gemini"
}

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage stored LLM API keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key>",
		Short: "Store the API key for the configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.keys()
			if err != nil {
				return err
			}
			if err := store.Put(a.provider(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Stored key for "+a.provider()))
			return nil
		},
	}, &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key for the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.keys()
			if err != nil {
				return err
			}
			if err := store.Delete(a.provider()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Removed key for "+a.provider()))
			return nil
		},
	})
	return cmd
}
