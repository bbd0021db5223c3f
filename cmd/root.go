// Package cmd defines and implements the CLI commands for the indexer
// executable.
//
// Grounded on the teacher's cmd/root.go: a thin cobra root command that
// builds the App once in PersistentPreRunE, stores it on the command
// context, and tears it down in PersistentPostRun, leaving each subcommand
// to resolve it back out of the context rather than threading it through
// function arguments.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anvil-search/indexer/internal/app"
	"github.com/anvil-search/indexer/internal/config"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with a fake builder.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexer",
		Short: "A multi-site web crawler and inverted-index builder.",
		Long: `indexer fetches every reachable internal page of a configured set of
sites, extracts linguistic lemmas from each page, and persists a
site/page/lemma/index model that a separate search component queries.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: env vars only)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())

	return cmd
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}
