package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/finwork/invoicefinder/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "invoicefinder",
	Short: "Federated invoice search across Google Workspace mailboxes",
	Long: `invoicefinder searches for invoice and order emails across every
mailbox of a Google Workspace domain using domain-wide delegation.

A single service account key grants read-only access to all mailboxes;
searches fan out in parallel, merge and rank the results, and verify that
each hit really mentions the query before surfacing it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.invoicefinder/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// credentialsHint returns help text for missing service account credentials.
func credentialsHint() string {
	return `
invoicefinder needs a Google service account with domain-wide delegation:
  1. Create a service account in the Google Cloud console
  2. Grant it domain-wide delegation for the Gmail and Directory scopes
  3. Point invoicefinder at the key, either:
       GOOGLE_SERVICE_ACCOUNT_JSON='{"type":"service_account",...}'
     or in config.toml:
       [google]
       credentials_file = "/path/to/service-account.json"`
}
