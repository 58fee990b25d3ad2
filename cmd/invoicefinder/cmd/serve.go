package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/finwork/invoicefinder/internal/access"
	"github.com/finwork/invoicefinder/internal/api"
	"github.com/finwork/invoicefinder/internal/auth"
	"github.com/finwork/invoicefinder/internal/directory"
	"github.com/finwork/invoicefinder/internal/gmail"
	"github.com/finwork/invoicefinder/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the invoice search HTTP API",
	Long: `Run the invoicefinder HTTP API in the foreground.

The server exposes:
  POST /api/v1/auth/login            obtain a session token
  GET  /api/v1/search                aggregate search (requires a scope)
  GET  /api/v1/search/stream         search with live progress (SSE)
  GET  /api/v1/me/scope              the caller's search authorization
  GET  /api/v1/attachments/{m}/{a}   attachment download proxy

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildService creates the delegated Gmail client factory from config.
func buildService() (*gmail.Service, error) {
	credentials, err := cfg.ServiceAccountJSON()
	if err != nil {
		return nil, fmt.Errorf("%w%s", err, credentialsHint())
	}

	qps := float64(cfg.Google.RateLimitQPS)
	if qps <= 0 {
		qps = 5
	}
	return gmail.NewService(credentials,
		gmail.WithLogger(logger),
		gmail.WithRateLimiter(gmail.NewRateLimiter(qps)),
	)
}

// buildMailboxResolver wires the directory resolver, tolerating a missing
// admin credential: the static mailbox list still works without one.
func buildMailboxResolver(svc *gmail.Service) *directory.Resolver {
	var dir gmail.DirectoryAPI
	if cfg.Google.AdminEmail != "" {
		client, err := svc.Directory(cfg.Google.AdminEmail)
		if err != nil {
			logger.Warn("directory access unavailable", "error", err)
		} else {
			dir = client
		}
	}
	return directory.NewResolver(dir, cfg.Google.Domain, cfg.Google.Mailboxes, logger)
}

// buildPipeline assembles the search pipeline from config.
func buildPipeline(svc *gmail.Service) *search.Pipeline {
	agg := search.NewAggregator(svc,
		search.WithBatchSize(cfg.Search.BatchSize),
		search.WithDetailConcurrency(cfg.Search.DetailConcurrency),
		search.WithLogger(logger),
	)
	strategy := search.StrategyForName(cfg.Search.Strategy)
	return search.NewPipeline(agg, strategy, cfg.Search.MaxResults, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(cfg.Auth.Users) == 0 {
		return fmt.Errorf("no login users configured\n\nAdd users to config.toml:\n\n  [[auth.users]]\n  email = \"you@corp.example\"\n  password = \"...\"\n\nor set AUTH_USER and AUTH_PASSWORD")
	}

	svc, err := buildService()
	if err != nil {
		return err
	}

	sessions, err := auth.NewManager(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	if cfg.Auth.SessionSecret == "" {
		logger.Warn("no session secret configured, sessions will not survive restarts")
	}

	scopes := access.NewResolver(cfg.Auth.ScopeMappings, logger)
	logger.Info("loaded scope mappings", "users", scopes.Len())

	mailboxes := buildMailboxResolver(svc)
	pipeline := buildPipeline(svc)

	apiServer := api.NewServer(cfg, pipeline, scopes, mailboxes, svc, sessions, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("invoicefinder started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Search strategy: %s\n", pipeline.Strategy().Name())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		return err
	case <-cmd.Context().Done():
		logger.Info("shutdown signal received")
	}

	fmt.Println("\nShutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	fmt.Println("Shutdown complete.")
	return nil
}
