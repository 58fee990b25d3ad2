// Package api provides the HTTP API server for invoicefinder.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/finwork/invoicefinder/internal/access"
	"github.com/finwork/invoicefinder/internal/auth"
	"github.com/finwork/invoicefinder/internal/config"
	"github.com/finwork/invoicefinder/internal/gmail"
	"github.com/finwork/invoicefinder/internal/search"
)

// Searcher defines the search pipeline operations the API needs.
type Searcher interface {
	Run(ctx context.Context, rawQuery string, lookbackMonths int, mailboxes []string, onProgress search.ProgressFunc) ([]search.MessageRecord, error)
}

// ScopeResolver answers which search scope an authenticated user holds.
type ScopeResolver interface {
	Resolve(user string) (access.Scope, bool)
}

// MailboxResolver resolves the mailbox set a search fans out over.
type MailboxResolver interface {
	Resolve(ctx context.Context, scopeKey string) ([]string, error)
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	searcher    Searcher
	scopes      ScopeResolver
	mailboxes   MailboxResolver
	dialer      gmail.MailboxDialer
	sessions    *auth.Manager
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter

	// nowFn is swapped in tests for deterministic token handling.
	nowFn func() time.Time
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, searcher Searcher, scopes ScopeResolver, mailboxes MailboxResolver, dialer gmail.MailboxDialer, sessions *auth.Manager, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		searcher:  searcher,
		scopes:    scopes,
		mailboxes: mailboxes,
		dialer:    dialer,
		sessions:  sessions,
		logger:    logger,
		nowFn:     time.Now,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	// Rate limiting (10 req/sec with burst of 20)
	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// Health check needs no auth
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		// Session-protected routes. Fan-out can blow the usual timeout,
		// so the aggregate search route carries its own generous one.
		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.With(chimw.Timeout(5 * time.Minute)).Get("/search", s.handleSearch)
			r.Get("/search/stream", s.handleSearchStream)

			r.Get("/me/scope", s.handleScope)
			r.Get("/attachments/{messageID}/{attachmentID}", s.handleDownload)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout must outlast the longest search fan-out and keep
		// SSE streams alive.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

type contextKey string

// userContextKey carries the authenticated user's email.
const userContextKey contextKey = "user"

// sessionMiddleware validates the bearer session token. EventSource clients
// cannot set headers, so a token query parameter is accepted as well.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		email, err := s.sessions.Parse(token, s.nowFn())
		if err != nil {
			s.logger.Warn("unauthorized request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return header[len("Bearer "):]
	}
	return ""
}

// requestUser returns the authenticated email set by sessionMiddleware.
func requestUser(r *http.Request) string {
	email, _ := r.Context().Value(userContextKey).(string)
	return email
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
