package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// MailboxScopes are requested for delegated per-mailbox Gmail access.
var MailboxScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
}

// DirectoryScopes are requested for the administrative Directory lookups.
var DirectoryScopes = []string{
	"https://www.googleapis.com/auth/admin.directory.user.readonly",
	"https://www.googleapis.com/auth/admin.directory.group.member.readonly",
}

// Service creates delegated clients from a single service account key.
// Mailbox clients are cached per mailbox; the token sources they hold
// refresh themselves.
type Service struct {
	credentials []byte
	rateLimiter *RateLimiter
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service and the clients it creates.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRateLimiter sets a custom rate limiter shared by all clients.
func WithRateLimiter(rl *RateLimiter) ServiceOption {
	return func(s *Service) {
		s.rateLimiter = rl
	}
}

// NewService creates a client factory from service account JSON key material.
func NewService(credentials []byte, opts ...ServiceOption) (*Service, error) {
	if len(credentials) == 0 {
		return nil, fmt.Errorf("gmail: service account credentials are empty")
	}

	s := &Service{
		credentials: credentials,
		logger:      slog.Default(),
		clients:     make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = NewRateLimiter(5.0)
	}

	// Validate the key material eagerly so misconfiguration surfaces at
	// startup instead of on the first fan-out.
	if _, err := google.JWTConfigFromJSON(credentials, MailboxScopes...); err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	return s, nil
}

// Mailbox returns a Gmail client delegated to the given mailbox.
func (s *Service) Mailbox(email string) (MailboxAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[email]; ok {
		return c, nil
	}

	ts, err := s.tokenSource(email, MailboxScopes)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: &transport{
			httpClient:  oauth2.NewClient(context.Background(), ts),
			rateLimiter: s.rateLimiter,
			logger:      s.logger.With("mailbox", email),
		},
		mailbox: email,
	}
	s.clients[email] = c
	return c, nil
}

// Directory returns an Admin SDK client impersonating the given domain
// administrator.
func (s *Service) Directory(adminEmail string) (*DirectoryClient, error) {
	if adminEmail == "" {
		return nil, fmt.Errorf("gmail: directory access requires an admin email")
	}

	ts, err := s.tokenSource(adminEmail, DirectoryScopes)
	if err != nil {
		return nil, err
	}

	return &DirectoryClient{
		transport: &transport{
			httpClient:  oauth2.NewClient(context.Background(), ts),
			rateLimiter: s.rateLimiter,
			logger:      s.logger.With("subject", adminEmail),
		},
	}, nil
}

// tokenSource builds a delegated token source impersonating subject.
func (s *Service) tokenSource(subject string, scopes []string) (oauth2.TokenSource, error) {
	conf, err := google.JWTConfigFromJSON(s.credentials, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	conf.Subject = subject
	return conf.TokenSource(context.Background()), nil
}

// Ensure Service implements the MailboxDialer interface.
var _ MailboxDialer = (*Service)(nil)
