// Package directory resolves the set of mailboxes a search fans out over.
//
// Three strategies apply, in precedence order: a supplied scope resolves to
// that group's membership; otherwise an explicitly configured mailbox list is
// used verbatim; otherwise every active identity in the domain is enumerated.
// The group and domain paths hit a slow administrative API and are cached
// independently for an hour.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finwork/invoicefinder/internal/cache"
	"github.com/finwork/invoicefinder/internal/gmail"
)

// ErrUnavailable reports that an identity-listing strategy was selected but
// the administrative credential it requires is not configured.
var ErrUnavailable = errors.New("directory listing unavailable")

// TTL bounds how long group-membership and domain-user listings are reused.
const TTL = time.Hour

// Resolver resolves mailbox sets with per-strategy caching.
type Resolver struct {
	dir    gmail.DirectoryAPI // nil when no admin credential is configured
	domain string
	static []string
	cache  *cache.Cache[[]string]
	logger *slog.Logger
}

// NewResolver creates a resolver. dir may be nil; the group and domain
// strategies then fail with ErrUnavailable while the static list still works.
func NewResolver(dir gmail.DirectoryAPI, domain string, static []string, logger *slog.Logger) *Resolver {
	return newResolver(dir, domain, static, cache.New[[]string](TTL), logger)
}

func newResolver(dir gmail.DirectoryAPI, domain string, static []string, c *cache.Cache[[]string], logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:    dir,
		domain: domain,
		static: static,
		cache:  c,
		logger: logger,
	}
}

// Resolve returns the mailbox identities to search. A non-empty scopeKey
// selects that group's membership; otherwise the configured list or the
// full domain enumeration applies.
func (r *Resolver) Resolve(ctx context.Context, scopeKey string) ([]string, error) {
	if scopeKey != "" {
		return r.groupMembers(ctx, scopeKey)
	}
	if len(r.static) > 0 {
		r.logger.Debug("using configured mailbox list", "count", len(r.static))
		return r.static, nil
	}
	return r.domainUsers(ctx)
}

func (r *Resolver) groupMembers(ctx context.Context, scopeKey string) ([]string, error) {
	key := "group:" + scopeKey
	if members, ok := r.cache.Get(key); ok {
		r.logger.Debug("using cached group membership", "group", scopeKey, "count", len(members))
		return members, nil
	}

	if r.dir == nil {
		return nil, fmt.Errorf("list members of %s: %w", scopeKey, ErrUnavailable)
	}

	members, err := r.dir.ListGroupMembers(ctx, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", scopeKey, err)
	}

	r.logger.Info("resolved group membership", "group", scopeKey, "count", len(members))
	r.cache.Set(key, members)
	return members, nil
}

func (r *Resolver) domainUsers(ctx context.Context) ([]string, error) {
	if r.domain == "" {
		return nil, fmt.Errorf("domain not configured: %w", ErrUnavailable)
	}

	key := "domain:" + r.domain
	if users, ok := r.cache.Get(key); ok {
		r.logger.Debug("using cached domain user list", "domain", r.domain, "count", len(users))
		return users, nil
	}

	if r.dir == nil {
		return nil, fmt.Errorf("list users of %s: %w", r.domain, ErrUnavailable)
	}

	users, err := r.dir.ListDomainUsers(ctx, r.domain)
	if err != nil {
		return nil, fmt.Errorf("list users of %s: %w", r.domain, err)
	}

	r.logger.Info("resolved domain user list", "domain", r.domain, "count", len(users))
	r.cache.Set(key, users)
	return users, nil
}
