// Package access maps authenticated users to their search scope.
//
// Scopes are defined statically in configuration as comma-separated
// user:groupEmail:groupName triples. A user with no mapping is not an
// error; callers decide whether absence means "unrestricted" or
// "forbidden".
package access

import (
	"log/slog"
	"strings"
)

// Scope is the search authorization assigned to one user: the Google group
// whose member mailboxes the user may search, plus a display label.
type Scope struct {
	User  string // authenticated user email
	Key   string // group email used for membership lookups
	Label string // human-readable group name
}

// Resolver answers scope lookups from a statically-parsed mapping table.
type Resolver struct {
	byUser map[string]Scope
}

// NewResolver parses the raw mapping text once and keeps the result for the
// process lifetime. Malformed entries are logged and skipped rather than
// failing the whole table.
func NewResolver(raw string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{byUser: make(map[string]Scope)}

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fields := strings.Split(item, ":")
		if len(fields) != 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
			logger.Warn("skipping malformed scope mapping", "entry", item)
			continue
		}
		user := strings.ToLower(strings.TrimSpace(fields[0]))
		r.byUser[user] = Scope{
			User:  user,
			Key:   strings.TrimSpace(fields[1]),
			Label: strings.TrimSpace(fields[2]),
		}
	}

	return r
}

// Resolve returns the scope assigned to user, if any.
func (r *Resolver) Resolve(user string) (Scope, bool) {
	s, ok := r.byUser[strings.ToLower(strings.TrimSpace(user))]
	return s, ok
}

// Len returns the number of mapped users.
func (r *Resolver) Len() int {
	return len(r.byUser)
}
