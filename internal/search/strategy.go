package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/finwork/invoicefinder/internal/query"
)

// Strategy decides how a raw user query becomes a provider query and whether
// resolved records are re-checked against visible content. Two strategies
// exist: the smart classifier with content validation, and the legacy
// fixed-keyword query kept as a migration fallback.
type Strategy interface {
	// Name identifies the strategy in logs and configuration.
	Name() string

	// BuildQuery rewrites the raw query for the provider and returns the
	// literal variations used for later content validation.
	BuildQuery(raw string, lookbackMonths int, now time.Time) (provider string, variations []string)

	// Validate reports whether a resolved record should be kept.
	Validate(rec *MessageRecord, variations []string) bool
}

// SmartStrategy classifies the query (identifier, invoice number, amount,
// generic variations) and rejects provider false positives by re-checking
// visible fields.
type SmartStrategy struct{}

// Name implements Strategy.
func (SmartStrategy) Name() string { return "smart" }

// BuildQuery implements Strategy.
func (SmartStrategy) BuildQuery(raw string, lookbackMonths int, now time.Time) (string, []string) {
	built := query.Build(raw, lookbackMonths, now)
	return built.Provider, built.Variations
}

// Validate implements Strategy.
func (SmartStrategy) Validate(rec *MessageRecord, variations []string) bool {
	return MatchesAny(rec, variations)
}

// LegacyKeywordStrategy reproduces the historical behavior: the raw query
// AND-combined with the full invoice keyword OR-list, and no content
// post-filtering.
type LegacyKeywordStrategy struct{}

// Name implements Strategy.
func (LegacyKeywordStrategy) Name() string { return "legacy" }

// BuildQuery implements Strategy.
func (LegacyKeywordStrategy) BuildQuery(raw string, lookbackMonths int, now time.Time) (string, []string) {
	q := strings.TrimSpace(raw)
	keywords := strings.Join(query.Keywords(), " OR ")

	dateClause := ""
	if lookbackMonths > 0 {
		dateClause = " after:" + now.AddDate(0, -lookbackMonths, 0).Format("2006/01/02")
	}

	return fmt.Sprintf("has:attachment (%s) (%s)%s", q, keywords, dateClause), nil
}

// Validate implements Strategy. The legacy flow keeps everything the
// provider returned.
func (LegacyKeywordStrategy) Validate(*MessageRecord, []string) bool { return true }

// StrategyForName returns the strategy selected by configuration,
// defaulting to smart.
func StrategyForName(name string) Strategy {
	if strings.EqualFold(name, "legacy") {
		return LegacyKeywordStrategy{}
	}
	return SmartStrategy{}
}
