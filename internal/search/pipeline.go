package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline chains query building, fan-out, detail resolution and content
// validation into the single operation the HTTP handlers and CLI call.
type Pipeline struct {
	agg        *Aggregator
	strategy   Strategy
	maxResults int
	logger     *slog.Logger

	// nowFn is swapped in tests for deterministic date bounds.
	nowFn func() time.Time
}

// NewPipeline creates a pipeline over the aggregator using the given
// strategy and global result cap.
func NewPipeline(agg *Aggregator, strategy Strategy, maxResults int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Pipeline{
		agg:        agg,
		strategy:   strategy,
		maxResults: maxResults,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// Strategy returns the pipeline's configured strategy.
func (p *Pipeline) Strategy() Strategy {
	return p.strategy
}

// Run executes one search over the given mailbox set. Per-mailbox and
// per-message provider failures shrink the result set rather than failing
// the run; an empty slice with a nil error means a genuine "no results".
func (p *Pipeline) Run(ctx context.Context, rawQuery string, lookbackMonths int, mailboxes []string, onProgress ProgressFunc) ([]MessageRecord, error) {
	provider, variations := p.strategy.BuildQuery(rawQuery, lookbackMonths, p.nowFn())

	// One correlation ID ties together the log lines of a single search
	// across the fan-out goroutines.
	logger := p.logger.With("search_id", uuid.NewString())
	logger.Info("search started",
		"strategy", p.strategy.Name(),
		"raw_query", rawQuery,
		"provider_query", provider,
		"mailboxes", len(mailboxes),
	)

	candidates := p.agg.Search(ctx, provider, p.maxResults, mailboxes, onProgress)
	records := p.agg.ResolveDetails(ctx, candidates)

	// Individual failures are swallowed above, but a dead client connection
	// should not be reported as an empty result set.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := records[:0]
	for i := range records {
		if p.strategy.Validate(&records[i], variations) {
			kept = append(kept, records[i])
		}
	}

	logger.Info("search finished",
		"candidates", len(candidates),
		"resolved", len(records),
		"kept", len(kept),
	)

	// kept aliases records; copy so callers never see the dropped tail.
	out := make([]MessageRecord, len(kept))
	copy(out, kept)
	return out, nil
}
