// Package search implements the federated search core: fanning a provider
// query out across many delegated mailboxes in bounded batches, merging and
// ranking candidates, resolving message detail and attachment metadata, and
// filtering provider false positives against the literal query variations.
package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/finwork/invoicefinder/internal/gmail"
)

// AttachmentRef is a flattened leaf of a message's MIME part tree.
type AttachmentRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size_bytes"`
}

// MessageRecord is the enriched result after detail resolution. Immutable
// once constructed.
type MessageRecord struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Date        string          `json:"date"`
	Snippet     string          `json:"snippet"`
	Attachments []AttachmentRef `json:"attachments"`
	Mailbox     string          `json:"mailbox"`
}

// ProgressFunc reports fan-out progress after each batch. processed is
// non-decreasing and reaches total on the final batch.
type ProgressFunc func(processed, total int)

// Aggregator fans provider queries out across mailbox sets.
type Aggregator struct {
	dialer            gmail.MailboxDialer
	batchSize         int
	detailConcurrency int
	logger            *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithBatchSize sets how many mailboxes are searched concurrently per batch.
func WithBatchSize(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithDetailConcurrency caps parallel message-detail fetches.
func WithDetailConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.detailConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an aggregator over the given mailbox dialer.
func NewAggregator(dialer gmail.MailboxDialer, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		dialer:            dialer,
		batchSize:         20,
		detailConcurrency: 10,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search runs providerQuery across the mailbox set in sequential fixed-size
// batches, all list calls within a batch concurrent. Each mailbox gets a cap
// of ceil(maxResults/len(mailboxes)), minimum 1, bounding total API calls
// while giving every mailbox a fair share of the global cap.
//
// A single mailbox's failure is logged and excluded; it never aborts the
// batch or the call. Merged results are sorted by internal timestamp
// descending (stable, so timestamp ties keep arrival order) and truncated
// to maxResults.
func (a *Aggregator) Search(ctx context.Context, providerQuery string, maxResults int, mailboxes []string, onProgress ProgressFunc) []gmail.CandidateMessage {
	if len(mailboxes) == 0 || maxResults <= 0 {
		return nil
	}

	perMailbox := (maxResults + len(mailboxes) - 1) / len(mailboxes)
	if perMailbox < 1 {
		perMailbox = 1
	}

	a.logger.Info("starting fan-out",
		"mailboxes", len(mailboxes),
		"per_mailbox_cap", perMailbox,
		"batch_size", a.batchSize,
	)

	var (
		mu  sync.Mutex
		all []gmail.CandidateMessage
	)

	total := len(mailboxes)
	for start := 0; start < total; start += a.batchSize {
		end := start + a.batchSize
		if end > total {
			end = total
		}

		g := new(errgroup.Group)
		for _, mailbox := range mailboxes[start:end] {
			mailbox := mailbox
			g.Go(func() error {
				candidates, err := a.listMailbox(ctx, mailbox, providerQuery, perMailbox)
				if err != nil {
					// Swallowed: a dead mailbox shrinks the result
					// set instead of failing the search.
					a.logger.Warn("mailbox search failed", "mailbox", mailbox, "error", err)
					return nil
				}
				if len(candidates) == 0 {
					return nil
				}
				mu.Lock()
				all = append(all, candidates...)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if onProgress != nil {
			onProgress(end, total)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].InternalDate > all[j].InternalDate
	})
	if len(all) > maxResults {
		all = all[:maxResults]
	}

	a.logger.Info("fan-out complete", "candidates", len(all))
	return all
}

func (a *Aggregator) listMailbox(ctx context.Context, mailbox, providerQuery string, limit int) ([]gmail.CandidateMessage, error) {
	api, err := a.dialer.Mailbox(mailbox)
	if err != nil {
		return nil, err
	}
	return api.ListMessages(ctx, providerQuery, limit)
}
