package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/finwork/invoicefinder/internal/gmail"
)

// defaultMimeType is assumed for attachment parts that omit one.
const defaultMimeType = "application/octet-stream"

// ResolveDetails fetches full detail for each candidate in parallel, bounded
// by the configured concurrency. Per-message failures are logged and dropped;
// the returned slice preserves candidate order with failed entries removed.
func (a *Aggregator) ResolveDetails(ctx context.Context, candidates []gmail.CandidateMessage) []MessageRecord {
	if len(candidates) == 0 {
		return nil
	}

	resolved := make([]*MessageRecord, len(candidates))
	sem := make(chan struct{}, a.detailConcurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		i, candidate := i, candidate

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			rec, err := a.resolveDetail(ctx, candidate)
			if err != nil {
				// Swallowed: the caller gets a smaller result set.
				a.logger.Warn("failed to resolve message detail",
					"id", candidate.ID, "mailbox", candidate.Mailbox, "error", err)
				return nil
			}
			resolved[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	records := make([]MessageRecord, 0, len(resolved))
	for _, rec := range resolved {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// resolveDetail fetches one message and flattens its headers and part tree.
func (a *Aggregator) resolveDetail(ctx context.Context, candidate gmail.CandidateMessage) (*MessageRecord, error) {
	api, err := a.dialer.Mailbox(candidate.Mailbox)
	if err != nil {
		return nil, err
	}

	msg, err := api.GetMessage(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}

	var headers []gmail.Header
	var parts []*gmail.Part
	if msg.Payload != nil {
		headers = msg.Payload.Headers
		parts = msg.Payload.Parts
	}

	return &MessageRecord{
		ID:          candidate.ID,
		Subject:     firstHeader(headers, "Subject"),
		From:        firstHeader(headers, "From"),
		To:          firstHeader(headers, "To"),
		Date:        firstHeader(headers, "Date"),
		Snippet:     msg.Snippet,
		Attachments: ExtractAttachments(parts),
		Mailbox:     candidate.Mailbox,
	}, nil
}

// firstHeader returns the first value found for name, or empty string.
func firstHeader(headers []gmail.Header, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// ExtractAttachments walks a part tree and flattens every downloadable leaf:
// any part carrying both a filename and an attachment ID. Containers are
// recursed into at unbounded depth and their findings appended. A malformed
// part declaring both is emitted as a leaf and still recursed into.
func ExtractAttachments(parts []*gmail.Part) []AttachmentRef {
	var found []AttachmentRef
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentID != "" {
			mimeType := part.MimeType
			if mimeType == "" {
				mimeType = defaultMimeType
			}
			found = append(found, AttachmentRef{
				ID:       part.Body.AttachmentID,
				Filename: part.Filename,
				MimeType: mimeType,
				Size:     part.Body.Size,
			})
		}
		if len(part.Parts) > 0 {
			found = append(found, ExtractAttachments(part.Parts)...)
		}
	}
	return found
}
