package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	gmailBaseURL     = "https://gmail.googleapis.com/gmail/v1"
	directoryBaseURL = "https://admin.googleapis.com/admin/directory/v1"

	maxRetries = 6
	maxBackoff = 120 // Max backoff in seconds
)

// transport performs rate-limited, retried GET requests against Google REST
// endpoints. It is shared by the mailbox and directory clients.
type transport struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// get issues a GET request with rate limiting and retry logic.
func (t *transport) get(ctx context.Context, op Operation, reqURL string) ([]byte, error) {
	if err := t.rateLimiter.Acquire(ctx, op); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			t.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "url", reqURL)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue // Retry on network errors
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch resp.StatusCode {
		case 429: // Rate limited
			// Expected during wide fan-outs; the retry loop absorbs it.
			t.logger.Debug("rate limited, backing off 30s", "url", reqURL, "attempt", attempt)
			t.rateLimiter.Throttle(30 * time.Second)
			lastErr = fmt.Errorf("rate limited (429)")
			continue

		case 403: // Could be quota or permission error
			if isRateLimitError(respBody) {
				t.logger.Debug("quota exceeded, backing off 60s", "url", reqURL, "attempt", attempt)
				t.rateLimiter.Throttle(60 * time.Second)
				lastErr = fmt.Errorf("quota exceeded (403)")
				continue
			}
			// Actual permission error - don't retry
			return nil, fmt.Errorf("forbidden (403): %s", string(respBody))

		case 500, 502, 503, 504: // Server errors
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue

		case 401: // Unauthorized - delegated token rejected
			return nil, fmt.Errorf("unauthorized (401): delegated token may be invalid")

		case 404:
			return nil, &NotFoundError{Path: reqURL}

		default: // Other client errors - don't retry
			return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(respBody))
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns the backoff duration for a retry attempt.
// Uses exponential backoff with full jitter.
func calculateBackoff(attempt int) time.Duration {
	base := float64(uint(1) << uint(attempt))
	if base > maxBackoff {
		base = maxBackoff
	}

	jittered := rand.Float64() * base
	return time.Duration(jittered * float64(time.Second))
}

// NotFoundError indicates a 404 response or an absent attachment payload.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// isRateLimitError checks if a 403 response is actually a rate limit error.
// Google returns 403 with "rateLimitExceeded" for quota exceeded instead of 429.
func isRateLimitError(body []byte) bool {
	return bytes.Contains(body, []byte("rateLimitExceeded")) ||
		bytes.Contains(body, []byte("RATE_LIMIT_EXCEEDED")) ||
		bytes.Contains(body, []byte("Quota exceeded")) ||
		bytes.Contains(body, []byte("userRateLimitExceeded"))
}

// decodeBase64URL decodes a base64url-encoded string, tolerating optional
// padding. The Gmail API returns unpadded base64url for attachment payloads;
// the URL-safe alphabet must be normalized before standard decoding, which
// URLEncoding/RawURLEncoding handle.
func decodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsRune(s, '=') {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
