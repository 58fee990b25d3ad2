package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/finwork/invoicefinder/internal/search"
)

// sseWriter serializes server-sent events onto one response. Progress
// callbacks arrive from worker goroutines, so writes are locked.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one named event with a JSON payload and flushes it.
func (s *sseWriter) send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}

// progressEvent reports fan-out progress to the client.
type progressEvent struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// completeEvent carries the final result set.
type completeEvent struct {
	Query     string                 `json:"query"`
	Total     int                    `json:"total"`
	Mailboxes int                    `json:"mailboxes_searched"`
	Scope     string                 `json:"scope,omitempty"`
	Messages  []search.MessageRecord `json:"messages"`
}

// errorEvent reports a terminal failure on the stream.
type errorEvent struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleSearchStream runs a search and streams progress as server-sent
// events, ending with a complete or error event. Errors after the stream
// has started can no longer change the HTTP status, so they ride the
// stream too.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	query, months, err := searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	stream, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Response writer does not support streaming")
		return
	}

	mailboxes, scopeLabel, err := s.resolveStreamMailboxes(r)
	if err != nil {
		s.logger.Error("failed to resolve mailboxes for stream", "user", requestUser(r), "error", err)
		if isDirectoryUnavailable(err) {
			stream.send("error", errorEvent{Error: "directory_unavailable", Message: "Mailbox directory is not configured"})
		} else {
			stream.send("error", errorEvent{Error: "provider_error", Message: "Could not resolve the mailbox list"})
		}
		return
	}

	stream.send("progress", progressEvent{Processed: 0, Total: len(mailboxes)})

	records, err := s.searcher.Run(r.Context(), query, months, mailboxes, func(processed, total int) {
		stream.send("progress", progressEvent{Processed: processed, Total: total})
	})
	if err != nil {
		s.logger.Error("streamed search failed", "user", requestUser(r), "error", err)
		stream.send("error", errorEvent{Error: "search_failed", Message: "Search did not complete"})
		return
	}

	if records == nil {
		records = []search.MessageRecord{}
	}
	stream.send("complete", completeEvent{
		Query:     query,
		Total:     len(records),
		Mailboxes: len(mailboxes),
		Scope:     scopeLabel,
		Messages:  records,
	})
}
