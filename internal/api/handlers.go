package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/finwork/invoicefinder/internal/auth"
	"github.com/finwork/invoicefinder/internal/directory"
	"github.com/finwork/invoicefinder/internal/gmail"
	"github.com/finwork/invoicefinder/internal/search"
)

// defaultLookbackMonths bounds how far back a search reaches when the
// client does not say.
const defaultLookbackMonths = 3

// maxLookbackMonths caps client-supplied lookback windows.
const maxLookbackMonths = 24

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// ScopeResponse describes the caller's search authorization.
type ScopeResponse struct {
	User     string `json:"user"`
	HasScope bool   `json:"has_scope"`
	Group    string `json:"group,omitempty"`
	Label    string `json:"label,omitempty"`
}

// SearchResponse is the aggregate search result.
type SearchResponse struct {
	Query     string                 `json:"query"`
	Total     int                    `json:"total"`
	Mailboxes int                    `json:"mailboxes_searched"`
	Scope     string                 `json:"scope,omitempty"`
	Messages  []search.MessageRecord `json:"messages"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// handleLogin checks credentials and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with email and password")
		return
	}

	creds := make([]auth.Credential, len(s.cfg.Auth.Users))
	for i, u := range s.cfg.Auth.Users {
		creds[i] = auth.Credential{Email: u.Email, Password: u.Password}
	}

	email, ok := auth.CheckPassword(creds, req.Email, req.Password)
	if !ok {
		s.logger.Warn("failed login attempt", "email", req.Email, "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Email or password is incorrect")
		return
	}

	token, err := s.sessions.Issue(email, s.nowFn())
	if err != nil {
		s.logger.Error("failed to issue session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}

	s.logger.Info("user logged in", "user", email)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		User:      email,
		ExpiresIn: int64(s.sessions.MaxAge().Seconds()),
	})
}

// handleScope reports the caller's assigned search scope.
func (s *Server) handleScope(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	scope, ok := s.scopes.Resolve(user)

	resp := ScopeResponse{User: user, HasScope: ok}
	if ok {
		resp.Group = scope.Key
		resp.Label = scope.Label
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchParams validates the common search query parameters.
func searchParams(r *http.Request) (query string, months int, err error) {
	query = strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 {
		return "", 0, errors.New("query parameter 'q' must be at least 2 characters")
	}

	months = defaultLookbackMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 || months > maxLookbackMonths {
			return "", 0, errors.New("parameter 'months' must be between 1 and 24")
		}
	}
	return query, months, nil
}

// handleSearch runs an aggregate search over the caller's scoped mailboxes.
// Unlike the streaming endpoint, it requires an assigned scope.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, months, err := searchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user := requestUser(r)
	scope, ok := s.scopes.Resolve(user)
	if !ok {
		writeError(w, http.StatusForbidden, "no_scope", "No search scope is assigned to your account")
		return
	}

	mailboxes, err := s.mailboxes.Resolve(r.Context(), scope.Key)
	if err != nil {
		s.logger.Error("failed to resolve mailboxes", "user", user, "group", scope.Key, "error", err)
		if isDirectoryUnavailable(err) {
			writeError(w, http.StatusServiceUnavailable, "directory_unavailable", "Mailbox directory is not configured")
			return
		}
		writeError(w, http.StatusBadGateway, "provider_error", "Could not resolve the mailbox list")
		return
	}

	records, err := s.searcher.Run(r.Context(), query, months, mailboxes, nil)
	if err != nil {
		s.logger.Error("search failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", "Search did not complete")
		return
	}

	if records == nil {
		records = []search.MessageRecord{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:     query,
		Total:     len(records),
		Mailboxes: len(mailboxes),
		Scope:     scope.Label,
		Messages:  records,
	})
}

// handleDownload proxies one attachment to the client. The mailbox the
// message lives in comes from the query string, falling back to the
// configured download mailbox.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	attachmentID := chi.URLParam(r, "attachmentID")
	if messageID == "" || attachmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Message and attachment IDs are required")
		return
	}

	mailbox := r.URL.Query().Get("mailbox")
	if mailbox == "" {
		mailbox = s.cfg.Download.FallbackMailbox
	}
	if mailbox == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Parameter 'mailbox' is required")
		return
	}

	api, err := s.dialer.Mailbox(mailbox)
	if err != nil {
		s.logger.Error("failed to open mailbox for download", "mailbox", mailbox, "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "Could not access the mailbox")
		return
	}

	data, err := api.GetAttachment(r.Context(), messageID, attachmentID)
	if err != nil {
		var notFound *gmail.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "not_found", "Attachment not found")
			return
		}
		s.logger.Error("attachment download failed",
			"mailbox", mailbox, "message_id", messageID, "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "Could not download the attachment")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "attachment"
	}

	contentType := r.URL.Query().Get("mime_type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// resolveStreamMailboxes picks the mailbox set for the streaming endpoint.
// Scoped users get their group; unscoped users fall back to the configured
// or domain-wide mailbox list instead of being rejected.
func (s *Server) resolveStreamMailboxes(r *http.Request) ([]string, string, error) {
	user := requestUser(r)
	if scope, ok := s.scopes.Resolve(user); ok {
		mailboxes, err := s.mailboxes.Resolve(r.Context(), scope.Key)
		return mailboxes, scope.Label, err
	}
	mailboxes, err := s.mailboxes.Resolve(r.Context(), "")
	return mailboxes, "", err
}

// isDirectoryUnavailable reports whether err means the directory strategy
// needed is not configured, as opposed to a provider call failing.
func isDirectoryUnavailable(err error) bool {
	return errors.Is(err, directory.ErrUnavailable)
}
