// Package auth issues and verifies signed bearer session tokens and checks
// login credentials against the configured user table.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for any token that fails structural or
// signature checks. The cause is deliberately not distinguished.
var ErrInvalidToken = errors.New("invalid session token")

// ErrExpiredToken is returned for a well-formed token past its lifetime.
var ErrExpiredToken = errors.New("session expired")

// Manager signs and verifies session tokens. A token is the payload
// "email|unixSeconds" HMAC-SHA256 signed and base64url encoded, so it is
// self-describing and needs no server-side session store.
type Manager struct {
	secret []byte
	maxAge time.Duration
}

// NewManager creates a token manager. An empty secret gets a random one,
// which invalidates outstanding sessions on restart.
func NewManager(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}, nil
}

// MaxAge returns the configured token lifetime.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue creates a signed token for email, stamped with now.
func (m *Manager) Issue(email string, now time.Time) (string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	payload := normalized + "|" + strconv.FormatInt(now.Unix(), 10)
	token := payload + "|" + m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Parse verifies token and returns the email it was issued for. The
// signature is checked before the timestamp so a tampered token never
// reports a useful reason.
func (m *Manager) Parse(token string, now time.Time) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	payload := parts[0] + "|" + parts[1]
	if !m.verify(payload, parts[2]) {
		return "", ErrInvalidToken
	}
	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if now.Sub(time.Unix(timestamp, 0)) > m.maxAge {
		return "", ErrExpiredToken
	}
	email, err := NormalizeEmail(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	return email, nil
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(email))
	if trimmed == "" {
		return "", errors.New("email is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", errors.New("email must be valid")
	}
	return strings.ToLower(addr.Address), nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(payload, signature string) bool {
	expected := m.sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Credential is one login entry from configuration.
type Credential struct {
	Email    string
	Password string
}

// CheckPassword verifies email/password against the credential table in
// constant time per entry. It returns the normalized email on success.
func CheckPassword(creds []Credential, email, password string) (string, bool) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", false
	}
	for _, c := range creds {
		known, err := NormalizeEmail(c.Email)
		if err != nil {
			continue
		}
		emailOK := subtle.ConstantTimeCompare([]byte(known), []byte(normalized)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
		if emailOK && passOK {
			return normalized, true
		}
	}
	return "", false
}
