package gmail

import (
	"context"
	"fmt"
	"sync"
)

// MockMailbox is a mock implementation of MailboxAPI for testing.
type MockMailbox struct {
	mu sync.Mutex

	// Email identifies the mailbox this mock represents.
	Email string

	// Candidates returned by ListMessages (truncated to maxResults).
	Candidates []CandidateMessage

	// Messages indexed by ID for GetMessage.
	Messages map[string]*Message

	// Attachments indexed by "messageID/attachmentID".
	Attachments map[string][]byte

	// Error injection
	ListError       error
	GetMessageError map[string]error // Per-message errors
	AttachmentError error

	// Call tracking for assertions
	ListCalls       int
	LastQuery       string
	LastMaxResults  int
	GetMessageCalls []string
	AttachmentCalls []string
}

// NewMockMailbox creates a mock mailbox with empty state.
func NewMockMailbox(email string) *MockMailbox {
	return &MockMailbox{
		Email:           email,
		Messages:        make(map[string]*Message),
		Attachments:     make(map[string][]byte),
		GetMessageError: make(map[string]error),
	}
}

// ListMessages returns the configured candidates, capped at maxResults.
func (m *MockMailbox) ListMessages(ctx context.Context, query string, maxResults int) ([]CandidateMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	m.LastQuery = query
	m.LastMaxResults = maxResults

	if m.ListError != nil {
		return nil, m.ListError
	}

	out := make([]CandidateMessage, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		if len(out) >= maxResults {
			break
		}
		if c.Mailbox == "" {
			c.Mailbox = m.Email
		}
		out = append(out, c)
	}
	return out, nil
}

// GetMessage returns the configured message for the ID.
func (m *MockMailbox) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetMessageCalls = append(m.GetMessageCalls, messageID)

	if err := m.GetMessageError[messageID]; err != nil {
		return nil, err
	}
	msg, ok := m.Messages[messageID]
	if !ok {
		return nil, &NotFoundError{Path: "/users/me/messages/" + messageID}
	}
	return msg, nil
}

// GetAttachment returns the configured payload for messageID/attachmentID.
func (m *MockMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachmentCalls = append(m.AttachmentCalls, messageID+"/"+attachmentID)

	if m.AttachmentError != nil {
		return nil, m.AttachmentError
	}
	data, ok := m.Attachments[messageID+"/"+attachmentID]
	if !ok {
		return nil, &NotFoundError{Path: "/attachments/" + attachmentID}
	}
	return data, nil
}

// MockDialer hands out MockMailbox instances by email.
type MockDialer struct {
	mu sync.Mutex

	// Mailboxes indexed by email. Missing entries are created on demand
	// unless DialError is set for the email.
	Mailboxes map[string]*MockMailbox

	// DialError injects per-mailbox dial failures.
	DialError map[string]error

	// DialCalls records every requested mailbox.
	DialCalls []string
}

// NewMockDialer creates an empty dialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		Mailboxes: make(map[string]*MockMailbox),
		DialError: make(map[string]error),
	}
}

// Add registers a mock mailbox and returns it for further setup.
func (d *MockDialer) Add(email string) *MockMailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	mb := NewMockMailbox(email)
	d.Mailboxes[email] = mb
	return mb
}

// Mailbox returns the mock for email, creating an empty one if absent.
func (d *MockDialer) Mailbox(email string) (MailboxAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls = append(d.DialCalls, email)

	if err := d.DialError[email]; err != nil {
		return nil, err
	}
	mb, ok := d.Mailboxes[email]
	if !ok {
		mb = NewMockMailbox(email)
		d.Mailboxes[email] = mb
	}
	return mb, nil
}

// MockDirectory is a mock implementation of DirectoryAPI for testing.
type MockDirectory struct {
	mu sync.Mutex

	// Users returned by ListDomainUsers, keyed by domain.
	Users map[string][]string

	// Members returned by ListGroupMembers, keyed by group email.
	Members map[string][]string

	// Error injection
	UsersError   error
	MembersError error

	// Call tracking for assertions
	UsersCalls   int
	MembersCalls int
}

// NewMockDirectory creates an empty directory mock.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		Users:   make(map[string][]string),
		Members: make(map[string][]string),
	}
}

// ListDomainUsers returns the configured users for the domain.
func (m *MockDirectory) ListDomainUsers(ctx context.Context, domain string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UsersCalls++

	if m.UsersError != nil {
		return nil, m.UsersError
	}
	users, ok := m.Users[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	return users, nil
}

// ListGroupMembers returns the configured members for the group.
func (m *MockDirectory) ListGroupMembers(ctx context.Context, groupEmail string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MembersCalls++

	if m.MembersError != nil {
		return nil, m.MembersError
	}
	members, ok := m.Members[groupEmail]
	if !ok {
		return nil, fmt.Errorf("unknown group %q", groupEmail)
	}
	return members, nil
}

// Ensure mocks implement their interfaces.
var (
	_ MailboxAPI    = (*MockMailbox)(nil)
	_ MailboxDialer = (*MockDialer)(nil)
	_ DirectoryAPI  = (*MockDirectory)(nil)
)
