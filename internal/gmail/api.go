// Package gmail provides Gmail and Admin SDK Directory REST clients with
// rate limiting and retry logic. Each mailbox client is delegated (service
// account impersonation), so hundreds of independently-authenticated inboxes
// can be searched from one credential.
package gmail

import "context"

// CandidateMessage is the minimal record returned by a provider-side list
// query: cheap to obtain in bulk, not yet carrying headers or attachments.
type CandidateMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64  // Unix milliseconds; 0 when the list response omits it
	Mailbox      string // mailbox the candidate was found in
}

// Header is a single message header name/value pair.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody carries the payload of a single MIME part.
type PartBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data"`
}

// Part is one node of a message's MIME part tree. A part carrying both a
// filename and an attachment ID is a downloadable leaf; a part carrying
// sub-parts is a container and is recursed into. Malformed messages may
// declare both on the same node.
type Part struct {
	PartID   string    `json:"partId"`
	MimeType string    `json:"mimeType"`
	Filename string    `json:"filename"`
	Headers  []Header  `json:"headers"`
	Body     *PartBody `json:"body"`
	Parts    []*Part   `json:"parts"`
}

// Message is the full detail for one message (format=full).
type Message struct {
	ID           string
	ThreadID     string
	Snippet      string
	InternalDate int64 // Unix milliseconds
	Payload      *Part
}

// MailboxAPI is the per-mailbox Gmail surface the search core consumes.
type MailboxAPI interface {
	// ListMessages returns up to maxResults candidates matching the query.
	ListMessages(ctx context.Context, query string, maxResults int) ([]CandidateMessage, error)

	// GetMessage fetches full detail for a single message.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// GetAttachment fetches and decodes one attachment's bytes.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// MailboxDialer hands out delegated clients for individual mailboxes.
type MailboxDialer interface {
	Mailbox(email string) (MailboxAPI, error)
}

// DirectoryAPI lists Workspace identities via the Admin SDK Directory API.
// Both operations require an administrative delegated credential.
type DirectoryAPI interface {
	// ListDomainUsers returns the primary emails of all active,
	// non-suspended users in the domain. Pagination is handled internally.
	ListDomainUsers(ctx context.Context, domain string) ([]string, error)

	// ListGroupMembers returns the member emails of a group.
	// Pagination is handled internally.
	ListGroupMembers(ctx context.Context, groupEmail string) ([]string, error)
}
