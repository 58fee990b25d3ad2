package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Client is a Gmail API client delegated to a single mailbox.
type Client struct {
	transport *transport
	mailbox   string
}

// Gmail API JSON response types (unexported, used only for JSON unmarshaling).

type listMessageRef struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
}

type listMessagesResponse struct {
	Messages           []listMessageRef `json:"messages"`
	NextPageToken      string           `json:"nextPageToken"`
	ResultSizeEstimate int64            `json:"resultSizeEstimate"`
}

type messageResponse struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      *Part  `json:"payload"`
}

type attachmentResponse struct {
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// ListMessages returns up to maxResults candidates matching the query.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int) ([]CandidateMessage, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(maxResults))
	if query != "" {
		params.Set("q", query)
	}

	reqURL := fmt.Sprintf("%s/users/me/messages?%s", gmailBaseURL, params.Encode())
	data, err := c.transport.get(ctx, OpMessagesList, reqURL)
	if err != nil {
		return nil, err
	}

	var resp listMessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	candidates := make([]CandidateMessage, len(resp.Messages))
	for i, m := range resp.Messages {
		// internalDate is absent from list responses; tolerate both.
		internalDate, _ := strconv.ParseInt(m.InternalDate, 10, 64)
		candidates[i] = CandidateMessage{
			ID:           m.ID,
			ThreadID:     m.ThreadID,
			InternalDate: internalDate,
			Mailbox:      c.mailbox,
		}
	}
	return candidates, nil
}

// GetMessage fetches full detail for a single message, including headers
// and the MIME part tree.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	reqURL := fmt.Sprintf("%s/users/me/messages/%s?format=full", gmailBaseURL, url.PathEscape(messageID))
	data, err := c.transport.get(ctx, OpMessagesGet, reqURL)
	if err != nil {
		return nil, err
	}

	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	internalDate, _ := strconv.ParseInt(resp.InternalDate, 10, 64)

	return &Message{
		ID:           resp.ID,
		ThreadID:     resp.ThreadID,
		Snippet:      resp.Snippet,
		InternalDate: internalDate,
		Payload:      resp.Payload,
	}, nil
}

// GetAttachment fetches one attachment and decodes its base64url payload.
// Returns NotFoundError when the provider response carries no data.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/users/me/messages/%s/attachments/%s",
		gmailBaseURL, url.PathEscape(messageID), url.PathEscape(attachmentID))
	data, err := c.transport.get(ctx, OpAttachmentsGet, reqURL)
	if err != nil {
		return nil, err
	}

	var resp attachmentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse attachment: %w", err)
	}
	if resp.Data == "" {
		return nil, &NotFoundError{Path: reqURL}
	}

	payload, err := decodeBase64URL(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return payload, nil
}

// Ensure Client implements the MailboxAPI interface.
var _ MailboxAPI = (*Client)(nil)
