package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// DirectoryClient lists Workspace identities through the Admin SDK,
// impersonating a domain administrator.
type DirectoryClient struct {
	transport *transport
}

type directoryUser struct {
	PrimaryEmail string `json:"primaryEmail"`
	Suspended    bool   `json:"suspended"`
}

type listUsersResponse struct {
	Users         []directoryUser `json:"users"`
	NextPageToken string          `json:"nextPageToken"`
}

type groupMember struct {
	Email string `json:"email"`
}

type listMembersResponse struct {
	Members       []groupMember `json:"members"`
	NextPageToken string        `json:"nextPageToken"`
}

// ListDomainUsers returns the primary emails of all active, non-suspended
// users in the domain, following pagination (500 per page).
func (d *DirectoryClient) ListDomainUsers(ctx context.Context, domain string) ([]string, error) {
	var all []string
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("domain", domain)
		params.Set("maxResults", "500")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		reqURL := fmt.Sprintf("%s/users?%s", directoryBaseURL, params.Encode())
		data, err := d.transport.get(ctx, OpUsersList, reqURL)
		if err != nil {
			return nil, fmt.Errorf("list domain users: %w", err)
		}

		var resp listUsersResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse users: %w", err)
		}

		for _, u := range resp.Users {
			if u.PrimaryEmail != "" && !u.Suspended {
				all = append(all, u.PrimaryEmail)
			}
		}

		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListGroupMembers returns the member emails of a group, following
// pagination (200 per page).
func (d *DirectoryClient) ListGroupMembers(ctx context.Context, groupEmail string) ([]string, error) {
	var all []string
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("maxResults", "200")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		reqURL := fmt.Sprintf("%s/groups/%s/members?%s",
			directoryBaseURL, url.PathEscape(groupEmail), params.Encode())
		data, err := d.transport.get(ctx, OpMembersList, reqURL)
		if err != nil {
			return nil, fmt.Errorf("list group members: %w", err)
		}

		var resp listMembersResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse members: %w", err)
		}

		for _, m := range resp.Members {
			if m.Email != "" {
				all = append(all, m.Email)
			}
		}

		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Ensure DirectoryClient implements the DirectoryAPI interface.
var _ DirectoryAPI = (*DirectoryClient)(nil)
