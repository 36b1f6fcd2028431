package api

import (
	"context"
	"net/http"
)

// IssueGuest asks the service for an ephemeral guest credential. The
// service scopes it to the caller's IP address.
func (c *Client) IssueGuest(ctx context.Context) (*GuestToken, error) {
	var out GuestToken
	if err := c.call(ctx, http.MethodPost, "/auth/guest-login", nil, &out, false); err != nil {
		return nil, err
	}

	return &out, nil
}

// RevokeGuest ends the current guest credential on the server.
func (c *Client) RevokeGuest(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/auth/guest-logout", nil, nil, false)
}
