package api

import (
	"context"
	"net/http"
	"net/url"
)

type nameBody struct {
	Name string `json:"name"`
}

// ListSessions returns every session of the calling identity, newest first.
func (c *Client) ListSessions(ctx context.Context) (*SessionList, error) {
	var out SessionList
	if err := c.call(ctx, http.MethodGet, "/sessions/list", nil, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

// CurrentSession returns the server's active session pointer.
func (c *Client) CurrentSession(ctx context.Context) (*CurrentSession, error) {
	var out CurrentSession
	if err := c.call(ctx, http.MethodGet, "/sessions/current", nil, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateSession creates a named session.
func (c *Client) CreateSession(ctx context.Context, name string) (*CreatedSession, error) {
	var out CreatedSession
	if err := c.call(ctx, http.MethodPost, "/sessions/create", nameBody{Name: name}, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

// SetActiveSession moves the server's active pointer to id.
func (c *Client) SetActiveSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, sessionPath(id, "/set-active"), nil, nil, true)
}

// RenameSession changes a session's display name.
func (c *Client) RenameSession(ctx context.Context, id, name string) error {
	return c.call(ctx, http.MethodPut, sessionPath(id, "/name"), nameBody{Name: name}, nil, true)
}

// DeleteSession deletes a session and every file in it.
func (c *Client) DeleteSession(ctx context.Context, id string) (*DeletedSession, error) {
	var out DeletedSession
	if err := c.call(ctx, http.MethodDelete, sessionPath(id, ""), nil, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

// SessionFiles lists files stored in a session, optionally filtered by
// prefix (for example "raw_resumes/").
func (c *Client) SessionFiles(ctx context.Context, id, prefix string) (*SessionFiles, error) {
	path := sessionPath(id, "/files")
	if prefix != "" {
		path += "?" + url.Values{"prefix": {prefix}}.Encode()
	}

	var out SessionFiles
	if err := c.call(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}

	return &out, nil
}

func sessionPath(id, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}
