package api

import (
	"context"
	"net/http"
	"net/url"
)

func sessionPath(id string) string {
	return "/chat-sessions/" + url.PathEscape(id)
}

// ListSessions returns the caller's chat sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]ChatSession, error) {
	var resp struct {
		Sessions []ChatSession `json:"sessions"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/chat-sessions"}, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CreateSession starts an empty chat session.
func (c *Client) CreateSession(ctx context.Context, title string) (*ChatSession, error) {
	body, err := jsonBody(map[string]string{"title": title})
	if err != nil {
		return nil, err
	}
	var session ChatSession
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/chat-sessions",
		body:        body,
		contentType: "application/json",
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession returns a chat session with its messages.
func (c *Client) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	var session ChatSession
	if err := c.do(ctx, request{method: http.MethodGet, path: sessionPath(id)}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RenameSession changes a chat session's title.
func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	body, err := jsonBody(map[string]string{"title": title})
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPut,
		path:        sessionPath(id) + "/title",
		body:        body,
		contentType: "application/json",
	}, nil)
}

// DeleteSession hides a chat session from listings.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: sessionPath(id)}, nil)
}

// AppendMessage adds a message to the end of a chat session.
func (c *Client) AppendMessage(ctx context.Context, id string, msg SessionMessage) error {
	body, err := jsonBody(msg)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        sessionPath(id) + "/messages",
		body:        body,
		contentType: "application/json",
	}, nil)
}
