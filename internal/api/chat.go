package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Chat asks the backend to answer a question from the indexed documents.
func (c *Client) Chat(ctx context.Context, params ChatParams) (*ChatResponse, error) {
	query := url.Values{"query": {params.Query}}
	if params.ConversationID != "" {
		query.Set("conversation_id", params.ConversationID)
	}
	if params.ContextChunks > 0 {
		query.Set("n_context_chunks", strconv.Itoa(params.ContextChunks))
	}

	var resp ChatResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat", query: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &DataError{Path: "/chat", Message: resp.Error}
	}
	return &resp, nil
}
