package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Search runs a filtered semantic query against the index.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	query := url.Values{"query": {params.Query}}
	if params.Author != "" {
		query.Set("filter_author", params.Author)
	}
	if params.Title != "" {
		query.Set("filter_title", params.Title)
	}
	if params.Limit > 0 {
		query.Set("n_results", strconv.Itoa(params.Limit))
	}

	var resp SearchResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/search", query: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &DataError{Path: "/search", Message: resp.Error}
	}
	return &resp, nil
}
