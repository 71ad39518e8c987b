package api

import (
	"context"
	"net/http"
	"net/url"
)

// Status reports the backend's index statistics.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, request{method: http.MethodGet, path: "/status"}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListEmbeddingModels returns the embedding models the backend can load.
func (c *Client) ListEmbeddingModels(ctx context.Context) ([]string, error) {
	return c.listModels(ctx, "/embedding-models")
}

// SetEmbeddingModel switches the backend's embedding model.
func (c *Client) SetEmbeddingModel(ctx context.Context, name string) error {
	return c.setModel(ctx, "/set-embedding-model", name)
}

// ListInferenceModels returns the language models the backend can answer with.
func (c *Client) ListInferenceModels(ctx context.Context) ([]string, error) {
	return c.listModels(ctx, "/inference-models")
}

// SetInferenceModel switches the backend's language model.
func (c *Client) SetInferenceModel(ctx context.Context, name string) error {
	return c.setModel(ctx, "/set-inference-model", name)
}

func (c *Client) listModels(ctx context.Context, path string) ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

func (c *Client) setModel(ctx context.Context, path, name string) error {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   path,
		query:  url.Values{"model_name": {name}},
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return &DataError{Path: path, Message: resp.Error}
	}
	if resp.Status == "failed" {
		return &DataError{Path: path, Message: "model change failed"}
	}
	return nil
}
