package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// UploadFile uploads and ingests a single file.
// The content is streamed; it is never buffered whole in memory.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (*UploadResult, error) {
	body, contentType := multipartBody([]FilePart{{Name: name, Content: content}}, "file")
	defer body.Close()

	var result UploadResult
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload",
		body:        body,
		contentType: contentType,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Status != "" && result.Status != "success" {
		return nil, &DataError{Path: "/upload", Message: fmt.Sprintf("upload status %q", result.Status)}
	}
	return &result, nil
}

// UploadFolder uploads a batch of files in one request. Per-file failures are
// reported in the result rather than as an error.
func (c *Client) UploadFolder(ctx context.Context, files []FilePart) (*FolderUploadResult, error) {
	body, contentType := multipartBody(files, "files")
	defer body.Close()

	var result FolderUploadResult
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload-folder",
		body:        body,
		contentType: contentType,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.TotalFiles == 0 && result.ErrorCount > 0 {
		msg := "folder upload failed"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Error
		}
		return nil, &DataError{Path: "/upload-folder", Message: msg}
	}
	return &result, nil
}

// multipartBody streams files as a multipart form through a pipe.
func multipartBody(files []FilePart, field string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for _, f := range files {
			part, err := mw.CreateFormFile(field, f.Name)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("creating form file %s: %w", f.Name, err))
				return
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				pw.CloseWithError(fmt.Errorf("writing form file %s: %w", f.Name, err))
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType()
}

// ListUploadedFiles returns the backend's upload log.
func (c *Client) ListUploadedFiles(ctx context.Context) ([]UploadedFile, error) {
	var resp struct {
		Files []UploadedFile `json:"files"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/uploaded-files"}, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// CheckExistingFiles returns the subset of names already indexed, sorted.
func (c *Client) CheckExistingFiles(ctx context.Context, names []string) ([]string, error) {
	files, err := c.ListUploadedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing uploaded files: %w", err)
	}

	indexed := make(map[string]bool, len(files))
	for _, f := range files {
		indexed[f.Filename] = true
	}

	seen := make(map[string]bool)
	var existing []string
	for _, name := range names {
		if indexed[name] && !seen[name] {
			seen[name] = true
			existing = append(existing, name)
		}
	}
	sort.Strings(existing)
	return existing, nil
}

// DeleteDocument removes a file's chunks from the backend index.
func (c *Client) DeleteDocument(ctx context.Context, filename string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/delete-document",
		query:  map[string][]string{"filename": {filename}},
	}, nil)
}
