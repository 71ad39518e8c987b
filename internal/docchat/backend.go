package docchat

import (
	"context"
	"io"

	"docchat/internal/api"
)

// DocumentBackend is the part of the backend that ingests and forgets files.
type DocumentBackend interface {
	UploadFile(ctx context.Context, name string, content io.Reader) (*api.UploadResult, error)
	UploadFolder(ctx context.Context, files []api.FilePart) (*api.FolderUploadResult, error)
	CheckExistingFiles(ctx context.Context, names []string) ([]string, error)
	DeleteDocument(ctx context.Context, filename string) error
}

// SearchBackend runs semantic queries.
type SearchBackend interface {
	Search(ctx context.Context, params api.SearchParams) (*api.SearchResponse, error)
}

// ChatBackend answers chat turns and stores transcripts.
type ChatBackend interface {
	Chat(ctx context.Context, params api.ChatParams) (*api.ChatResponse, error)
	CreateSession(ctx context.Context, title string) (*api.ChatSession, error)
	AppendMessage(ctx context.Context, id string, msg api.SessionMessage) error
}

// HistoryBackend manages saved chat sessions.
type HistoryBackend interface {
	ListSessions(ctx context.Context) ([]api.ChatSession, error)
	GetSession(ctx context.Context, id string) (*api.ChatSession, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
}

// ModelBackend reports index status and switches models.
type ModelBackend interface {
	Status(ctx context.Context) (*api.Status, error)
	ListEmbeddingModels(ctx context.Context) ([]string, error)
	SetEmbeddingModel(ctx context.Context, name string) error
	ListInferenceModels(ctx context.Context) ([]string, error)
	SetInferenceModel(ctx context.Context, name string) error
}

// Backend is the full backend surface used by the providers.
type Backend interface {
	DocumentBackend
	SearchBackend
	ChatBackend
	HistoryBackend
	ModelBackend
}

var _ Backend = (*api.Client)(nil)
