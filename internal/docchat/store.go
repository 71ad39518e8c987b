package docchat

import (
	"context"

	"docchat/internal/model"
)

// DefaultActivityLimit is the number of activities mirrored into view state.
const DefaultActivityLimit = 50

// Unsubscribe tears down a live query. It is safe to call more than once.
type Unsubscribe func()

// Store persists documents and activities per owner and exposes live queries
// over them. Every method is scoped by owner ID; records of one owner are
// never visible to another.
type Store interface {
	// CreateDocument persists a new document. ID, OwnerID and UploadedAt must be set.
	CreateDocument(ctx context.Context, doc *model.Document) error

	// GetDocument returns a document by ID, or nil if it does not exist for the owner.
	GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error)

	// UpdateDocumentStatus moves a document to a new status.
	// Returns ErrDocumentNotFound or ErrInvalidTransition.
	UpdateDocumentStatus(ctx context.Context, ownerID, id string, status model.DocumentStatus) error

	// ListDocuments returns the owner's documents, newest upload first.
	ListDocuments(ctx context.Context, ownerID string) ([]*model.Document, error)

	// AppendActivity records an audit entry.
	AppendActivity(ctx context.Context, activity *model.Activity) error

	// ListActivities returns at most limit activities, newest first.
	ListActivities(ctx context.Context, ownerID string, limit int) ([]*model.Activity, error)

	// WatchDocuments calls fn with the full document list once immediately
	// and again after every change to the owner's documents.
	WatchDocuments(ctx context.Context, ownerID string, fn func([]*model.Document)) (Unsubscribe, error)

	// WatchActivities calls fn with the newest limit activities once
	// immediately and again after every appended activity.
	WatchActivities(ctx context.Context, ownerID string, limit int, fn func([]*model.Activity)) (Unsubscribe, error)

	// Close releases the store's resources and ends all live queries.
	Close() error
}
