package model

import "time"

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
	StatusDeleted    DocumentStatus = "deleted"
)

// statusRank orders the forward lifecycle. processed and failed share a rank:
// both are outcomes of processing and neither can follow the other.
var statusRank = map[DocumentStatus]int{
	StatusUploading:  0,
	StatusProcessing: 1,
	StatusProcessed:  2,
	StatusFailed:     2,
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	if s == StatusDeleted {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a document may move from s to next.
// Statuses only move forward; deleted is reachable from any state and is final.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	if s == StatusDeleted {
		return false
	}
	if next == StatusDeleted {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// DocumentMetadata is optional metadata extracted by the backend on ingestion.
type DocumentMetadata struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// Document is a file the user uploaded for indexing.
// Documents are never hard-deleted; deletion flips Status to StatusDeleted.
type Document struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	MIMEType   string           `json:"mime_type"`
	Size       int64            `json:"size"`
	UploadedAt time.Time        `json:"uploaded_at"`
	Status     DocumentStatus   `json:"status"`
	ChunkCount int              `json:"chunk_count"`
	OwnerID    string           `json:"owner_id"`
	FileHash   string           `json:"file_hash,omitempty"`
	Metadata   DocumentMetadata `json:"metadata"`
}

// ActivityKind classifies an audit log entry.
type ActivityKind string

const (
	ActivityUpload      ActivityKind = "upload"
	ActivityDelete      ActivityKind = "delete"
	ActivityModelChange ActivityKind = "model-change"
	ActivitySearch      ActivityKind = "search"
)

// Activity is an append-only audit entry for one owner.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	OwnerID   string       `json:"owner_id"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a document cited by an assistant answer.
type Source struct {
	Name      string  `json:"filename"`
	Title     string  `json:"title,omitempty"`
	Author    string  `json:"author,omitempty"`
	Relevance float64 `json:"relevance,omitempty"` // 0..1
}

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources,omitempty"`
}

// ChatSession is a named, persisted transcript.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []ChatMessage `json:"messages"`
}

// User is an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an identity-provider session for a User.
type Session struct {
	User         User      `json:"user"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session's ID token is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
