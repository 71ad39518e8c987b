package api

import (
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// FileMetadata is the metadata the backend extracts during ingestion.
type FileMetadata struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Pages  int    `json:"pages"`
}

// UploadResult is the acknowledgment for one ingested file.
type UploadResult struct {
	Status             string       `json:"status"`
	Filename           string       `json:"filename"`
	ChunksStored       int          `json:"chunks_stored"`
	EmbeddingDimension int          `json:"embedding_dimension"`
	Metadata           FileMetadata `json:"metadata"`
}

// FilePart is one file of a folder upload.
type FilePart struct {
	Name    string
	Content io.Reader
}

// FileError reports a file the backend could not ingest.
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// FolderUploadResult is the acknowledgment for a batch upload.
type FolderUploadResult struct {
	Status             string         `json:"status"`
	DocumentsProcessed []UploadResult `json:"documents_processed"`
	Errors             []FileError    `json:"errors"`
	ProcessedCount     int            `json:"processed_count"`
	ErrorCount         int            `json:"error_count"`
	TotalFiles         int            `json:"total_files"`
}

// UploadedFile is an entry of the backend's upload log.
type UploadedFile struct {
	Filename     string       `json:"filename"`
	ChunksStored int          `json:"chunks_stored"`
	UploadTime   string       `json:"upload_time"`
	Metadata     FileMetadata `json:"metadata"`
	FileHash     string       `json:"file_hash"`
}

// SearchParams are the inputs of a semantic search.
type SearchParams struct {
	Query  string
	Author string
	Title  string
	Limit  int // n_results; zero uses the backend default
}

// SearchResponse mirrors the vector store's query result: one inner slice per
// query embedding, of which the client only ever sends one.
type SearchResponse struct {
	Query   string `json:"query"`
	Results struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// SearchHit is one flattened search result.
type SearchHit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// Hits flattens the first (and only) query's results.
func (r *SearchResponse) Hits() []SearchHit {
	if len(r.Results.Documents) == 0 {
		return nil
	}
	docs := r.Results.Documents[0]
	hits := make([]SearchHit, len(docs))
	for i, doc := range docs {
		hits[i].Content = doc
		if len(r.Results.IDs) > 0 && i < len(r.Results.IDs[0]) {
			hits[i].ID = r.Results.IDs[0][i]
		}
		if len(r.Results.Metadatas) > 0 && i < len(r.Results.Metadatas[0]) {
			hits[i].Metadata = r.Results.Metadatas[0][i]
		}
		if len(r.Results.Distances) > 0 && i < len(r.Results.Distances[0]) {
			hits[i].Distance = r.Results.Distances[0][i]
		}
	}
	return hits
}

// ChatParams are the inputs of one chat turn.
type ChatParams struct {
	Query          string
	ConversationID string
	ContextChunks  int // n_context_chunks; zero uses the backend default
}

// ChatSource is a document cited by a chat answer.
type ChatSource struct {
	Filename  string   `json:"filename"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Relevance *float64 `json:"relevance,omitempty"`
}

// ChatResponse is the backend's answer to one chat turn.
type ChatResponse struct {
	Question  string       `json:"question"`
	Answer    string       `json:"answer"`
	Sources   []ChatSource `json:"sources"`
	ModelUsed string       `json:"model_used"`
	Error     string       `json:"error,omitempty"`
}

// Status describes the backend's index.
type Status struct {
	TotalVectorsStored int      `json:"total_vectors_stored"`
	DatabasePath       string   `json:"database_path"`
	EmbeddingModel     string   `json:"embedding_model"`
	AvailableModels    []string `json:"available_models"`
}

// SessionMessage is a persisted chat message.
type SessionMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Timestamp Timestamp    `json:"timestamp"`
	Sources   []ChatSource `json:"sources"`
}

// ChatSession is a persisted transcript.
type ChatSession struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Messages  []SessionMessage `json:"messages"`
	CreatedAt Timestamp        `json:"created_at"`
	UpdatedAt Timestamp        `json:"updated_at"`
}

// ProgressEvent is one message of the progress stream.
type ProgressEvent struct {
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

// Timestamp decodes the backend's ISO-8601 timestamps, which may lack a zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil || raw == "" {
		// Null or non-string timestamps are left zero.
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339Nano, Value: raw}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
