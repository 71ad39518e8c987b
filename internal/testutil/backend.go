package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// FakeBackend is an in-process stand-in for the document-chat backend.
// It speaks the same wire format: query parameters on POST, multipart
// uploads, JSON bodies and a progress WebSocket.
type FakeBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	requests    []RecordedRequest
	uploaded    []FakeUploadedFile
	chunks      int
	failUploads map[string]string
	searchHits  []FakeSearchHit
	chatAnswer  string
	chatSources []FakeSource
	chatFailure string
	sessions    map[string]*fakeSession
	sessionSeq  int
	embedding   string
	inference   string
	conns       map[*websocket.Conn]bool
	connected   chan struct{}
	tick        time.Time
}

// RecordedRequest is one request received by the fake.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
}

// FakeUploadedFile is an entry of the fake's upload log.
type FakeUploadedFile struct {
	Filename     string `json:"filename"`
	ChunksStored int    `json:"chunks_stored"`
	UploadTime   string `json:"upload_time"`
	FileHash     string `json:"file_hash"`
	Content      string `json:"-"`
}

// FakeSearchHit is a canned search result.
type FakeSearchHit struct {
	ID       string
	Content  string
	Distance float64
	Filename string
	Title    string
	Author   string
}

// FakeSource is a canned chat citation.
type FakeSource struct {
	Filename  string   `json:"filename"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Relevance *float64 `json:"relevance,omitempty"`
}

type fakeSession struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Messages  []map[string]any `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	deleted   bool
}

var (
	fakeEmbeddingModels = []string{"sentence-transformers/all-MiniLM-L6-v2", "sentence-transformers/all-mpnet-base-v2"}
	fakeInferenceModels = []string{"gemini", "microsoft/DialoGPT-large", "microsoft/DialoGPT-medium", "google/flan-t5-base"}
)

// NewFakeBackend starts a fake backend. It is shut down when the test completes.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		chunks:      3,
		failUploads: make(map[string]string),
		chatAnswer:  "This is the answer.",
		sessions:    make(map[string]*fakeSession),
		embedding:   fakeEmbeddingModels[0],
		inference:   fakeInferenceModels[0],
		conns:       make(map[*websocket.Conn]bool),
		connected:   make(chan struct{}, 16),
		tick:        time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	b.server = httptest.NewServer(b.routes())

	t.Cleanup(func() {
		b.mu.Lock()
		for conn := range b.conns {
			conn.Close()
		}
		b.mu.Unlock()
		b.server.Close()
	})
	return b
}

// URL returns the fake's base URL.
func (b *FakeBackend) URL() string {
	return b.server.URL
}

func (b *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Post("/upload", b.handleUpload)
	r.Post("/upload-folder", b.handleUploadFolder)
	r.Get("/uploaded-files", b.handleUploadedFiles)
	r.Delete("/delete-document", b.handleDeleteDocument)
	r.Post("/search", b.handleSearch)
	r.Get("/status", b.handleStatus)
	r.Get("/embedding-models", b.handleListModels(fakeEmbeddingModels))
	r.Post("/set-embedding-model", b.handleSetModel(fakeEmbeddingModels, &b.embedding, "Invalid embedding model"))
	r.Get("/inference-models", b.handleListModels(fakeInferenceModels))
	r.Post("/set-inference-model", b.handleSetModel(fakeInferenceModels, &b.inference, "Invalid inference model"))
	r.Post("/chat", b.handleChat)
	r.Route("/chat-sessions", func(r chi.Router) {
		r.Get("/", b.handleListSessions)
		r.Post("/", b.handleCreateSession)
		r.Get("/{id}", b.handleGetSession)
		r.Delete("/{id}", b.handleDeleteSession)
		r.Put("/{id}/title", b.handleRenameSession)
		r.Post("/{id}/messages", b.handleAppendMessage)
	})
	r.Get("/ws/progress", b.handleProgress)
	return r
}

func (b *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Requests returns every request received so far.
func (b *FakeBackend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// LastRequest returns the most recent request for path, or nil.
func (b *FakeBackend) LastRequest(path string) *RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Path == path {
			req := b.requests[i]
			return &req
		}
	}
	return nil
}

// Count returns how many requests hit path.
func (b *FakeBackend) Count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, req := range b.requests {
		if req.Path == path {
			n++
		}
	}
	return n
}

// AddUploadedFile seeds the upload log as if name had been ingested.
func (b *FakeBackend) AddUploadedFile(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploaded = append(b.uploaded, FakeUploadedFile{Filename: name, ChunksStored: b.chunks, UploadTime: b.now().Format(time.RFC3339)})
}

// UploadedFiles returns the upload log.
func (b *FakeBackend) UploadedFiles() []FakeUploadedFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]FakeUploadedFile(nil), b.uploaded...)
}

// SetChunks sets the chunk count reported for each ingested file.
func (b *FakeBackend) SetChunks(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = n
}

// FailUpload makes ingestion of name fail with message.
func (b *FakeBackend) FailUpload(name, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failUploads[name] = message
}

// SetSearchHits sets the results returned by every search.
func (b *FakeBackend) SetSearchHits(hits ...FakeSearchHit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.searchHits = hits
}

// SetChatAnswer sets the reply to every chat turn.
func (b *FakeBackend) SetChatAnswer(answer string, sources ...FakeSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatAnswer = answer
	b.chatSources = sources
	b.chatFailure = ""
}

// FailChat makes chat turns fail with a 500 carrying detail.
func (b *FakeBackend) FailChat(detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatFailure = detail
}

// EmbeddingModel returns the currently selected embedding model.
func (b *FakeBackend) EmbeddingModel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embedding
}

// InferenceModel returns the currently selected inference model.
func (b *FakeBackend) InferenceModel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inference
}

// SessionMessages returns the raw messages stored for a chat session.
func (b *FakeBackend) SessionMessages(id string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil
	}
	return append([]map[string]any(nil), s.Messages...)
}

// now returns a strictly increasing fake time. Caller holds b.mu.
func (b *FakeBackend) now() time.Time {
	b.tick = b.tick.Add(time.Second)
	return b.tick
}

// Upload handlers

func (b *FakeBackend) ingest(name string, content []byte) (map[string]any, error) {
	b.mu.Lock()
	if msg, ok := b.failUploads[name]; ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s", msg)
	}
	b.uploaded = append(b.uploaded, FakeUploadedFile{
		Filename:     name,
		ChunksStored: b.chunks,
		UploadTime:   b.now().Format(time.RFC3339),
		FileHash:     fmt.Sprintf("%x", len(content)),
		Content:      string(content),
	})
	chunks := b.chunks
	b.mu.Unlock()

	b.BroadcastProgress("complete", 100, "Processed "+name)
	return map[string]any{
		"filename":            name,
		"chunks_stored":       chunks,
		"embedding_dimension": 384,
		"metadata":            map[string]any{"title": name, "author": "Unknown", "pages": 1},
	}, nil
}

func (b *FakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	result, err := b.ingest(header.Filename, content)
	if err != nil {
		b.BroadcastProgress("error", 0, "Error: "+err.Error())
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	result["status"] = "success"
	writeJSON(w, http.StatusOK, result)
}

func (b *FakeBackend) handleUploadFolder(w http.ResponseWriter, r *http.Request) {
	var headers []*multipart.FileHeader
	if err := r.ParseMultipartForm(32 << 20); err == nil && r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}

	if len(headers) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              "failed",
			"documents_processed": []any{},
			"errors":              []map[string]string{{"filename": "folder", "error": "No files received"}},
			"processed_count":     0,
			"error_count":         1,
			"total_files":         0,
		})
		return
	}

	processed := []map[string]any{}
	errs := []map[string]string{}
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			errs = append(errs, map[string]string{"filename": h.Filename, "error": err.Error()})
			continue
		}
		content, _ := io.ReadAll(f)
		f.Close()

		result, err := b.ingest(h.Filename, content)
		if err != nil {
			errs = append(errs, map[string]string{"filename": h.Filename, "error": err.Error()})
			continue
		}
		processed = append(processed, result)
	}

	status := "success"
	if len(processed) == 0 {
		status = "failed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              status,
		"documents_processed": processed,
		"errors":              errs,
		"processed_count":     len(processed),
		"error_count":         len(errs),
		"total_files":         len(headers),
	})
}

func (b *FakeBackend) handleUploadedFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"files": b.UploadedFiles()})
}

func (b *FakeBackend) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	b.mu.Lock()
	kept := b.uploaded[:0]
	for _, f := range b.uploaded {
		if f.Filename != name {
			kept = append(kept, f)
		}
	}
	b.uploaded = kept
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
}

// Search and chat handlers

func (b *FakeBackend) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("query") == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Search failed: empty query"})
		return
	}
	limit := 10
	if n, err := strconv.Atoi(q.Get("n_results")); err == nil {
		limit = n
	}

	b.mu.Lock()
	var hits []FakeSearchHit
	for _, h := range b.searchHits {
		if a := q.Get("filter_author"); a != "" && h.Author != a {
			continue
		}
		if t := q.Get("filter_title"); t != "" && h.Title != t {
			continue
		}
		hits = append(hits, h)
	}
	b.mu.Unlock()
	if len(hits) > limit {
		hits = hits[:limit]
	}

	ids := []string{}
	docs := []string{}
	metas := []map[string]any{}
	dists := []float64{}
	for _, h := range hits {
		ids = append(ids, h.ID)
		docs = append(docs, h.Content)
		metas = append(metas, map[string]any{"filename": h.Filename, "title": h.Title, "author": h.Author})
		dists = append(dists, h.Distance)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": q.Get("query"),
		"results": map[string]any{
			"ids":       [][]string{ids},
			"documents": [][]string{docs},
			"metadatas": [][]map[string]any{metas},
			"distances": [][]float64{dists},
		},
	})
}

func (b *FakeBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	failure, answer, sources, model := b.chatFailure, b.chatAnswer, b.chatSources, b.inference
	b.mu.Unlock()

	if failure != "" {
		writeDetail(w, http.StatusInternalServerError, "Chat failed: "+failure)
		return
	}
	if sources == nil {
		sources = []FakeSource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question":   r.URL.Query().Get("query"),
		"answer":     answer,
		"sources":    sources,
		"model_used": model,
	})
}

// Model handlers

func (b *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	vectors := 0
	for _, f := range b.uploaded {
		vectors += f.ChunksStored
	}
	embedding := b.embedding
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_vectors_stored": vectors,
		"database_path":        "/data/chroma",
		"embedding_model":      embedding,
		"available_models":     fakeEmbeddingModels,
	})
}

func (b *FakeBackend) handleListModels(models []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": models})
	}
}

func (b *FakeBackend) handleSetModel(models []string, current *string, invalid string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("model_name")
		for _, m := range models {
			if m == name {
				b.mu.Lock()
				*current = name
				b.mu.Unlock()
				writeJSON(w, http.StatusOK, map[string]string{"status": "success", "model": name})
				return
			}
		}
		writeDetail(w, http.StatusBadRequest, invalid)
	}
}

// Chat session handlers

func (b *FakeBackend) handleListSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	sessions := []*fakeSession{}
	for _, s := range b.sessions {
		if !s.deleted {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	data, _ := json.Marshal(map[string]any{"sessions": sessions})
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (b *FakeBackend) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	b.sessionSeq++
	now := b.now()
	s := &fakeSession{
		ID:        fmt.Sprintf("session-%d", b.sessionSeq),
		UserID:    "user",
		Title:     body.Title,
		Messages:  []map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.sessions[s.ID] = s
	data, _ := json.Marshal(s)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// withSession runs fn on the live session named in the URL, or writes a 404.
func (b *FakeBackend) withSession(w http.ResponseWriter, r *http.Request, fn func(s *fakeSession) any) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	s, ok := b.sessions[id]
	if !ok || s.deleted {
		b.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	data, _ := json.Marshal(fn(s))
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (b *FakeBackend) handleGetSession(w http.ResponseWriter, r *http.Request) {
	b.withSession(w, r, func(s *fakeSession) any { return s })
}

func (b *FakeBackend) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	b.withSession(w, r, func(s *fakeSession) any {
		s.deleted = true
		return map[string]string{"status": "deleted"}
	})
}

func (b *FakeBackend) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.withSession(w, r, func(s *fakeSession) any {
		s.Title = body.Title
		s.UpdatedAt = b.now()
		return s
	})
}

func (b *FakeBackend) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.withSession(w, r, func(s *fakeSession) any {
		s.Messages = append(s.Messages, msg)
		s.UpdatedAt = b.now()
		return s
	})
}

// Progress stream

func (b *FakeBackend) handleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns[conn] = true
	b.mu.Unlock()
	b.connected <- struct{}{}

	// Drain until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}

// WaitForProgressClient blocks until a progress subscriber has connected.
func (b *FakeBackend) WaitForProgressClient(t *testing.T) {
	t.Helper()
	select {
	case <-b.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("no progress subscriber connected")
	}
}

// BroadcastProgress sends a progress event to every connected subscriber.
func (b *FakeBackend) BroadcastProgress(stage string, progress int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	event := map[string]any{
		"stage":     stage,
		"progress":  progress,
		"message":   message,
		"timestamp": b.tick.Format("2006-01-02T15:04:05.000000"),
	}
	for conn := range b.conns {
		if err := conn.WriteJSON(event); err != nil {
			delete(b.conns, conn)
			conn.Close()
		}
	}
}

// DisconnectProgressClients closes every progress connection from the server side.
func (b *FakeBackend) DisconnectProgressClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		delete(b.conns, conn)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
