package docchat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docchat/internal/api"
	"docchat/internal/model"
)

// History manages saved chat sessions and exports transcripts to a vault.
type History struct {
	backend HistoryBackend
	vault   Vault // optional; required only for Export
	logger  Logger
}

// NewHistory creates a History. vault may be nil.
func NewHistory(backend HistoryBackend, vault Vault, logger Logger) *History {
	return &History{backend: backend, vault: vault, logger: logger}
}

// List returns saved sessions, most recently updated first.
func (h *History) List(ctx context.Context) ([]model.ChatSession, error) {
	sessions, err := h.backend.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chat sessions: %w", err)
	}
	out := make([]model.ChatSession, len(sessions))
	for i := range sessions {
		out[i] = sessionFromAPI(&sessions[i])
	}
	return out, nil
}

// Get returns a session with its messages.
func (h *History) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	session, err := h.backend.GetSession(ctx, id)
	if err != nil {
		return nil, sessionError(id, err)
	}
	s := sessionFromAPI(session)
	return &s, nil
}

// Rename changes a session's title.
func (h *History) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Message: "Please enter a title."}
	}
	if err := h.backend.RenameSession(ctx, id, title); err != nil {
		return sessionError(id, err)
	}
	h.logger.Info("chat session renamed", "id", id)
	return nil
}

// Delete removes a session from listings.
func (h *History) Delete(ctx context.Context, id string) error {
	if err := h.backend.DeleteSession(ctx, id); err != nil {
		return sessionError(id, err)
	}
	h.logger.Info("chat session deleted", "id", id)
	return nil
}

// Export renders a session as Markdown and stores it in the vault under
// ownerID. It returns the number of bytes written.
func (h *History) Export(ctx context.Context, ownerID, id string) (int64, error) {
	if h.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	if ownerID == "" {
		return 0, ErrNotAuthenticated
	}

	session, err := h.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	data := []byte(RenderTranscript(session))
	if err := h.vault.PutTranscript(ownerID, session.ID, bytes.NewReader(data), int64(len(data))); err != nil {
		return 0, fmt.Errorf("storing transcript: %w", err)
	}
	h.logger.Info("transcript exported", "id", id, "bytes", len(data))
	return int64(len(data)), nil
}

// RenderTranscript formats a session as a Markdown document.
func RenderTranscript(session *model.ChatSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", session.Title)
	fmt.Fprintf(&b, "_Created %s, updated %s_\n", session.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), session.UpdatedAt.UTC().Format("2006-01-02 15:04 MST"))

	for _, m := range session.Messages {
		speaker := "You"
		if m.Role == model.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", speaker, strings.TrimSpace(m.Content))
		if len(m.Sources) > 0 {
			b.WriteString("\n**Sources:**\n\n")
			for _, s := range m.Sources {
				b.WriteString("- " + FormatSource(s) + "\n")
			}
		}
	}
	return b.String()
}

// FormatSource renders a citation as "name (title, author) - 87%".
func FormatSource(s model.Source) string {
	label := s.Name
	var details []string
	if s.Title != "" && s.Title != s.Name {
		details = append(details, s.Title)
	}
	if s.Author != "" && s.Author != "Unknown" {
		details = append(details, s.Author)
	}
	if len(details) > 0 {
		label += " (" + strings.Join(details, ", ") + ")"
	}
	if s.Relevance > 0 {
		label += fmt.Sprintf(" - %.0f%%", s.Relevance*100)
	}
	return label
}

func sessionFromAPI(s *api.ChatSession) model.ChatSession {
	out := model.ChatSession{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Time,
		UpdatedAt: s.UpdatedAt.Time,
		Messages:  make([]model.ChatMessage, len(s.Messages)),
	}
	for i, m := range s.Messages {
		out.Messages[i] = model.ChatMessage{
			ID:        fmt.Sprintf("%s-%d", s.ID, i+1),
			Role:      model.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.Time,
			Sources:   sourcesFromAPI(m.Sources),
		}
	}
	return out
}

// sessionError maps a backend 404 to ErrSessionNotFound.
func sessionError(id string, err error) error {
	var terr *api.TransportError
	if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return fmt.Errorf("chat session %s: %w", id, err)
}
