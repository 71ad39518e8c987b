package docchat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"docchat/internal/api"
	"docchat/internal/model"
)

// ChatState is the in-memory transcript of the active conversation.
// It is safe for concurrent use.
type ChatState struct {
	mu       sync.Mutex
	messages []model.ChatMessage
	busy     bool
}

// NewChatState returns an empty transcript.
func NewChatState() *ChatState {
	return &ChatState{}
}

// AddMessage appends msg. A user message marks the state busy until an
// assistant message arrives.
func (s *ChatState) AddMessage(msg model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.busy = msg.Role == model.RoleUser
}

// ClearMessages empties the transcript and clears busy.
func (s *ChatState) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.busy = false
}

// Messages returns a copy of the transcript in append order.
func (s *ChatState) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Busy reports whether a reply is awaited.
func (s *ChatState) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SetBusy overrides the busy flag, e.g. after a failed turn.
func (s *ChatState) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// DocumentAvailability reports whether there is anything to chat about.
// *DocumentProvider implements it.
type DocumentAvailability interface {
	HasProcessedDocuments() bool
}

const (
	// DefaultContextChunks is the number of chunks the backend retrieves per turn.
	DefaultContextChunks = 5

	sessionTitleRunes = 50
)

// Conversation drives one chat: it sends turns to the backend, keeps the
// transcript in a ChatState and saves it to history on request.
type Conversation struct {
	state         *ChatState
	backend       ChatBackend
	documents     DocumentAvailability
	clock         Clock
	idgen         IDGenerator
	logger        Logger
	contextChunks int

	mu        sync.Mutex
	sessionID string
	saved     int // number of transcript messages already in the session
}

// NewConversation creates a conversation over state. documents may be nil to
// skip the availability check.
func NewConversation(state *ChatState, backend ChatBackend, documents DocumentAvailability, clock Clock, idgen IDGenerator, logger Logger) *Conversation {
	return &Conversation{
		state:         state,
		backend:       backend,
		documents:     documents,
		clock:         clock,
		idgen:         idgen,
		logger:        logger,
		contextChunks: DefaultContextChunks,
	}
}

// SetContextChunks sets how many chunks the backend retrieves per turn.
func (c *Conversation) SetContextChunks(n int) {
	if n > 0 {
		c.contextChunks = n
	}
}

// State returns the underlying transcript.
func (c *Conversation) State() *ChatState {
	return c.state
}

// SessionID returns the history session this conversation saves into, or "".
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Send submits one user turn. The user message is appended before the
// request is made; the assistant reply is appended when it arrives. On
// failure nothing further is appended and busy is cleared.
func (c *Conversation) Send(ctx context.Context, text string) (*model.ChatMessage, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if c.documents != nil && !c.documents.HasProcessedDocuments() {
		return nil, ErrNoDocuments
	}

	c.state.AddMessage(model.ChatMessage{
		ID:        c.idgen.New(),
		Role:      model.RoleUser,
		Content:   query,
		Timestamp: c.clock.Now(),
	})

	resp, err := c.backend.Chat(ctx, api.ChatParams{
		Query:          query,
		ConversationID: c.SessionID(),
		ContextChunks:  c.contextChunks,
	})
	if err != nil {
		c.state.SetBusy(false)
		c.logger.Warn("chat turn failed", "error", err)
		return nil, fmt.Errorf("asking backend: %w", err)
	}

	reply := model.ChatMessage{
		ID:        c.idgen.New(),
		Role:      model.RoleAssistant,
		Content:   resp.Answer,
		Timestamp: c.clock.Now(),
		Sources:   sourcesFromAPI(resp.Sources),
	}
	c.state.AddMessage(reply)
	c.logger.Debug("chat turn answered", "model", resp.ModelUsed, "sources", len(reply.Sources))
	return &reply, nil
}

// SaveToHistory persists the transcript. The first save creates a session
// titled after the first user message; later saves append only messages
// added since. It returns the session ID.
func (c *Conversation) SaveToHistory(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := c.state.Messages()
	if len(messages) == 0 {
		return "", ErrNothingToSave
	}

	if c.sessionID == "" {
		session, err := c.backend.CreateSession(ctx, SessionTitle(messages))
		if err != nil {
			return "", fmt.Errorf("creating chat session: %w", err)
		}
		c.sessionID = session.ID
		c.saved = 0
		c.logger.Info("chat session created", "id", session.ID, "title", session.Title)
	}

	for c.saved < len(messages) {
		if err := c.backend.AppendMessage(ctx, c.sessionID, sessionMessageToAPI(messages[c.saved])); err != nil {
			return c.sessionID, fmt.Errorf("saving message %d: %w", c.saved+1, err)
		}
		c.saved++
	}
	return c.sessionID, nil
}

// Reset clears the transcript and detaches from the history session.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ClearMessages()
	c.sessionID = ""
	c.saved = 0
}

// SessionTitle derives a history title from the first user message,
// truncated to 50 characters.
func SessionTitle(messages []model.ChatMessage) string {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if utf8.RuneCountInString(title) <= sessionTitleRunes {
			return title
		}
		runes := []rune(title)
		return string(runes[:sessionTitleRunes]) + "..."
	}
	return "New Chat"
}

func sourcesFromAPI(sources []api.ChatSource) []model.Source {
	if len(sources) == 0 {
		return nil
	}
	out := make([]model.Source, len(sources))
	for i, s := range sources {
		out[i] = model.Source{Name: s.Filename, Title: s.Title, Author: s.Author}
		if s.Relevance != nil {
			out[i].Relevance = clamp01(*s.Relevance)
		}
	}
	return out
}

func sourcesToAPI(sources []model.Source) []api.ChatSource {
	out := make([]api.ChatSource, len(sources))
	for i, s := range sources {
		out[i] = api.ChatSource{Filename: s.Name, Title: s.Title, Author: s.Author}
		if s.Relevance > 0 {
			relevance := s.Relevance
			out[i].Relevance = &relevance
		}
	}
	return out
}

func sessionMessageToAPI(m model.ChatMessage) api.SessionMessage {
	return api.SessionMessage{
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: api.Timestamp{Time: m.Timestamp},
		Sources:   sourcesToAPI(m.Sources),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
