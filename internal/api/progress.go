package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// ProgressStream delivers ingestion progress events from the backend.
// Events are read by a single goroutine; the channel is closed when the
// connection ends, either through Close or because the backend went away.
type ProgressStream struct {
	conn   *websocket.Conn
	events chan ProgressEvent

	mu     sync.Mutex
	err    error
	closed bool
	done   chan struct{}
}

// SubscribeProgress opens the backend's progress WebSocket.
func (c *Client) SubscribeProgress(ctx context.Context) (*ProgressStream, error) {
	endpoint := c.endpoint("/ws/progress", nil)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}

	header := http.Header{}
	if err := c.authorize(ctx, header); err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		terr := &TransportError{Method: http.MethodGet, Path: "/ws/progress", Cause: err}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
			terr.Status = resp.Status
		}
		return nil, terr
	}

	s := &ProgressStream{
		conn:   conn,
		events: make(chan ProgressEvent, 16),
		done:   make(chan struct{}),
	}
	go s.read()
	return s, nil
}

func (s *ProgressStream) read() {
	defer close(s.events)
	for {
		var event ProgressEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			s.finish(err)
			return
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func (s *ProgressStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	if s.err == nil {
		s.err = fmt.Errorf("progress stream: %w", err)
	}
}

// Events returns the channel of progress events.
func (s *ProgressStream) Events() <-chan ProgressEvent {
	return s.events
}

// Err reports why the stream ended. It is nil while the stream is open and
// after a clean close.
func (s *ProgressStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream. It is safe to call more than once.
func (s *ProgressStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing progress stream: %w", err)
	}
	return nil
}
