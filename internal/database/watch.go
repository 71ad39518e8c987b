package database

import (
	"context"
	"sync"

	"docchat/internal/docchat"
)

// feed fans change notifications out to live queries inside one process.
// Topics are strings such as "documents:<owner>".
type feed struct {
	mu     sync.Mutex
	next   int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	topic  string
	signal chan struct{} // capacity 1; pending changes coalesce
	done   chan struct{}
	once   sync.Once
}

func newFeed() *feed {
	return &feed{subs: make(map[int]*subscription)}
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// subscribe registers a subscription for topic. The returned cancel func
// removes it.
func (f *feed) subscribe(topic string) (*subscription, func()) {
	sub := &subscription{
		topic:  topic,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	id := f.next
	f.next++
	if f.closed {
		sub.stop()
	} else {
		f.subs[id] = sub
	}
	f.mu.Unlock()

	return sub, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.stop()
	}
}

// publish wakes every subscription on topic.
func (f *feed) publish(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.topic == topic {
			sub.notify()
		}
	}
}

// close ends every subscription.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, sub := range f.subs {
		sub.stop()
		delete(f.subs, id)
	}
}

// watch runs a live query: fn receives load's result once before watch
// returns, then again from a background goroutine after every signal.
// The query ends when the returned Unsubscribe is called, ctx is done, or
// sub is stopped by its source.
func watch[T any](ctx context.Context, sub *subscription, cancel func(), load func(context.Context) (T, error), fn func(T), logger docchat.Logger) (docchat.Unsubscribe, error) {
	initial, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	fn(initial)

	// Snapshots outlive the caller's deadline; only cancellation ends the query.
	loadCtx := context.WithoutCancel(ctx)

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				cancel()
				return
			case <-sub.signal:
				snapshot, err := load(loadCtx)
				if err != nil {
					logger.Warn("live query reload failed", "topic", sub.topic, "error", err)
					continue
				}
				select {
				case <-sub.done:
					return
				default:
				}
				fn(snapshot)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func documentsTopic(ownerID string) string {
	return "documents:" + ownerID
}

func activitiesTopic(ownerID string) string {
	return "activities:" + ownerID
}
