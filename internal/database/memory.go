package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

// MemoryStore is an in-process Store. It keeps at most activityCap activities
// per owner, discarding the oldest. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	documents   map[string][]*model.Document // ownerID -> documents in insertion order
	activities  map[string][]*model.Activity // ownerID -> activities in insertion order
	activityCap int
	feed        *feed
	logger      docchat.Logger
}

var _ docchat.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
// activityCap <= 0 uses docchat.DefaultActivityLimit.
func NewMemoryStore(activityCap int, logger docchat.Logger) *MemoryStore {
	if activityCap <= 0 {
		activityCap = docchat.DefaultActivityLimit
	}
	if logger == nil {
		logger = docchat.NewNopLogger()
	}
	return &MemoryStore{
		documents:   make(map[string][]*model.Document),
		activities:  make(map[string][]*model.Activity),
		activityCap: activityCap,
		feed:        newFeed(),
		logger:      logger,
	}
}

func (m *MemoryStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	m.mu.Lock()
	for _, d := range m.documents[doc.OwnerID] {
		if d.ID == doc.ID {
			m.mu.Unlock()
			return fmt.Errorf("document %s already exists", doc.ID)
		}
	}
	stored := *doc
	m.documents[doc.OwnerID] = append(m.documents[doc.OwnerID], &stored)
	m.mu.Unlock()

	m.feed.publish(documentsTopic(doc.OwnerID))
	return nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents[ownerID] {
		if d.ID == id {
			doc := *d
			return &doc, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateDocumentStatus(ctx context.Context, ownerID, id string, status model.DocumentStatus) error {
	m.mu.Lock()
	var found *model.Document
	for _, d := range m.documents[ownerID] {
		if d.ID == id {
			found = d
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", id, docchat.ErrDocumentNotFound)
	}
	if !found.Status.CanTransition(status) {
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", found.Status, status, docchat.ErrInvalidTransition)
	}
	found.Status = status
	m.mu.Unlock()

	m.feed.publish(documentsTopic(ownerID))
	return nil
}

func (m *MemoryStore) ListDocuments(ctx context.Context, ownerID string) ([]*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.documents[ownerID]
	docs := make([]*model.Document, len(stored))
	// Newest insertion first, so equal upload times keep a stable order.
	for i, d := range stored {
		doc := *d
		docs[len(stored)-1-i] = &doc
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

func (m *MemoryStore) AppendActivity(ctx context.Context, activity *model.Activity) error {
	if err := validateActivity(activity); err != nil {
		return err
	}

	m.mu.Lock()
	stored := *activity
	list := append(m.activities[activity.OwnerID], &stored)
	if len(list) > m.activityCap {
		list = list[len(list)-m.activityCap:]
	}
	m.activities[activity.OwnerID] = list
	m.mu.Unlock()

	m.feed.publish(activitiesTopic(activity.OwnerID))
	return nil
}

func (m *MemoryStore) ListActivities(ctx context.Context, ownerID string, limit int) ([]*model.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.activities[ownerID]
	out := make([]*model.Activity, len(stored))
	for i, a := range stored {
		activity := *a
		out[len(stored)-1-i] = &activity
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) WatchDocuments(ctx context.Context, ownerID string, fn func([]*model.Document)) (docchat.Unsubscribe, error) {
	sub, cancel := m.feed.subscribe(documentsTopic(ownerID))
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Document, error) {
		return m.ListDocuments(ctx, ownerID)
	}, fn, m.logger)
}

func (m *MemoryStore) WatchActivities(ctx context.Context, ownerID string, limit int, fn func([]*model.Activity)) (docchat.Unsubscribe, error) {
	sub, cancel := m.feed.subscribe(activitiesTopic(ownerID))
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Activity, error) {
		return m.ListActivities(ctx, ownerID, limit)
	}, fn, m.logger)
}

// Close ends all live queries.
func (m *MemoryStore) Close() error {
	m.feed.close()
	return nil
}

func validateDocument(doc *model.Document) error {
	switch {
	case doc.ID == "":
		return fmt.Errorf("document id is required")
	case doc.OwnerID == "":
		return fmt.Errorf("document owner is required")
	case doc.UploadedAt.IsZero():
		return fmt.Errorf("document upload time is required")
	case !doc.Status.Valid():
		return fmt.Errorf("invalid document status %q", doc.Status)
	}
	return nil
}

func validateActivity(activity *model.Activity) error {
	switch {
	case activity.ID == "":
		return fmt.Errorf("activity id is required")
	case activity.OwnerID == "":
		return fmt.Errorf("activity owner is required")
	case activity.Timestamp.IsZero():
		return fmt.Errorf("activity timestamp is required")
	}
	return nil
}
