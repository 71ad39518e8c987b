package docchat

import (
	"context"
	"fmt"
	"sync"

	"docchat/internal/model"
)

// UserSource reports the signed-in user and identity changes.
// *AuthProvider implements it.
type UserSource interface {
	CurrentUser() *model.User
	OnUserChange(fn func(*model.User)) Unsubscribe
}

// DocumentProvider mirrors the current user's documents and activities from a
// Store. Every snapshot delivered by the store's live queries replaces the
// local state wholesale. It is safe for concurrent use.
type DocumentProvider struct {
	store         Store
	remote        DocumentBackend // optional; told about deletions
	clock         Clock
	idgen         IDGenerator
	logger        Logger
	activityLimit int

	mu         sync.Mutex
	owner      string
	generation int
	documents  []*model.Document
	activities []*model.Activity
	unwatch    []Unsubscribe
	listeners  map[int]func()
	nextID     int
	unfollow   Unsubscribe
}

// NewDocumentProvider creates a provider over store. remote may be nil.
// activityLimit <= 0 uses DefaultActivityLimit.
func NewDocumentProvider(store Store, remote DocumentBackend, clock Clock, idgen IDGenerator, logger Logger, activityLimit int) *DocumentProvider {
	if activityLimit <= 0 {
		activityLimit = DefaultActivityLimit
	}
	return &DocumentProvider{
		store:         store,
		remote:        remote,
		clock:         clock,
		idgen:         idgen,
		logger:        logger,
		activityLimit: activityLimit,
		listeners:     make(map[int]func()),
	}
}

// Follow keeps the provider scoped to users' current user: it switches
// immediately and again on every identity change until Close.
func (p *DocumentProvider) Follow(ctx context.Context, users UserSource) error {
	unfollow := users.OnUserChange(func(u *model.User) {
		if err := p.SetUser(ctx, u); err != nil {
			p.logger.Error("switching document subscriptions failed", "error", err)
		}
	})

	p.mu.Lock()
	if p.unfollow != nil {
		p.unfollow()
	}
	p.unfollow = unfollow
	p.mu.Unlock()

	return p.SetUser(ctx, users.CurrentUser())
}

// SetUser tears down the previous user's live queries and, when user is not
// nil, subscribes to the new user's documents and activities. Setting the
// same user again is a no-op.
func (p *DocumentProvider) SetUser(ctx context.Context, user *model.User) error {
	owner := ""
	if user != nil {
		owner = user.ID
	}

	p.mu.Lock()
	if owner == p.owner && (owner == "" || len(p.unwatch) > 0) {
		p.mu.Unlock()
		return nil
	}
	stale := p.unwatch
	p.unwatch = nil
	p.owner = owner
	p.generation++
	gen := p.generation
	p.documents = nil
	p.activities = nil
	p.mu.Unlock()

	for _, unsubscribe := range stale {
		unsubscribe()
	}

	if owner == "" {
		p.notify()
		return nil
	}

	unwatchDocs, err := p.store.WatchDocuments(ctx, owner, func(docs []*model.Document) {
		p.apply(gen, func() { p.documents = docs })
	})
	if err != nil {
		return fmt.Errorf("watching documents: %w", err)
	}
	unwatchActivities, err := p.store.WatchActivities(ctx, owner, p.activityLimit, func(activities []*model.Activity) {
		p.apply(gen, func() { p.activities = activities })
	})
	if err != nil {
		unwatchDocs()
		return fmt.Errorf("watching activities: %w", err)
	}

	p.mu.Lock()
	if p.generation != gen {
		// The user changed again while subscribing.
		p.mu.Unlock()
		unwatchDocs()
		unwatchActivities()
		return nil
	}
	p.unwatch = []Unsubscribe{unwatchDocs, unwatchActivities}
	p.mu.Unlock()

	p.logger.Debug("subscribed to documents", "owner", owner)
	return nil
}

// apply runs set under the lock if gen is still current, then notifies.
// Snapshots from a torn-down subscription are dropped.
func (p *DocumentProvider) apply(gen int, set func()) {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	set()
	p.mu.Unlock()
	p.notify()
}

// Owner returns the ID of the user the provider is scoped to, or "".
func (p *DocumentProvider) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// Documents returns the mirrored documents, newest upload first.
func (p *DocumentProvider) Documents() []*model.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Document, len(p.documents))
	copy(out, p.documents)
	return out
}

// Activities returns the mirrored activities, newest first.
func (p *DocumentProvider) Activities() []*model.Activity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Activity, len(p.activities))
	copy(out, p.activities)
	return out
}

// HasProcessedDocuments reports whether any mirrored document is ready to chat with.
func (p *DocumentProvider) HasProcessedDocuments() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.documents {
		if d.Status == model.StatusProcessed {
			return true
		}
	}
	return false
}

func (p *DocumentProvider) requireOwner() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owner == "" {
		return "", ErrNotAuthenticated
	}
	return p.owner, nil
}

// AddDocuments persists docs for the current user and records one upload
// activity per document. Missing IDs and upload times are filled in; the
// stored documents are returned.
func (p *DocumentProvider) AddDocuments(ctx context.Context, docs []*model.Document) ([]*model.Document, error) {
	owner, err := p.requireOwner()
	if err != nil {
		return nil, err
	}

	added := make([]*model.Document, 0, len(docs))
	for _, d := range docs {
		doc := *d
		if doc.ID == "" {
			doc.ID = p.idgen.New()
		}
		if doc.UploadedAt.IsZero() {
			doc.UploadedAt = p.clock.Now()
		}
		if doc.Status == "" {
			doc.Status = model.StatusUploading
		}
		doc.OwnerID = owner

		if err := p.store.CreateDocument(ctx, &doc); err != nil {
			return added, fmt.Errorf("saving document %s: %w", doc.Name, err)
		}
		added = append(added, &doc)

		if err := p.appendActivity(ctx, owner, model.ActivityUpload, uploadMessage(&doc)); err != nil {
			return added, err
		}
		p.logger.Info("document added", "id", doc.ID, "name", doc.Name, "status", doc.Status)
	}
	return added, nil
}

func uploadMessage(doc *model.Document) string {
	if doc.Status == model.StatusFailed {
		return fmt.Sprintf("Failed to upload %s", doc.Name)
	}
	return fmt.Sprintf("Uploaded %s", doc.Name)
}

// DeleteDocument soft-deletes a document: its status becomes deleted and it
// stays enumerable. The backend is asked to drop the file's chunks; a
// failure there is logged and does not undo the local delete.
func (p *DocumentProvider) DeleteDocument(ctx context.Context, id string) error {
	owner, err := p.requireOwner()
	if err != nil {
		return err
	}

	doc, err := p.store.GetDocument(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", id, ErrDocumentNotFound)
	}

	if err := p.store.UpdateDocumentStatus(ctx, owner, id, model.StatusDeleted); err != nil {
		return fmt.Errorf("deleting document %s: %w", doc.Name, err)
	}

	if p.remote != nil {
		if err := p.remote.DeleteDocument(ctx, doc.Name); err != nil {
			p.logger.Warn("backend delete failed", "name", doc.Name, "error", err)
		}
	}

	if err := p.appendActivity(ctx, owner, model.ActivityDelete, fmt.Sprintf("Deleted %s", doc.Name)); err != nil {
		return err
	}
	p.logger.Info("document deleted", "id", id, "name", doc.Name)
	return nil
}

// AddActivity records an audit entry for the current user.
func (p *DocumentProvider) AddActivity(ctx context.Context, kind model.ActivityKind, message string) error {
	owner, err := p.requireOwner()
	if err != nil {
		return err
	}
	return p.appendActivity(ctx, owner, kind, message)
}

func (p *DocumentProvider) appendActivity(ctx context.Context, owner string, kind model.ActivityKind, message string) error {
	activity := &model.Activity{
		ID:        p.idgen.New(),
		Kind:      kind,
		Message:   message,
		Timestamp: p.clock.Now(),
		OwnerID:   owner,
	}
	if err := p.store.AppendActivity(ctx, activity); err != nil {
		return fmt.Errorf("recording %s activity: %w", kind, err)
	}
	return nil
}

// OnChange registers fn to run after each applied snapshot or user switch.
func (p *DocumentProvider) OnChange(fn func()) Unsubscribe {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *DocumentProvider) notify() {
	p.mu.Lock()
	listeners := make([]func(), 0, len(p.listeners))
	for id := 0; id < p.nextID; id++ {
		if fn, ok := p.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Close tears down live queries and stops following identity changes.
func (p *DocumentProvider) Close() {
	p.mu.Lock()
	stale := p.unwatch
	p.unwatch = nil
	p.owner = ""
	p.generation++
	p.documents = nil
	p.activities = nil
	unfollow := p.unfollow
	p.unfollow = nil
	p.mu.Unlock()

	if unfollow != nil {
		unfollow()
	}
	for _, unsubscribe := range stale {
		unsubscribe()
	}
}
