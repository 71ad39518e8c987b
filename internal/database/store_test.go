package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// storeFactories builds every Store implementation for the shared tests.
func storeFactories() map[string]func(t *testing.T) docchat.Store {
	return map[string]func(t *testing.T) docchat.Store{
		"memory": func(t *testing.T) docchat.Store {
			return NewMemoryStore(0, nil)
		},
		"sqlite": func(t *testing.T) docchat.Store {
			store, err := NewSQLiteStore(":memory:", nil)
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			return store
		},
		"redis": func(t *testing.T) docchat.Store {
			srv := miniredis.RunT(t)
			return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), 0, nil)
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store docchat.Store)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			fn(t, store)
		})
	}
}

func newDocument(id, owner string, uploadedAt time.Time) *model.Document {
	return &model.Document{
		ID:         id,
		Name:       id + ".pdf",
		MIMEType:   "application/pdf",
		Size:       1024,
		UploadedAt: uploadedAt,
		Status:     model.StatusUploading,
		OwnerID:    owner,
		FileHash:   "abc123",
		Metadata:   model.DocumentMetadata{Title: "Title " + id, Author: "Ada", PageCount: 3},
	}
}

func newActivity(id, owner string, ts time.Time) *model.Activity {
	return &model.Activity{
		ID:        id,
		Kind:      model.ActivityUpload,
		Message:   "Uploaded " + id,
		Timestamp: ts,
		OwnerID:   owner,
	}
}

func TestStore_CreateAndGetDocument(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx := context.Background()
		doc := newDocument("doc-1", "alice", baseTime)
		if err := store.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument() error = %v", err)
		}

		got, err := store.GetDocument(ctx, "alice", "doc-1")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetDocument() returned nil")
		}
		if got.Name != doc.Name || got.Size != doc.Size || got.Status != model.StatusUploading {
			t.Errorf("GetDocument() = %+v, want %+v", got, doc)
		}
		if got.Metadata != doc.Metadata {
			t.Errorf("Metadata = %+v, want %+v", got.Metadata, doc.Metadata)
		}
		if !got.UploadedAt.Equal(baseTime) {
			t.Errorf("UploadedAt = %v, want %v", got.UploadedAt, baseTime)
		}

		t.Run("missing document returns nil", func(t *testing.T) {
			got, err := store.GetDocument(ctx, "alice", "nope")
			if err != nil {
				t.Fatalf("GetDocument() error = %v", err)
			}
			if got != nil {
				t.Errorf("GetDocument() = %+v, want nil", got)
			}
		})

		t.Run("other owner cannot see document", func(t *testing.T) {
			got, err := store.GetDocument(ctx, "bob", "doc-1")
			if err != nil {
				t.Fatalf("GetDocument() error = %v", err)
			}
			if got != nil {
				t.Error("document leaked across owners")
			}
		})

		t.Run("duplicate id rejected", func(t *testing.T) {
			if err := store.CreateDocument(ctx, newDocument("doc-1", "alice", baseTime)); err == nil {
				t.Error("CreateDocument() expected error for duplicate id")
			}
		})

		t.Run("missing owner rejected", func(t *testing.T) {
			if err := store.CreateDocument(ctx, newDocument("doc-2", "", baseTime)); err == nil {
				t.Error("CreateDocument() expected error for missing owner")
			}
		})
	})
}

func TestStore_UpdateDocumentStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx := context.Background()
		if err := store.CreateDocument(ctx, newDocument("doc-1", "alice", baseTime)); err != nil {
			t.Fatalf("CreateDocument() error = %v", err)
		}

		steps := []model.DocumentStatus{model.StatusProcessing, model.StatusProcessed, model.StatusDeleted}
		for _, status := range steps {
			if err := store.UpdateDocumentStatus(ctx, "alice", "doc-1", status); err != nil {
				t.Fatalf("UpdateDocumentStatus(%s) error = %v", status, err)
			}
			got, _ := store.GetDocument(ctx, "alice", "doc-1")
			if got.Status != status {
				t.Errorf("Status = %s, want %s", got.Status, status)
			}
		}

		t.Run("deleted is final", func(t *testing.T) {
			err := store.UpdateDocumentStatus(ctx, "alice", "doc-1", model.StatusProcessing)
			if !errors.Is(err, docchat.ErrInvalidTransition) {
				t.Errorf("error = %v, want ErrInvalidTransition", err)
			}
		})

		t.Run("unknown document", func(t *testing.T) {
			err := store.UpdateDocumentStatus(ctx, "alice", "nope", model.StatusProcessing)
			if !errors.Is(err, docchat.ErrDocumentNotFound) {
				t.Errorf("error = %v, want ErrDocumentNotFound", err)
			}
		})

		t.Run("other owner", func(t *testing.T) {
			err := store.UpdateDocumentStatus(ctx, "bob", "doc-1", model.StatusDeleted)
			if !errors.Is(err, docchat.ErrDocumentNotFound) {
				t.Errorf("error = %v, want ErrDocumentNotFound", err)
			}
		})
	})
}

func TestStore_ListDocuments(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx := context.Background()
		docs := []*model.Document{
			newDocument("old", "alice", baseTime),
			newDocument("new", "alice", baseTime.Add(2*time.Minute)),
			newDocument("mid", "alice", baseTime.Add(time.Minute)),
			newDocument("tie", "alice", baseTime.Add(2*time.Minute)),
			newDocument("bobs", "bob", baseTime.Add(time.Hour)),
		}
		for _, doc := range docs {
			if err := store.CreateDocument(ctx, doc); err != nil {
				t.Fatalf("CreateDocument(%s) error = %v", doc.ID, err)
			}
		}

		got, err := store.ListDocuments(ctx, "alice")
		if err != nil {
			t.Fatalf("ListDocuments() error = %v", err)
		}
		want := []string{"tie", "new", "mid", "old"}
		if ids := documentIDs(got); fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("ListDocuments() = %v, want %v", ids, want)
		}

		empty, err := store.ListDocuments(ctx, "carol")
		if err != nil {
			t.Fatalf("ListDocuments() error = %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("ListDocuments() for unknown owner = %d docs, want 0", len(empty))
		}
	})
}

func TestStore_Activities(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx := context.Background()
		for i := range 5 {
			a := newActivity(fmt.Sprintf("a%d", i), "alice", baseTime.Add(time.Duration(i)*time.Second))
			if err := store.AppendActivity(ctx, a); err != nil {
				t.Fatalf("AppendActivity() error = %v", err)
			}
		}
		// Same timestamp as a4; inserted later so it sorts first.
		if err := store.AppendActivity(ctx, newActivity("a5", "alice", baseTime.Add(4*time.Second))); err != nil {
			t.Fatalf("AppendActivity() error = %v", err)
		}
		if err := store.AppendActivity(ctx, newActivity("b0", "bob", baseTime)); err != nil {
			t.Fatalf("AppendActivity() error = %v", err)
		}

		got, err := store.ListActivities(ctx, "alice", 3)
		if err != nil {
			t.Fatalf("ListActivities() error = %v", err)
		}
		want := []string{"a5", "a4", "a3"}
		if ids := activityIDs(got); fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("ListActivities() = %v, want %v", ids, want)
		}
		if got[0].Kind != model.ActivityUpload || got[0].Message != "Uploaded a5" {
			t.Errorf("activity fields not preserved: %+v", got[0])
		}

		all, err := store.ListActivities(ctx, "alice", 0)
		if err != nil {
			t.Fatalf("ListActivities() error = %v", err)
		}
		if len(all) != 6 {
			t.Errorf("ListActivities(limit=0) returned %d, want 6", len(all))
		}

		t.Run("missing id rejected", func(t *testing.T) {
			if err := store.AppendActivity(ctx, newActivity("", "alice", baseTime)); err == nil {
				t.Error("AppendActivity() expected error for missing id")
			}
		})
	})
}

func TestStore_WatchDocuments(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx := context.Background()
		if err := store.CreateDocument(ctx, newDocument("doc-1", "alice", baseTime)); err != nil {
			t.Fatalf("CreateDocument() error = %v", err)
		}

		rec := &recorder[[]*model.Document]{}
		unsubscribe, err := store.WatchDocuments(ctx, "alice", rec.record)
		if err != nil {
			t.Fatalf("WatchDocuments() error = %v", err)
		}

		if n := rec.count(); n != 1 {
			t.Fatalf("initial snapshots = %d, want 1", n)
		}
		if len(rec.last()) != 1 {
			t.Fatalf("initial snapshot has %d docs, want 1", len(rec.last()))
		}

		if err := store.CreateDocument(ctx, newDocument("doc-2", "alice", baseTime.Add(time.Minute))); err != nil {
			t.Fatalf("CreateDocument() error = %v", err)
		}
		waitFor(t, func() bool { return len(rec.last()) == 2 })

		if err := store.UpdateDocumentStatus(ctx, "alice", "doc-1", model.StatusProcessing); err != nil {
			t.Fatalf("UpdateDocumentStatus() error = %v", err)
		}
		waitFor(t, func() bool {
			docs := rec.last()
			return len(docs) == 2 && docs[1].Status == model.StatusProcessing
		})

		unsubscribe()
		unsubscribe() // idempotent
	})
}

func TestStore_WatchActivities(t *testing.T) {
	forEachStore(t, func(t *testing.T, store docchat.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rec := &recorder[[]*model.Activity]{}
		unsubscribe, err := store.WatchActivities(ctx, "alice", 2, rec.record)
		if err != nil {
			t.Fatalf("WatchActivities() error = %v", err)
		}
		defer unsubscribe()

		if len(rec.last()) != 0 {
			t.Fatalf("initial snapshot = %d activities, want 0", len(rec.last()))
		}

		for i := range 3 {
			a := newActivity(fmt.Sprintf("a%d", i), "alice", baseTime.Add(time.Duration(i)*time.Second))
			if err := store.AppendActivity(ctx, a); err != nil {
				t.Fatalf("AppendActivity() error = %v", err)
			}
		}
		waitFor(t, func() bool {
			got := rec.last()
			return len(got) == 2 && got[0].ID == "a2"
		})
	})
}

func TestStore_CloseEndsLiveQueries(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			rec := &recorder[[]*model.Document]{}
			if _, err := store.WatchDocuments(ctx, "alice", rec.record); err != nil {
				t.Fatalf("WatchDocuments() error = %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if n := rec.count(); n != 1 {
				t.Errorf("snapshots after Close = %d, want 1", n)
			}
		})
	}
}

func TestMemoryStore_ActivityCap(t *testing.T) {
	store := NewMemoryStore(3, nil)
	defer store.Close()
	ctx := context.Background()

	for i := range 5 {
		a := newActivity(fmt.Sprintf("a%d", i), "alice", baseTime.Add(time.Duration(i)*time.Second))
		if err := store.AppendActivity(ctx, a); err != nil {
			t.Fatalf("AppendActivity() error = %v", err)
		}
	}

	got, err := store.ListActivities(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	want := []string{"a4", "a3", "a2"}
	if ids := activityIDs(got); fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ListActivities() = %v, want %v", ids, want)
	}
}

func TestRedisStore_ActivityCap(t *testing.T) {
	srv := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), 3, nil)
	defer store.Close()
	ctx := context.Background()

	for i := range 5 {
		a := newActivity(fmt.Sprintf("a%d", i), "alice", baseTime.Add(time.Duration(i)*time.Second))
		if err := store.AppendActivity(ctx, a); err != nil {
			t.Fatalf("AppendActivity() error = %v", err)
		}
	}

	got, err := store.ListActivities(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	want := []string{"a4", "a3", "a2"}
	if ids := activityIDs(got); fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ListActivities() = %v, want %v", ids, want)
	}
	members, err := srv.ZMembers(store.activitiesKey("alice"))
	if err != nil {
		t.Fatalf("ZMembers() error = %v", err)
	}
	if len(members) != 3 {
		t.Errorf("sorted set holds %d members, want 3", len(members))
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(0, nil)
	defer store.Close()
	ctx := context.Background()

	doc := newDocument("doc-1", "alice", baseTime)
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	doc.Name = "mutated"

	got, _ := store.GetDocument(ctx, "alice", "doc-1")
	got.Status = model.StatusFailed

	again, _ := store.GetDocument(ctx, "alice", "doc-1")
	if again.Name != "doc-1.pdf" || again.Status != model.StatusUploading {
		t.Errorf("stored document was mutated through a returned pointer: %+v", again)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/docchat.db"
	ctx := context.Background()

	store, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.CreateDocument(ctx, newDocument("doc-1", "alice", baseTime)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer reopened.Close()

	docs, err := reopened.ListDocuments(ctx, "alice")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" {
		t.Errorf("ListDocuments() after reopen = %v", documentIDs(docs))
	}
}

// recorder collects snapshots delivered to a live query.
type recorder[T any] struct {
	mu        sync.Mutex
	snapshots []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, v)
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder[T]) last() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.snapshots) == 0 {
		return zero
	}
	return r.snapshots[len(r.snapshots)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func documentIDs(docs []*model.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func activityIDs(activities []*model.Activity) []string {
	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}
	return ids
}
