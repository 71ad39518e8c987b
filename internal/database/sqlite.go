package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docchat/internal/database/migrations"
	"docchat/internal/docchat"
	"docchat/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements docchat.Store on a local SQLite file. Live queries
// are served from an in-process change feed, so they only observe writes made
// through this store.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	feed   *feed
	logger docchat.Logger
}

var _ docchat.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// pending migrations. path can be ":memory:".
func NewSQLiteStore(path string, logger docchat.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = docchat.NewNopLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		feed:   newFeed(),
		logger: logger,
	}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	// A single connection also serializes writers for the file case.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Document operations

const documentColumns = `id, owner_id, name, mime_type, size, uploaded_at, status,
	chunk_count, file_hash, title, author, page_count`

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Name, doc.MIMEType, doc.Size, doc.UploadedAt.UTC(), string(doc.Status),
		doc.ChunkCount, doc.FileHash, doc.Metadata.Title, doc.Metadata.Author, doc.Metadata.PageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}

	s.feed.publish(documentsTopic(doc.OwnerID))
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = ? AND id = ?`, ownerID, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, ownerID, id string, status model.DocumentStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM documents WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", id, docchat.ErrDocumentNotFound)
		}
		return fmt.Errorf("failed to read document status: %w", err)
	}

	from := model.DocumentStatus(current)
	if !from.CanTransition(status) {
		return fmt.Errorf("%s -> %s: %w", from, status, docchat.ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE owner_id = ? AND id = ?`, string(status), ownerID, id); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	s.feed.publish(documentsTopic(ownerID))
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, ownerID string) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = ?
		 ORDER BY uploaded_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Activity operations

func (s *SQLiteStore) AppendActivity(ctx context.Context, activity *model.Activity) error {
	if err := validateActivity(activity); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, owner_id, kind, message, timestamp, seq)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM activities))`,
		activity.ID, activity.OwnerID, string(activity.Kind), activity.Message, activity.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity %s: %w", activity.ID, err)
	}

	s.feed.publish(activitiesTopic(activity.OwnerID))
	return nil
}

func (s *SQLiteStore) ListActivities(ctx context.Context, ownerID string, limit int) ([]*model.Activity, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, message, timestamp FROM activities WHERE owner_id = ?
		 ORDER BY timestamp DESC, seq DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []*model.Activity{}
	for rows.Next() {
		var (
			a    model.Activity
			kind string
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &kind, &a.Message, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Kind = model.ActivityKind(kind)
		a.Timestamp = a.Timestamp.UTC()
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// Live queries

func (s *SQLiteStore) WatchDocuments(ctx context.Context, ownerID string, fn func([]*model.Document)) (docchat.Unsubscribe, error) {
	sub, cancel := s.feed.subscribe(documentsTopic(ownerID))
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Document, error) {
		return s.ListDocuments(ctx, ownerID)
	}, fn, s.logger)
}

func (s *SQLiteStore) WatchActivities(ctx context.Context, ownerID string, limit int, fn func([]*model.Activity)) (docchat.Unsubscribe, error) {
	sub, cancel := s.feed.subscribe(activitiesTopic(ownerID))
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Activity, error) {
		return s.ListActivities(ctx, ownerID, limit)
	}, fn, s.logger)
}

// Close ends all live queries and closes the database.
func (s *SQLiteStore) Close() error {
	s.feed.close()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc        model.Document
		status     string
		uploadedAt time.Time
	)
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Name, &doc.MIMEType, &doc.Size, &uploadedAt, &status,
		&doc.ChunkCount, &doc.FileHash, &doc.Metadata.Title, &doc.Metadata.Author, &doc.Metadata.PageCount,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	doc.UploadedAt = uploadedAt.UTC()
	return &doc, nil
}
