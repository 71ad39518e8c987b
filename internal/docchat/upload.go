package docchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"docchat/internal/api"
	"docchat/internal/model"
)

// FileStatus is the per-file state of an upload.
type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileUploading FileStatus = "uploading"
	FileCompleted FileStatus = "completed"
	FileError     FileStatus = "error"
	FileSkipped   FileStatus = "skipped"
)

// ErrAllFilesExist is returned when every selected file is already indexed
// and the user chose to skip duplicates.
var ErrAllFilesExist = &ValidationError{Message: "All files already exist."}

// supportedExtensions are the file types the backend can ingest.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".csv":  true,
	".txt":  true,
}

// SupportedDocument reports whether the backend can ingest a file by name.
func SupportedDocument(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// UploadItem tracks one file through an upload.
type UploadItem struct {
	Name     string
	Path     string
	Size     int64
	MIMEType string
	Checksum string
	Status   FileStatus
	Error    string
	Chunks   int
	Metadata model.DocumentMetadata
}

// UploadPlan is the result of preparing an upload: the staged files and
// which of them the backend already has.
type UploadPlan struct {
	Folder      bool
	Items       []*UploadItem
	Existing    []string // names already indexed by the backend
	Unsupported []string // paths skipped because of their type
	Duplicates  []string // paths skipped because an earlier file has the same name
}

// UploadReport summarizes a finished upload.
type UploadReport struct {
	Items     []*UploadItem
	Completed int
	Failed    int
	Skipped   int
	Documents []*model.Document
}

// DocumentRecorder persists uploaded documents. *DocumentProvider implements it.
type DocumentRecorder interface {
	AddDocuments(ctx context.Context, docs []*model.Document) ([]*model.Document, error)
}

// Uploader orchestrates uploads: it stages local files, checks for
// duplicates, sends them to the backend and records the outcome.
type Uploader struct {
	fsmgr     FilesystemManager
	staging   StagingArea
	backend   DocumentBackend
	documents DocumentRecorder
	logger    Logger

	mu       sync.Mutex
	onStatus func(UploadItem)
}

// NewUploader creates an Uploader. documents may be nil to skip recording.
func NewUploader(fsmgr FilesystemManager, staging StagingArea, backend DocumentBackend, documents DocumentRecorder, logger Logger) *Uploader {
	return &Uploader{
		fsmgr:     fsmgr,
		staging:   staging,
		backend:   backend,
		documents: documents,
		logger:    logger,
	}
}

// OnStatus registers fn to receive a copy of an item each time its status changes.
func (u *Uploader) OnStatus(fn func(UploadItem)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onStatus = fn
}

func (u *Uploader) setStatus(item *UploadItem, status FileStatus, errMsg string) {
	item.Status = status
	item.Error = errMsg

	u.mu.Lock()
	fn := u.onStatus
	u.mu.Unlock()
	if fn != nil {
		fn(*item)
	}
}

// Prepare resolves paths, stages every supported file and asks the backend
// which names it already has. Directories are expanded recursively and are
// only accepted in folder mode. When two files share a name the first in
// path order is staged and the rest are listed in Duplicates. Any
// previously staged batch is discarded, and nothing stays staged on error.
func (u *Uploader) Prepare(ctx context.Context, rawPaths []string, folder bool) (*UploadPlan, error) {
	if len(rawPaths) == 0 {
		return nil, &ValidationError{Message: "Please select files to upload."}
	}
	if err := u.staging.Clear(); err != nil {
		return nil, fmt.Errorf("clearing staging area: %w", err)
	}

	plan := &UploadPlan{Folder: folder}
	var files []*Path
	for _, raw := range rawPaths {
		path, err := u.fsmgr.Resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", raw, err)
		}
		if !path.IsDir() {
			files = append(files, path)
			continue
		}
		if !folder {
			return nil, fmt.Errorf("%s is a directory (use folder mode)", path)
		}
		found, err := u.fsmgr.FindFiles(path, true)
		if err != nil {
			return nil, fmt.Errorf("finding files in %s: %w", path, err)
		}
		files = append(files, found...)
	}

	var supported []*Path
	seen := make(map[string]bool)
	for _, f := range files {
		switch {
		case !SupportedDocument(f.Name()):
			plan.Unsupported = append(plan.Unsupported, f.String())
		case seen[f.Name()]:
			plan.Duplicates = append(plan.Duplicates, f.String())
		default:
			seen[f.Name()] = true
			supported = append(supported, f)
		}
	}
	if len(supported) == 0 {
		return nil, &ValidationError{Message: "No supported files selected (pdf, docx, csv, txt)."}
	}

	staged, err := StageAll(ctx, u.staging, supported)
	if err != nil {
		u.staging.Clear()
		return nil, fmt.Errorf("staging files: %w", err)
	}
	for _, s := range staged {
		plan.Items = append(plan.Items, &UploadItem{
			Name:     s.Name,
			Path:     s.Path,
			Size:     s.Size,
			MIMEType: s.MIMEType,
			Checksum: s.Checksum,
			Status:   FilePending,
		})
	}
	for _, dup := range plan.Duplicates {
		u.logger.Warn("skipping file with a duplicate name", "path", dup)
	}

	names := make([]string, len(plan.Items))
	for i, item := range plan.Items {
		names[i] = item.Name
	}
	plan.Existing, err = u.backend.CheckExistingFiles(ctx, names)
	if err != nil {
		u.staging.Clear()
		return nil, fmt.Errorf("checking existing files: %w", err)
	}

	u.logger.Debug("upload prepared", "files", len(plan.Items), "existing", len(plan.Existing),
		"unsupported", len(plan.Unsupported), "duplicates", len(plan.Duplicates))
	return plan, nil
}

// Upload sends the plan's files to the backend. With skipExisting, files the
// backend already has are left out; skipping every file returns
// ErrAllFilesExist without contacting the backend. Successful files become
// processed documents and failed files become failed documents.
func (u *Uploader) Upload(ctx context.Context, plan *UploadPlan, skipExisting bool) (*UploadReport, error) {
	report := &UploadReport{Items: plan.Items}

	existing := make(map[string]bool, len(plan.Existing))
	for _, name := range plan.Existing {
		existing[name] = true
	}

	pending := make(map[string]*UploadItem)
	for _, item := range plan.Items {
		if skipExisting && existing[item.Name] {
			if err := u.staging.Unstage(item.Name); err != nil {
				return nil, fmt.Errorf("unstaging %s: %w", item.Name, err)
			}
			u.setStatus(item, FileSkipped, "")
			report.Skipped++
			continue
		}
		pending[item.Name] = item
	}
	if len(pending) == 0 {
		return report, ErrAllFilesExist
	}

	var err error
	if plan.Folder {
		err = u.uploadFolder(ctx, pending)
	} else {
		err = u.uploadEach(ctx, pending)
	}
	if err != nil {
		return report, err
	}

	var docs []*model.Document
	for _, item := range plan.Items {
		switch item.Status {
		case FileCompleted:
			report.Completed++
			docs = append(docs, documentFromItem(item, model.StatusProcessed))
		case FileError:
			report.Failed++
			docs = append(docs, documentFromItem(item, model.StatusFailed))
		}
	}

	if u.documents != nil && len(docs) > 0 {
		report.Documents, err = u.documents.AddDocuments(ctx, docs)
		if err != nil {
			return report, fmt.Errorf("recording documents: %w", err)
		}
	}

	u.logger.Info("upload finished", "completed", report.Completed, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// uploadEach sends queued files one request at a time.
func (u *Uploader) uploadEach(ctx context.Context, pending map[string]*UploadItem) error {
	for {
		count, err := u.staging.Count()
		if err != nil {
			return fmt.Errorf("reading staging queue: %w", err)
		}
		if count == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var current *UploadItem
		err = u.staging.ProcessNext(func(content io.Reader, file StagedFile) error {
			current = pending[file.Name]
			if current == nil {
				return nil
			}
			u.setStatus(current, FileUploading, "")
			result, err := u.backend.UploadFile(ctx, file.Name, content)
			if err != nil {
				return err
			}
			current.Chunks = result.ChunksStored
			current.Metadata = metadataFromAPI(result.Metadata)
			return nil
		})
		if current == nil {
			if err != nil {
				return fmt.Errorf("processing staging queue: %w", err)
			}
			continue
		}
		if err != nil {
			u.logger.Warn("upload failed", "name", current.Name, "error", err)
			u.setStatus(current, FileError, uploadErrorMessage(err))
			continue
		}
		u.setStatus(current, FileCompleted, "")
	}
}

// uploadFolder sends every queued file in a single batch request.
func (u *Uploader) uploadFolder(ctx context.Context, pending map[string]*UploadItem) error {
	files, err := u.staging.Files()
	if err != nil {
		return fmt.Errorf("reading staging queue: %w", err)
	}

	var parts []api.FilePart
	var readers []io.Closer
	defer func() {
		for _, r := range readers {
			r.Close()
		}
		u.staging.Clear()
	}()

	for _, f := range files {
		item := pending[f.Name]
		if item == nil {
			continue
		}
		content, err := u.staging.OpenContent(f)
		if err != nil {
			return fmt.Errorf("opening staged %s: %w", f.Name, err)
		}
		readers = append(readers, content)
		parts = append(parts, api.FilePart{Name: f.Name, Content: content})
		u.setStatus(item, FileUploading, "")
	}

	result, err := u.backend.UploadFolder(ctx, parts)
	if err != nil {
		for _, item := range pending {
			u.setStatus(item, FileError, uploadErrorMessage(err))
		}
		u.logger.Warn("folder upload failed", "files", len(parts), "error", err)
		return nil
	}

	for _, doc := range result.DocumentsProcessed {
		if item := pending[doc.Filename]; item != nil {
			item.Chunks = doc.ChunksStored
			item.Metadata = metadataFromAPI(doc.Metadata)
			u.setStatus(item, FileCompleted, "")
		}
	}
	for _, fe := range result.Errors {
		if item := pending[fe.Filename]; item != nil {
			u.setStatus(item, FileError, fe.Error)
		}
	}
	for _, item := range pending {
		if item.Status == FileUploading {
			u.setStatus(item, FileError, "no result reported by backend")
		}
	}
	return nil
}

// StageAll stages paths concurrently. Every path is attempted; the returned
// slice holds the staged files in the order of paths (nil where staging
// failed) and the error joins every failure, each prefixed with its path.
func StageAll(ctx context.Context, sa StagingArea, paths []*Path) ([]*StagedFile, error) {
	staged := make([]*StagedFile, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			staged[i], errs[i] = sa.Stage(path)
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for i, err := range errs {
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", paths[i], err))
		}
	}
	return staged, errors.Join(failures...)
}

func documentFromItem(item *UploadItem, status model.DocumentStatus) *model.Document {
	return &model.Document{
		Name:       item.Name,
		MIMEType:   item.MIMEType,
		Size:       item.Size,
		Status:     status,
		ChunkCount: item.Chunks,
		FileHash:   item.Checksum,
		Metadata:   item.Metadata,
	}
}

func metadataFromAPI(m api.FileMetadata) model.DocumentMetadata {
	return model.DocumentMetadata{Title: m.Title, Author: m.Author, PageCount: m.Pages}
}

// uploadErrorMessage prefers the backend's own explanation.
func uploadErrorMessage(err error) string {
	var terr *api.TransportError
	if errors.As(err, &terr) && terr.Detail != "" {
		return terr.Detail
	}
	var derr *api.DataError
	if errors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}
