package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"docchat/internal/api"
	"docchat/internal/config"
	"docchat/internal/database"
	"docchat/internal/docchat"
	"docchat/internal/encryption"
	"docchat/internal/fs"
	"docchat/internal/identity"
	"docchat/internal/model"
	"docchat/internal/session"
	"docchat/internal/staging"
	"docchat/internal/vault"
)

// DocChatApp is the application layer between the CLI and the providers.
// It constructs all dependencies from config, restores the saved session,
// exposes high-level operations that accept raw strings, and releases
// everything on Close.
type DocChatApp struct {
	cfg     *config.Config
	run     *Run
	logger  docchat.Logger
	logFile *os.File

	store    docchat.Store
	client   *api.Client
	sealer   docchat.Sealer
	vault    docchat.Vault
	staging  docchat.StagingArea
	fsmgr    docchat.FilesystemManager
	clock    docchat.Clock
	idgen    docchat.IDGenerator
	auth     *docchat.AuthProvider
	docs     *docchat.DocumentProvider
	uploader *docchat.Uploader
	searcher *docchat.Searcher
	history  *docchat.History
	settings *docchat.Settings
}

// Options tune how a DocChatApp is built.
type Options struct {
	// Verbose mirrors log records to stderr.
	Verbose bool

	// Clock overrides the wall clock (optional, used by tests).
	Clock docchat.Clock
}

// NewDocChatApp creates a fully wired DocChatApp from the given config.
// command identifies the CLI command being run (e.g. "upload", "ask").
// The caller must call Close when done.
func NewDocChatApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*DocChatApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = docchat.RealClock{}
	}

	run := NewRun(command, clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, run.ID, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &DocChatApp{
		cfg:     cfg,
		run:     run,
		logger:  logger,
		logFile: logFile,
		clock:   clock,
		idgen:   docchat.UUIDGenerator{},
	}
	if err := a.wire(ctx); err != nil {
		a.release()
		return nil, err
	}

	logger.Debug("command started", "command", command)
	return a, nil
}

func (a *DocChatApp) wire(ctx context.Context) error {
	cfg := a.cfg
	a.fsmgr = fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}
	a.sealer = sealer

	sessions, err := session.NewSessionStoreFromConfig(cfg.Session, sealer)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	idp, err := identity.NewIdentityProviderFromConfig(cfg.Identity, a.clock)
	if err != nil {
		return fmt.Errorf("creating identity provider: %w", err)
	}
	a.auth = docchat.NewAuthProvider(idp, sessions, a.clock, a.logger)

	a.client, err = api.NewClient(api.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Tokens:  a.auth,
	})
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	vaultCfg, err := cfg.Vault("")
	if err != nil {
		return err
	}
	a.vault, err = vault.NewVaultFromConfig(vaultCfg)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}

	a.staging, err = staging.NewStagingAreaFromConfig(cfg.Staging, a.fsmgr)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}

	a.store, err = database.NewStoreFromConfig(ctx, cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	a.docs = docchat.NewDocumentProvider(a.store, a.client, a.clock, a.idgen, a.logger, cfg.Database.ActivityLimit)
	a.uploader = docchat.NewUploader(a.fsmgr, a.staging, a.client, a.docs, a.logger)
	a.searcher = docchat.NewSearcher(a.client, a.docs, a.logger)
	a.history = docchat.NewHistory(a.client, a.vault, a.logger)
	a.settings = docchat.NewSettings(a.client, a.docs, a.logger)

	if err := a.auth.Restore(ctx); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}
	if err := a.docs.Follow(ctx, a.auth); err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	return nil
}

// Auth returns the authentication provider.
func (a *DocChatApp) Auth() *docchat.AuthProvider { return a.auth }

// Documents returns the document provider.
func (a *DocChatApp) Documents() *docchat.DocumentProvider { return a.docs }

// Client returns the backend client.
func (a *DocChatApp) Client() *api.Client { return a.client }

// CurrentUser returns the signed-in user, or nil.
func (a *DocChatApp) CurrentUser() *model.User {
	return a.auth.CurrentUser()
}

func (a *DocChatApp) requireUser() (*model.User, error) {
	user := a.auth.CurrentUser()
	if user == nil {
		return nil, docchat.ErrNotAuthenticated
	}
	return user, nil
}

// Login signs in and saves the session.
func (a *DocChatApp) Login(ctx context.Context, email, password string) (*model.User, error) {
	return a.auth.Login(ctx, email, password)
}

// Signup creates an account and signs in as it.
func (a *DocChatApp) Signup(ctx context.Context, email, password string) (*model.User, error) {
	return a.auth.Signup(ctx, email, password)
}

// Logout ends the session.
func (a *DocChatApp) Logout(ctx context.Context) error {
	return a.auth.Logout(ctx)
}

// PrepareUpload stages the given paths and reports which the backend already has.
func (a *DocChatApp) PrepareUpload(ctx context.Context, rawPaths []string, folder bool) (*docchat.UploadPlan, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.uploader.Prepare(ctx, rawPaths, folder)
}

// Upload sends a prepared plan. onStatus, when not nil, receives per-file updates.
func (a *DocChatApp) Upload(ctx context.Context, plan *docchat.UploadPlan, skipExisting bool, onStatus func(docchat.UploadItem)) (*docchat.UploadReport, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	a.uploader.OnStatus(onStatus)
	defer a.uploader.OnStatus(nil)
	return a.uploader.Upload(ctx, plan, skipExisting)
}

// CancelUpload discards any staged files.
func (a *DocChatApp) CancelUpload() error {
	return a.staging.Clear()
}

// SubscribeProgress opens the backend's ingestion progress stream.
func (a *DocChatApp) SubscribeProgress(ctx context.Context) (*api.ProgressStream, error) {
	return a.client.SubscribeProgress(ctx)
}

// Search runs a semantic search.
func (a *DocChatApp) Search(ctx context.Context, opts docchat.SearchOptions) ([]docchat.SearchResult, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.searcher.Search(ctx, opts)
}

// NewConversation starts a chat over the user's processed documents.
func (a *DocChatApp) NewConversation() (*docchat.Conversation, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return docchat.NewConversation(docchat.NewChatState(), a.client, a.docs, a.clock, a.idgen, a.logger), nil
}

// ListDocuments returns the user's documents, newest upload first.
func (a *DocChatApp) ListDocuments() ([]*model.Document, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.docs.Documents(), nil
}

// DeleteDocument soft-deletes a document by ID.
func (a *DocChatApp) DeleteDocument(ctx context.Context, id string) error {
	return a.docs.DeleteDocument(ctx, id)
}

// Activities returns the user's recent activities, newest first.
func (a *DocChatApp) Activities() ([]*model.Activity, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.docs.Activities(), nil
}

// Profile summarizes the user's library and recent activity.
func (a *DocChatApp) Profile(recent int) (*model.User, docchat.ProfileSummary, error) {
	user, err := a.requireUser()
	if err != nil {
		return nil, docchat.ProfileSummary{}, err
	}
	return user, docchat.Summarize(a.docs.Documents(), a.docs.Activities(), recent), nil
}

// ListSessions returns saved chat sessions.
func (a *DocChatApp) ListSessions(ctx context.Context) ([]model.ChatSession, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.history.List(ctx)
}

// GetSession returns a saved chat session.
func (a *DocChatApp) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if _, err := a.requireUser(); err != nil {
		return nil, err
	}
	return a.history.Get(ctx, id)
}

// RenameSession retitles a saved chat session.
func (a *DocChatApp) RenameSession(ctx context.Context, id, title string) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	return a.history.Rename(ctx, id, title)
}

// DeleteSession removes a saved chat session.
func (a *DocChatApp) DeleteSession(ctx context.Context, id string) error {
	if _, err := a.requireUser(); err != nil {
		return err
	}
	return a.history.Delete(ctx, id)
}

// ExportSession writes a session transcript to the configured vault.
func (a *DocChatApp) ExportSession(ctx context.Context, id string) (int64, error) {
	user, err := a.requireUser()
	if err != nil {
		return 0, err
	}
	return a.history.Export(ctx, user.ID, id)
}

// ReadTranscript returns a previously exported transcript.
func (a *DocChatApp) ReadTranscript(id string) (string, error) {
	user, err := a.requireUser()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := a.vault.GetTranscript(user.ID, id, &buf); err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	return buf.String(), nil
}

// Status returns the backend's index status.
func (a *DocChatApp) Status(ctx context.Context) (*api.Status, error) {
	return a.settings.Status(ctx)
}

// Models lists the backend's embedding and inference models.
func (a *DocChatApp) Models(ctx context.Context) (*docchat.ModelCatalog, error) {
	return a.settings.Models(ctx)
}

// SetEmbeddingModel switches the backend's embedding model.
func (a *DocChatApp) SetEmbeddingModel(ctx context.Context, name string) error {
	return a.settings.SetEmbeddingModel(ctx, name)
}

// SetInferenceModel switches the backend's inference model.
func (a *DocChatApp) SetInferenceModel(ctx context.Context, name string) error {
	return a.settings.SetInferenceModel(ctx, name)
}

// Fail records that the command failed with err.
func (a *DocChatApp) Fail(err error) {
	a.run.Fail(err)
}

// Close logs the run's outcome and releases all resources.
func (a *DocChatApp) Close() error {
	elapsed := a.clock.Now().Sub(a.run.StartedAt)
	if a.run.Failed() {
		a.logger.Error("command failed", "command", a.run.Command, "error", a.run.Err, "elapsed", elapsed)
	} else {
		a.logger.Debug("command finished", "command", a.run.Command, "elapsed", elapsed)
	}
	return a.release()
}

func (a *DocChatApp) release() error {
	var firstErr error

	if a.docs != nil {
		a.docs.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// InitConfig writes a new config file at path and prepares the local key
// material and vault it names.
func InitConfig(path string, cfg *config.Config) error {
	if err := config.Init(path, cfg); err != nil {
		return err
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}
	if err := sealer.Setup(); err != nil {
		return fmt.Errorf("generating session key: %w", err)
	}

	vaultCfg, err := cfg.Vault("")
	if err != nil {
		return err
	}
	v, err := vault.NewVaultFromConfig(vaultCfg)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}
	return nil
}
