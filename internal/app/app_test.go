package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docchat/internal/config"
	"docchat/internal/docchat"
	"docchat/internal/model"
	"docchat/internal/testutil"
)

func newTestConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		BaseDir:    base,
		LogDir:     filepath.Join(base, "log"),
		Backend:    config.BackendConfig{URL: backendURL},
		Identity:   config.IdentityConfig{Type: "memory", Secret: "test-secret"},
		Session:    config.SessionConfig{Type: "memory"},
		Encryption: config.EncryptionConfig{Type: "test"},
		Database:   config.DatabaseConfig{Type: "memory"},
		Staging:    config.StagingConfig{Type: "memory"},
		Vaults:     []config.VaultConfig{{Type: "memory", Name: "mem"}},
	}
}

func newTestApp(t *testing.T) (*DocChatApp, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend(t)
	a, err := NewDocChatApp(context.Background(), newTestConfig(t, backend.URL()), "test", Options{})
	if err != nil {
		t.Fatalf("NewDocChatApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, backend
}

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewDocChatApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown identity type", mutate: func(c *config.Config) { c.Identity.Type = "ldap" }},
		{name: "unknown session type", mutate: func(c *config.Config) { c.Session.Type = "cookie" }},
		{name: "unknown database type", mutate: func(c *config.Config) { c.Database.Type = "mongo" }},
		{name: "missing backend url", mutate: func(c *config.Config) { c.Backend.URL = "" }},
		{name: "no vaults", mutate: func(c *config.Config) { c.Vaults = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, "http://localhost:8000")
			tt.mutate(cfg)
			a, err := NewDocChatApp(context.Background(), cfg, "test", Options{})
			if err == nil {
				a.Close()
				t.Fatal("expected error")
			}
		})
	}
}

func TestDocChatApp_RequiresSignIn(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	if a.CurrentUser() != nil {
		t.Fatal("expected no user")
	}
	if _, err := a.ListDocuments(); !errors.Is(err, docchat.ErrNotAuthenticated) {
		t.Errorf("ListDocuments() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := a.Search(ctx, docchat.SearchOptions{Query: "q"}); !errors.Is(err, docchat.ErrNotAuthenticated) {
		t.Errorf("Search() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := a.NewConversation(); !errors.Is(err, docchat.ErrNotAuthenticated) {
		t.Errorf("NewConversation() error = %v, want ErrNotAuthenticated", err)
	}
	if _, _, err := a.Profile(5); !errors.Is(err, docchat.ErrNotAuthenticated) {
		t.Errorf("Profile() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestDocChatApp_UploadAskAndExport(t *testing.T) {
	a, backend := newTestApp(t)
	ctx := context.Background()

	user, err := a.Signup(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if a.CurrentUser() == nil || a.CurrentUser().ID != user.ID {
		t.Fatalf("CurrentUser() = %v, want %v", a.CurrentUser(), user)
	}

	path := writeDocument(t, "notes.txt", "quarterly revenue grew")
	plan, err := a.PrepareUpload(ctx, []string{path}, false)
	if err != nil {
		t.Fatalf("PrepareUpload() error = %v", err)
	}
	if len(plan.Items) != 1 {
		t.Fatalf("expected 1 staged item, got %d", len(plan.Items))
	}

	var statuses []docchat.FileStatus
	report, err := a.Upload(ctx, plan, true, func(item docchat.UploadItem) {
		statuses = append(statuses, item.Status)
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1", report.Completed)
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != docchat.FileCompleted {
		t.Errorf("status updates = %v, want to end with completed", statuses)
	}

	var docs []*model.Document
	waitFor(t, func() bool {
		docs, err = a.ListDocuments()
		return err == nil && len(docs) == 1
	})
	if len(docs) != 1 || docs[0].Name != "notes.txt" || docs[0].Status != model.StatusProcessed {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	backend.SetChatAnswer("Revenue grew.", testutil.FakeSource{Filename: "notes.txt"})
	conv, err := a.NewConversation()
	if err != nil {
		t.Fatalf("NewConversation() error = %v", err)
	}
	answer, err := conv.Send(ctx, "How did revenue do?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if answer.Content != "Revenue grew." {
		t.Errorf("answer = %q", answer.Content)
	}

	sessionID, err := conv.SaveToHistory(ctx)
	if err != nil {
		t.Fatalf("SaveToHistory() error = %v", err)
	}
	sessions, err := a.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sessionID {
		t.Fatalf("ListSessions() = %+v, want session %s", sessions, sessionID)
	}

	if _, err := a.ExportSession(ctx, sessionID); err != nil {
		t.Fatalf("ExportSession() error = %v", err)
	}
	transcript, err := a.ReadTranscript(sessionID)
	if err != nil {
		t.Fatalf("ReadTranscript() error = %v", err)
	}
	if !strings.Contains(transcript, "How did revenue do?") || !strings.Contains(transcript, "Revenue grew.") {
		t.Errorf("transcript missing messages:\n%s", transcript)
	}

	_, summary, err := a.Profile(10)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if summary.Documents != 1 || summary.TotalChunks != 3 {
		t.Errorf("summary = %+v, want 1 document with 3 chunks", summary)
	}
}

func TestDocChatApp_Logout(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.Signup(ctx, "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if err := a.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if a.CurrentUser() != nil {
		t.Error("expected no user after logout")
	}
	if _, err := a.Login(ctx, "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func TestDocChatApp_Models(t *testing.T) {
	a, backend := newTestApp(t)
	ctx := context.Background()

	if _, err := a.Signup(ctx, "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	catalog, err := a.Models(ctx)
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(catalog.Inference) == 0 {
		t.Fatal("expected inference models")
	}
	if err := a.SetInferenceModel(ctx, "google/flan-t5-base"); err != nil {
		t.Fatalf("SetInferenceModel() error = %v", err)
	}
	if got := backend.InferenceModel(); got != "google/flan-t5-base" {
		t.Errorf("backend inference model = %q", got)
	}
}

func TestDocChatApp_CloseLogsOutcome(t *testing.T) {
	backend := testutil.NewFakeBackend(t)
	cfg := newTestConfig(t, backend.URL())
	a, err := NewDocChatApp(context.Background(), cfg, "upload", Options{})
	if err != nil {
		t.Fatalf("NewDocChatApp() error = %v", err)
	}
	a.Fail(errors.New("boom"))
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, "command failed") || !strings.Contains(log, "boom") {
		t.Errorf("log missing failure:\n%s", log)
	}
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig(dir, "http://localhost:8000")
	path := filepath.Join(dir, "docchat.toml")

	if err := InitConfig(path, cfg); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	if _, err := os.Stat(cfg.Encryption.KeyPath); err != nil {
		t.Errorf("expected key file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file: %v", err)
	}
	if err := InitConfig(path, cfg); err == nil {
		t.Error("expected error when config already exists")
	}
}
