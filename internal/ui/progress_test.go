package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/docchat"
)

func testPlan() *docchat.UploadPlan {
	return &docchat.UploadPlan{Items: []*docchat.UploadItem{
		{Name: "a.pdf", Status: docchat.FilePending},
		{Name: "b.txt", Status: docchat.FilePending},
	}}
}

func TestUploadModel_Update(t *testing.T) {
	var m tea.Model = NewUploadModel(testPlan())

	m, _ = m.Update(fileStatusMsg(docchat.UploadItem{Name: "a.pdf", Status: docchat.FileCompleted, Chunks: 4}))
	m, _ = m.Update(progressMsg(api.ProgressEvent{Stage: "embedding", Progress: 60, Message: "Embedding chunks"}))

	view := m.View()
	for _, want := range []string{"✓ a.pdf (4 chunks)", "· b.txt", "embedding", "Embedding chunks"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Index(view, "a.pdf") > strings.Index(view, "b.txt") {
		t.Error("files should keep plan order")
	}

	report := &docchat.UploadReport{Completed: 1}
	m, cmd := m.Update(uploadDoneMsg{report: report})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	got, err := m.(UploadModel).Result()
	if err != nil || got != report {
		t.Errorf("Result() = %v, %v", got, err)
	}
	if strings.Contains(m.View(), "embedding") {
		t.Error("progress bar should be hidden when done")
	}
}

func TestUploadModel_ClampsProgress(t *testing.T) {
	var m tea.Model = NewUploadModel(testPlan())
	m, _ = m.Update(progressMsg(api.ProgressEvent{Stage: "parsing", Progress: 250}))
	if got := m.(UploadModel).pct; got != 1 {
		t.Errorf("pct = %v, want 1", got)
	}
	m, _ = m.Update(progressMsg(api.ProgressEvent{Stage: "parsing", Progress: -5}))
	if got := m.(UploadModel).pct; got != 0 {
		t.Errorf("pct = %v, want 0", got)
	}
}

func TestUploadModel_Interrupt(t *testing.T) {
	var m tea.Model = NewUploadModel(testPlan())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if _, err := m.(UploadModel).Result(); err == nil {
		t.Error("expected interrupt error")
	}
}

func TestPrintUpload(t *testing.T) {
	var out bytes.Buffer
	wantErr := errors.New("partial")
	report, err := PrintUpload(&out, func(onStatus func(docchat.UploadItem)) (*docchat.UploadReport, error) {
		onStatus(docchat.UploadItem{Name: "a.pdf", Status: docchat.FileUploading})
		onStatus(docchat.UploadItem{Name: "a.pdf", Status: docchat.FileCompleted, Chunks: 2})
		onStatus(docchat.UploadItem{Name: "b.txt", Status: docchat.FileError, Error: "bad"})
		return &docchat.UploadReport{Completed: 1, Failed: 1}, wantErr
	})

	if !errors.Is(err, wantErr) || report.Completed != 1 {
		t.Fatalf("PrintUpload() = %+v, %v", report, err)
	}
	want := "✓ a.pdf (2 chunks)\n✗ b.txt: bad\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
