package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/api"
	"docchat/internal/docchat"
)

// UploadFunc runs an upload, reporting per-file changes through onStatus.
type UploadFunc func(onStatus func(docchat.UploadItem)) (*docchat.UploadReport, error)

type fileStatusMsg docchat.UploadItem

type progressMsg api.ProgressEvent

type uploadDoneMsg struct {
	report *docchat.UploadReport
	err    error
}

// UploadModel shows per-file status and the backend's ingestion progress.
type UploadModel struct {
	order  []string
	items  map[string]docchat.UploadItem
	bar    progress.Model
	stage  string
	detail string
	pct    float64

	done   bool
	report *docchat.UploadReport
	err    error
}

// NewUploadModel lists plan's files as pending.
func NewUploadModel(plan *docchat.UploadPlan) UploadModel {
	m := UploadModel{
		items: make(map[string]docchat.UploadItem, len(plan.Items)),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	for _, item := range plan.Items {
		m.order = append(m.order, item.Name)
		m.items[item.Name] = *item
	}
	return m
}

func (m UploadModel) Init() tea.Cmd { return nil }

func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fileStatusMsg:
		if _, ok := m.items[msg.Name]; !ok {
			m.order = append(m.order, msg.Name)
		}
		m.items[msg.Name] = docchat.UploadItem(msg)
	case progressMsg:
		m.stage = msg.Stage
		m.detail = msg.Message
		m.pct = float64(msg.Progress) / 100
		if m.pct < 0 {
			m.pct = 0
		} else if m.pct > 1 {
			m.pct = 1
		}
	case uploadDoneMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.err = fmt.Errorf("upload interrupted")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m UploadModel) View() string {
	var b strings.Builder
	for _, name := range m.order {
		b.WriteString(UploadItem(m.items[name]))
		b.WriteString("\n")
	}
	if !m.done && m.stage != "" {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(m.pct))
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render(m.stage))
		if m.detail != "" {
			b.WriteString(" ")
			b.WriteString(mutedStyle.Render(m.detail))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Result returns the finished upload's report and error.
func (m UploadModel) Result() (*docchat.UploadReport, error) {
	return m.report, m.err
}

// RunUpload drives upload inside a Bubble Tea program on out. events may
// be nil when no progress stream is available.
func RunUpload(out io.Writer, plan *docchat.UploadPlan, events <-chan api.ProgressEvent, upload UploadFunc) (*docchat.UploadReport, error) {
	p := tea.NewProgram(NewUploadModel(plan), tea.WithOutput(out), tea.WithInput(nil))

	if events != nil {
		go func() {
			for e := range events {
				p.Send(progressMsg(e))
			}
		}()
	}
	go func() {
		report, err := upload(func(item docchat.UploadItem) {
			p.Send(fileStatusMsg(item))
		})
		p.Send(uploadDoneMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running upload view: %w", err)
	}
	return final.(UploadModel).Result()
}

// PrintUpload is the plain-output counterpart of RunUpload for
// non-interactive terminals.
func PrintUpload(out io.Writer, upload UploadFunc) (*docchat.UploadReport, error) {
	return upload(func(item docchat.UploadItem) {
		if item.Status == docchat.FilePending || item.Status == docchat.FileUploading {
			return
		}
		fmt.Fprintln(out, UploadItem(item))
	})
}
