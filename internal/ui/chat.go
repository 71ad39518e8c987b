package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

type answerMsg struct {
	msg *model.ChatMessage
	err error
}

type savedMsg struct {
	id  string
	err error
}

// ChatModel is the interactive chat screen.
type ChatModel struct {
	ctx  context.Context
	conv *docchat.Conversation
	md   *Markdown

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width   int
	height  int
	ready   bool
	waiting bool
	status  string
}

// NewChatModel builds a chat screen over conv.
func NewChatModel(ctx context.Context, conv *docchat.Conversation, md *Markdown) ChatModel {
	input := textinput.New()
	input.Placeholder = "Ask a question about your documents"
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	return ChatModel{
		ctx:     ctx,
		conv:    conv,
		md:      md,
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		status:  "enter: send  ctrl+s: save  ctrl+n: new chat  esc: quit",
	}
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := msg.Height - 4
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlS:
			if m.waiting {
				return m, nil
			}
			m.status = "Saving..."
			return m, m.save()
		case tea.KeyCtrlN:
			if m.waiting {
				return m, nil
			}
			m.conv.Reset()
			m.status = "Started a new chat."
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.status = ""
			return m, tea.Batch(m.send(text), m.spinner.Tick)
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = errorMessage(msg.err)
		}
		m.refresh()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.status = errorMessage(msg.err)
		} else {
			m.status = "Saved to history (" + msg.id + ")."
		}
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	content := m.md.Transcript(m.conv.State().Messages())
	if content == "" {
		content = mutedStyle.Render("No messages yet.")
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m ChatModel) send(text string) tea.Cmd {
	ctx, conv := m.ctx, m.conv
	return func() tea.Msg {
		reply, err := conv.Send(ctx, text)
		return answerMsg{msg: reply, err: err}
	}
}

func (m ChatModel) save() tea.Cmd {
	ctx, conv := m.ctx, m.conv
	return func() tea.Msg {
		id, err := conv.SaveToHistory(ctx)
		return savedMsg{id: id, err: err}
	}
}

func (m ChatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	status := mutedStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " Thinking..."
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		titleStyle.Render("docchat"), m.viewport.View(), status, m.input.View())
}

// RunChat runs the chat screen until the user quits.
func RunChat(ctx context.Context, conv *docchat.Conversation, md *Markdown) error {
	p := tea.NewProgram(NewChatModel(ctx, conv, md), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running chat: %w", err)
	}
	return nil
}

// errorMessage renders err for the status line. Validation errors are
// shown as-is; everything else is prefixed.
func errorMessage(err error) string {
	var verr *docchat.ValidationError
	if errors.As(err, &verr) {
		return warningStyle.Render(verr.Message)
	}
	return Error(err)
}
