package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"docchat/internal/model"
)

// Markdown renders assistant answers for the terminal. A nil *Markdown or
// one whose renderer failed to build passes text through unchanged.
type Markdown struct {
	renderer *glamour.TermRenderer
}

// NewMarkdown builds a renderer wrapping at width columns. styled selects
// glamour's auto style; otherwise the plain "notty" style is used.
func NewMarkdown(width int, styled bool) *Markdown {
	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{renderer: r}
}

// Render returns text rendered as Markdown, or text itself on failure.
func (m *Markdown) Render(text string) string {
	if m == nil || m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Message renders one chat turn with its speaker label and citations.
func (m *Markdown) Message(msg model.ChatMessage) string {
	var b strings.Builder
	if msg.Role == model.RoleUser {
		b.WriteString(userStyle.Render("You"))
		b.WriteString("\n")
		b.WriteString(msg.Content)
	} else {
		b.WriteString(botStyle.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.Render(msg.Content))
	}
	if src := Sources(msg.Sources); src != "" {
		b.WriteString("\n")
		b.WriteString(src)
	}
	return b.String()
}

// Transcript renders every message separated by blank lines.
func (m *Markdown) Transcript(messages []model.ChatMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, m.Message(msg))
	}
	return strings.Join(parts, "\n\n")
}
