// Package ui renders docchat's terminal output: plain listings for the
// one-shot commands and Bubble Tea programs for chat and upload progress.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).PaddingLeft(2)
)

func documentStatusStyle(s model.DocumentStatus) lipgloss.Style {
	switch s {
	case model.StatusProcessed:
		return successStyle
	case model.StatusFailed:
		return errorStyle
	case model.StatusDeleted:
		return mutedStyle
	default:
		return warningStyle
	}
}

func fileStatusStyle(s docchat.FileStatus) lipgloss.Style {
	switch s {
	case docchat.FileCompleted:
		return successStyle
	case docchat.FileError:
		return errorStyle
	case docchat.FileSkipped:
		return mutedStyle
	default:
		return warningStyle
	}
}

// fileStatusIcon is the glyph shown next to a file in the upload list.
func fileStatusIcon(s docchat.FileStatus) string {
	switch s {
	case docchat.FileCompleted:
		return "✓"
	case docchat.FileError:
		return "✗"
	case docchat.FileSkipped:
		return "-"
	case docchat.FileUploading:
		return "↑"
	default:
		return "·"
	}
}
