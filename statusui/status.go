package statusui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tsukinoko-kun/disize"
)

// Status represents a displayable status item in the TUI
type Status interface {
	Render() string
}

// TextStatus displays plain text
type TextStatus struct {
	Text string
}

func (t TextStatus) Render() string {
	return t.Text
}

var (
	barFilledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

const barWidth = 30

// ProgressStatus displays a progress bar
type ProgressStatus struct {
	Label   string
	Current int64
	Total   int64
}

func (p ProgressStatus) Render() string {
	if p.Total <= 0 {
		return fmt.Sprintf("%s: %s", p.Label, formatBytes(p.Current))
	}
	percentage := float64(p.Current) / float64(p.Total) * 100
	filled := min(int(float64(barWidth)*float64(p.Current)/float64(p.Total)), barWidth)

	bar := barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))

	return fmt.Sprintf("%s: [%s] %.1f%% (%s/%s)",
		p.Label, bar, percentage, formatBytes(p.Current), formatBytes(p.Total))
}

// ErrorStatus displays an error message
type ErrorStatus struct {
	Message string
	Err     error
}

func (e ErrorStatus) Render() string {
	if e.Err != nil {
		return errorStyle.Render(fmt.Sprintf("❌ %s: %v", e.Message, e.Err))
	}
	return errorStyle.Render("❌ " + e.Message)
}

// SuccessStatus displays a success message
type SuccessStatus struct {
	Message string
}

func (s SuccessStatus) Render() string {
	return successStyle.Render("✓ " + s.Message)
}

func formatBytes(bytes int64) string {
	if bytes < disize.Kib {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(disize.Kib), 0
	for n := bytes / disize.Kib; n >= disize.Kib; n /= disize.Kib {
		div *= disize.Kib
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
