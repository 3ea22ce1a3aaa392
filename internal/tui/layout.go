package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/pengelbrecht/runtask/internal/api"
)

// Layout constants
const (
	minWidth  = 20
	minHeight = 3
)

// Color palette
var (
	primaryColor   = lipgloss.Color("205") // Pink
	secondaryColor = lipgloss.Color("86")  // Cyan
	mutedColor     = lipgloss.Color("241") // Gray
	successColor   = lipgloss.Color("78")  // Green
	warningColor   = lipgloss.Color("214") // Orange
	errorColor     = lipgloss.Color("196") // Red
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	taskIDStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	outputPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
)

// statusColor maps a task status to its badge color.
func statusColor(status string) lipgloss.Color {
	switch {
	case status == api.StatusSuccess:
		return successColor
	case api.IsContinuation(status):
		return warningColor
	default:
		return errorColor
	}
}

// renderStatusBadge renders the status badge. Unknown status has no badge.
func renderStatusBadge(status string) string {
	if status == "" || status == api.StatusUnknown {
		return ""
	}
	return badgeStyle.Foreground(statusColor(status)).Render(status)
}

// renderHeader renders the title line with the polling indicator and badge.
func (m Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "task"
	}
	left := titleStyle.Render("▶ runtask: "+title) + " " + taskIDStyle.Render("#"+m.taskID.String())

	var indicator string
	switch {
	case m.polling:
		indicator = m.spinner.View() + " polling"
	case m.outcome != nil && m.outcome.Stopped:
		indicator = stoppedStyle.Render("■ STOPPED")
	}
	right := strings.TrimSpace(indicator + " " + renderStatusBadge(m.status))

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return headerStyle.Render(left + strings.Repeat(" ", padding) + right)
}

// renderOutputPanel renders the bordered task output.
func (m Model) renderOutputPanel() string {
	return outputPanelStyle.
		Width(m.viewport.Width).
		Render(m.viewport.View())
}

// renderFooter renders key help, or the start error if there is one.
func (m Model) renderFooter() string {
	if m.err != nil {
		return footerStyle.Render(errorTextStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return footerStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}

// Help overlay styles
var (
	helpOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(1, 2).
				Background(lipgloss.Color("235"))

	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)
)

// renderHelpOverlay renders the full key help centered on top of background.
func (m Model) renderHelpOverlay(background string) string {
	title := helpTitleStyle.Render("Keyboard Shortcuts")
	content := m.help.FullHelpView(m.keys.FullHelp())
	overlay := helpOverlayStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, content))

	x := (m.width - lipgloss.Width(overlay)) / 2
	y := (m.height - lipgloss.Height(overlay)) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	return placeOverlay(x, y, overlay, background)
}

// placeOverlay places fg on top of bg with its top-left corner at (x, y).
func placeOverlay(x, y int, fg, bg string) string {
	bgLines := strings.Split(bg, "\n")
	fgLines := strings.Split(fg, "\n")

	for len(bgLines) < y+len(fgLines) {
		bgLines = append(bgLines, "")
	}

	for i, fgLine := range fgLines {
		bgLine := bgLines[y+i]
		if w := ansi.StringWidth(bgLine); w < x {
			bgLine += strings.Repeat(" ", x-w)
		}

		before := ansi.Truncate(bgLine, x, "")
		after := ""
		if end := x + ansi.StringWidth(fgLine); ansi.StringWidth(bgLine) > end {
			after = ansi.TruncateLeft(bgLine, end, "")
		}
		bgLines[y+i] = before + fgLine + after
	}

	return strings.Join(bgLines, "\n")
}
