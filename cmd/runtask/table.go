package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pengelbrecht/runtask/internal/api"
)

var (
	headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	borderStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)

	statusStyles = map[string]lipgloss.Style{
		api.StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		api.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		api.StatusReady:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		api.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
	failedStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// renderTable writes a bordered table with one header row.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

// renderFields writes label/value pairs, one per line.
func renderFields(w io.Writer, fields [][2]string) {
	for _, f := range fields {
		fmt.Fprintln(w, labelStyle.Render(f[0])+f[1])
	}
}

func styleStatus(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.Render(status)
	}
	return failedStatusStyle.Render(status)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
