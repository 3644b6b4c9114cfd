package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type SummaryRow struct {
	Label string
	Value string
}

// RenderSummary draws rows as a two-column table
func RenderSummary(rows []SummaryRow) string {
	labelWidth, valueWidth := 0, 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}
	for _, row := range rows {
		label := labelStyle.Width(labelWidth).Render(row.Label)
		value := valueStyle.Width(valueWidth).Render(row.Value)
		lines = append(lines, fmt.Sprintf("%s | %s", label, value))
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

type Failure struct {
	Name string
	Err  error
}

// RenderFailures lists images that were left uncompressed
func RenderFailures(failures []Failure) string {
	if len(failures) == 0 {
		return ""
	}
	lines := []string{warnStyle.Render(fmt.Sprintf("%d image(s) not compressed:", len(failures)))}
	for _, f := range failures {
		lines = append(lines, "  "+labelStyle.Render(f.Name)+dimStyle.Render(": ")+errorStyle.Render(f.Err.Error()))
	}
	return strings.Join(lines, "\n")
}
