package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"imagecompressor/internal/models"
)

// Model renders batch progress received on a channel. Closing the channel
// ends the program.
type Model struct {
	updates     <-chan models.BatchProgress
	quality     int
	started     time.Time
	width       int
	progress    models.BatchProgress
	quitting    bool
	interrupted bool
}

type doneMsg struct{}

type progressMsg models.BatchProgress

func NewModel(updates <-chan models.BatchProgress, quality int) Model {
	return Model{updates: updates, quality: quality, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForProgress(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.progress = models.BatchProgress(msg)
		return m, listenForProgress(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

// Interrupted reports whether the user quit before the batch finished
func (m Model) Interrupted() bool {
	return m.interrupted
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = min(60, m.width-10)
		barWidth = max(barWidth, 20)
	}

	ratio := 0.0
	if m.progress.Total > 0 {
		ratio = min(1, float64(m.progress.Current)/float64(m.progress.Total))
	}

	lines := []string{
		titleStyle.Render("imagecompressor"),
		labelStyle.Render(fmt.Sprintf("Compressed: %d/%d", m.progress.Current, m.progress.Total)) +
			dimStyle.Render(fmt.Sprintf("  quality:%d", m.quality)),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", time.Since(m.started).Round(time.Millisecond))),
		barStyle.Render(renderBar(barWidth, ratio)),
	}
	return strings.Join(lines, "\n")
}

func listenForProgress(updates <-chan models.BatchProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return progressMsg(p)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(ratio*float64(width) + 0.5)
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
