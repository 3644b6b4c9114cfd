package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"imagecompressor/internal/models"
)

func TestModel_ProgressAndDone(t *testing.T) {
	updates := make(chan models.BatchProgress, 2)
	m := NewModel(updates, 75)

	updates <- models.BatchProgress{Current: 1, Total: 4}
	msg := m.Init()()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected a listen command after progress")
	}

	view := m.View()
	if !strings.Contains(view, "Compressed: 1/4") || !strings.Contains(view, "quality:75") {
		t.Errorf("view = %q", view)
	}

	close(updates)
	next, _ = m.Update(cmd())
	m = next.(Model)
	if !m.quitting {
		t.Error("closed channel should quit")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestModel_CtrlC(t *testing.T) {
	m := NewModel(nil, 80)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	if !m.Interrupted() || cmd == nil {
		t.Error("ctrl+c should interrupt and quit")
	}

	m = NewModel(nil, 80)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if next.(Model).Interrupted() {
		t.Error("other keys should be ignored")
	}
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel(nil, 80)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 25})
	m = next.(Model)
	if m.width != 25 {
		t.Errorf("width = %d", m.width)
	}
	if !strings.Contains(m.View(), "["+strings.Repeat(" ", 20)+"]") {
		t.Errorf("narrow window should use minimum bar width: %q", m.View())
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		width int
		ratio float64
		want  string
	}{
		{4, 0, "[    ]"},
		{4, 0.5, "[==  ]"},
		{4, 1, "[====]"},
		{4, 2, "[====]"},
		{4, -1, "[    ]"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.width, tt.ratio); got != tt.want {
			t.Errorf("renderBar(%d, %v) = %q, want %q", tt.width, tt.ratio, got, tt.want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary([]SummaryRow{
		{Label: "Images", Value: "3"},
		{Label: "Space saved", Value: "1.2 MB"},
	})
	for _, want := range []string{"Images", "Space saved", "1.2 MB", "---"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFailures(t *testing.T) {
	if RenderFailures(nil) != "" {
		t.Error("no failures should render nothing")
	}
	out := RenderFailures([]Failure{{Name: "bad.jpg", Err: errors.New("decode failed")}})
	if !strings.Contains(out, "1 image(s) not compressed") || !strings.Contains(out, "bad.jpg") || !strings.Contains(out, "decode failed") {
		t.Errorf("failures = %q", out)
	}
}
