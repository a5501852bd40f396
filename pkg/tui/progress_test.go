package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mangadex-dl/pkg/downloader"
)

func TestModelRecordsCompletedChapters(t *testing.T) {
	updates := make(chan downloader.Progress)
	m := NewModel(updates, nil)

	next, cmd := m.Update(progressMsg(downloader.Progress{
		ChapterName: "Ch. 1",
		Status:      "complete",
	}))
	m = next.(Model)
	if cmd == nil {
		t.Error("model must keep waiting for updates")
	}
	if len(m.history) != 1 || !strings.Contains(m.history[0], "Ch. 1") {
		t.Errorf("completed chapter missing from history: %v", m.history)
	}
}

func TestModelShowsCurrentProgress(t *testing.T) {
	m := NewModel(nil, nil)
	next, _ := m.Update(progressMsg(downloader.Progress{
		ChapterName: "Ch. 2",
		CurrentPage: 3,
		TotalPages:  10,
		Status:      "downloading",
	}))
	m = next.(Model)

	view := m.View()
	if !strings.Contains(view, "Ch. 2") || !strings.Contains(view, "3/10") {
		t.Errorf("view does not show the in-flight chapter: %q", view)
	}
}

func TestModelQuitsWhenChannelCloses(t *testing.T) {
	m := NewModel(nil, nil)
	_, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("closing the update channel must quit the program")
	}
}

func TestModelInterruptCancels(t *testing.T) {
	var cancelled bool
	m := NewModel(nil, func() { cancelled = true })

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled {
		t.Error("ctrl+c must fire the cancel func")
	}
}
