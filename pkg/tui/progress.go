package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/mangadex-dl/pkg/downloader"
)

type progressMsg downloader.Progress

type doneMsg struct{}

// Model renders live download progress from the downloader's progress
// channel: one line per finished chapter, a bar for the current one.
type Model struct {
	updates <-chan downloader.Progress
	bar     progress.Model

	current downloader.Progress
	history []string
	cancel  func()
}

func NewModel(updates <-chan downloader.Progress, cancel func()) Model {
	return Model{
		updates: updates,
		bar:     progress.New(progress.WithDefaultGradient()),
		cancel:  cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func waitForUpdate(updates <-chan downloader.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return progressMsg(p)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 8
		return m, nil
	case progressMsg:
		p := downloader.Progress(msg)
		switch p.Status {
		case "complete":
			m.history = append(m.history, StatusOK.Render("✓ ")+TextStyle.Render(p.ChapterName))
			m.current = downloader.Progress{}
		case "skipped":
			m.history = append(m.history, SubtleStyle.Render("- "+p.ChapterName+" (already downloaded)"))
			m.current = downloader.Progress{}
		case "error":
			if p.Err != nil {
				m.history = append(m.history, StatusError.Render(fmt.Sprintf("✗ %v", p.Err)))
			}
		default:
			m.current = p
		}
		return m, waitForUpdate(m.updates)
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.current.TotalPages > 0 {
		b.WriteString(TextStyle.Render(fmt.Sprintf(
			"%s  %d/%d pages", m.current.ChapterName, m.current.CurrentPage, m.current.TotalPages,
		)))
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.current.CurrentPage) / float64(m.current.TotalPages)))
		b.WriteString("\n")
	} else if m.current.ChapterName != "" {
		b.WriteString(TextStyle.Render(m.current.ChapterName + "  " + m.current.Status))
		b.WriteString("\n")
	}
	return b.String()
}

// Run displays progress until the channel closes. cancel fires when the
// user interrupts.
func Run(updates <-chan downloader.Progress, cancel func()) error {
	_, err := tea.NewProgram(NewModel(updates, cancel)).Run()
	return err
}
