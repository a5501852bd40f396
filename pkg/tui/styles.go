package tui

import "github.com/charmbracelet/lipgloss"

var (
	TextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SubtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	StatusOK = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	StatusError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)
