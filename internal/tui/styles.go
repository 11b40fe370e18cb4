package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// One style per task state, matching the scheduler's state names.
var (
	StyleStatusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	StyleStatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	StyleStatusBlocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	StyleStatusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Chrome styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238"))

	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("63")).
			Foreground(lipgloss.Color("0"))

	StyleHelp = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)
