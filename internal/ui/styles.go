package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Header / chrome
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleDim      = lipgloss.NewStyle().Faint(true)
	styleAccent   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true) // blue
	styleBar      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))            // green
	styleBarTrail = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))           // dark gray
	styleHelp     = lipgloss.NewStyle().Faint(true)

	// Log lines
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // light gray
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	styleLocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	styleAttempt = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan

	// Result
	styleCracked = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
)
