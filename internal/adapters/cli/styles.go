// Package cli is the terminal front end of the claim intake: cobra commands
// plus lipgloss rendering of the claim view.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

var (
	accentColor  = lipgloss.Color("#2563EB")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(20)

	valueStyle = lipgloss.NewStyle()

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	toastStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warningColor).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(warningColor).
			PaddingLeft(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(1, 2)
)

func priorityStyle(priority string) lipgloss.Style {
	switch priority {
	case domain.PriorityCritical, domain.PriorityHigh:
		return errorStyle.Bold(true)
	case domain.PriorityMedium:
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	case domain.PriorityLow:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true)
	default:
		return valueStyle.Bold(true)
	}
}
