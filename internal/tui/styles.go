package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f8fafc"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#cbd5e1"))
	badgeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e2e8f0")).Background(lipgloss.Color("#334155")).Padding(0, 1)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#34d399"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24"))
	alertStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fb7185"))
	winStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f172a")).Background(lipgloss.Color("#34d399")).Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
	selectedCardStyle = cardStyle.BorderForeground(lipgloss.Color("#10b981"))

	buttonStyle         = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#cbd5e1")).Background(lipgloss.Color("#1e293b"))
	buttonDoneStyle     = buttonStyle.Foreground(lipgloss.Color("#0f172a")).Background(lipgloss.Color("#34d399"))
	buttonInFlightStyle = buttonStyle.Foreground(lipgloss.Color("#64748b"))
	buttonFocusStyle    = lipgloss.NewStyle().Underline(true)
)
