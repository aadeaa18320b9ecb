package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Adaptive colors keep the UI readable on light terminals.
var (
	colorPrimary   = lipgloss.AdaptiveColor{Light: "#B35C00", Dark: "#FFA94D"}
	colorSecondary = lipgloss.AdaptiveColor{Light: "#0B7A75", Dark: "#4FD1C5"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6B6F80"}
	colorSuccess   = lipgloss.AdaptiveColor{Light: "#2B8A3E", Dark: "#69DB7C"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "#C77700", Dark: "#FFD43B"}
	colorError     = lipgloss.AdaptiveColor{Light: "#C92A2A", Dark: "#FF6B6B"}
	colorFg        = lipgloss.AdaptiveColor{Light: "#1F2330", Dark: "#E6E8EF"}
	colorSubtle    = lipgloss.AdaptiveColor{Light: "#D0D3DC", Dark: "#3B3F51"}
	colorHighlight = lipgloss.AdaptiveColor{Light: "#1C7ED6", Dark: "#74C0FC"}
)

// ticketPalette colors ticket bars in the reports chart.
var ticketPalette = []lipgloss.Color{
	"#FFA94D", "#4FD1C5", "#74C0FC", "#FF8787", "#B197FC", "#69DB7C", "#FFD43B",
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.ThickBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1)
	activePanelStyle = panelStyle.
				BorderForeground(colorPrimary)

	// Big clock on the timer view; the color follows the timer state.
	timerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorFg).
			Align(lipgloss.Center)
	timerRunningStyle = timerStyle.Foreground(colorSuccess)
	timerPausedStyle  = timerStyle.Foreground(colorWarning)

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorFg)
	successStyle   = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	highlightStyle = lipgloss.NewStyle().Foreground(colorHighlight)
	submittedStyle = lipgloss.NewStyle().Foreground(colorSecondary)
	closedStyle    = mutedStyle.Strikethrough(true)

	headerStyle = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = mutedStyle.Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorError).
			Padding(0, 1)
	toastStyle = warningStyle.Bold(true)

	selectedItemStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	normalItemStyle   = lipgloss.NewStyle().Foreground(colorFg)
)
