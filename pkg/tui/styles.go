package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorError   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#8a9199", Dark: "#5c6773"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#a37acc", Dark: "#d2a6ff"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	BreadcrumbStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	RowStyle = lipgloss.NewStyle()

	DisabledStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Faint(true)

	ValueStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	DefaultValueStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	WarningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	PromptStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
)
