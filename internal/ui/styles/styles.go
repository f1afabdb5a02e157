// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#CCCCCC"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#696969"}
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	BorderFocusColor   = lipgloss.AdaptiveColor{Light: "#1A5276", Dark: "#3498DB"}

	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#B7950B", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF8787"}

	TabActiveBgColor = lipgloss.AdaptiveColor{Light: "#3498DB", Dark: "#1A5276"}
)

var (
	TabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(TextMutedColor)

	TabActiveStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(TabActiveBgColor)

	StatusBarStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	RunningStyle  = lipgloss.NewStyle().Foreground(StatusSuccessColor)
	DetachedStyle = lipgloss.NewStyle().Foreground(StatusWarningColor)
	ErrorStyle    = lipgloss.NewStyle().Foreground(StatusErrorColor)

	PromptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)

	EmptyStateStyle = lipgloss.NewStyle().
			Foreground(TextMutedColor).
			Italic(true)
)
