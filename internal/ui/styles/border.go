package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	borderTopLeft     = "╭"
	borderTopRight    = "╮"
	borderBottomLeft  = "╰"
	borderBottomRight = "╯"
	borderHorizontal  = "─"
	borderVertical    = "│"
)

// RenderWithTitleBorder draws a rounded box of the given outer width with
// title set into the top edge: ╭─ Title ────╮. Content lines wider than the
// box are truncated.
func RenderWithTitleBorder(content, title string, width int, focused bool) string {
	var borderColor lipgloss.TerminalColor = BorderDefaultColor
	if focused {
		borderColor = BorderFocusColor
	}
	border := lipgloss.NewStyle().Foreground(borderColor)

	inner := width - 2
	if inner < 1 {
		inner = 1
	}

	var b strings.Builder
	b.WriteString(topBorder(title, inner, border))
	for _, line := range strings.Split(content, "\n") {
		line = TruncateString(line, inner)
		if pad := inner - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		b.WriteString("\n")
		b.WriteString(border.Render(borderVertical) + line + border.Render(borderVertical))
	}
	b.WriteString("\n")
	b.WriteString(border.Render(borderBottomLeft + strings.Repeat(borderHorizontal, inner) + borderBottomRight))
	return b.String()
}

func topBorder(title string, inner int, border lipgloss.Style) string {
	// "─ " + title + " " needs at least 4 cells
	if title == "" || inner < 4 {
		return border.Render(borderTopLeft + strings.Repeat(borderHorizontal, inner) + borderTopRight)
	}

	title = TruncateString(title, inner-4)
	rest := inner - 3 - lipgloss.Width(title)
	if rest < 0 {
		rest = 0
	}
	return border.Render(borderTopLeft+borderHorizontal+" ") +
		PromptTitleStyle.Render(title) +
		border.Render(" "+strings.Repeat(borderHorizontal, rest)+borderTopRight)
}

// TruncateString cuts s to maxWidth cells, ending in "..." when shortened.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if ansi.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return strings.Repeat(".", maxWidth)
	}
	return ansi.Truncate(s, maxWidth, "...")
}
