package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestRenderWithTitleBorder_Basic(t *testing.T) {
	result := RenderWithTitleBorder("journalctl -f", "What is the command to run?", 40, true)

	lines := strings.Split(result, "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "What is the command to run?")
	require.Contains(t, lines[1], "journalctl -f")
	for _, line := range lines {
		require.Equal(t, 40, lipgloss.Width(line))
	}
}

func TestRenderWithTitleBorder_LongTitleAndContent(t *testing.T) {
	result := RenderWithTitleBorder(strings.Repeat("x", 100), strings.Repeat("T", 100), 20, false)

	for _, line := range strings.Split(result, "\n") {
		require.Equal(t, 20, lipgloss.Width(line))
	}
	require.Contains(t, result, "...")
}

func TestRenderWithTitleBorder_Narrow(t *testing.T) {
	result := RenderWithTitleBorder("", "Title", 4, false)
	require.NotContains(t, strings.Split(result, "\n")[0], "Title")
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "hello", TruncateString("hello", 10))
	require.Equal(t, "hel...", TruncateString("hello world", 6))
	require.Equal(t, "..", TruncateString("hello", 2))
	require.Empty(t, TruncateString("hello", 0))
}
