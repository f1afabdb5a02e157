package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_NoDuplicateKeys(t *testing.T) {
	km := DefaultKeyMap()
	bindings := map[string]key.Binding{
		"NewCommand": km.NewCommand,
		"CloseDoc":   km.CloseDoc,
		"NextTab":    km.NextTab,
		"PrevTab":    km.PrevTab,
		"Up":         km.Up,
		"Down":       km.Down,
		"PageUp":     km.PageUp,
		"PageDown":   km.PageDown,
		"Top":        km.Top,
		"Bottom":     km.Bottom,
		"ToggleWrap": km.ToggleWrap,
		"Help":       km.Help,
		"Quit":       km.Quit,
	}

	seen := map[string]string{}
	for name, b := range bindings {
		for _, k := range b.Keys() {
			prev, dup := seen[k]
			require.False(t, dup, "key %q bound to both %s and %s", k, prev, name)
			seen[k] = name
		}
	}
}

func TestDefaultKeyMap_HelpText(t *testing.T) {
	km := DefaultKeyMap()
	for _, row := range km.FullHelp() {
		for _, b := range row {
			require.NotEmpty(t, b.Help().Key)
			require.NotEmpty(t, b.Help().Desc)
		}
	}
	require.NotEmpty(t, km.ShortHelp())
}

func TestDefaultKeyMap_CloseDoc(t *testing.T) {
	require.Equal(t, []string{"ctrl+w", "x"}, DefaultKeyMap().CloseDoc.Keys())
}
