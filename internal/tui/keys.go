package tui

import "github.com/charmbracelet/bubbles/key"

// viewerKeys groups the viewer's bindings into polling control and output
// navigation. Line and page scrolling is handled by the viewport; the
// navigation bindings here mirror its keys so the help overlay lists them.
type viewerKeys struct {
	// polling control
	Quit    key.Binding
	Stop    key.Binding
	Restart key.Binding
	Help    key.Binding

	// output navigation
	LineUp   key.Binding
	LineDown key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

func newViewerKeys() viewerKeys {
	return viewerKeys{
		Quit:    bind("q", "leave viewer", "q", "ctrl+c"),
		Stop:    bind("s", "stop following", "s"),
		Restart: bind("r", "follow again", "r"),
		Help:    bind("?", "keys", "?"),

		LineUp:   bind("k/↑", "older line", "k", "up"),
		LineDown: bind("j/↓", "newer line", "j", "down"),
		PageUp:   bind("PgUp", "older page", "pgup", "ctrl+u"),
		PageDown: bind("PgDn", "newer page", "pgdown", "ctrl+d"),
		Top:      bind("g", "first line", "g", "home"),
		Bottom:   bind("G", "latest line", "G", "end"),
	}
}

// ShortHelp is the footer line.
func (k viewerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Stop, k.Restart, k.Bottom, k.Help, k.Quit}
}

// FullHelp is the ? overlay: polling control, then navigation.
func (k viewerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Stop, k.Restart, k.Help, k.Quit},
		{k.LineUp, k.LineDown, k.PageUp, k.PageDown, k.Top, k.Bottom},
	}
}
