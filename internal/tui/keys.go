package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the now-playing key bindings
type KeyMap struct {
	// Transport
	TogglePause  key.Binding
	JumpForward  key.Binding
	JumpBackward key.Binding
	ScrubForward key.Binding
	ScrubBack    key.Binding
	Commit       key.Binding
	Stop         key.Binding

	// Tracks
	CycleAudio     key.Binding
	CycleSubtitles key.Binding

	// App
	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		TogglePause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "play/pause"),
		),
		JumpForward: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "jump forward"),
		),
		JumpBackward: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "jump back"),
		),
		ScrubForward: key.NewBinding(
			key.WithKeys("L", "shift+right", "."),
			key.WithHelp("L", "scrub forward"),
		),
		ScrubBack: key.NewBinding(
			key.WithKeys("H", "shift+left", ","),
			key.WithHelp("H", "scrub back"),
		),
		Commit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "seek to scrub"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
		CycleAudio: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "audio track"),
		),
		CycleSubtitles: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "subtitles"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.TogglePause, k.JumpBackward, k.JumpForward, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.TogglePause, k.JumpBackward, k.JumpForward, k.Stop},
		{k.ScrubBack, k.ScrubForward, k.Commit},
		{k.CycleAudio, k.CycleSubtitles},
		{k.Help, k.Quit},
	}
}

// Keys is the global key bindings instance
var Keys = DefaultKeyMap()
