// Package tui is the terminal now-playing view. It renders the controller's
// derived status and forwards key presses as intents; it holds no playback
// state of its own beyond a pending scrub target.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/kinocast/internal/playback"
)

const (
	scrubStep    = 0.01
	errorDisplay = 5 * time.Second
)

// Model is the now-playing view
type Model struct {
	controller Controller
	observer   *StatusObserver
	keys       KeyMap
	help       help.Model

	Title  string
	Device string

	status    playback.Status
	started   bool
	scrubbing bool
	scrub     float64

	err   error
	errAt time.Time
	now   func() time.Time

	Width    int
	Ready    bool
	ShowHelp bool
	quitting bool
}

// NewModel creates the view. title and device label the header.
func NewModel(controller Controller, observer *StatusObserver, title, device string) Model {
	return Model{
		controller: controller,
		observer:   observer,
		keys:       Keys,
		help:       help.New(),
		Title:      title,
		Device:     device,
		status:     playback.Status{State: playback.StateIdle},
		now:        time.Now,
	}
}

// Init starts listening for status updates
func (m Model) Init() tea.Cmd {
	return m.observer.Listen()
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.help.Width = msg.Width
		m.Ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case StatusMsg:
		return m.handleStatus(msg.Status)

	case statusClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case ErrMsg:
		if msg.Context == "" {
			return m, nil
		}
		if msg.Context == "scrub" {
			m.scrubbing = false
		}
		m.err = msg
		m.errAt = m.now()
		return m, nil
	}

	return m, nil
}

func (m Model) handleStatus(st playback.Status) (tea.Model, tea.Cmd) {
	m.status = st
	if st.State != playback.StateScrubbing && st.State != playback.StatePaused {
		m.scrubbing = false
	}

	switch st.State {
	case playback.StateNegotiating, playback.StateLoading, playback.StatePlaying,
		playback.StatePaused, playback.StateScrubbing:
		m.started = true
	case playback.StateStopped, playback.StateErrored, playback.StateIdle:
		if m.started {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, m.observer.Listen()
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Sequence(StopCmd(m.controller), tea.Quit)

	case key.Matches(msg, m.keys.Help):
		m.ShowHelp = !m.ShowHelp
		m.help.ShowAll = m.ShowHelp
		return m, TouchCmd(m.controller)

	case key.Matches(msg, m.keys.TogglePause):
		return m, TogglePauseCmd(m.controller)

	case key.Matches(msg, m.keys.JumpForward):
		return m, JumpCmd(m.controller, true)

	case key.Matches(msg, m.keys.JumpBackward):
		return m, JumpCmd(m.controller, false)

	case key.Matches(msg, m.keys.ScrubForward):
		return m.nudge(scrubStep)

	case key.Matches(msg, m.keys.ScrubBack):
		return m.nudge(-scrubStep)

	case key.Matches(msg, m.keys.Commit):
		if !m.scrubbing {
			return m, TouchCmd(m.controller)
		}
		m.scrubbing = false
		return m, EndScrubCmd(m.controller)

	case key.Matches(msg, m.keys.Stop):
		return m, StopCmd(m.controller)

	case key.Matches(msg, m.keys.CycleAudio):
		if next, ok := nextAudio(m.status.AudioTracks, m.status.AudioIndex); ok {
			return m, SelectAudioCmd(m.controller, next)
		}
		return m, TouchCmd(m.controller)

	case key.Matches(msg, m.keys.CycleSubtitles):
		if next, ok := nextSubtitle(m.status.SubtitleTracks, m.status.SubtitleIndex); ok {
			return m, SelectSubtitleCmd(m.controller, next)
		}
		return m, TouchCmd(m.controller)
	}

	return m, TouchCmd(m.controller)
}

// nudge moves the scrub target, entering scrubbing on the first nudge.
func (m Model) nudge(delta float64) (tea.Model, tea.Cmd) {
	begin := !m.scrubbing
	if begin {
		m.scrubbing = true
		m.scrub = m.status.Position
	}
	m.scrub = clamp01(m.scrub + delta)
	return m, ScrubCmd(m.controller, begin, m.scrub)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
