package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/kinocast/internal/playback"
)

// StatusObserver adapts the controller's OnUpdate hook to Bubble Tea. Only
// the newest status is kept; Observe never blocks.
type StatusObserver struct {
	ch        chan playback.Status
	done      chan struct{}
	closeOnce sync.Once
}

// NewStatusObserver creates a new status observer.
func NewStatusObserver() *StatusObserver {
	return &StatusObserver{
		ch:   make(chan playback.Status, 1),
		done: make(chan struct{}),
	}
}

// Observe records a status, replacing one that has not been read yet.
func (o *StatusObserver) Observe(st playback.Status) {
	for {
		select {
		case o.ch <- st:
			return
		default:
		}
		select {
		case <-o.ch:
		default:
		}
	}
}

// Close ends the stream of updates.
func (o *StatusObserver) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Listen returns a command that waits for the next status.
func (o *StatusObserver) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-o.ch:
			return StatusMsg{Status: st}
		case <-o.done:
			return statusClosedMsg{}
		}
	}
}
