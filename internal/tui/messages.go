package tui

import "github.com/mmcdole/kinocast/internal/playback"

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// StatusMsg carries a controller status update
type StatusMsg struct {
	Status playback.Status
}

// statusClosedMsg signals that no more status updates will arrive
type statusClosedMsg struct{}
