package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
)

const intentTimeout = 10 * time.Second

// Controller is the set of intents the view forwards (consumer-defined interface)
type Controller interface {
	TogglePause(ctx context.Context) error
	JumpForward(ctx context.Context) error
	JumpBackward(ctx context.Context) error
	BeginScrub(ctx context.Context) error
	Scrub(ctx context.Context, fraction float64) error
	EndScrub(ctx context.Context) error
	SelectAudioTrack(ctx context.Context, index int) error
	SelectSubtitleTrack(ctx context.Context, index int) error
	Stop(ctx context.Context) error
	Touch(ctx context.Context) error
}

// Command factories for controller intents. Each runs off the update loop.

func intentCmd(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			return ErrMsg{Err: err, Context: label}
		}
		return nil
	}
}

// TogglePauseCmd pauses or resumes playback
func TogglePauseCmd(c Controller) tea.Cmd {
	return intentCmd("pause", c.TogglePause)
}

// JumpCmd skips forward or back by the configured jump length
func JumpCmd(c Controller, forward bool) tea.Cmd {
	if forward {
		return intentCmd("jump forward", c.JumpForward)
	}
	return intentCmd("jump back", c.JumpBackward)
}

// ScrubCmd moves the scrub target, entering scrubbing first when needed
func ScrubCmd(c Controller, begin bool, fraction float64) tea.Cmd {
	return intentCmd("scrub", func(ctx context.Context) error {
		if begin {
			if err := c.BeginScrub(ctx); err != nil {
				return err
			}
		}
		return c.Scrub(ctx, fraction)
	})
}

// EndScrubCmd seeks to the scrub target
func EndScrubCmd(c Controller) tea.Cmd {
	return intentCmd("seek", c.EndScrub)
}

// SelectAudioCmd switches to the audio track with the given stream index
func SelectAudioCmd(c Controller, index int) tea.Cmd {
	return intentCmd("audio track", func(ctx context.Context) error {
		return c.SelectAudioTrack(ctx, index)
	})
}

// SelectSubtitleCmd switches to the subtitle track with the given stream index
func SelectSubtitleCmd(c Controller, index int) tea.Cmd {
	return intentCmd("subtitles", func(ctx context.Context) error {
		return c.SelectSubtitleTrack(ctx, index)
	})
}

// StopCmd ends the session
func StopCmd(c Controller) tea.Cmd {
	return intentCmd("stop", c.Stop)
}

// TouchCmd wakes the transport controls
func TouchCmd(c Controller) tea.Cmd {
	return intentCmd("", c.Touch)
}

// nextAudio returns the stream index after current, wrapping around.
func nextAudio(tracks []domain.Track, current int) (int, bool) {
	return nextTrack(tracks, current)
}

// nextSubtitle cycles through selectable subtitles and the disabled entry.
func nextSubtitle(tracks []domain.Track, current int) (int, bool) {
	candidates := []domain.Track{domain.DisabledSubtitleTrack()}
	for _, t := range tracks {
		if t.ID == domain.DisabledSubtitleIndex || !playback.IsEligible(t) {
			continue
		}
		candidates = append(candidates, t)
	}
	return nextTrack(candidates, current)
}

func nextTrack(tracks []domain.Track, current int) (int, bool) {
	if len(tracks) == 0 {
		return 0, false
	}
	for i, t := range tracks {
		if t.ID == current {
			next := tracks[(i+1)%len(tracks)]
			return next.ID, next.ID != current
		}
	}
	return tracks[0].ID, true
}
