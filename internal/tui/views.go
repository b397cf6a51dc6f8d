package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
	"github.com/mmcdole/kinocast/internal/tui/styles"
)

const (
	minBarWidth = 10
	maxBarWidth = 80
)

// View renders the now-playing screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.Ready {
		return "Loading..."
	}

	st := m.status
	lines := []string{
		m.renderHeader(st),
		styles.TitleStyle.Render(m.title(st)),
		m.renderProgress(st),
	}

	if st.ControlsVisible || st.State == playback.StatePaused || st.State == playback.StateScrubbing {
		lines = append(lines, m.renderTracks(st))
	}
	if st.Buffering {
		lines = append(lines, styles.WarningStyle.Render("buffering..."))
	}
	if e := m.renderError(st); e != "" {
		lines = append(lines, e)
	}

	body := styles.PanelBorder.Width(m.panelWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	if !st.ControlsVisible && !m.ShowHelp {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.help.View(m.keys))
}

func (m Model) title(st playback.Status) string {
	if m.Title != "" {
		return m.Title
	}
	if st.ItemID != "" {
		return st.ItemID
	}
	return "Nothing playing"
}

func (m Model) renderHeader(st playback.Status) string {
	parts := []string{stateIcon(st) + " " + stateLabel(st.State)}

	dest := string(st.Destination)
	if st.Destination == domain.DestinationRemote && m.Device != "" {
		dest = m.Device
	}
	if dest != "" {
		parts = append(parts, styles.SubtitleStyle.Render(dest))
	}
	if st.PlayMethod != "" {
		parts = append(parts, styles.BadgeStyle.Render(string(st.PlayMethod)))
	}
	return strings.Join(parts, styles.DimStyle.Render(" · "))
}

func (m Model) renderProgress(st playback.Status) string {
	elapsed := formatDuration(st.Elapsed)
	remaining := "-" + formatDuration(st.Remaining)
	width := m.panelWidth() - lipgloss.Width(elapsed) - lipgloss.Width(remaining) - 2
	width = max(minBarWidth, min(width, maxBarWidth))

	return elapsed + " " + renderBar(st.Position, width, st.State == playback.StateScrubbing) + " " + remaining
}

func (m Model) renderTracks(st playback.Status) string {
	audio := "none"
	for _, t := range st.AudioTracks {
		if t.ID == st.AudioIndex {
			audio = t.Name
		}
	}
	subtitles := "off"
	for _, t := range st.SubtitleTracks {
		if t.ID == st.SubtitleIndex && t.ID != domain.DisabledSubtitleIndex {
			subtitles = t.Name
		}
	}
	return styles.DimStyle.Render("Audio: ") + audio + "   " + styles.DimStyle.Render("Subtitles: ") + subtitles
}

func (m Model) renderError(st playback.Status) string {
	if st.State == playback.StateErrored && st.Err != nil {
		return styles.ErrorStyle.Render(st.Err.Error())
	}
	if m.err != nil && m.now().Sub(m.errAt) < errorDisplay {
		return styles.ErrorStyle.Render(m.err.Error())
	}
	return ""
}

func (m Model) panelWidth() int {
	w := m.Width - 4
	if w < minBarWidth+20 {
		return minBarWidth + 20
	}
	return w
}

func renderBar(position float64, width int, scrubbing bool) string {
	filled := int(clamp01(position) * float64(width-1))
	fill := styles.BarFilledStyle
	if scrubbing {
		fill = styles.BarScrubStyle
	}
	return fill.Render(strings.Repeat(styles.BarFilledChar, filled)+styles.BarHeadChar) +
		styles.BarEmptyStyle.Render(strings.Repeat(styles.BarEmptyChar, width-1-filled))
}

func stateIcon(st playback.Status) string {
	switch {
	case st.Buffering:
		return styles.BufferingIcon
	case st.State == playback.StatePlaying:
		return styles.PlayingIcon
	case st.State == playback.StatePaused, st.State == playback.StateScrubbing:
		return styles.PausedIcon
	case st.State == playback.StateErrored:
		return styles.ErrorIcon
	default:
		return styles.StoppedIcon
	}
}

func stateLabel(s playback.State) string {
	switch s {
	case playback.StateNegotiating:
		return "Negotiating"
	case playback.StateLoading:
		return "Loading"
	case playback.StatePlaying:
		return "Playing"
	case playback.StatePaused:
		return "Paused"
	case playback.StateScrubbing:
		return "Seeking"
	case playback.StateStopped:
		return "Stopped"
	case playback.StateErrored:
		return "Error"
	default:
		return "Idle"
	}
}

// formatDuration renders h:mm:ss, or m:ss under an hour.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
