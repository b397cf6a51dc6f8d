package playback

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/kinocast/internal/domain"
)

// SubtitleClass describes how a subtitle stream can be shown.
type SubtitleClass int

const (
	// SubtitleEmbedded is muxed into the stream and toggled by the engine.
	SubtitleEmbedded SubtitleClass = iota
	// SubtitleExternal is fetched as a sidecar file.
	SubtitleExternal
	// SubtitleBurnedIn is composited into the video by the server.
	SubtitleBurnedIn
	// SubtitleIgnored cannot be delivered (unsupported codec or missing sidecar).
	SubtitleIgnored
)

func (c SubtitleClass) String() string {
	switch c {
	case SubtitleEmbedded:
		return "embedded"
	case SubtitleExternal:
		return "external"
	case SubtitleBurnedIn:
		return "burned-in"
	default:
		return "ignored"
	}
}

// ClassifySubtitle maps a subtitle stream's delivery method to a SubtitleClass.
func ClassifySubtitle(s domain.MediaStream) SubtitleClass {
	switch s.DeliveryMethod {
	case domain.DeliveryEncode:
		return SubtitleBurnedIn
	case domain.DeliveryDrop:
		return SubtitleIgnored
	case domain.DeliveryExternal, domain.DeliveryHLS:
		if s.DeliveryURL == "" {
			return SubtitleIgnored
		}
		return SubtitleExternal
	case domain.DeliveryEmbed:
		return SubtitleEmbedded
	}
	if s.IsExternal {
		if s.DeliveryURL == "" {
			return SubtitleIgnored
		}
		return SubtitleExternal
	}
	return SubtitleEmbedded
}

// IsEligible reports whether a track can be toggled independently.
// Burned-in and dropped subtitles are part of the video or absent.
func IsEligible(t domain.Track) bool {
	return t.Delivery != domain.DeliveryEncode && t.Delivery != domain.DeliveryDrop
}

// TrackSelector picks initial audio and subtitle tracks.
type TrackSelector struct {
	subtitleLanguage string
}

// NewTrackSelector creates a selector. An empty preferred subtitle language
// leaves subtitles disabled unless the source flags a default or forced track.
func NewTrackSelector(preferredSubtitleLanguage string) TrackSelector {
	return TrackSelector{subtitleLanguage: strings.TrimSpace(preferredSubtitleLanguage)}
}

// SelectDefaults returns the initial audio and subtitle stream indexes.
// Audio: the track flagged default, else the first audio track, else -1.
// Subtitle: an eligible default or forced track, else the closest match for the
// preferred language, else DisabledSubtitleIndex.
func (s TrackSelector) SelectDefaults(tracks []domain.Track) (audioIndex, subtitleIndex int) {
	audioIndex = -1
	subtitleIndex = domain.DisabledSubtitleIndex

	var firstAudio = -1
	var subtitles []domain.Track
	for _, t := range tracks {
		switch t.Kind {
		case domain.StreamTypeAudio:
			if firstAudio < 0 {
				firstAudio = t.ID
			}
			if t.Default && audioIndex < 0 {
				audioIndex = t.ID
			}
		case domain.StreamTypeSubtitle:
			if t.ID != domain.DisabledSubtitleIndex && IsEligible(t) {
				subtitles = append(subtitles, t)
			}
		}
	}
	if audioIndex < 0 {
		audioIndex = firstAudio
	}

	for _, t := range subtitles {
		if t.Default || t.Forced {
			return audioIndex, t.ID
		}
	}

	if idx, ok := s.matchLanguage(subtitles); ok {
		subtitleIndex = idx
	}
	return audioIndex, subtitleIndex
}

// matchLanguage ranks subtitle tracks against the preferred language using
// their language code and display name.
func (s TrackSelector) matchLanguage(subtitles []domain.Track) (int, bool) {
	if s.subtitleLanguage == "" || len(subtitles) == 0 {
		return 0, false
	}

	type candidate struct {
		id       int
		distance int
	}
	var found []candidate
	for _, t := range subtitles {
		best := -1
		for _, ranked := range fuzzy.RankFindFold(s.subtitleLanguage, []string{t.Language, t.Name}) {
			if best < 0 || ranked.Distance < best {
				best = ranked.Distance
			}
		}
		if best >= 0 {
			found = append(found, candidate{id: t.ID, distance: best})
		}
	}
	if len(found) == 0 {
		return 0, false
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].distance < found[j].distance })
	return found[0].id, true
}
