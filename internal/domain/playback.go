package domain

import (
	"math"
	"time"
)

// TicksPerSecond is the media server's time unit (100ns).
const TicksPerSecond = 10_000_000

// Ticks is a media position or length in server ticks.
type Ticks int64

// TicksFromDuration converts a duration to ticks.
func TicksFromDuration(d time.Duration) Ticks {
	return Ticks(d / 100)
}

// TicksFromSeconds converts fractional seconds to ticks, rounding to the nearest tick.
func TicksFromSeconds(s float64) Ticks {
	return Ticks(math.Round(s * TicksPerSecond))
}

// Duration converts ticks to a duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * 100
}

// Seconds returns the position in fractional seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / TicksPerSecond
}

// PlayMethod is how the server delivers media for a session.
type PlayMethod string

const (
	PlayMethodDirectPlay   PlayMethod = "DirectPlay"
	PlayMethodDirectStream PlayMethod = "DirectStream"
	PlayMethodTranscode    PlayMethod = "Transcode"
)

// StreamType classifies a media stream.
type StreamType string

const (
	StreamTypeVideo    StreamType = "Video"
	StreamTypeAudio    StreamType = "Audio"
	StreamTypeSubtitle StreamType = "Subtitle"
)

// DeliveryMethod is how a subtitle stream reaches the engine.
type DeliveryMethod string

const (
	DeliveryEmbed    DeliveryMethod = "Embed"
	DeliveryExternal DeliveryMethod = "External"
	DeliveryEncode   DeliveryMethod = "Encode" // burned into the video by the server
	DeliveryHLS      DeliveryMethod = "Hls"
	DeliveryDrop     DeliveryMethod = "Drop" // unsupported codec, server will not deliver it
)

// DisabledSubtitleIndex is the sentinel track id meaning "no subtitles".
const DisabledSubtitleIndex = -1

// MediaStream is one stream inside a media source.
type MediaStream struct {
	Type           StreamType
	Index          int
	Codec          string
	Language       string
	DisplayTitle   string
	IsDefault      bool
	IsForced       bool
	IsExternal     bool
	DeliveryMethod DeliveryMethod
	DeliveryURL    string
}

// MediaSource is the server-chosen source for an item.
type MediaSource struct {
	ID                   string
	ETag                 string
	Container            string
	RunTimeTicks         Ticks
	SupportsDirectPlay   bool
	SupportsDirectStream bool
	TranscodingURL       string
	Streams              []MediaStream
}

// Track is a selectable audio or subtitle track.
type Track struct {
	ID       int // stream index, or DisabledSubtitleIndex
	Kind     StreamType
	Name     string
	Language string
	Codec    string
	Delivery DeliveryMethod
	URL      string // set only for externally delivered subtitles
	Default  bool
	Forced   bool

	// Ordinal is the 1-based position among embedded tracks of the same kind,
	// 0 for external or synthetic tracks.
	Ordinal int
}

// PlaybackPlan is the resolved description of how to play an item.
type PlaybackPlan struct {
	ItemID         string
	MediaSourceID  string
	PlaySessionID  string
	PlayMethod     PlayMethod
	URL            string
	RunTimeTicks   Ticks
	StartTicks     Ticks
	AudioTracks    []Track
	SubtitleTracks []Track

	DefaultAudioIndex    int
	DefaultSubtitleIndex int
}

// AudioTrack returns the audio track with the given stream index.
func (p *PlaybackPlan) AudioTrack(index int) (Track, bool) {
	for _, t := range p.AudioTracks {
		if t.ID == index {
			return t, true
		}
	}
	return Track{}, false
}

// SubtitleTrack returns the subtitle track with the given stream index.
// The disabled sentinel always resolves, even when the plan does not list it.
func (p *PlaybackPlan) SubtitleTrack(index int) (Track, bool) {
	for _, t := range p.SubtitleTracks {
		if t.ID == index {
			return t, true
		}
	}
	if index == DisabledSubtitleIndex {
		return DisabledSubtitleTrack(), true
	}
	return Track{}, false
}

// DisabledSubtitleTrack returns the synthetic "Disabled" subtitle entry.
func DisabledSubtitleTrack() Track {
	return Track{
		ID:   DisabledSubtitleIndex,
		Kind: StreamTypeSubtitle,
		Name: "Disabled",
	}
}

// Credentials identify the user and this client to the media server.
// They are passed explicitly to every component that talks to the server.
type Credentials struct {
	ServerURL  string
	UserID     string
	Token      string
	DeviceID   string
	DeviceName string
}

// ServerIdentity is the public identity of a media server.
type ServerIdentity struct {
	ID      string
	Name    string
	Version string
}

// PlaybackInfoRequest is the negotiation call sent to the server.
type PlaybackInfoRequest struct {
	ItemID              string
	UserID              string
	StartTicks          Ticks
	MaxStreamingBitrate int
	Profile             DeviceProfile
}

// PlaybackInfo is the server's answer to a negotiation call.
type PlaybackInfo struct {
	PlaySessionID string
	Sources       []MediaSource
}
