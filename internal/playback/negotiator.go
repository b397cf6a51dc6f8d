package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/metrics"
)

// PlaybackInfoAPI is the server call the negotiator depends on.
type PlaybackInfoAPI interface {
	PlaybackInfo(ctx context.Context, req domain.PlaybackInfoRequest) (*domain.PlaybackInfo, error)
}

// NegotiateRequest carries the inputs of one negotiation attempt.
type NegotiateRequest struct {
	ItemID     string
	StartTicks domain.Ticks
	Profile    domain.DeviceProfile
}

// Negotiator resolves a playback plan for an item.
type Negotiator struct {
	api      PlaybackInfoAPI
	creds    domain.Credentials
	selector TrackSelector
	logger   *slog.Logger
}

// NewNegotiator creates a negotiator bound to one set of credentials.
func NewNegotiator(api PlaybackInfoAPI, creds domain.Credentials, selector TrackSelector, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{
		api:      api,
		creds:    creds,
		selector: selector,
		logger:   logger,
	}
}

// Negotiate asks the server how to play an item and builds the plan.
// Every failure is a *domain.NegotiationError; the caller must start over.
func (n *Negotiator) Negotiate(ctx context.Context, req NegotiateRequest) (*domain.PlaybackPlan, error) {
	plan, err := n.negotiate(ctx, req)
	if err != nil {
		metrics.RecordNegotiation("failure")
		n.logger.Warn("negotiation failed", "item_id", req.ItemID, "error", err)
		return nil, err
	}
	metrics.RecordNegotiation(string(plan.PlayMethod))
	n.logger.Info("negotiated playback",
		"item_id", plan.ItemID,
		"play_session_id", plan.PlaySessionID,
		"play_method", plan.PlayMethod,
		"audio_tracks", len(plan.AudioTracks),
		"subtitle_tracks", len(plan.SubtitleTracks))
	return plan, nil
}

func (n *Negotiator) negotiate(ctx context.Context, req NegotiateRequest) (*domain.PlaybackPlan, error) {
	info, err := n.api.PlaybackInfo(ctx, domain.PlaybackInfoRequest{
		ItemID:              req.ItemID,
		UserID:              n.creds.UserID,
		StartTicks:          req.StartTicks,
		MaxStreamingBitrate: req.Profile.MaxStreamingBitrate,
		Profile:             req.Profile,
	})
	if err != nil {
		reason := domain.ErrServerUnreachable
		if errors.Is(err, domain.ErrMalformedResponse) {
			reason = domain.ErrNoPlayableSource
		}
		return nil, &domain.NegotiationError{ItemID: req.ItemID, Reason: reason, Err: err}
	}

	if len(info.Sources) == 0 {
		return nil, &domain.NegotiationError{ItemID: req.ItemID, Reason: domain.ErrNoPlayableSource}
	}
	src := info.Sources[0]

	plan := &domain.PlaybackPlan{
		ItemID:        req.ItemID,
		MediaSourceID: src.ID,
		PlaySessionID: info.PlaySessionID,
		RunTimeTicks:  src.RunTimeTicks,
		StartTicks:    req.StartTicks,
	}

	switch {
	case src.TranscodingURL != "":
		plan.PlayMethod = domain.PlayMethodTranscode
		plan.URL = n.transcodeURL(src.TranscodingURL)
		plan.SubtitleTracks = append(plan.SubtitleTracks, domain.DisabledSubtitleTrack())
	default:
		// Without a transcoding URL the source is played as is. Direct stream
		// only when the server says direct play is not possible.
		plan.PlayMethod = domain.PlayMethodDirectPlay
		if src.SupportsDirectStream && !src.SupportsDirectPlay {
			plan.PlayMethod = domain.PlayMethodDirectStream
		}
		plan.URL = n.directURL(req.ItemID, src)
	}

	audio, subtitles := n.tracks(src.Streams)
	plan.AudioTracks = audio
	plan.SubtitleTracks = append(plan.SubtitleTracks, subtitles...)
	plan.DefaultAudioIndex, plan.DefaultSubtitleIndex = n.selector.SelectDefaults(append(append([]domain.Track{}, audio...), subtitles...))

	return plan, nil
}

// tracks walks the source streams once. Burned-in subtitles never become tracks.
func (n *Negotiator) tracks(streams []domain.MediaStream) (audio, subtitles []domain.Track) {
	var audioOrdinal, subtitleOrdinal int
	for _, s := range streams {
		switch s.Type {
		case domain.StreamTypeAudio:
			audioOrdinal++
			audio = append(audio, domain.Track{
				ID:       s.Index,
				Kind:     domain.StreamTypeAudio,
				Name:     trackName(s),
				Language: s.Language,
				Codec:    s.Codec,
				Default:  s.IsDefault,
				Ordinal:  audioOrdinal,
			})

		case domain.StreamTypeSubtitle:
			class := ClassifySubtitle(s)
			if class == SubtitleBurnedIn {
				continue
			}
			t := domain.Track{
				ID:       s.Index,
				Kind:     domain.StreamTypeSubtitle,
				Name:     trackName(s),
				Language: s.Language,
				Codec:    s.Codec,
				Delivery: s.DeliveryMethod,
				Default:  s.IsDefault,
				Forced:   s.IsForced,
			}
			switch class {
			case SubtitleExternal:
				t.URL = n.resolve(s.DeliveryURL)
				if t.Delivery == "" {
					t.Delivery = domain.DeliveryExternal
				}
			case SubtitleEmbedded:
				subtitleOrdinal++
				t.Ordinal = subtitleOrdinal
				if t.Delivery == "" {
					t.Delivery = domain.DeliveryEmbed
				}
			case SubtitleIgnored:
				if t.Delivery == "" {
					t.Delivery = domain.DeliveryDrop
				}
			}
			subtitles = append(subtitles, t)
		}
	}
	return audio, subtitles
}

func trackName(s domain.MediaStream) string {
	if s.DisplayTitle != "" {
		return s.DisplayTitle
	}
	if s.Language != "" {
		return s.Language
	}
	return fmt.Sprintf("Track %d", s.Index)
}

// transcodeURL points the server's HLS URL at the segment playlist.
func (n *Negotiator) transcodeURL(path string) string {
	return n.resolve(strings.Replace(path, "master.m3u8", "main.m3u8", 1))
}

// directURL builds the static byte-range stream URL for direct play.
func (n *Negotiator) directURL(itemID string, src domain.MediaSource) string {
	q := url.Values{}
	q.Set("Static", "true")
	q.Set("mediaSourceId", src.ID)
	q.Set("deviceId", n.creds.DeviceID)
	q.Set("api_key", n.creds.Token)
	q.Set("Tag", src.ETag)
	return fmt.Sprintf("%s/Videos/%s/stream?%s", n.baseURL(), url.PathEscape(itemID), q.Encode())
}

// resolve makes a server-relative path absolute.
func (n *Negotiator) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return n.baseURL() + path
}

func (n *Negotiator) baseURL() string {
	return strings.TrimRight(n.creds.ServerURL, "/")
}
