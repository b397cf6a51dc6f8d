package jellyfin

import (
	"strconv"
	"strings"

	"github.com/mmcdole/kinocast/internal/domain"
)

// mapDeviceProfile converts a domain device profile to its wire form
func mapDeviceProfile(p domain.DeviceProfile) DeviceProfile {
	out := DeviceProfile{
		MaxStreamingBitrate:              p.MaxStreamingBitrate,
		MaxStaticBitrate:                 p.MaxStaticBitrate,
		MusicStreamingTranscodingBitrate: p.MusicTranscodingBitrate,
		DirectPlayProfiles:               make([]DirectPlayProfile, 0, len(p.DirectPlayProfiles)),
		TranscodingProfiles:              make([]TranscodingProfile, 0, len(p.TranscodingProfiles)),
		ContainerProfiles:                []DirectPlayProfile{},
		CodecProfiles:                    make([]CodecProfile, 0, len(p.CodecProfiles)),
		SubtitleProfiles:                 make([]SubtitleProfile, 0, len(p.SubtitleProfiles)),
		ResponseProfiles:                 make([]ResponseProfile, 0, len(p.ResponseProfiles)),
	}

	for _, d := range p.DirectPlayProfiles {
		out.DirectPlayProfiles = append(out.DirectPlayProfiles, DirectPlayProfile{
			Container:  d.Container,
			Type:       d.MediaType,
			AudioCodec: strings.Join(d.AudioCodecs, ","),
			VideoCodec: strings.Join(d.VideoCodecs, ","),
		})
	}

	for _, t := range p.TranscodingProfiles {
		out.TranscodingProfiles = append(out.TranscodingProfiles, TranscodingProfile{
			Container:           t.Container,
			Type:                t.MediaType,
			AudioCodec:          strings.Join(t.AudioCodecs, ","),
			VideoCodec:          strings.Join(t.VideoCodecs, ","),
			Context:             t.Context,
			Protocol:            t.Protocol,
			MaxAudioChannels:    strconv.Itoa(t.MaxAudioChannels),
			MinSegments:         t.MinSegments,
			BreakOnNonKeyFrames: t.BreakOnNonKeyFrames,
		})
	}

	for _, c := range p.CodecProfiles {
		conds := make([]ProfileCondition, 0, len(c.Conditions))
		for _, cond := range c.Conditions {
			conds = append(conds, ProfileCondition{
				Condition:  cond.Condition,
				Property:   cond.Property,
				Value:      cond.Value,
				IsRequired: cond.IsRequired,
			})
		}
		out.CodecProfiles = append(out.CodecProfiles, CodecProfile{
			Type:       c.MediaType,
			Codec:      c.Codec,
			Conditions: conds,
		})
	}

	for _, s := range p.SubtitleProfiles {
		out.SubtitleProfiles = append(out.SubtitleProfiles, SubtitleProfile{
			Format: s.Format,
			Method: string(s.Method),
		})
	}

	for _, r := range p.ResponseProfiles {
		out.ResponseProfiles = append(out.ResponseProfiles, ResponseProfile{
			Type:      r.MediaType,
			Container: r.Container,
			MimeType:  r.MimeType,
		})
	}

	return out
}

// mapMediaSources converts Jellyfin media sources to domain sources
func mapMediaSources(sources []MediaSource) []domain.MediaSource {
	out := make([]domain.MediaSource, 0, len(sources))
	for _, src := range sources {
		streams := make([]domain.MediaStream, 0, len(src.MediaStreams))
		for _, s := range src.MediaStreams {
			streams = append(streams, mapMediaStream(s))
		}
		out = append(out, domain.MediaSource{
			ID:                   src.ID,
			ETag:                 src.ETag,
			Container:            src.Container,
			RunTimeTicks:         domain.Ticks(src.RunTimeTicks),
			SupportsDirectPlay:   src.SupportsDirectPlay,
			SupportsDirectStream: src.SupportsDirectStream,
			TranscodingURL:       src.TranscodingURL,
			Streams:              streams,
		})
	}
	return out
}

func mapMediaStream(s MediaStream) domain.MediaStream {
	title := s.DisplayTitle
	if title == "" {
		title = s.Title
	}
	return domain.MediaStream{
		Type:           domain.StreamType(s.Type),
		Index:          s.Index,
		Codec:          s.Codec,
		Language:       s.Language,
		DisplayTitle:   title,
		IsDefault:      s.IsDefault,
		IsForced:       s.IsForced,
		IsExternal:     s.IsExternal,
		DeliveryMethod: domain.DeliveryMethod(s.DeliveryMethod),
		DeliveryURL:    s.DeliveryURL,
	}
}

// newPlaybackReport is the single place where report state becomes a request body
func newPlaybackReport(state domain.SessionReportState, event domain.ProgressEvent) PlaybackReport {
	return PlaybackReport{
		ItemID:                 state.ItemID,
		MediaSourceID:          state.MediaSourceID,
		PlaySessionID:          state.PlaySessionID,
		PlayMethod:             string(state.PlayMethod),
		PositionTicks:          int64(state.PositionTicks),
		PlaybackStartTimeTicks: int64(state.PlaybackStartTimeTicks),
		IsPaused:               state.IsPaused,
		IsMuted:                state.IsMuted,
		VolumeLevel:            state.VolumeLevel,
		AudioStreamIndex:       state.AudioStreamIndex,
		SubtitleStreamIndex:    state.SubtitleStreamIndex,
		CanSeek:                state.CanSeek,
		EventName:              string(event),
	}
}
