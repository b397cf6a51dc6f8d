// Package profile builds the device profile sent to the media server during
// playback negotiation.
package profile

import (
	"log/slog"

	"github.com/mmcdole/kinocast/internal/domain"
)

const (
	DefaultMaxStreamingBitrate = 120_000_000
	MaxStaticBitrate           = 100_000_000
	MusicTranscodingBitrate    = 384_000
)

// Tier thresholds for each capability step. A higher step replaces the codec
// set of the lower one; it does not merge with it.
const (
	thresholdBase        = TierLowest
	thresholdHEVC        = TierA10 // HEVC video plus Dolby Digital audio
	thresholdDolbyVision = TierA10X
	thresholdAtmos       = TierA12
)

// Features reports which gated capabilities a tier satisfies.
type Features struct {
	DolbyDigital bool
	HEVC         bool
	DolbyVision  bool
	Atmos        bool
}

// FeaturesFor returns the gated features for a tier.
func FeaturesFor(tier Tier) Features {
	return Features{
		DolbyDigital: tier >= thresholdHEVC,
		HEVC:         tier >= thresholdHEVC,
		DolbyVision:  tier >= thresholdDolbyVision,
		Atmos:        tier >= thresholdAtmos,
	}
}

// Profiler builds device profiles for one piece of hardware.
type Profiler struct {
	hardwareID string
	tier       Tier
}

// New creates a Profiler for a hardware identifier. Unknown identifiers fall
// back to the most conservative tier.
func New(hardwareID string, logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	tier, known := LookupTier(hardwareID)
	if !known {
		logger.Warn("unknown hardware identifier, using lowest capability tier",
			"hardware", hardwareID, "tier", tier.String())
	}
	return &Profiler{hardwareID: hardwareID, tier: tier}
}

// Tier returns the resolved tier.
func (p *Profiler) Tier() Tier { return p.tier }

// HardwareID returns the identifier the profiler was created with.
func (p *Profiler) HardwareID() string { return p.hardwareID }

// BuildProfile returns a fresh device profile for the given bitrate ceiling.
// A ceiling of zero or less selects DefaultMaxStreamingBitrate.
func (p *Profiler) BuildProfile(maxBitrate int) domain.DeviceProfile {
	return BuildProfile(p.tier, maxBitrate)
}

// BuildProfile is the pure form of Profiler.BuildProfile.
func BuildProfile(tier Tier, maxBitrate int) domain.DeviceProfile {
	if maxBitrate <= 0 {
		maxBitrate = DefaultMaxStreamingBitrate
	}
	if tier < thresholdBase {
		tier = thresholdBase
	}

	direct, transcode := baseProfiles()
	if tier >= thresholdHEVC {
		direct, transcode = hevcProfiles()
	}
	if tier >= thresholdDolbyVision {
		direct, transcode = dolbyVisionProfiles()
	}
	if tier >= thresholdAtmos {
		direct, transcode = atmosProfiles()
	}

	codecProfiles := []domain.CodecProfile{{
		MediaType:  "Video",
		Codec:      "h264",
		Conditions: h264Conditions(),
	}}
	if tier >= thresholdHEVC {
		codecProfiles = append(codecProfiles, domain.CodecProfile{
			MediaType:  "Video",
			Codec:      "hevc",
			Conditions: hevcConditions(),
		})
	}

	return domain.DeviceProfile{
		MaxStreamingBitrate:     maxBitrate,
		MaxStaticBitrate:        MaxStaticBitrate,
		MusicTranscodingBitrate: MusicTranscodingBitrate,
		DirectPlayProfiles:      []domain.DirectPlayProfile{direct},
		TranscodingProfiles:     []domain.TranscodingProfile{transcode},
		CodecProfiles:           codecProfiles,
		SubtitleProfiles:        subtitleProfiles(),
		ResponseProfiles: []domain.ResponseProfile{
			{MediaType: "Video", Container: "m4v", MimeType: "video/mp4"},
		},
	}
}

const directContainers = "mov,mp4,mkv"

func baseProfiles() (domain.DirectPlayProfile, domain.TranscodingProfile) {
	direct := directProfile(
		[]string{"aac", "mp3", "wav"},
		[]string{"h264"})
	transcode := transcodingProfile("ts", 6,
		[]string{"aac", "mp3", "wav"},
		[]string{"h264"})
	return direct, transcode
}

func hevcProfiles() (domain.DirectPlayProfile, domain.TranscodingProfile) {
	direct := directProfile(
		[]string{"aac", "mp3", "wav", "ac3", "eac3", "flac"},
		[]string{"hevc", "h264", "hev1"})
	transcode := transcodingProfile("mp4", 6,
		[]string{"aac", "mp3", "wav", "eac3", "ac3", "flac"},
		[]string{"h264", "hevc", "hev1"})
	return direct, transcode
}

func dolbyVisionProfiles() (domain.DirectPlayProfile, domain.TranscodingProfile) {
	direct := directProfile(
		[]string{"aac", "mp3", "wav", "ac3", "eac3", "flac"},
		[]string{"dvhe", "dvh1", "dva1", "dvav", "h264", "hevc", "hev1"})
	transcode := transcodingProfile("mp4", 6,
		[]string{"aac", "mp3", "wav", "ac3", "eac3", "flac"},
		[]string{"dva1", "dvav", "dvhe", "dvh1", "hevc", "h264", "hev1"})
	return direct, transcode
}

// Atmos also unlocks lossless and DTS audio and a nine channel cap.
func atmosProfiles() (domain.DirectPlayProfile, domain.TranscodingProfile) {
	direct := directProfile(
		[]string{"aac", "mp3", "wav", "ac3", "eac3", "flac", "truehd", "dts", "dca"},
		[]string{"h264", "hevc", "dvhe", "dvh1", "dva1", "dvav", "hev1"})
	transcode := transcodingProfile("mp4", 9,
		[]string{"aac", "mp3", "wav", "ac3", "eac3", "flac", "dts", "truehd", "dca"},
		[]string{"dva1", "dvav", "dvhe", "dvh1", "hevc", "h264", "hev1"})
	return direct, transcode
}

func directProfile(audio, video []string) domain.DirectPlayProfile {
	return domain.DirectPlayProfile{
		Container:   directContainers,
		MediaType:   "Video",
		AudioCodecs: audio,
		VideoCodecs: video,
	}
}

func transcodingProfile(container string, channels int, audio, video []string) domain.TranscodingProfile {
	return domain.TranscodingProfile{
		Container:           container,
		MediaType:           "Video",
		AudioCodecs:         audio,
		VideoCodecs:         video,
		Context:             "Streaming",
		Protocol:            "hls",
		MaxAudioChannels:    channels,
		MinSegments:         2,
		BreakOnNonKeyFrames: true,
	}
}

func h264Conditions() []domain.ProfileCondition {
	return []domain.ProfileCondition{
		{Condition: "NotEquals", Property: "IsAnamorphic", Value: "true"},
		{Condition: "EqualsAny", Property: "VideoProfile", Value: "high|main|baseline|constrained baseline"},
		{Condition: "LessThanEqual", Property: "VideoLevel", Value: "60"},
		{Condition: "NotEquals", Property: "IsInterlaced", Value: "true"},
	}
}

func hevcConditions() []domain.ProfileCondition {
	return []domain.ProfileCondition{
		{Condition: "NotEquals", Property: "IsAnamorphic", Value: "true"},
		{Condition: "EqualsAny", Property: "VideoProfile", Value: "main|main 10"},
		{Condition: "LessThanEqual", Property: "VideoLevel", Value: "160"},
		{Condition: "NotEquals", Property: "IsInterlaced", Value: "true"},
	}
}

func subtitleProfiles() []domain.SubtitleProfile {
	return []domain.SubtitleProfile{
		{Format: "vtt", Method: domain.DeliveryExternal},
		{Format: "ass", Method: domain.DeliveryExternal},
		{Format: "ssa", Method: domain.DeliveryExternal},
		{Format: "pgssub", Method: domain.DeliveryEmbed},
		{Format: "sub", Method: domain.DeliveryEmbed},
	}
}
