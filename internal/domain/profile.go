package domain

// DeviceProfile declares what the local engine can play without transcoding and
// what the server may produce when it has to transcode.
type DeviceProfile struct {
	MaxStreamingBitrate     int
	MaxStaticBitrate        int
	MusicTranscodingBitrate int

	DirectPlayProfiles  []DirectPlayProfile
	TranscodingProfiles []TranscodingProfile
	CodecProfiles       []CodecProfile
	SubtitleProfiles    []SubtitleProfile
	ResponseProfiles    []ResponseProfile
}

// DirectPlayProfile lists containers and codecs playable as-is.
type DirectPlayProfile struct {
	Container   string
	MediaType   string
	AudioCodecs []string
	VideoCodecs []string
}

// TranscodingProfile describes the segmented output the server should produce.
type TranscodingProfile struct {
	Container           string
	MediaType           string
	AudioCodecs         []string
	VideoCodecs         []string
	Context             string
	Protocol            string
	MaxAudioChannels    int
	MinSegments         int
	BreakOnNonKeyFrames bool
}

// CodecProfile attaches conditions to a codec.
type CodecProfile struct {
	MediaType  string
	Codec      string
	Conditions []ProfileCondition
}

// ProfileCondition is a property/operator/value triple evaluated by the server.
type ProfileCondition struct {
	Condition  string
	Property   string
	Value      string
	IsRequired bool
}

// SubtitleProfile maps a subtitle format to its delivery method.
type SubtitleProfile struct {
	Format string
	Method DeliveryMethod
}

// ResponseProfile overrides the mime type reported for a container.
type ResponseProfile struct {
	MediaType string
	Container string
	MimeType  string
}
