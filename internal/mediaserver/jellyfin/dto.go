package jellyfin

// authRequest is the body of /Users/AuthenticateByName
type authRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

// AuthResponse represents the Jellyfin authentication response
type AuthResponse struct {
	AccessToken string `json:"AccessToken"`
	User        struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
}

// PublicSystemInfo represents the Jellyfin /System/Info/Public response
type PublicSystemInfo struct {
	ProductName string `json:"ProductName"`
	ServerName  string `json:"ServerName"`
	Version     string `json:"Version"`
	ID          string `json:"Id"`
}

// PlaybackInfoRequest is the body of POST /Items/{id}/PlaybackInfo
type PlaybackInfoRequest struct {
	UserID              string        `json:"UserId"`
	MaxStreamingBitrate int           `json:"MaxStreamingBitrate"`
	StartTimeTicks      int64         `json:"StartTimeTicks"`
	AutoOpenLiveStream  bool          `json:"AutoOpenLiveStream"`
	IsPlayback          bool          `json:"IsPlayback"`
	DeviceProfile       DeviceProfile `json:"DeviceProfile"`
}

// DeviceProfile is the wire form of domain.DeviceProfile
type DeviceProfile struct {
	MaxStreamingBitrate              int                  `json:"MaxStreamingBitrate"`
	MaxStaticBitrate                 int                  `json:"MaxStaticBitrate"`
	MusicStreamingTranscodingBitrate int                  `json:"MusicStreamingTranscodingBitrate"`
	DirectPlayProfiles               []DirectPlayProfile  `json:"DirectPlayProfiles"`
	TranscodingProfiles              []TranscodingProfile `json:"TranscodingProfiles"`
	ContainerProfiles                []DirectPlayProfile  `json:"ContainerProfiles"`
	CodecProfiles                    []CodecProfile       `json:"CodecProfiles"`
	SubtitleProfiles                 []SubtitleProfile    `json:"SubtitleProfiles"`
	ResponseProfiles                 []ResponseProfile    `json:"ResponseProfiles"`
}

// DirectPlayProfile lists containers and codecs playable without conversion
type DirectPlayProfile struct {
	Container  string `json:"Container"`
	Type       string `json:"Type"`
	AudioCodec string `json:"AudioCodec"`
	VideoCodec string `json:"VideoCodec"`
}

// TranscodingProfile describes the transcoded output the client accepts
type TranscodingProfile struct {
	Container           string `json:"Container"`
	Type                string `json:"Type"`
	AudioCodec          string `json:"AudioCodec"`
	VideoCodec          string `json:"VideoCodec"`
	Context             string `json:"Context"`
	Protocol            string `json:"Protocol"`
	MaxAudioChannels    string `json:"MaxAudioChannels"`
	MinSegments         int    `json:"MinSegments"`
	BreakOnNonKeyFrames bool   `json:"BreakOnNonKeyFrames"`
}

// CodecProfile restricts a codec with conditions
type CodecProfile struct {
	Type       string             `json:"Type"`
	Codec      string             `json:"Codec"`
	Conditions []ProfileCondition `json:"Conditions"`
}

// ProfileCondition is a single codec condition
type ProfileCondition struct {
	Condition  string `json:"Condition"`
	Property   string `json:"Property"`
	Value      string `json:"Value"`
	IsRequired bool   `json:"IsRequired"`
}

// SubtitleProfile maps a subtitle format to a delivery method
type SubtitleProfile struct {
	Format string `json:"Format"`
	Method string `json:"Method"`
}

// ResponseProfile overrides the mime type of a container
type ResponseProfile struct {
	Type      string `json:"Type"`
	Container string `json:"Container"`
	MimeType  string `json:"MimeType"`
}

// PlaybackInfoResponse contains playback information for an item
type PlaybackInfoResponse struct {
	MediaSources  []MediaSource `json:"MediaSources"`
	PlaySessionID string        `json:"PlaySessionId"`
	ErrorCode     string        `json:"ErrorCode,omitempty"`
}

// MediaSource represents a media source (file) for an item
type MediaSource struct {
	ID                   string        `json:"Id"`
	ETag                 string        `json:"ETag"`
	Path                 string        `json:"Path"`
	Protocol             string        `json:"Protocol"`
	Container            string        `json:"Container"`
	Name                 string        `json:"Name"`
	RunTimeTicks         int64         `json:"RunTimeTicks"`
	SupportsDirectPlay   bool          `json:"SupportsDirectPlay"`
	SupportsDirectStream bool          `json:"SupportsDirectStream"`
	SupportsTranscoding  bool          `json:"SupportsTranscoding"`
	TranscodingURL       string        `json:"TranscodingUrl,omitempty"`
	TranscodingProtocol  string        `json:"TranscodingSubProtocol,omitempty"`
	MediaStreams         []MediaStream `json:"MediaStreams"`
}

// MediaStream represents a video, audio, or subtitle stream
type MediaStream struct {
	Codec          string `json:"Codec"`
	Language       string `json:"Language,omitempty"`
	Title          string `json:"Title,omitempty"`
	DisplayTitle   string `json:"DisplayTitle,omitempty"`
	Type           string `json:"Type"` // "Video", "Audio", "Subtitle"
	Index          int    `json:"Index"`
	IsDefault      bool   `json:"IsDefault"`
	IsForced       bool   `json:"IsForced"`
	IsExternal     bool   `json:"IsExternal"`
	DeliveryMethod string `json:"DeliveryMethod,omitempty"`
	DeliveryURL    string `json:"DeliveryUrl,omitempty"`
}

// PlaybackReport is the body of the /Sessions/Playing* report calls.
// It is built from domain.SessionReportState in exactly one place (newPlaybackReport).
type PlaybackReport struct {
	ItemID                 string `json:"ItemId"`
	MediaSourceID          string `json:"MediaSourceId"`
	PlaySessionID          string `json:"PlaySessionId"`
	PlayMethod             string `json:"PlayMethod"`
	PositionTicks          int64  `json:"PositionTicks"`
	PlaybackStartTimeTicks int64  `json:"PlaybackStartTimeTicks"`
	IsPaused               bool   `json:"IsPaused"`
	IsMuted                bool   `json:"IsMuted"`
	VolumeLevel            int    `json:"VolumeLevel"`
	AudioStreamIndex       int    `json:"AudioStreamIndex"`
	SubtitleStreamIndex    int    `json:"SubtitleStreamIndex"`
	CanSeek                bool   `json:"CanSeek"`
	EventName              string `json:"EventName,omitempty"`
}
