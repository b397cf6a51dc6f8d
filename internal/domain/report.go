package domain

// ReportKind identifies one of the three session report calls.
type ReportKind string

const (
	ReportStart    ReportKind = "start"
	ReportProgress ReportKind = "progress"
	ReportStop     ReportKind = "stop"
)

// ProgressEvent is the event name carried by a progress report.
type ProgressEvent string

const (
	EventNone       ProgressEvent = ""
	EventTimeUpdate ProgressEvent = "timeupdate"
	EventPause      ProgressEvent = "pause"
	EventUnpause    ProgressEvent = "unpause"
)

// SessionReportState is the playback state mirrored to the server.
// It is owned by the playback controller and recreated per attempt.
type SessionReportState struct {
	PlaySessionID          string
	ItemID                 string
	MediaSourceID          string
	PositionTicks          Ticks
	IsPaused               bool
	IsMuted                bool
	VolumeLevel            int
	AudioStreamIndex       int
	SubtitleStreamIndex    int
	PlayMethod             PlayMethod
	PlaybackStartTimeTicks Ticks
	CanSeek                bool
}

// NewSessionReportState seeds report state from a resolved plan.
func NewSessionReportState(plan *PlaybackPlan) SessionReportState {
	return SessionReportState{
		PlaySessionID:       plan.PlaySessionID,
		ItemID:              plan.ItemID,
		MediaSourceID:       plan.MediaSourceID,
		PositionTicks:       plan.StartTicks,
		VolumeLevel:         100,
		AudioStreamIndex:    plan.DefaultAudioIndex,
		SubtitleStreamIndex: plan.DefaultSubtitleIndex,
		PlayMethod:          plan.PlayMethod,
		CanSeek:             true,
	}
}
