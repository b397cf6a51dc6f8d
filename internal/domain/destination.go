package domain

// DestinationKind identifies where playback commands are sent.
type DestinationKind string

const (
	DestinationLocal  DestinationKind = "local"
	DestinationRemote DestinationKind = "remote"
)

// DestinationEventKind classifies events emitted by a destination.
type DestinationEventKind int

const (
	// DestinationPosition reports the current normalized position.
	DestinationPosition DestinationEventKind = iota
	// DestinationPaused reports that the destination paused on its own (or remotely).
	DestinationPaused
	// DestinationResumed reports that the destination resumed on its own (or remotely).
	DestinationResumed
	// DestinationEnded reports the end of the media.
	DestinationEnded
	// DestinationFailed reports a fatal engine or receiver error.
	DestinationFailed
	// DestinationClosed reports that the destination went away (engine exit, cast disconnect).
	DestinationClosed
)

func (k DestinationEventKind) String() string {
	switch k {
	case DestinationPosition:
		return "position"
	case DestinationPaused:
		return "paused"
	case DestinationResumed:
		return "resumed"
	case DestinationEnded:
		return "ended"
	case DestinationFailed:
		return "failed"
	case DestinationClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DestinationEvent is a discrete state change observed on a destination.
type DestinationEvent struct {
	Kind DestinationEventKind

	// Position is the normalized playback position in [0,1].
	Position float64
	// Playing reports whether the destination claims to be playing.
	Playing bool

	Err error
}

// ReceiverDevice is a cast receiver found on the local network.
type ReceiverDevice struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	Model        string `json:"model"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
}
