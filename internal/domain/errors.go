package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrItemNotFound indicates the requested media item does not exist
	ErrItemNotFound = errors.New("media item not found")

	// ErrServerUnreachable indicates the media server could not be reached or answered with a non-2xx status
	ErrServerUnreachable = errors.New("media server is unreachable")

	// ErrNoPlayableSource indicates the server returned no usable media source
	ErrNoPlayableSource = errors.New("no playable media source")

	// ErrMalformedResponse indicates a server response that could not be decoded
	ErrMalformedResponse = errors.New("malformed server response")

	// ErrAuthFailed indicates authentication failed
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrInvalidTransition indicates an intent that is not valid in the current playback state
	ErrInvalidTransition = errors.New("invalid playback transition")

	// ErrNoActiveSession indicates an intent that requires a loaded playback session
	ErrNoActiveSession = errors.New("no active playback session")

	// ErrTrackNotFound indicates a track index that is not part of the negotiated plan
	ErrTrackNotFound = errors.New("track not found")

	// ErrTrackNotSelectable indicates a track that is burned into the video or dropped
	ErrTrackNotSelectable = errors.New("track cannot be selected")

	// ErrReceiverNotFound indicates no cast receiver matched the request
	ErrReceiverNotFound = errors.New("cast receiver not found")

	// ErrNotConnected indicates a cast command issued without a live receiver session
	ErrNotConnected = errors.New("cast receiver not connected")

	// ErrLaunchFailed indicates the receiver application could not be started
	ErrLaunchFailed = errors.New("receiver application launch failed")
)

// NegotiationError is returned when a playback plan cannot be resolved.
// Reason is ErrServerUnreachable or ErrNoPlayableSource.
type NegotiationError struct {
	ItemID string
	Reason error
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("negotiate %s: %v", e.ItemID, e.Reason)
	}
	return fmt.Sprintf("negotiate %s: %v: %v", e.ItemID, e.Reason, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// ReportError describes a failed session report. It is never propagated to the
// playback controller; reporters log it and drop the report.
type ReportError struct {
	Kind          ReportKind
	PlaySessionID string
	Err           error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report %s (session %s): %v", e.Kind, e.PlaySessionID, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// DestinationError wraps a failure of the local engine or of a cast receiver.
type DestinationError struct {
	Destination string
	Op          string
	Err         error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Destination, e.Op, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }
