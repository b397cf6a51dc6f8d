package playback

import (
	"fmt"

	"github.com/mmcdole/kinocast/internal/domain"
)

// State is a playback controller state.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateLoading     State = "loading"
	StatePlaying     State = "playing"
	StatePaused      State = "paused"
	StateScrubbing   State = "scrubbing"
	StateStopped     State = "stopped"
	StateErrored     State = "errored"
)

// event drives a state transition.
type event string

const (
	evPlay          event = "play"
	evPlanResolved  event = "plan_resolved"
	evPlanFailed    event = "plan_failed"
	evCancel        event = "cancel"
	evFirstPosition event = "first_position"
	evPause         event = "pause"
	evResume        event = "resume"
	evScrubBegin    event = "scrub_begin"
	evScrubEnd      event = "scrub_end"
	evStop          event = "stop"
	evFail          event = "fail"
)

// transition describes a single edge in the state machine.
type transition struct {
	From  State
	Event event
	To    State
}

var transitions = []transition{
	{StateIdle, evPlay, StateNegotiating},
	{StateStopped, evPlay, StateNegotiating},
	{StateErrored, evPlay, StateNegotiating},

	{StateNegotiating, evPlanResolved, StateLoading},
	{StateNegotiating, evPlanFailed, StateIdle},
	{StateNegotiating, evCancel, StateIdle},

	{StateLoading, evFirstPosition, StatePlaying},
	{StateLoading, evStop, StateStopped},
	{StateLoading, evFail, StateErrored},

	{StatePlaying, evPause, StatePaused},
	{StatePlaying, evScrubBegin, StateScrubbing},
	{StatePlaying, evStop, StateStopped},
	{StatePlaying, evFail, StateErrored},

	{StatePaused, evResume, StatePlaying},
	{StatePaused, evScrubBegin, StateScrubbing},
	{StatePaused, evStop, StateStopped},
	{StatePaused, evFail, StateErrored},

	{StateScrubbing, evScrubEnd, StatePlaying},
	{StateScrubbing, evStop, StateStopped},
	{StateScrubbing, evFail, StateErrored},
}

// machine is a strict state machine: unknown transitions are errors.
// It is only touched from the controller's loop goroutine.
type machine struct {
	state State
	index map[string]State
}

func newMachine(initial State, edges []transition) (*machine, error) {
	idx := make(map[string]State, len(edges))
	for _, t := range edges {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t.To
	}
	return &machine{state: initial, index: idx}, nil
}

func (m *machine) can(ev event) bool {
	_, ok := m.index[key(m.state, ev)]
	return ok
}

// fire applies an event and returns the new state.
func (m *machine) fire(ev event) (State, error) {
	to, ok := m.index[key(m.state, ev)]
	if !ok {
		return m.state, fmt.Errorf("%w: state=%s event=%s", domain.ErrInvalidTransition, m.state, ev)
	}
	m.state = to
	return to, nil
}

// reset forces the machine back to idle from any state.
func (m *machine) reset() {
	m.state = StateIdle
}

func key(from State, ev event) string {
	return string(from) + "|" + string(ev)
}
