package playback

import "time"

// clock abstracts time so heartbeat, stall and inactivity timing can be driven
// by a virtual clock in tests.
type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
	NewTimer(d time.Duration) timer
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }
func (realClock) NewTimer(d time.Duration) timer   { return &realTimer{time.NewTimer(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

type realTimer struct {
	*time.Timer
}

func (rt *realTimer) C() <-chan time.Time { return rt.Timer.C }

// ticksSinceEpoch converts wall-clock time to the server's tick unit.
func ticksSinceEpoch(t time.Time) int64 {
	return t.UnixNano() / 100
}
