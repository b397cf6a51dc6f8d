package playback

import "time"

// inactivity hides transport controls after a period without user input.
type inactivity struct {
	timeout time.Duration
	t       timer
	visible bool
}

func newInactivity(c clock, timeout time.Duration) *inactivity {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &inactivity{
		timeout: timeout,
		t:       c.NewTimer(timeout),
		visible: true,
	}
}

func (i *inactivity) C() <-chan time.Time { return i.t.C() }

// touch records user input. It re-arms the timer and reports whether the
// controls became visible again.
func (i *inactivity) touch() bool {
	i.t.Stop()
	i.t.Reset(i.timeout)
	if i.visible {
		return false
	}
	i.visible = true
	return true
}

// expire handles a timer fire and reports whether the controls were hidden.
func (i *inactivity) expire() bool {
	if !i.visible {
		return false
	}
	i.visible = false
	return true
}

func (i *inactivity) stop() {
	i.t.Stop()
}
