package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/kinocast/internal/domain"
)

type recordingReportAPI struct {
	mu    sync.Mutex
	calls []reportCall
	fail  map[domain.ReportKind]error
	gate  chan struct{}
}

func (r *recordingReportAPI) ReportPlayback(_ context.Context, kind domain.ReportKind, state domain.SessionReportState, event domain.ProgressEvent) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{kind: kind, state: state, event: event})
	return r.fail[kind]
}

func (r *recordingReportAPI) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c.String())
	}
	return out
}

func session(id string) domain.SessionReportState {
	return domain.SessionReportState{PlaySessionID: id, ItemID: "item-1"}
}

func TestReporter_DeliversInOrder(t *testing.T) {
	api := &recordingReportAPI{}
	r := NewReporter(api, discardLogger())

	s := session("ps-1")
	r.Start(s)
	for i := 0; i < 3; i++ {
		r.Progress(s, domain.EventTimeUpdate)
	}
	r.Progress(s, domain.EventPause)
	r.Progress(s, domain.EventUnpause)
	r.Stop(s)
	r.Close()

	assert.Equal(t, []string{
		"start",
		"progress:timeupdate",
		"progress:timeupdate",
		"progress:timeupdate",
		"progress:pause",
		"progress:unpause",
		"stop",
	}, api.names())
}

func TestReporter_Guards(t *testing.T) {
	api := &recordingReportAPI{}
	r := NewReporter(api, discardLogger())

	a := session("ps-a")
	r.Progress(a, domain.EventTimeUpdate) // before start
	r.Start(a)
	r.Start(a) // duplicate
	r.Stop(a)
	r.Progress(a, domain.EventTimeUpdate) // after stop
	r.Stop(a)                             // duplicate stop

	b := session("ps-b")
	r.Start(b)
	r.Close()

	r.Start(session("ps-c")) // after close

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.calls, 3)
	assert.Equal(t, domain.ReportStart, api.calls[0].kind)
	assert.Equal(t, domain.ReportStop, api.calls[1].kind)
	assert.Equal(t, "ps-a", api.calls[1].state.PlaySessionID)
	assert.True(t, api.calls[1].state.IsPaused, "stop is always reported paused")
	assert.Equal(t, "ps-b", api.calls[2].state.PlaySessionID)
}

func TestReporter_ForgetsStoppedSessions(t *testing.T) {
	api := &recordingReportAPI{}
	r := NewReporter(api, discardLogger())
	defer r.Close()

	for _, id := range []string{"ps-1", "ps-2", "ps-3"} {
		r.Start(session(id))
		r.Stop(session(id))
	}
	require.Eventually(t, func() bool { return len(api.names()) == 6 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.started) == 0 && len(r.stopped) == 0
	}, time.Second, 5*time.Millisecond)

	// A forgotten session still rejects late reports.
	r.Progress(session("ps-1"), domain.EventTimeUpdate)
	r.Stop(session("ps-1"))
	r.Close()
	assert.Len(t, api.names(), 6)
}

func TestReporter_StopWithoutStartIsDropped(t *testing.T) {
	api := &recordingReportAPI{}
	r := NewReporter(api, discardLogger())
	r.Stop(session("ps-x"))
	r.Close()
	assert.Empty(t, api.names())
}

func TestReporter_FailuresDoNotStopDelivery(t *testing.T) {
	api := &recordingReportAPI{fail: map[domain.ReportKind]error{domain.ReportProgress: errBoom}}
	r := NewReporter(api, discardLogger())

	s := session("ps-1")
	r.Start(s)
	r.Progress(s, domain.EventTimeUpdate)
	r.Stop(s)
	r.Close()

	assert.Equal(t, []string{"start", "progress:timeupdate", "stop"}, api.names())
}

func TestReporter_EnqueueDoesNotBlock(t *testing.T) {
	api := &recordingReportAPI{gate: make(chan struct{})}
	r := NewReporter(api, discardLogger())

	s := session("ps-1")
	r.Start(s)
	for i := 0; i < 100; i++ {
		r.Progress(s, domain.EventTimeUpdate)
	}
	r.Stop(s)

	close(api.gate)
	r.Close()
	r.Close()

	names := api.names()
	require.Len(t, names, 102)
	assert.Equal(t, "start", names[0])
	assert.Equal(t, "stop", names[101])
}
