package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mmcdole/kinocast/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeMPV answers every command with success and records what it saw.
type fakeMPV struct {
	t    *testing.T
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	commands [][]any
	failing  map[string]string

	done chan struct{}
}

func newFakeMPV(t *testing.T) (*fakeMPV, *Engine) {
	server, client := net.Pipe()
	f := &fakeMPV{t: t, conn: server, failing: map[string]string{}, done: make(chan struct{})}
	go f.serve()

	dialed := false
	e := newEngineWithDialer(func(ctx context.Context) (net.Conn, error) {
		require.False(t, dialed, "engine dialed twice")
		dialed = true
		return client, nil
	}, nil)

	t.Cleanup(func() {
		_ = e.Close()
		_ = server.Close()
		<-f.done
	})
	return f, e
}

func (f *fakeMPV) serve() {
	defer close(f.done)
	scanner := bufio.NewScanner(f.conn)
	for scanner.Scan() {
		var req struct {
			Command   []any `json:"command"`
			RequestID int   `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		errText := "success"
		if msg, ok := f.failing[fmt.Sprint(req.Command[0])]; ok {
			errText = msg
		}
		f.mu.Unlock()

		f.send(map[string]any{"request_id": req.RequestID, "error": errText, "data": nil})
	}
}

func (f *fakeMPV) send(msg map[string]any) {
	line, _ := json.Marshal(msg)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, _ = f.conn.Write(append(line, '\n'))
}

func (f *fakeMPV) event(name string, fields map[string]any) {
	msg := map[string]any{"event": name}
	for k, v := range fields {
		msg[k] = v
	}
	f.send(msg)
}

func (f *fakeMPV) fail(command, msg string) {
	f.mu.Lock()
	f.failing[command] = msg
	f.mu.Unlock()
}

// seen returns recorded commands as printed strings.
func (f *fakeMPV) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	for i, c := range f.commands {
		parts := make([]string, len(c))
		for j, arg := range c {
			parts[j] = fmt.Sprint(arg)
		}
		out[i] = strings.Join(parts, " ")
	}
	return out
}

func nextEvent(t *testing.T, e *Engine) domain.DestinationEvent {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no destination event")
	}
	return domain.DestinationEvent{}
}

func testPlan() *domain.PlaybackPlan {
	return &domain.PlaybackPlan{
		ItemID:        "item-1",
		PlaySessionID: "ps-1",
		PlayMethod:    domain.PlayMethodDirectPlay,
		URL:           "http://jf/Videos/item-1/stream?static=true",
		RunTimeTicks:  domain.TicksFromDuration(100 * time.Second),
		AudioTracks: []domain.Track{
			{ID: 1, Kind: domain.StreamTypeAudio, Ordinal: 1, Default: true},
			{ID: 2, Kind: domain.StreamTypeAudio, Ordinal: 2},
		},
		SubtitleTracks: []domain.Track{
			domain.DisabledSubtitleTrack(),
			{ID: 3, Kind: domain.StreamTypeSubtitle, Delivery: domain.DeliveryEmbed, Ordinal: 1},
			{ID: 4, Kind: domain.StreamTypeSubtitle, Delivery: domain.DeliveryEmbed, Ordinal: 2},
			{ID: 7, Kind: domain.StreamTypeSubtitle, Delivery: domain.DeliveryExternal, URL: "http://jf/subs/7.srt"},
		},
		DefaultAudioIndex:    1,
		DefaultSubtitleIndex: 3,
	}
}

func TestEngine_LoadSendsCommandsInOrder(t *testing.T) {
	f, e := newFakeMPV(t)

	err := e.Load(context.Background(), testPlan(), domain.TicksFromDuration(90*time.Second))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"observe_property 1 percent-pos",
		"observe_property 2 pause",
		"set_property start +90.000",
		"set_property aid 1",
		"set_property sid 1",
		"change-list sub-files clr ",
		"change-list sub-files append http://jf/subs/7.srt",
		"loadfile http://jf/Videos/item-1/stream?static=true replace",
		"set_property pause false",
	}, f.seen())
}

func TestEngine_TrackMapping(t *testing.T) {
	f, e := newFakeMPV(t)
	ctx := context.Background()

	require.NoError(t, e.Load(ctx, testPlan(), 0))
	before := len(f.seen())

	require.NoError(t, e.SetAudioTrack(ctx, domain.Track{ID: 2}))
	require.NoError(t, e.SetSubtitleTrack(ctx, domain.Track{ID: 4}))
	require.NoError(t, e.SetSubtitleTrack(ctx, domain.Track{ID: 7}))
	require.NoError(t, e.SetSubtitleTrack(ctx, domain.DisabledSubtitleTrack()))
	require.NoError(t, e.SeekRelative(ctx, domain.TicksFromDuration(-15*time.Second)))
	require.NoError(t, e.Pause(ctx))
	require.NoError(t, e.Resume(ctx))
	require.NoError(t, e.Stop(ctx))

	assert.Equal(t, []string{
		"set_property aid 2",
		"set_property sid 2",
		"set_property sid 3",
		"set_property sid no",
		"seek -15 relative+exact",
		"set_property pause true",
		"set_property pause false",
		"stop",
	}, f.seen()[before:])
}

func TestEngine_TrackSelectionWithoutPlan(t *testing.T) {
	_, e := newFakeMPV(t)

	err := e.SetAudioTrack(context.Background(), domain.Track{ID: 1})

	var destErr *domain.DestinationError
	require.ErrorAs(t, err, &destErr)
	assert.Equal(t, "local", destErr.Destination)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestEngine_CommandError(t *testing.T) {
	f, e := newFakeMPV(t)
	f.fail("loadfile", "error running command")

	err := e.Load(context.Background(), testPlan(), 0)

	var destErr *domain.DestinationError
	require.ErrorAs(t, err, &destErr)
	assert.Equal(t, "load", destErr.Op)
	assert.Contains(t, err.Error(), "error running command")
}

func TestEngine_EventsTranslated(t *testing.T) {
	f, e := newFakeMPV(t)
	require.NoError(t, e.Load(context.Background(), testPlan(), 0))

	// Position before the file is loaded is ignored.
	f.event("property-change", map[string]any{"id": observePercentPos, "name": "percent-pos", "data": 1.0})
	f.event("file-loaded", nil)
	f.event("property-change", map[string]any{"id": observePercentPos, "name": "percent-pos", "data": 37.5})

	ev := nextEvent(t, e)
	assert.Equal(t, domain.DestinationPosition, ev.Kind)
	assert.InDelta(t, 0.375, ev.Position, 1e-9)
	assert.True(t, ev.Playing)

	f.event("property-change", map[string]any{"id": observePause, "name": "pause", "data": true})
	assert.Equal(t, domain.DestinationPaused, nextEvent(t, e).Kind)

	f.event("property-change", map[string]any{"id": observePercentPos, "name": "percent-pos", "data": 40.0})
	ev = nextEvent(t, e)
	assert.False(t, ev.Playing)

	f.event("property-change", map[string]any{"id": observePause, "name": "pause", "data": false})
	assert.Equal(t, domain.DestinationResumed, nextEvent(t, e).Kind)

	f.event("end-file", map[string]any{"reason": "eof"})
	assert.Equal(t, domain.DestinationEnded, nextEvent(t, e).Kind)
}

func TestEngine_FileErrorFails(t *testing.T) {
	f, e := newFakeMPV(t)
	require.NoError(t, e.Load(context.Background(), testPlan(), 0))

	f.event("end-file", map[string]any{"reason": "error", "file_error": "loading failed"})

	ev := nextEvent(t, e)
	assert.Equal(t, domain.DestinationFailed, ev.Kind)
	assert.ErrorContains(t, ev.Err, "loading failed")
}

func TestEngine_StopEndFileIsSilent(t *testing.T) {
	f, e := newFakeMPV(t)
	require.NoError(t, e.Load(context.Background(), testPlan(), 0))

	f.event("end-file", map[string]any{"reason": "stop"})
	f.event("file-loaded", nil)
	f.event("property-change", map[string]any{"id": observePercentPos, "name": "percent-pos", "data": 5.0})

	assert.Equal(t, domain.DestinationPosition, nextEvent(t, e).Kind)
}

func TestEngine_SocketLossEmitsClosed(t *testing.T) {
	f, e := newFakeMPV(t)
	require.NoError(t, e.Load(context.Background(), testPlan(), 0))

	require.NoError(t, f.conn.Close())

	assert.Equal(t, domain.DestinationClosed, nextEvent(t, e).Kind)

	err := e.Pause(context.Background())
	assert.Error(t, err)
}

func TestSubtitleIDWithoutMatch(t *testing.T) {
	plan := testPlan()
	assert.Equal(t, "no", subtitleID(plan, 99))
	assert.Equal(t, "auto", audioID(plan, 99))
}

func TestEngineArgs(t *testing.T) {
	assert.Equal(t, []string{
		"--idle=yes", "--force-window=yes", "--keep-open=no",
		"--input-ipc-server=/tmp/s", "--terminal=no", "--fs",
	}, engineArgs("mpv", "/tmp/s", []string{"--fs"}))

	assert.Equal(t, []string{
		"--", "--mpv-idle=yes", "--mpv-force-window=yes", "--mpv-keep-open=no",
		"--mpv-input-ipc-server=/tmp/s", "--mpv-terminal=no",
	}, engineArgs("iina", "/tmp/s", nil))
}

func TestEngineName(t *testing.T) {
	assert.Equal(t, "iina", engineName("/usr/local/bin/iina-cli"))
	assert.Equal(t, "celluloid", engineName("Celluloid"))
	assert.Equal(t, "mpv", engineName("/opt/mpv/mpv.exe"))
	assert.Equal(t, "mpv", engineName("my-wrapper"))
}
