// Package player drives a local mpv engine over its JSON IPC socket.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
)

const (
	observePercentPos = 1
	observePause      = 2

	socketWait   = 5 * time.Second
	socketPoll   = 100 * time.Millisecond
	quitDeadline = 3 * time.Second
)

// Engine is the local playback destination.
type Engine struct {
	launcher *Launcher
	logger   *slog.Logger

	// dial replaces process launch when set.
	dial func(ctx context.Context) (net.Conn, error)

	pump *playback.EventPump

	mu        sync.Mutex
	client    *ipcClient
	proc      *exec.Cmd
	exited    chan struct{}
	socketDir string
	plan      *domain.PlaybackPlan
	loaded    bool
	paused    bool
}

var _ playback.Destination = (*Engine)(nil)

// NewEngine creates an engine that spawns its player on first Load.
func NewEngine(launcher *Launcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		launcher: launcher,
		logger:   logger,
		pump:     playback.NewEventPump(),
	}
}

func newEngineWithDialer(dial func(ctx context.Context) (net.Conn, error), logger *slog.Logger) *Engine {
	e := NewEngine(nil, logger)
	e.dial = dial
	return e
}

func (e *Engine) Kind() domain.DestinationKind { return domain.DestinationLocal }

func (e *Engine) Events() <-chan domain.DestinationEvent { return e.pump.Events() }

// Load starts the plan's stream at start with its default tracks selected.
func (e *Engine) Load(ctx context.Context, plan *domain.PlaybackPlan, start domain.Ticks) error {
	client, err := e.ensure(ctx)
	if err != nil {
		return e.fail("load", err)
	}

	e.mu.Lock()
	e.plan = plan
	e.loaded = false
	e.mu.Unlock()

	cmds := [][]any{
		{"set_property", "start", fmt.Sprintf("+%.3f", start.Seconds())},
		{"set_property", "aid", audioID(plan, plan.DefaultAudioIndex)},
		{"set_property", "sid", subtitleID(plan, plan.DefaultSubtitleIndex)},
		{"change-list", "sub-files", "clr", ""},
	}
	for _, t := range externalSubtitles(plan) {
		cmds = append(cmds, []any{"change-list", "sub-files", "append", t.URL})
	}
	cmds = append(cmds,
		[]any{"loadfile", plan.URL, "replace"},
		[]any{"set_property", "pause", false},
	)

	for _, cmd := range cmds {
		if _, err := client.Call(ctx, cmd...); err != nil {
			return e.fail("load", err)
		}
	}
	e.logger.Info("engine loaded stream", "item", plan.ItemID, "method", plan.PlayMethod, "start", start.Duration())
	return nil
}

func (e *Engine) Pause(ctx context.Context) error {
	return e.call(ctx, "pause", "set_property", "pause", true)
}

func (e *Engine) Resume(ctx context.Context) error {
	return e.call(ctx, "resume", "set_property", "pause", false)
}

// SeekRelative moves the playhead by offset ticks.
func (e *Engine) SeekRelative(ctx context.Context, offset domain.Ticks) error {
	return e.call(ctx, "seek", "seek", offset.Seconds(), "relative+exact")
}

func (e *Engine) SetAudioTrack(ctx context.Context, track domain.Track) error {
	e.mu.Lock()
	plan := e.plan
	e.mu.Unlock()
	if plan == nil {
		return e.fail("audio", domain.ErrNoActiveSession)
	}
	return e.call(ctx, "audio", "set_property", "aid", audioID(plan, track.ID))
}

func (e *Engine) SetSubtitleTrack(ctx context.Context, track domain.Track) error {
	e.mu.Lock()
	plan := e.plan
	e.mu.Unlock()
	if plan == nil {
		return e.fail("subtitle", domain.ErrNoActiveSession)
	}
	return e.call(ctx, "subtitle", "set_property", "sid", subtitleID(plan, track.ID))
}

// Stop unloads the current file and leaves the engine idle.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	client := e.client
	e.plan = nil
	e.loaded = false
	e.mu.Unlock()
	if client == nil {
		return nil
	}
	if _, err := client.Call(ctx, "stop"); err != nil && !errors.Is(err, errIPCClosed) {
		return e.fail("stop", err)
	}
	return nil
}

// Close quits the engine process and releases the events channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	client, proc, exited, dir := e.client, e.proc, e.exited, e.socketDir
	e.client, e.proc, e.socketDir = nil, nil, ""
	e.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), quitDeadline)
		_, _ = client.Call(ctx, "quit")
		cancel()
		_ = client.Close()
	}
	if proc != nil {
		select {
		case <-exited:
		case <-time.After(quitDeadline):
			_ = proc.Process.Kill()
			<-exited
		}
	}
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
	e.pump.Close()
	return nil
}

func (e *Engine) call(ctx context.Context, op string, args ...any) error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return e.fail(op, errIPCClosed)
	}
	if _, err := client.Call(ctx, args...); err != nil {
		return e.fail(op, err)
	}
	return nil
}

func (e *Engine) fail(op string, err error) error {
	return &domain.DestinationError{Destination: string(domain.DestinationLocal), Op: op, Err: err}
}

// ensure returns a live IPC client, launching the engine if needed.
func (e *Engine) ensure(ctx context.Context) (*ipcClient, error) {
	e.mu.Lock()
	if c := e.client; c != nil {
		select {
		case <-c.Done():
			e.client = nil
		default:
			e.mu.Unlock()
			return c, nil
		}
	}
	e.mu.Unlock()

	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	client := newIPCClient(conn, e.handleEvent, e.handleClose, e.logger)
	e.mu.Lock()
	e.client = client
	e.mu.Unlock()

	if _, err := client.Call(ctx, "observe_property", observePercentPos, "percent-pos"); err != nil {
		return nil, fmt.Errorf("failed to observe position: %w", err)
	}
	if _, err := client.Call(ctx, "observe_property", observePause, "pause"); err != nil {
		return nil, fmt.Errorf("failed to observe pause: %w", err)
	}
	return client, nil
}

func (e *Engine) connect(ctx context.Context) (net.Conn, error) {
	if e.dial != nil {
		return e.dial(ctx)
	}
	if e.launcher == nil {
		return nil, ErrNoEngine
	}

	dir, err := os.MkdirTemp("", "kinocast-mpv-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create socket dir: %w", err)
	}
	socketPath := filepath.Join(dir, "socket")

	proc, err := e.launcher.Start(ctx, socketPath)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	exited := make(chan struct{})
	go func() {
		err := proc.Wait()
		e.logger.Debug("engine process exited", "error", err)
		close(exited)
	}()

	e.mu.Lock()
	e.proc, e.exited, e.socketDir = proc, exited, dir
	e.mu.Unlock()

	deadline := time.NewTimer(socketWait)
	defer deadline.Stop()
	poll := time.NewTicker(socketPoll)
	defer poll.Stop()
	for {
		if _, err := os.Stat(socketPath); err == nil {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		select {
		case <-poll.C:
		case <-exited:
			return nil, errors.New("engine exited before opening its socket")
		case <-deadline.C:
			return nil, fmt.Errorf("engine socket %s did not appear", socketPath)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// handleEvent runs on the IPC reader goroutine.
func (e *Engine) handleEvent(msg ipcMessage) {
	switch msg.Event {
	case "property-change":
		e.handleProperty(msg)

	case "file-loaded":
		e.mu.Lock()
		e.loaded = true
		e.mu.Unlock()

	case "end-file":
		e.mu.Lock()
		wasLoaded := e.loaded
		e.loaded = false
		e.mu.Unlock()

		switch msg.Reason {
		case "eof":
			e.pump.Push(domain.DestinationEvent{Kind: domain.DestinationEnded})
		case "error":
			if !wasLoaded {
				e.logger.Warn("engine failed to open stream", "error", msg.FileError)
			}
			e.pump.Push(domain.DestinationEvent{
				Kind: domain.DestinationFailed,
				Err:  e.fail("playback", errors.New(msg.FileError)),
			})
		}

	case "shutdown":
		e.logger.Info("engine shutting down")
	}
}

func (e *Engine) handleProperty(msg ipcMessage) {
	switch msg.ID {
	case observePercentPos:
		var pct *float64
		if err := json.Unmarshal(msg.Data, &pct); err != nil || pct == nil {
			return
		}
		e.mu.Lock()
		loaded, paused := e.loaded, e.paused
		e.mu.Unlock()
		if !loaded {
			return
		}
		e.pump.Push(domain.DestinationEvent{
			Kind:     domain.DestinationPosition,
			Position: *pct / 100,
			Playing:  !paused,
		})

	case observePause:
		var paused bool
		if err := json.Unmarshal(msg.Data, &paused); err != nil {
			return
		}
		e.mu.Lock()
		changed := e.paused != paused
		e.paused = paused
		loaded := e.loaded
		e.mu.Unlock()
		if !changed || !loaded {
			return
		}
		kind := domain.DestinationResumed
		if paused {
			kind = domain.DestinationPaused
		}
		e.pump.Push(domain.DestinationEvent{Kind: kind})
	}
}

func (e *Engine) handleClose(err error) {
	e.mu.Lock()
	e.client = nil
	e.plan = nil
	e.loaded = false
	e.mu.Unlock()

	e.logger.Info("engine connection closed", "error", err)
	e.pump.Push(domain.DestinationEvent{Kind: domain.DestinationClosed, Err: err})
}

// audioID maps a stream index to mpv's 1-based aid.
func audioID(plan *domain.PlaybackPlan, index int) string {
	t, ok := plan.AudioTrack(index)
	if !ok || t.Ordinal == 0 {
		return "auto"
	}
	return strconv.Itoa(t.Ordinal)
}

// subtitleID maps a stream index to mpv's sid. External files are numbered
// after the embedded tracks in the order they were added.
func subtitleID(plan *domain.PlaybackPlan, index int) string {
	if index == domain.DisabledSubtitleIndex {
		return "no"
	}
	t, ok := plan.SubtitleTrack(index)
	if !ok {
		return "no"
	}
	if t.Ordinal > 0 {
		return strconv.Itoa(t.Ordinal)
	}

	embedded := 0
	for _, s := range plan.SubtitleTracks {
		if s.Ordinal > 0 {
			embedded++
		}
	}
	for i, s := range externalSubtitles(plan) {
		if s.ID == index {
			return strconv.Itoa(embedded + i + 1)
		}
	}
	return "no"
}

func externalSubtitles(plan *domain.PlaybackPlan) []domain.Track {
	var out []domain.Track
	for _, t := range plan.SubtitleTracks {
		if t.Ordinal == 0 && t.URL != "" {
			out = append(out, t)
		}
	}
	return out
}
