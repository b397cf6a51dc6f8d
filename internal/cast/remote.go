package cast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
)

// DefaultInterpolationStep is how often the mirrored position advances
// between receiver progress messages.
const DefaultInterpolationStep = 200 * time.Millisecond

// Receiver command names understood by the Jellyfin receiver app.
const (
	CommandPlayNow   = "PlayNow"
	CommandPause     = "Pause"
	CommandUnpause   = "Unpause"
	CommandSeek      = "Seek"
	CommandStop      = "Stop"
	CommandAudio     = "SetAudioStreamIndex"
	CommandSubtitles = "SetSubtitleStreamIndex"
)

// tickSource starts a ticker and returns its channel and stop func.
type tickSource func(d time.Duration) (<-chan time.Time, func())

func realTicks(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type receiverMessage struct {
	Type string `json:"type"`
	Data struct {
		PlayState struct {
			IsPaused      bool  `json:"IsPaused"`
			PositionTicks int64 `json:"PositionTicks"`
		} `json:"PlayState"`
	} `json:"data"`
}

// Remote is the playback destination backed by a launched receiver app.
// The receiver's position is mirrored from its progress messages and
// interpolated in between.
type Remote struct {
	session *Session
	step    time.Duration
	ticks   tickSource
	logger  *slog.Logger
	pump    *playback.EventPump

	mu       sync.Mutex
	active   bool
	mirrored bool
	paused   bool
	runtime  domain.Ticks
	position domain.Ticks

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ playback.Destination = (*Remote)(nil)

// NewRemote wraps a launched session.
func NewRemote(session *Session, logger *slog.Logger) *Remote {
	return newRemote(session, DefaultInterpolationStep, realTicks, logger)
}

// newRemote interpolates every step using ticks. A nil ticks disables
// interpolation.
func newRemote(session *Session, step time.Duration, ticks tickSource, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Remote{
		session: session,
		step:    step,
		ticks:   ticks,
		logger:  logger,
		pump:    playback.NewEventPump(),
		stop:    make(chan struct{}),
	}
	session.OnMessage(r.handleMessage)

	r.wg.Add(1)
	go r.watch()
	return r
}

func (r *Remote) Kind() domain.DestinationKind { return domain.DestinationRemote }

func (r *Remote) Events() <-chan domain.DestinationEvent { return r.pump.Events() }

// Device is the receiver this destination plays on.
func (r *Remote) Device() domain.ReceiverDevice { return r.session.Device }

// Done is closed when the receiver connection is gone.
func (r *Remote) Done() <-chan struct{} { return r.session.Done() }

// Load asks the receiver to play the plan's item from start.
func (r *Remote) Load(ctx context.Context, plan *domain.PlaybackPlan, start domain.Ticks) error {
	r.mu.Lock()
	r.active = true
	r.mirrored = false
	r.paused = false
	r.runtime = plan.RunTimeTicks
	r.position = start
	r.mu.Unlock()

	return r.session.Send(ctx, CommandPlayNow, map[string]any{
		"items": []map[string]any{{
			"Id":        plan.ItemID,
			"ServerId":  r.session.identity.ServerID,
			"MediaType": "Video",
			"IsFolder":  false,
		}},
		"startPositionTicks":  int64(start),
		"mediaSourceId":       plan.MediaSourceID,
		"audioStreamIndex":    plan.DefaultAudioIndex,
		"subtitleStreamIndex": plan.DefaultSubtitleIndex,
	})
}

func (r *Remote) Pause(ctx context.Context) error {
	if err := r.session.Send(ctx, CommandPause, nil); err != nil {
		return err
	}
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	return nil
}

func (r *Remote) Resume(ctx context.Context) error {
	if err := r.session.Send(ctx, CommandUnpause, nil); err != nil {
		return err
	}
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	return nil
}

// SeekRelative translates the offset into an absolute Seek in whole seconds.
func (r *Remote) SeekRelative(ctx context.Context, offset domain.Ticks) error {
	r.mu.Lock()
	target := r.position + offset
	if target < 0 {
		target = 0
	}
	if r.runtime > 0 && target > r.runtime {
		target = r.runtime
	}
	r.mu.Unlock()

	if err := r.session.Send(ctx, CommandSeek, map[string]any{"position": int64(target.Seconds())}); err != nil {
		return err
	}

	r.mu.Lock()
	r.position = target
	r.mu.Unlock()
	r.pushPosition()
	return nil
}

func (r *Remote) SetAudioTrack(ctx context.Context, track domain.Track) error {
	return r.session.Send(ctx, CommandAudio, map[string]any{"index": track.ID})
}

func (r *Remote) SetSubtitleTrack(ctx context.Context, track domain.Track) error {
	return r.session.Send(ctx, CommandSubtitles, map[string]any{"index": track.ID})
}

func (r *Remote) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
	return r.session.Send(ctx, CommandStop, nil)
}

// Close stops mirroring, disconnects the session and closes the events channel.
func (r *Remote) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()
		err = r.session.Close()
		r.pump.Close()
	})
	return err
}

func (r *Remote) watch() {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.step > 0 && r.ticks != nil {
		c, stop := r.ticks(r.step)
		defer stop()
		tick = c
	}

	for {
		select {
		case <-tick:
			r.advance(r.step)
		case <-r.session.Done():
			r.logger.Info("receiver disconnected", "device", r.session.Device.FriendlyName, "error", r.session.Err())
			r.pump.Push(domain.DestinationEvent{Kind: domain.DestinationClosed, Err: r.session.Err()})
			return
		case <-r.stop:
			return
		}
	}
}

// advance moves the mirrored position forward while the receiver plays.
func (r *Remote) advance(d time.Duration) {
	r.mu.Lock()
	if !r.active || !r.mirrored || r.paused {
		r.mu.Unlock()
		return
	}
	r.position += domain.TicksFromDuration(d)
	if r.runtime > 0 && r.position > r.runtime {
		r.position = r.runtime
	}
	r.mu.Unlock()
	r.pushPosition()
}

// handleMessage runs on the session reader goroutine.
func (r *Remote) handleMessage(payload []byte) {
	var msg receiverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.Debug("ignoring receiver message", "error", err)
		return
	}

	switch msg.Type {
	case "playbackstart", "playbackprogress":
		state := msg.Data.PlayState

		r.mu.Lock()
		if !r.active {
			r.mu.Unlock()
			return
		}
		changed := r.mirrored && r.paused != state.IsPaused
		r.mirrored = true
		r.paused = state.IsPaused
		r.position = domain.Ticks(state.PositionTicks)
		r.mu.Unlock()

		if changed {
			kind := domain.DestinationResumed
			if state.IsPaused {
				kind = domain.DestinationPaused
			}
			r.pump.Push(domain.DestinationEvent{Kind: kind})
		}
		r.pushPosition()

	case "playbackstop":
		r.mu.Lock()
		wasActive := r.active
		r.active = false
		r.mu.Unlock()
		if wasActive {
			r.pump.Push(domain.DestinationEvent{Kind: domain.DestinationEnded})
		}
	}
}

func (r *Remote) pushPosition() {
	r.mu.Lock()
	runtime, position, paused := r.runtime, r.position, r.paused
	r.mu.Unlock()
	if runtime <= 0 {
		return
	}
	r.pump.Push(domain.DestinationEvent{
		Kind:     domain.DestinationPosition,
		Position: float64(position) / float64(runtime),
		Playing:  !paused,
	})
}
