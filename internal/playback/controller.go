package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/metrics"
)

// Defaults for controller timing.
const (
	// DefaultHeartbeatInterval is the progress report cadence while playing.
	DefaultHeartbeatInterval = 10 * time.Second
	// DefaultStallSampleInterval is how often the position is sampled for stalls.
	DefaultStallSampleInterval = time.Second
	// DefaultStallThreshold is the number of unchanged samples that raise buffering.
	DefaultStallThreshold = 5
	// DefaultInactivityTimeout hides transport controls after this long without input.
	DefaultInactivityTimeout = 5 * time.Second
	// DefaultJumpForward and DefaultJumpBackward are the jump intent lengths.
	DefaultJumpForward  = 30 * time.Second
	DefaultJumpBackward = 15 * time.Second

	defaultCommandTimeout = 10 * time.Second
)

// Destination is where playback commands are sent: the local engine or a
// cast receiver.
type Destination interface {
	Kind() domain.DestinationKind
	Load(ctx context.Context, plan *domain.PlaybackPlan, start domain.Ticks) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SeekRelative(ctx context.Context, offset domain.Ticks) error
	SetAudioTrack(ctx context.Context, track domain.Track) error
	SetSubtitleTrack(ctx context.Context, track domain.Track) error
	Stop(ctx context.Context) error
	Events() <-chan domain.DestinationEvent
}

// PlanNegotiator resolves a playback plan.
type PlanNegotiator interface {
	Negotiate(ctx context.Context, req NegotiateRequest) (*domain.PlaybackPlan, error)
}

// ProfileBuilder builds the device profile for one attempt.
type ProfileBuilder interface {
	BuildProfile(maxBitrate int) domain.DeviceProfile
}

// SessionReporter receives session reports. Calls must not block.
type SessionReporter interface {
	Start(state domain.SessionReportState)
	Progress(state domain.SessionReportState, event domain.ProgressEvent)
	Stop(state domain.SessionReportState)
}

// Options tunes controller timing.
type Options struct {
	MaxBitrate          int
	HeartbeatInterval   time.Duration
	StallSampleInterval time.Duration
	StallThreshold      int
	InactivityTimeout   time.Duration
	JumpForward         time.Duration
	JumpBackward        time.Duration
}

// DefaultOptions returns the standard controller timing.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:   DefaultHeartbeatInterval,
		StallSampleInterval: DefaultStallSampleInterval,
		StallThreshold:      DefaultStallThreshold,
		InactivityTimeout:   DefaultInactivityTimeout,
		JumpForward:         DefaultJumpForward,
		JumpBackward:        DefaultJumpBackward,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.StallSampleInterval <= 0 {
		o.StallSampleInterval = d.StallSampleInterval
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = d.StallThreshold
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = d.InactivityTimeout
	}
	if o.JumpForward <= 0 {
		o.JumpForward = d.JumpForward
	}
	if o.JumpBackward <= 0 {
		o.JumpBackward = d.JumpBackward
	}
	return o
}

// Status is the derived, UI-facing view of the controller.
type Status struct {
	State         State
	Destination   domain.DestinationKind
	ItemID        string
	PlaySessionID string
	PlayMethod    domain.PlayMethod

	// Position is the normalized position, or the scrub fraction while scrubbing.
	Position  float64
	Runtime   time.Duration
	Elapsed   time.Duration
	Remaining time.Duration

	Buffering       bool
	ControlsVisible bool

	AudioIndex     int
	SubtitleIndex  int
	AudioTracks    []domain.Track
	SubtitleTracks []domain.Track

	Err error
}

// Handoff captures the session being moved to another destination.
type Handoff struct {
	ItemID     string
	Position   domain.Ticks
	WasPlaying bool
}

// Active reports whether there was a session to hand off.
func (h Handoff) Active() bool { return h.ItemID != "" }

type command struct {
	fn    func() error
	reply chan error
}

type negotiationResult struct {
	attempt int
	plan    *domain.PlaybackPlan
	err     error
}

type pendingPlay struct {
	attempt int
	itemID  string
	cancel  context.CancelFunc
	done    chan error
}

// Controller owns the active destination and the session report state. Every
// intent is serialized through Run's loop.
type Controller struct {
	negotiator PlanNegotiator
	profiles   ProfileBuilder
	reporter   SessionReporter
	logger     *slog.Logger
	clock      clock
	opts       Options

	// OnUpdate, when set before Run, receives the status after every change.
	// It is called from the loop goroutine and must not call back into the controller.
	OnUpdate func(Status)

	cmds    chan command
	results chan negotiationResult
	done    chan struct{}
	wg      sync.WaitGroup

	// Loop-owned state.
	runCtx    context.Context
	fsm       *machine
	local     Destination
	dest      Destination
	events    <-chan domain.DestinationEvent
	pending   *pendingPlay
	attempt   int
	plan      *domain.PlaybackPlan
	report    domain.SessionReportState
	position  float64
	playing   bool
	scrub     float64
	heartbeat ticker
	sampler   ticker
	stall     *stallDetector
	idle      *inactivity
	lastErr   error
}

// NewController creates a controller whose initial destination is local.
func NewController(negotiator PlanNegotiator, profiles ProfileBuilder, reporter SessionReporter, local Destination, opts Options, logger *slog.Logger) *Controller {
	return newController(negotiator, profiles, reporter, local, opts, realClock{}, logger)
}

func newController(negotiator PlanNegotiator, profiles ProfileBuilder, reporter SessionReporter, local Destination, opts Options, clk clock, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	fsm, err := newMachine(StateIdle, transitions)
	if err != nil {
		panic(err)
	}
	return &Controller{
		negotiator: negotiator,
		profiles:   profiles,
		reporter:   reporter,
		logger:     logger,
		clock:      clk,
		opts:       opts,
		cmds:       make(chan command),
		results:    make(chan negotiationResult),
		done:       make(chan struct{}),
		fsm:        fsm,
		local:      local,
		dest:       local,
		events:     local.Events(),
		stall:      newStallDetector(opts.StallThreshold),
	}
}

// Run processes intents and destination events until ctx is cancelled. An
// active session is stopped (and reported) on the way out.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.idle = newInactivity(c.clock, c.opts.InactivityTimeout)
	metrics.SetPlaybackState(string(c.fsm.state))

	defer close(c.done)
	defer c.wg.Wait()
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-c.cmds:
			cmd.reply <- cmd.fn()
			c.notify()

		case res := <-c.results:
			c.handleNegotiation(res)
			c.notify()

		case ev, ok := <-c.events:
			if !ok {
				c.events = nil
				ev = domain.DestinationEvent{Kind: domain.DestinationClosed}
			}
			c.handleEvent(ev)
			c.notify()

		case <-tickerC(c.heartbeat):
			c.onHeartbeat()

		case <-tickerC(c.sampler):
			if c.onSample() {
				c.notify()
			}

		case <-c.idle.C():
			if c.idle.expire() {
				c.notify()
			}
		}
	}
}

func tickerC(t ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func (c *Controller) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- command{fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("controller stopped: %w", domain.ErrNoActiveSession)
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play negotiates a plan for the item and loads it on the active destination.
// It returns once the destination accepted the plan or the attempt failed.
func (c *Controller) Play(ctx context.Context, itemID string, start domain.Ticks) error {
	done := make(chan error, 1)
	if err := c.do(ctx, func() error { return c.beginPlay(itemID, start, done) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause pauses a playing session.
func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.pause(ctx) })
}

// Resume resumes a paused session.
func (c *Controller) Resume(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.resume(ctx) })
}

// TogglePause pauses when playing and resumes when paused.
func (c *Controller) TogglePause(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		if c.fsm.state == StatePaused {
			return c.resume(ctx)
		}
		return c.pause(ctx)
	})
}

// BeginScrub pauses the destination and enters scrubbing at the current position.
func (c *Controller) BeginScrub(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.beginScrub(ctx) })
}

// Scrub moves the projected position without touching the destination.
func (c *Controller) Scrub(ctx context.Context, fraction float64) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		if c.fsm.state != StateScrubbing {
			return fmt.Errorf("%w: state=%s event=scrub", domain.ErrInvalidTransition, c.fsm.state)
		}
		c.scrub = clamp01(fraction)
		return nil
	})
}

// EndScrub seeks once to the scrub target and resumes playback.
func (c *Controller) EndScrub(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.endScrub(ctx) })
}

// SeekTo jumps to a normalized position as a single scrub gesture.
func (c *Controller) SeekTo(ctx context.Context, fraction float64) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		if err := c.beginScrub(ctx); err != nil {
			return err
		}
		c.scrub = clamp01(fraction)
		return c.endScrub(ctx)
	})
}

// JumpForward skips ahead by the configured jump length.
func (c *Controller) JumpForward(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.jump(ctx, domain.TicksFromDuration(c.opts.JumpForward)) })
}

// JumpBackward skips back by the configured jump length.
func (c *Controller) JumpBackward(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return c.jump(ctx, -domain.TicksFromDuration(c.opts.JumpBackward)) })
}

// SelectAudioTrack switches the audio track on the active destination.
func (c *Controller) SelectAudioTrack(ctx context.Context, index int) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		if !c.sessionActive() {
			return domain.ErrNoActiveSession
		}
		track, ok := c.plan.AudioTrack(index)
		if !ok {
			return fmt.Errorf("%w: audio %d", domain.ErrTrackNotFound, index)
		}
		if err := c.dest.SetAudioTrack(ctx, track); err != nil {
			return c.destinationError("set audio track", err)
		}
		c.report.AudioStreamIndex = index
		c.reportEvent()
		return nil
	})
}

// SelectSubtitleTrack switches subtitles; DisabledSubtitleIndex turns them off.
func (c *Controller) SelectSubtitleTrack(ctx context.Context, index int) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		if !c.sessionActive() {
			return domain.ErrNoActiveSession
		}
		track, ok := c.plan.SubtitleTrack(index)
		if !ok {
			return fmt.Errorf("%w: subtitle %d", domain.ErrTrackNotFound, index)
		}
		if !IsEligible(track) {
			return fmt.Errorf("%w: subtitle %d is %s", domain.ErrTrackNotSelectable, index, track.Delivery)
		}
		if err := c.dest.SetSubtitleTrack(ctx, track); err != nil {
			return c.destinationError("set subtitle track", err)
		}
		c.report.SubtitleStreamIndex = index
		c.reportEvent()
		return nil
	})
}

// Stop ends the session, or cancels a negotiation in flight.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.idle.touch()
		switch {
		case c.fsm.state == StateNegotiating:
			c.cancelPending(context.Canceled)
			_, err := c.transition(evCancel)
			return err
		case c.sessionActive():
			c.endSession(ctx, evStop, nil)
			return nil
		}
		return nil
	})
}

// Touch records user input without any other effect.
func (c *Controller) Touch(ctx context.Context) error {
	return c.do(ctx, func() error { c.idle.touch(); return nil })
}

// Status returns the current derived status.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, func() error { st = c.status(); return nil })
	return st, err
}

// BeginHandoff pauses local playback before another destination is contacted
// and returns what is needed to continue the session there.
func (c *Controller) BeginHandoff(ctx context.Context) (Handoff, error) {
	var h Handoff
	err := c.do(ctx, func() error {
		if !c.sessionActive() {
			return nil
		}
		h.ItemID = c.plan.ItemID
		h.WasPlaying = c.fsm.state == StatePlaying
		if h.WasPlaying {
			if err := c.pause(ctx); err != nil {
				return err
			}
		}
		h.Position = c.report.PositionTicks
		return nil
	})
	return h, err
}

// AbortHandoff resumes local playback if BeginHandoff paused it.
func (c *Controller) AbortHandoff(ctx context.Context, h Handoff) error {
	return c.do(ctx, func() error {
		if !h.WasPlaying || c.fsm.state != StatePaused || c.plan == nil || c.plan.ItemID != h.ItemID {
			return nil
		}
		return c.resume(ctx)
	})
}

// SwitchDestination closes the current session (stop report, teardown) and
// makes dest the active destination. The controller is Idle afterwards.
func (c *Controller) SwitchDestination(ctx context.Context, dest Destination) error {
	return c.do(ctx, func() error {
		c.switchTo(ctx, dest)
		return nil
	})
}

// ReturnToLocal stops the remote session and switches back to the local
// destination. Local playback is not resumed.
func (c *Controller) ReturnToLocal(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.dest == c.local {
			return nil
		}
		c.switchTo(ctx, c.local)
		return nil
	})
}

func (c *Controller) beginPlay(itemID string, start domain.Ticks, done chan error) error {
	if _, err := c.transition(evPlay); err != nil {
		return err
	}
	c.lastErr = nil
	c.attempt++

	ctx, cancel := context.WithCancel(c.runCtx)
	p := &pendingPlay{attempt: c.attempt, itemID: itemID, cancel: cancel, done: done}
	c.pending = p

	req := NegotiateRequest{
		ItemID:     itemID,
		StartTicks: start,
		Profile:    c.profiles.BuildProfile(c.opts.MaxBitrate),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		plan, err := c.negotiator.Negotiate(ctx, req)
		select {
		case c.results <- negotiationResult{attempt: p.attempt, plan: plan, err: err}:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (c *Controller) handleNegotiation(res negotiationResult) {
	p := c.pending
	if p == nil || p.attempt != res.attempt {
		c.logger.Debug("discarding superseded negotiation", "attempt", res.attempt)
		return
	}
	c.pending = nil
	p.cancel()

	if res.err != nil {
		c.lastErr = res.err
		_, _ = c.transition(evPlanFailed)
		p.done <- res.err
		return
	}

	if _, err := c.transition(evPlanResolved); err != nil {
		p.done <- err
		return
	}

	plan := res.plan
	c.plan = plan
	c.report = domain.NewSessionReportState(plan)
	c.report.PlaybackStartTimeTicks = domain.Ticks(ticksSinceEpoch(c.clock.Now()))
	c.position = fraction(plan.StartTicks, plan.RunTimeTicks)
	c.playing = false
	c.stall.reset()

	c.reporter.Start(c.report)
	c.heartbeat = c.clock.NewTicker(c.opts.HeartbeatInterval)
	c.sampler = c.clock.NewTicker(c.opts.StallSampleInterval)

	ctx, cancel := context.WithTimeout(c.runCtx, defaultCommandTimeout)
	defer cancel()
	if err := c.dest.Load(ctx, plan, plan.StartTicks); err != nil {
		derr := c.destinationError("load", err)
		c.endSession(ctx, evFail, derr)
		p.done <- derr
		return
	}

	c.logger.Info("playback loading",
		"item_id", plan.ItemID,
		"play_session_id", plan.PlaySessionID,
		"destination", c.dest.Kind())
	p.done <- nil
}

func (c *Controller) handleEvent(ev domain.DestinationEvent) {
	switch ev.Kind {
	case domain.DestinationPosition:
		c.playing = ev.Playing
		if !c.sessionActive() {
			return
		}
		c.setPosition(ev.Position)
		if c.fsm.state == StateLoading && ev.Position > 0 {
			_, _ = c.transition(evFirstPosition)
			c.playing = true
			c.report.IsPaused = false
		}

	case domain.DestinationPaused:
		c.playing = false
		if c.fsm.state == StatePlaying {
			_, _ = c.transition(evPause)
			c.report.IsPaused = true
			c.reporter.Progress(c.report, domain.EventPause)
		}

	case domain.DestinationResumed:
		c.playing = true
		if c.fsm.state == StatePaused {
			_, _ = c.transition(evResume)
			c.report.IsPaused = false
			c.reporter.Progress(c.report, domain.EventUnpause)
		}

	case domain.DestinationEnded:
		if c.sessionActive() {
			c.setPosition(1)
			c.endSession(c.runCtx, evStop, nil)
		}

	case domain.DestinationFailed:
		if c.sessionActive() {
			c.endSession(c.runCtx, evFail, c.destinationError("playback", ev.Err))
		}

	case domain.DestinationClosed:
		c.logger.Info("destination closed", "destination", c.dest.Kind())
		if c.dest != c.local {
			c.switchTo(c.runCtx, c.local)
			return
		}
		if c.sessionActive() {
			c.endSession(c.runCtx, evStop, nil)
		}
	}
}

func (c *Controller) onHeartbeat() {
	if c.fsm.state != StatePlaying {
		return
	}
	c.reporter.Progress(c.report, domain.EventTimeUpdate)
}

func (c *Controller) onSample() bool {
	if c.fsm.state != StatePlaying {
		return c.stall.reset()
	}
	changed := c.stall.sample(c.position, c.playing)
	if changed && c.stall.buffering {
		metrics.RecordBuffering()
		c.logger.Debug("playback stalled", "position", c.position)
	}
	return changed
}

func (c *Controller) pause(ctx context.Context) error {
	if !c.fsm.can(evPause) {
		return fmt.Errorf("%w: state=%s event=%s", domain.ErrInvalidTransition, c.fsm.state, evPause)
	}
	if err := c.dest.Pause(ctx); err != nil {
		return c.destinationError("pause", err)
	}
	_, _ = c.transition(evPause)
	c.playing = false
	c.report.IsPaused = true
	c.reporter.Progress(c.report, domain.EventPause)
	return nil
}

func (c *Controller) resume(ctx context.Context) error {
	if !c.fsm.can(evResume) {
		return fmt.Errorf("%w: state=%s event=%s", domain.ErrInvalidTransition, c.fsm.state, evResume)
	}
	if err := c.dest.Resume(ctx); err != nil {
		return c.destinationError("resume", err)
	}
	_, _ = c.transition(evResume)
	c.playing = true
	c.report.IsPaused = false
	c.reporter.Progress(c.report, domain.EventUnpause)
	return nil
}

func (c *Controller) beginScrub(ctx context.Context) error {
	if !c.fsm.can(evScrubBegin) {
		return fmt.Errorf("%w: state=%s event=%s", domain.ErrInvalidTransition, c.fsm.state, evScrubBegin)
	}
	if c.fsm.state == StatePlaying {
		if err := c.dest.Pause(ctx); err != nil {
			return c.destinationError("pause", err)
		}
	}
	_, _ = c.transition(evScrubBegin)
	c.playing = false
	c.scrub = c.position
	return nil
}

func (c *Controller) endScrub(ctx context.Context) error {
	if !c.fsm.can(evScrubEnd) {
		return fmt.Errorf("%w: state=%s event=%s", domain.ErrInvalidTransition, c.fsm.state, evScrubEnd)
	}
	target := domain.Ticks(math.Round(c.scrub * float64(c.plan.RunTimeTicks)))
	offset := seekOffset(c.scrub, c.plan.RunTimeTicks, c.report.PositionTicks)

	if offset != 0 {
		if err := c.dest.SeekRelative(ctx, offset); err != nil {
			return c.destinationError("seek", err)
		}
	}
	if err := c.dest.Resume(ctx); err != nil {
		return c.destinationError("resume", err)
	}
	_, _ = c.transition(evScrubEnd)

	c.playing = true
	c.position = c.scrub
	c.report.PositionTicks = target
	c.report.IsPaused = false
	c.stall.reset()
	c.reporter.Progress(c.report, domain.EventTimeUpdate)
	return nil
}

// seekOffset is the signed relative seek from the current true position to
// the scrub target.
func seekOffset(target float64, runtime, current domain.Ticks) domain.Ticks {
	return domain.Ticks(math.Round(target*float64(runtime))) - current
}

func (c *Controller) jump(ctx context.Context, delta domain.Ticks) error {
	if c.fsm.state != StatePlaying && c.fsm.state != StatePaused {
		return fmt.Errorf("%w: state=%s event=jump", domain.ErrInvalidTransition, c.fsm.state)
	}
	runtime := c.plan.RunTimeTicks
	target := c.report.PositionTicks + delta
	if target < 0 {
		target = 0
	}
	if runtime > 0 && target > runtime {
		target = runtime
	}
	offset := target - c.report.PositionTicks
	if offset == 0 {
		return nil
	}
	if err := c.dest.SeekRelative(ctx, offset); err != nil {
		return c.destinationError("seek", err)
	}
	c.report.PositionTicks = target
	c.position = fraction(target, runtime)
	c.stall.reset()
	c.reportEvent()
	return nil
}

// reportEvent sends an immediate progress report for a discrete change.
// timeupdate is only sent while playing.
func (c *Controller) reportEvent() {
	if c.fsm.state == StatePlaying {
		c.reporter.Progress(c.report, domain.EventTimeUpdate)
		return
	}
	c.reporter.Progress(c.report, domain.EventNone)
}

// endSession stops timers synchronously, sends the stop report and tears
// down the destination. ev is evStop or evFail.
func (c *Controller) endSession(ctx context.Context, ev event, cause error) {
	c.stopTimers()
	c.report.IsPaused = true
	c.reporter.Stop(c.report)

	if err := c.dest.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("failed to stop destination", "destination", c.dest.Kind(), "error", err)
	}
	if _, err := c.transition(ev); err != nil {
		c.logger.Error("unexpected transition failure", "error", err)
		c.fsm.reset()
	}
	c.playing = false
	c.plan = nil
	if cause != nil {
		c.lastErr = cause
		c.logger.Error("playback failed", "error", cause)
	}
}

func (c *Controller) switchTo(ctx context.Context, dest Destination) {
	if c.fsm.state == StateNegotiating {
		c.cancelPending(context.Canceled)
	}
	if c.sessionActive() {
		c.stopTimers()
		c.report.IsPaused = true
		c.reporter.Stop(c.report)
		if err := c.dest.Stop(ctx); err != nil {
			c.logger.Debug("failed to stop previous destination", "destination", c.dest.Kind(), "error", err)
		}
	}
	c.logger.Info("switching destination", "from", c.dest.Kind(), "to", dest.Kind())
	c.dest = dest
	c.events = dest.Events()
	c.plan = nil
	c.playing = false
	c.position = 0
	c.fsm.reset()
	metrics.SetPlaybackState(string(c.fsm.state))
}

func (c *Controller) cancelPending(cause error) {
	if c.pending == nil {
		return
	}
	c.pending.cancel()
	c.pending.done <- cause
	c.pending = nil
}

func (c *Controller) stopTimers() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.sampler != nil {
		c.sampler.Stop()
		c.sampler = nil
	}
	c.stall.reset()
}

func (c *Controller) shutdown() {
	if c.fsm.state == StateNegotiating {
		c.cancelPending(context.Canceled)
		_, _ = c.transition(evCancel)
	}
	if c.sessionActive() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.runCtx), defaultCommandTimeout)
		c.endSession(ctx, evStop, nil)
		cancel()
	}
	c.stopTimers()
	c.idle.stop()
}

func (c *Controller) transition(ev event) (State, error) {
	from := c.fsm.state
	to, err := c.fsm.fire(ev)
	if err != nil {
		return to, err
	}
	if from != to {
		c.logger.Debug("playback state", "from", from, "to", to, "event", ev)
		metrics.SetPlaybackState(string(to))
	}
	return to, nil
}

func (c *Controller) sessionActive() bool {
	switch c.fsm.state {
	case StateLoading, StatePlaying, StatePaused, StateScrubbing:
		return c.plan != nil
	}
	return false
}

func (c *Controller) setPosition(p float64) {
	c.position = clamp01(p)
	if c.plan != nil {
		c.report.PositionTicks = domain.Ticks(math.Floor(c.position * float64(c.plan.RunTimeTicks)))
	}
}

func (c *Controller) destinationError(op string, err error) error {
	var derr *domain.DestinationError
	if errors.As(err, &derr) {
		return err
	}
	return &domain.DestinationError{Destination: string(c.dest.Kind()), Op: op, Err: err}
}

func (c *Controller) status() Status {
	st := Status{
		State:           c.fsm.state,
		Destination:     c.dest.Kind(),
		Buffering:       c.stall.buffering,
		ControlsVisible: c.idle.visible,
		AudioIndex:      -1,
		SubtitleIndex:   domain.DisabledSubtitleIndex,
		Err:             c.lastErr,
	}
	if c.plan == nil {
		return st
	}
	st.ItemID = c.plan.ItemID
	st.PlaySessionID = c.plan.PlaySessionID
	st.PlayMethod = c.plan.PlayMethod
	st.AudioIndex = c.report.AudioStreamIndex
	st.SubtitleIndex = c.report.SubtitleStreamIndex
	st.AudioTracks = c.plan.AudioTracks
	st.SubtitleTracks = c.plan.SubtitleTracks

	st.Position = c.position
	if c.fsm.state == StateScrubbing {
		st.Position = c.scrub
	}
	st.Runtime = c.plan.RunTimeTicks.Duration()
	st.Elapsed = time.Duration(st.Position * float64(st.Runtime))
	st.Remaining = st.Runtime - st.Elapsed
	return st
}

func (c *Controller) notify() {
	if c.OnUpdate != nil {
		c.OnUpdate(c.status())
	}
}

func fraction(pos, runtime domain.Ticks) float64 {
	if runtime <= 0 {
		return 0
	}
	return clamp01(float64(pos) / float64(runtime))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
