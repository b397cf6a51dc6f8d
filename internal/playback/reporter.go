package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/metrics"
)

// defaultReportTimeout bounds a single report call.
const defaultReportTimeout = 10 * time.Second

// ReportAPI sends one session report to the server.
type ReportAPI interface {
	ReportPlayback(ctx context.Context, kind domain.ReportKind, state domain.SessionReportState, event domain.ProgressEvent) error
}

type reportJob struct {
	kind  domain.ReportKind
	state domain.SessionReportState
	event domain.ProgressEvent
}

// Reporter delivers session reports in order on a single worker goroutine.
// Enqueueing never blocks; failures are logged and dropped.
//
// Per play session, progress and stop are dropped until start has been queued
// and every report is dropped once stop has been queued. A session is
// forgotten once its stop report has been sent.
type Reporter struct {
	api     ReportAPI
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	queue   []reportJob
	closed  bool
	started map[string]bool
	stopped map[string]bool

	wake chan struct{}
	done chan struct{}
}

// NewReporter creates a reporter and starts its worker. Call Close to drain it.
func NewReporter(api ReportAPI, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		api:     api,
		logger:  logger,
		timeout: defaultReportTimeout,
		started: make(map[string]bool),
		stopped: make(map[string]bool),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Start queues the start report for a session.
func (r *Reporter) Start(state domain.SessionReportState) {
	r.enqueue(reportJob{kind: domain.ReportStart, state: state})
}

// Progress queues a progress report.
func (r *Reporter) Progress(state domain.SessionReportState, event domain.ProgressEvent) {
	r.enqueue(reportJob{kind: domain.ReportProgress, state: state, event: event})
}

// Stop queues the final report for a session. The server is always told the
// session is paused.
func (r *Reporter) Stop(state domain.SessionReportState) {
	state.IsPaused = true
	r.enqueue(reportJob{kind: domain.ReportStop, state: state})
}

// Close stops accepting reports, sends what is queued and waits for the worker.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.signal()
	<-r.done
}

func (r *Reporter) enqueue(job reportJob) {
	id := job.state.PlaySessionID

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("reporter closed, dropping report", "kind", job.kind, "play_session_id", id)
		return
	}
	if r.stopped[id] {
		r.mu.Unlock()
		r.logger.Debug("session already stopped, dropping report", "kind", job.kind, "play_session_id", id)
		return
	}
	switch job.kind {
	case domain.ReportStart:
		if r.started[id] {
			r.mu.Unlock()
			return
		}
		r.started[id] = true
	case domain.ReportProgress:
		if !r.started[id] {
			r.mu.Unlock()
			r.logger.Debug("session not started, dropping progress", "play_session_id", id)
			return
		}
	case domain.ReportStop:
		if !r.started[id] {
			r.mu.Unlock()
			r.logger.Debug("session not started, dropping stop", "play_session_id", id)
			return
		}
		r.stopped[id] = true
	}
	r.queue = append(r.queue, job)
	r.mu.Unlock()

	r.signal()
}

// forget drops a finished session. Without a started entry any late progress
// for it is still dropped.
func (r *Reporter) forget(id string) {
	r.mu.Lock()
	delete(r.started, id)
	delete(r.stopped, id)
	r.mu.Unlock()
}

func (r *Reporter) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reporter) run() {
	defer close(r.done)
	for {
		job, ok := r.next()
		if !ok {
			return
		}
		r.send(job)
	}
}

func (r *Reporter) next() (reportJob, bool) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			job := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return job, true
		}
		closed := r.closed
		r.mu.Unlock()

		if closed {
			return reportJob{}, false
		}
		<-r.wake
	}
}

func (r *Reporter) send(job reportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.api.ReportPlayback(ctx, job.kind, job.state, job.event)
	metrics.RecordReport(string(job.kind), err)
	if job.kind == domain.ReportStop {
		r.forget(job.state.PlaySessionID)
	}
	if err != nil {
		rerr := &domain.ReportError{Kind: job.kind, PlaySessionID: job.state.PlaySessionID, Err: err}
		r.logger.Warn("session report failed", "error", rerr)
		return
	}
	r.logger.Debug("session report sent",
		"kind", job.kind,
		"event", job.event,
		"play_session_id", job.state.PlaySessionID,
		"position_ticks", int64(job.state.PositionTicks))
}
