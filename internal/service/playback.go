package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
)

// playbackController is the part of the controller the service drives
// (consumer-defined interface)
type playbackController interface {
	Play(ctx context.Context, itemID string, start domain.Ticks) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (playback.Status, error)
}

// PlaybackService orchestrates playback operations
type PlaybackService struct {
	controller playbackController
	logger     *slog.Logger

	mu      sync.Mutex
	latest  playback.Status
	changed chan struct{}
}

// NewPlaybackService creates a new playback service
func NewPlaybackService(controller playbackController, logger *slog.Logger) *PlaybackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackService{
		controller: controller,
		logger:     logger,
		changed:    make(chan struct{}),
	}
}

// Observe records a status update. Install it as the controller's OnUpdate
// hook; it never blocks.
func (s *PlaybackService) Observe(st playback.Status) {
	s.mu.Lock()
	s.latest = st
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Play starts playback of an item at start.
func (s *PlaybackService) Play(ctx context.Context, itemID string, start time.Duration) error {
	s.logger.Info("starting playback", "itemID", itemID, "offset", start)
	if err := s.controller.Play(ctx, itemID, domain.TicksFromDuration(start)); err != nil {
		s.logger.Error("failed to start playback", "error", err, "itemID", itemID)
		return err
	}
	return nil
}

// Stop ends the current session.
func (s *PlaybackService) Stop(ctx context.Context) error {
	return s.controller.Stop(ctx)
}

// Status returns the controller's current status.
func (s *PlaybackService) Status(ctx context.Context) (playback.Status, error) {
	return s.controller.Status(ctx)
}

// Wait blocks until the session is over (stopped, ended, failed or returned
// to idle) and returns the final status. A failed session returns its error.
func (s *PlaybackService) Wait(ctx context.Context) (playback.Status, error) {
	current, err := s.controller.Status(ctx)
	if err != nil {
		return current, err
	}
	s.Observe(current)

	for {
		s.mu.Lock()
		st, changed := s.latest, s.changed
		s.mu.Unlock()

		if finished(st.State) {
			return st, st.Err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func finished(state playback.State) bool {
	switch state {
	case playback.StateStopped, playback.StateErrored, playback.StateIdle:
		return true
	default:
		return false
	}
}
