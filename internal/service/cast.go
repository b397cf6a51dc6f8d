package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/kinocast/internal/cast"
	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
)

// DefaultReceiverTTL is how long a remembered receiver is trusted without a
// fresh discovery round.
const DefaultReceiverTTL = 24 * time.Hour

// RemoteDestination is a connected receiver.
type RemoteDestination interface {
	playback.Destination
	Device() domain.ReceiverDevice
	Done() <-chan struct{}
	Close() error
}

// handoffController moves sessions between destinations (consumer-defined interface)
type handoffController interface {
	Play(ctx context.Context, itemID string, start domain.Ticks) error
	BeginHandoff(ctx context.Context) (playback.Handoff, error)
	AbortHandoff(ctx context.Context, h playback.Handoff) error
	SwitchDestination(ctx context.Context, dest playback.Destination) error
	ReturnToLocal(ctx context.Context) error
}

// receiverStore remembers discovered receivers (consumer-defined interface)
type receiverStore interface {
	SaveReceivers(devices []domain.ReceiverDevice, seen time.Time) error
	Receivers(since time.Time) ([]domain.ReceiverDevice, error)
}

// CastService discovers receivers and hands playback to them.
type CastService struct {
	scan       func(ctx context.Context) ([]domain.ReceiverDevice, error)
	open       func(ctx context.Context, device domain.ReceiverDevice) (RemoteDestination, error)
	controller handoffController
	store      receiverStore
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.Mutex
	remote RemoteDestination
	wg     sync.WaitGroup
}

// NewCastService creates a cast service on top of a bridge.
func NewCastService(bridge *cast.Bridge, controller handoffController, store receiverStore, logger *slog.Logger) *CastService {
	return newCastService(
		bridge.Scan,
		func(ctx context.Context, d domain.ReceiverDevice) (RemoteDestination, error) {
			r, err := bridge.Open(ctx, d)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		controller, store, logger,
	)
}

func newCastService(
	scan func(ctx context.Context) ([]domain.ReceiverDevice, error),
	open func(ctx context.Context, device domain.ReceiverDevice) (RemoteDestination, error),
	controller handoffController,
	store receiverStore,
	logger *slog.Logger,
) *CastService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CastService{
		scan:       scan,
		open:       open,
		controller: controller,
		store:      store,
		ttl:        DefaultReceiverTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// SetReceiverTTL sets how long remembered receivers are used before
// rediscovery. Zero or less keeps the default.
func (s *CastService) SetReceiverTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// Discover runs a discovery round and remembers what it found.
func (s *CastService) Discover(ctx context.Context) ([]domain.ReceiverDevice, error) {
	devices, err := s.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover receivers: %w", err)
	}
	if err := s.store.SaveReceivers(devices, s.now()); err != nil {
		s.logger.Warn("failed to remember receivers", "error", err)
	}
	s.logger.Info("discovered receivers", "count", len(devices))
	return devices, nil
}

// Resolve finds a receiver by id or name, trying remembered receivers before
// running discovery.
func (s *CastService) Resolve(ctx context.Context, query string) (domain.ReceiverDevice, error) {
	known, err := s.store.Receivers(s.now().Add(-s.ttl))
	if err != nil {
		s.logger.Warn("failed to read remembered receivers", "error", err)
	}
	if d, err := cast.MatchReceiver(query, known); err == nil {
		return d, nil
	}

	devices, err := s.Discover(ctx)
	if err != nil {
		return domain.ReceiverDevice{}, err
	}
	return cast.MatchReceiver(query, devices)
}

// CastTo moves playback to device. A session active on the current
// destination is paused before the receiver is contacted, then stopped and
// restarted on the receiver at the same position. On failure the previous
// session resumes.
func (s *CastService) CastTo(ctx context.Context, device domain.ReceiverDevice) error {
	h, err := s.controller.BeginHandoff(ctx)
	if err != nil {
		return err
	}

	remote, err := s.open(ctx, device)
	if err != nil {
		s.logger.Error("failed to open receiver", "device", device.FriendlyName, "error", err)
		if abortErr := s.controller.AbortHandoff(ctx, h); abortErr != nil {
			s.logger.Warn("failed to resume after cast failure", "error", abortErr)
		}
		return err
	}

	if err := s.controller.SwitchDestination(ctx, remote); err != nil {
		s.logger.Error("failed to switch to receiver", "device", device.FriendlyName, "error", err)
		_ = remote.Close()
		if abortErr := s.controller.AbortHandoff(ctx, h); abortErr != nil {
			s.logger.Warn("failed to resume after cast failure", "error", abortErr)
		}
		return err
	}

	s.mu.Lock()
	previous := s.remote
	s.remote = remote
	s.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}

	s.wg.Add(1)
	go s.watch(remote)

	s.logger.Info("casting to receiver", "device", device.FriendlyName, "handoff", h.Active())
	if !h.Active() {
		return nil
	}
	return s.controller.Play(ctx, h.ItemID, h.Position)
}

// Disconnect returns playback to the local destination. The controller is
// left idle.
func (s *CastService) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	remote := s.remote
	s.remote = nil
	s.mu.Unlock()
	if remote == nil {
		return nil
	}

	err := s.controller.ReturnToLocal(ctx)
	return errors.Join(err, remote.Close())
}

// Close disconnects and waits for background watchers.
func (s *CastService) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Disconnect(ctx)
	s.wg.Wait()
	return err
}

// Active returns the connected receiver, if any.
func (s *CastService) Active() (domain.ReceiverDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return domain.ReceiverDevice{}, false
	}
	return s.remote.Device(), true
}

// watch cleans up after a receiver that disconnects on its own. The
// controller has already switched back to local by the time Done fires, or
// does so here.
func (s *CastService) watch(remote RemoteDestination) {
	defer s.wg.Done()
	<-remote.Done()

	s.mu.Lock()
	current := s.remote == remote
	if current {
		s.remote = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}

	s.logger.Info("receiver connection ended", "device", remote.Device().FriendlyName)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.controller.ReturnToLocal(ctx); err != nil {
		s.logger.Debug("failed to return to local", "error", err)
	}
	_ = remote.Close()
}
