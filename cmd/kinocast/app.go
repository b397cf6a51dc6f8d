package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmcdole/kinocast/internal/adapter"
	"github.com/mmcdole/kinocast/internal/cast"
	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/mediaserver/jellyfin"
	"github.com/mmcdole/kinocast/internal/playback"
	"github.com/mmcdole/kinocast/internal/player"
	"github.com/mmcdole/kinocast/internal/profile"
	"github.com/mmcdole/kinocast/internal/service"
	"github.com/mmcdole/kinocast/internal/store"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg    *adapter.Config
	logger *slog.Logger

	store    *store.StateStore
	creds    domain.Credentials
	client   *jellyfin.Client
	profiler *profile.Profiler

	// Set by startPlayback.
	engine     *player.Engine
	reporter   *playback.Reporter
	controller *playback.Controller
	playback   *service.PlaybackService
	cast       *service.CastService
	metrics    *http.Server

	runCancel context.CancelFunc
	runDone   chan error
	hooks     []func(playback.Status)
	closeOnce sync.Once
}

// newApp opens local state and the server client. It does not contact the
// server.
func newApp(cfg *adapter.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewStateStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	deviceID, err := st.DeviceID()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}

	creds := domain.Credentials{
		ServerURL:  cfg.Server.URL,
		UserID:     cfg.Server.UserID,
		Token:      cfg.Server.Token,
		DeviceID:   deviceID,
		DeviceName: cfg.Device.Name,
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		creds:    creds,
		client:   jellyfin.NewClient(creds, logger),
		profiler: profile.New(cfg.Device.HardwareID, logger),
	}, nil
}

func (a *app) requireLogin() error {
	if !a.cfg.IsConfigured() {
		return errors.New("not logged in: run `kinocast login <server-url>` first")
	}
	return nil
}

func (a *app) negotiator() *playback.Negotiator {
	selector := playback.NewTrackSelector(a.cfg.Playback.PreferredSubtitleLanguage)
	return playback.NewNegotiator(a.client, a.creds, selector, a.logger)
}

// onUpdate registers a status hook. Hooks run on the controller loop and
// must not block.
func (a *app) onUpdate(fn func(playback.Status)) {
	a.hooks = append(a.hooks, fn)
}

// startPlayback wires the controller with the local engine and runs it until
// close.
func (a *app) startPlayback(metricsAddr string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if metricsAddr != "" {
		a.serveMetrics(metricsAddr)
	}

	launcher := player.NewLauncher(a.cfg.Player.Command, a.cfg.Player.Args, a.logger)
	a.engine = player.NewEngine(launcher, a.logger)
	a.reporter = playback.NewReporter(a.client, a.logger)
	a.controller = playback.NewController(a.negotiator(), a.profiler, a.reporter, a.engine, a.cfg.ControllerOptions(), a.logger)
	a.playback = service.NewPlaybackService(a.controller, a.logger)

	hooks := append([]func(playback.Status){a.playback.Observe}, a.hooks...)
	a.controller.OnUpdate = func(st playback.Status) {
		for _, fn := range hooks {
			fn(st)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.runCancel = cancel
	a.runDone = make(chan error, 1)
	go func() { a.runDone <- a.controller.Run(ctx) }()
	return nil
}

// castService builds the cast service. The server identity for the receiver
// payload is only fetched once playback is wired.
func (a *app) castService(ctx context.Context) (*service.CastService, error) {
	identity := cast.Identity{
		UserID:        a.creds.UserID,
		AccessToken:   a.creds.Token,
		ServerAddress: a.creds.ServerURL,
	}
	if a.controller != nil {
		info, err := a.client.PublicSystemInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to identify server: %w", err)
		}
		identity.ServerID = info.ID
		identity.ServerVersion = info.Version
	}

	browser := cast.NewBrowser(a.cfg.Cast.DiscoveryTimeout, a.logger)
	bridge := cast.NewBridge(browser, identity, a.cfg.Cast.AppID, a.logger)

	a.cast = service.NewCastService(bridge, a.controller, a.store, a.logger)
	a.cast.SetReceiverTTL(a.cfg.Cast.ReceiverTTL)
	return a.cast, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)
}

// close stops the controller (which sends the final stop report), drains the
// reporter and releases the player and local state.
func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.cast != nil {
			if err := a.cast.Close(); err != nil {
				a.logger.Debug("failed to close cast session", "error", err)
			}
		}
		if a.runCancel != nil {
			a.runCancel()
			<-a.runDone
		}
		if a.reporter != nil {
			a.reporter.Close()
		}
		if a.engine != nil {
			if err := a.engine.Close(); err != nil {
				a.logger.Debug("failed to close player", "error", err)
			}
		}
		if a.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = a.metrics.Shutdown(ctx)
			cancel()
		}
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close state store", "error", err)
		}
	})
}
