package cast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/metrics"
)

// Identity is the server and user information every receiver command carries.
type Identity struct {
	UserID        string
	AccessToken   string
	ServerAddress string
	ServerID      string
	ServerVersion string
}

// envelope is the Jellyfin receiver command format.
type envelope struct {
	Options        map[string]any `json:"options"`
	Command        string         `json:"command"`
	UserID         string         `json:"userId"`
	DeviceID       string         `json:"deviceId,omitempty"`
	AccessToken    string         `json:"accessToken"`
	ServerAddress  string         `json:"serverAddress"`
	ServerID       string         `json:"serverId"`
	ServerVersion  string         `json:"serverVersion"`
	ReceiverName   string         `json:"receiverName"`
	SubtitleBurnIn bool           `json:"subtitleBurnIn"`
}

// dialFunc opens a CastV2 client to a device.
type dialFunc func(ctx context.Context, device domain.ReceiverDevice, logger *slog.Logger) (*Client, error)

// Bridge discovers receivers, connects to them and launches the receiver app.
type Bridge struct {
	browser  *Browser
	identity Identity
	appID    string
	dial     dialFunc
	logger   *slog.Logger
}

// NewBridge creates a Bridge. An empty appID selects DefaultAppID.
func NewBridge(browser *Browser, identity Identity, appID string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if appID == "" {
		appID = DefaultAppID
	}
	return &Bridge{
		browser:  browser,
		identity: identity,
		appID:    appID,
		dial:     Dial,
		logger:   logger,
	}
}

// Discover streams receivers until ctx is cancelled.
func (b *Bridge) Discover(ctx context.Context) <-chan domain.ReceiverDevice {
	return b.browser.Discover(ctx)
}

// Scan runs one discovery round.
func (b *Bridge) Scan(ctx context.Context) ([]domain.ReceiverDevice, error) {
	return b.browser.Scan(ctx)
}

// Connect opens a session to device. The receiver app is not launched yet.
func (b *Bridge) Connect(ctx context.Context, device domain.ReceiverDevice) (*Session, error) {
	client, err := b.dial(ctx, device, b.logger)
	if err != nil {
		return nil, remoteError("connect", err)
	}
	b.logger.Info("connected to receiver", "device", device.FriendlyName, "host", device.Host)
	return &Session{
		Device:   device,
		client:   client,
		identity: b.identity,
		logger:   b.logger,
	}, nil
}

// Launch starts the receiver app on an open session and returns its
// transport id.
func (b *Bridge) Launch(ctx context.Context, s *Session) (string, error) {
	id, err := s.client.Launch(ctx, b.appID)
	if err != nil {
		return "", remoteError("launch", err)
	}
	s.mu.Lock()
	s.transportID = id
	s.mu.Unlock()
	return id, nil
}

// Open connects to device, launches the receiver app and returns the remote
// destination. Nothing is left open on failure.
func (b *Bridge) Open(ctx context.Context, device domain.ReceiverDevice) (*Remote, error) {
	s, err := b.Connect(ctx, device)
	if err != nil {
		return nil, err
	}
	if _, err := b.Launch(ctx, s); err != nil {
		_ = s.Close()
		return nil, err
	}
	return NewRemote(s, b.logger), nil
}

// Session is a connection to one receiver.
type Session struct {
	Device domain.ReceiverDevice

	client   *Client
	identity Identity
	logger   *slog.Logger

	mu          sync.Mutex
	transportID string
}

// TransportID is empty until the receiver app is launched.
func (s *Session) TransportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportID
}

// Send delivers a named command with its options to the receiver app.
func (s *Session) Send(ctx context.Context, command string, options map[string]any) error {
	transport := s.TransportID()
	if transport == "" {
		metrics.RecordCastCommand(command, domain.ErrNotConnected)
		return remoteError(command, domain.ErrNotConnected)
	}
	if options == nil {
		options = map[string]any{}
	}

	err := s.client.Send(ctx, nsJellyfin, transport, envelope{
		Options:       options,
		Command:       command,
		UserID:        s.identity.UserID,
		AccessToken:   s.identity.AccessToken,
		ServerAddress: s.identity.ServerAddress,
		ServerID:      s.identity.ServerID,
		ServerVersion: s.identity.ServerVersion,
		ReceiverName:  s.Device.FriendlyName,
	})
	metrics.RecordCastCommand(command, err)
	if err != nil {
		return remoteError(command, err)
	}
	s.logger.Debug("sent cast command", "command", command, "device", s.Device.FriendlyName)
	return nil
}

// OnMessage registers a handler for messages from the receiver app.
func (s *Session) OnMessage(fn func(payload []byte)) {
	s.client.OnMessage(func(namespace string, payload []byte) {
		if namespace == nsJellyfin {
			fn(payload)
		}
	})
}

// Done is closed when the receiver connection is gone.
func (s *Session) Done() <-chan struct{} { return s.client.Done() }

// Err reports why the connection ended.
func (s *Session) Err() error { return s.client.Err() }

// Close disconnects from the receiver.
func (s *Session) Close() error { return s.client.Close() }

// MatchReceiver picks the device best matching query by id or friendly name.
func MatchReceiver(query string, devices []domain.ReceiverDevice) (domain.ReceiverDevice, error) {
	for _, d := range devices {
		if d.ID == query || strings.EqualFold(d.FriendlyName, query) {
			return d, nil
		}
	}

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.FriendlyName
	}
	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return domain.ReceiverDevice{}, fmt.Errorf("%w: %q", domain.ErrReceiverNotFound, query)
	}
	return devices[matches[0].Index], nil
}

func remoteError(op string, err error) error {
	return &domain.DestinationError{Destination: string(domain.DestinationRemote), Op: op, Err: err}
}
