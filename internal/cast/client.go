// Package cast implements the CastV2 sender side used to hand playback to a
// network receiver running the Jellyfin receiver application.
package cast

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/kinocast/internal/domain"
)

const (
	nsConnection = "urn:x-cast:com.google.cast.tp.connection"
	nsHeartbeat  = "urn:x-cast:com.google.cast.tp.heartbeat"
	nsReceiver   = "urn:x-cast:com.google.cast.receiver"
	nsJellyfin   = "urn:x-cast:com.connectsdk"

	platformReceiver = "receiver-0"

	// DefaultAppID is the Jellyfin receiver application.
	DefaultAppID = "F007D354"

	// DefaultPingInterval is the CastV2 keepalive cadence.
	DefaultPingInterval = 5 * time.Second
)

var errClosedByReceiver = errors.New("connection closed by receiver")

type controlPayload struct {
	Type      string `json:"type"`
	RequestID int    `json:"requestId,omitempty"`
	AppID     string `json:"appId,omitempty"`
}

type receiverStatus struct {
	Type      string `json:"type"`
	RequestID int    `json:"requestId"`
	Reason    string `json:"reason"`
	Status    struct {
		Applications []struct {
			AppID       string `json:"appId"`
			DisplayName string `json:"displayName"`
			SessionID   string `json:"sessionId"`
			TransportID string `json:"transportId"`
		} `json:"applications"`
	} `json:"status"`
}

// Client is one CastV2 connection to a receiver.
type Client struct {
	conn     net.Conn
	senderID string
	logger   *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	nextReq   int
	pending   map[int]chan json.RawMessage
	handler   func(namespace string, payload []byte)
	connected []string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Dial opens a TLS connection to the receiver and performs the platform
// CONNECT handshake.
func Dial(ctx context.Context, device domain.ReceiverDevice, logger *slog.Logger) (*Client, error) {
	d := tls.Dialer{
		// Receivers present self-signed device certificates.
		Config: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	addr := net.JoinHostPort(device.Host, strconv.Itoa(device.Port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial receiver %s: %w", addr, err)
	}
	return NewClient(ctx, conn, DefaultPingInterval, logger)
}

// NewClient starts the reader and heartbeat loops on an established
// connection and connects to the platform receiver.
func NewClient(ctx context.Context, conn net.Conn, pingInterval time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		senderID: "sender-" + uuid.NewString(),
		logger:   logger,
		pending:  make(map[int]chan json.RawMessage),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(c.readLoop)
	g.Go(func() error { return c.heartbeatLoop(gctx, pingInterval) })
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	go func() {
		err := g.Wait()
		c.mu.Lock()
		c.err = err
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		close(c.done)
	}()

	if err := c.connect(ctx, platformReceiver); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// OnMessage registers the handler for application namespace messages.
// It runs on the reader goroutine.
func (c *Client) OnMessage(fn func(namespace string, payload []byte)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended. Valid after Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Launch starts appID on the receiver and connects to its transport.
func (c *Client) Launch(ctx context.Context, appID string) (string, error) {
	raw, err := c.request(ctx, nsReceiver, platformReceiver, controlPayload{Type: "LAUNCH", AppID: appID})
	if err != nil {
		return "", err
	}

	var status receiverStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", fmt.Errorf("failed to decode receiver status: %w", err)
	}
	if status.Type == "LAUNCH_ERROR" {
		return "", fmt.Errorf("%w: %s", domain.ErrLaunchFailed, status.Reason)
	}
	for _, app := range status.Status.Applications {
		if app.AppID == appID && app.TransportID != "" {
			if err := c.connect(ctx, app.TransportID); err != nil {
				return "", err
			}
			c.logger.Info("receiver application launched", "app", app.DisplayName, "transport", app.TransportID)
			return app.TransportID, nil
		}
	}
	return "", fmt.Errorf("%w: %s not running after launch", domain.ErrLaunchFailed, appID)
}

// Send writes a JSON payload to a namespace on a destination.
func (c *Client) Send(ctx context.Context, namespace, destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cast payload: %w", err)
	}
	return c.write(ctx, message{
		SourceID:      c.senderID,
		DestinationID: destination,
		Namespace:     namespace,
		Payload:       string(body),
	})
}

// Close sends CLOSE on every virtual connection and tears the socket down.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.mu.Lock()
	connected := append([]string(nil), c.connected...)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	for i := len(connected) - 1; i >= 0; i-- {
		_ = c.Send(ctx, nsConnection, connected[i], controlPayload{Type: "CLOSE"})
	}
	cancel()

	c.cancel()
	<-c.done
	return nil
}

func (c *Client) connect(ctx context.Context, destination string) error {
	if err := c.Send(ctx, nsConnection, destination, controlPayload{Type: "CONNECT"}); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", destination, err)
	}
	c.mu.Lock()
	c.connected = append(c.connected, destination)
	c.mu.Unlock()
	return nil
}

func (c *Client) request(ctx context.Context, namespace, destination string, payload controlPayload) (json.RawMessage, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, domain.ErrNotConnected
	}
	c.nextReq++
	id := c.nextReq
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload.RequestID = id
	if err := c.Send(ctx, namespace, destination, payload); err != nil {
		return nil, err
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, domain.ErrNotConnected
		}
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(ctx context.Context, m message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return domain.ErrNotConnected
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	return writeMessage(c.conn, m)
}

func (c *Client) readLoop() error {
	for {
		m, err := readMessage(c.conn)
		if err != nil {
			return fmt.Errorf("failed to read from receiver: %w", err)
		}
		if err := c.dispatch(m); err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(m message) error {
	var head controlPayload
	_ = json.Unmarshal([]byte(m.Payload), &head)

	switch m.Namespace {
	case nsHeartbeat:
		if head.Type == "PING" {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return c.Send(ctx, nsHeartbeat, m.SourceID, controlPayload{Type: "PONG"})
		}
		return nil

	case nsConnection:
		if head.Type == "CLOSE" {
			c.logger.Info("receiver closed virtual connection", "source", m.SourceID)
			return errClosedByReceiver
		}
		return nil
	}

	c.mu.Lock()
	ch, waiting := c.pending[head.RequestID]
	handler := c.handler
	c.mu.Unlock()

	if head.RequestID != 0 && waiting {
		ch <- json.RawMessage(m.Payload)
		return nil
	}
	if handler != nil {
		handler(m.Namespace, []byte(m.Payload))
	}
	return nil
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.Send(pingCtx, nsHeartbeat, platformReceiver, controlPayload{Type: "PING"})
			cancel()
			if err != nil {
				return fmt.Errorf("failed to ping receiver: %w", err)
			}
		}
	}
}
