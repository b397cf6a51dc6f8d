package cast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
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

// fakeReceiver plays the device side of a CastV2 connection.
type fakeReceiver struct {
	conn net.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	received  []message
	launchErr string
	noApp     bool

	done chan struct{}
}

func newFakeReceiver(t *testing.T) (*fakeReceiver, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	r := &fakeReceiver{conn: server, done: make(chan struct{})}
	go r.serve()
	t.Cleanup(func() {
		_ = server.Close()
		<-r.done
	})
	return r, client
}

func (r *fakeReceiver) serve() {
	defer close(r.done)
	for {
		m, err := readMessage(r.conn)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.received = append(r.received, m)
		launchErr, noApp := r.launchErr, r.noApp
		r.mu.Unlock()

		var head controlPayload
		_ = json.Unmarshal([]byte(m.Payload), &head)

		switch {
		case m.Namespace == nsHeartbeat && head.Type == "PING":
			r.send(nsHeartbeat, m.SourceID, `{"type":"PONG"}`)
		case m.Namespace == nsReceiver && head.Type == "LAUNCH":
			switch {
			case launchErr != "":
				r.sendJSON(nsReceiver, m.SourceID, map[string]any{
					"type": "LAUNCH_ERROR", "requestId": head.RequestID, "reason": launchErr,
				})
			case noApp:
				r.sendJSON(nsReceiver, m.SourceID, map[string]any{
					"type": "RECEIVER_STATUS", "requestId": head.RequestID, "status": map[string]any{},
				})
			default:
				r.sendJSON(nsReceiver, m.SourceID, map[string]any{
					"type":      "RECEIVER_STATUS",
					"requestId": head.RequestID,
					"status": map[string]any{
						"applications": []map[string]any{{
							"appId":       head.AppID,
							"displayName": "Jellyfin",
							"transportId": "web-7",
						}},
					},
				})
			}
		}
	}
}

func (r *fakeReceiver) send(namespace, destination, payload string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = writeMessage(r.conn, message{
		SourceID:      "web-7",
		DestinationID: destination,
		Namespace:     namespace,
		Payload:       payload,
	})
}

func (r *fakeReceiver) sendJSON(namespace, destination string, v any) {
	body, _ := json.Marshal(v)
	r.send(namespace, destination, string(body))
}

// messages returns received frames on namespace, waiting briefly for at
// least n of them.
func (r *fakeReceiver) messages(t *testing.T, namespace string, n int) []message {
	t.Helper()
	var out []message
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		out = out[:0]
		for _, m := range r.received {
			if m.Namespace == namespace {
				out = append(out, m)
			}
		}
		return len(out) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return out
}

func commandsOf(t *testing.T, msgs []message) []envelope {
	t.Helper()
	out := make([]envelope, len(msgs))
	for i, m := range msgs {
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &out[i]))
	}
	return out
}

var testDevice = domain.ReceiverDevice{
	ID:           "abc123",
	FriendlyName: "Living Room TV",
	Model:        "Chromecast",
	Host:         "192.168.1.20",
	Port:         8009,
}

var testIdentity = Identity{
	UserID:        "user-1",
	AccessToken:   "token-1",
	ServerAddress: "http://jf.local:8096",
	ServerID:      "server-1",
	ServerVersion: "10.9.11",
}

// newTestBridge returns a bridge whose dial hands out the pipe end.
func newTestBridge(conn net.Conn) *Bridge {
	b := NewBridge(NewBrowser(time.Second, nil), testIdentity, "", nil)
	b.dial = func(ctx context.Context, _ domain.ReceiverDevice, _ *slog.Logger) (*Client, error) {
		return NewClient(ctx, conn, time.Hour, nil)
	}
	return b
}

func connectAndLaunch(t *testing.T) (*fakeReceiver, *Session) {
	t.Helper()
	rcv, conn := newFakeReceiver(t)
	b := newTestBridge(conn)

	s, err := b.Connect(context.Background(), testDevice)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	id, err := b.Launch(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, "web-7", id)
	return rcv, s
}

func TestChannel_FrameRoundTripsUnknownFields(t *testing.T) {
	m := message{SourceID: "sender-1", DestinationID: "receiver-0", Namespace: nsReceiver, Payload: `{"type":"GET_STATUS"}`}

	body := m.marshal()
	// Unknown trailing field must be skipped.
	body = append(body, 0x40, 0x01) // field 8, varint 1

	got, err := unmarshalMessage(body)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestChannel_RejectsOversizedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = server.Write([]byte{0x00, 0x10, 0x00, 0x01})
	}()

	_, err := readMessage(client)
	assert.ErrorIs(t, err, errFrameTooLarge)
}

func TestBridge_ConnectAndLaunch(t *testing.T) {
	rcv, s := connectAndLaunch(t)

	conns := rcv.messages(t, nsConnection, 2)
	assert.Equal(t, "receiver-0", conns[0].DestinationID)
	assert.Equal(t, "web-7", conns[1].DestinationID)

	launch := rcv.messages(t, nsReceiver, 1)
	assert.Contains(t, launch[0].Payload, `"appId":"F007D354"`)
	assert.Equal(t, "web-7", s.TransportID())
}

func TestBridge_LaunchFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *fakeReceiver)
	}{
		{"launch error", func(r *fakeReceiver) { r.launchErr = "NOT_FOUND" }},
		{"app missing from status", func(r *fakeReceiver) { r.noApp = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rcv, conn := newFakeReceiver(t)
			rcv.mu.Lock()
			tt.setup(rcv)
			rcv.mu.Unlock()

			b := newTestBridge(conn)
			s, err := b.Connect(context.Background(), testDevice)
			require.NoError(t, err)
			defer s.Close()

			_, err = b.Launch(context.Background(), s)

			var destErr *domain.DestinationError
			require.ErrorAs(t, err, &destErr)
			assert.Equal(t, "remote", destErr.Destination)
			assert.Equal(t, "launch", destErr.Op)
			assert.ErrorIs(t, err, domain.ErrLaunchFailed)
		})
	}
}

func TestSession_SendBeforeLaunch(t *testing.T) {
	_, conn := newFakeReceiver(t)
	b := newTestBridge(conn)
	s, err := b.Connect(context.Background(), testDevice)
	require.NoError(t, err)
	defer s.Close()

	err = s.Send(context.Background(), CommandPause, nil)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSession_SendCarriesIdentity(t *testing.T) {
	rcv, s := connectAndLaunch(t)

	require.NoError(t, s.Send(context.Background(), CommandPause, nil))

	msgs := rcv.messages(t, nsJellyfin, 1)
	assert.Equal(t, "web-7", msgs[0].DestinationID)

	cmd := commandsOf(t, msgs)[0]
	assert.Equal(t, envelope{
		Options:       map[string]any{},
		Command:       "Pause",
		UserID:        "user-1",
		AccessToken:   "token-1",
		ServerAddress: "http://jf.local:8096",
		ServerID:      "server-1",
		ServerVersion: "10.9.11",
		ReceiverName:  "Living Room TV",
	}, cmd)
}

func TestClient_AnswersPing(t *testing.T) {
	rcv, _ := connectAndLaunch(t)

	rcv.send(nsHeartbeat, "sender-0", `{"type":"PING"}`)

	pongs := rcv.messages(t, nsHeartbeat, 1)
	assert.JSONEq(t, `{"type":"PONG"}`, pongs[0].Payload)
}

func TestClient_ReceiverCloseEndsSession(t *testing.T) {
	rcv, s := connectAndLaunch(t)

	rcv.send(nsConnection, "sender-0", `{"type":"CLOSE"}`)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.ErrorIs(t, s.Err(), errClosedByReceiver)
	assert.ErrorIs(t, s.Send(context.Background(), CommandPause, nil), domain.ErrNotConnected)
}

func TestMatchReceiver(t *testing.T) {
	devices := []domain.ReceiverDevice{
		{ID: "1", FriendlyName: "Bedroom"},
		{ID: "2", FriendlyName: "Living Room TV"},
		{ID: "3", FriendlyName: "Kitchen Display"},
	}

	tests := []struct {
		query string
		want  string
	}{
		{"living room tv", "2"},
		{"3", "3"},
		{"liv", "2"},
		{"kdisp", "3"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			d, err := MatchReceiver(tt.query, devices)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.ID)
		})
	}

	_, err := MatchReceiver("garage", devices)
	assert.ErrorIs(t, err, domain.ErrReceiverNotFound)
}
