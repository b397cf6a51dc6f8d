package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// errIPCClosed is returned for requests issued after the socket went away.
var errIPCClosed = errors.New("ipc connection closed")

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id"`
}

// ipcMessage is either a reply (Event empty) or an asynchronous event.
type ipcMessage struct {
	RequestID int             `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`

	Event     string `json:"event"`
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
	FileError string `json:"file_error"`
}

type ipcReply struct {
	data json.RawMessage
	err  error
}

// ipcClient speaks mpv's line-delimited JSON IPC protocol.
type ipcClient struct {
	conn    net.Conn
	onEvent func(ipcMessage)
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan ipcReply
	closed  bool

	done chan struct{}
}

// newIPCClient starts reading from conn. onEvent and onClose run on the
// reader goroutine; onClose runs once, after the socket fails.
func newIPCClient(conn net.Conn, onEvent func(ipcMessage), onClose func(error), logger *slog.Logger) *ipcClient {
	c := &ipcClient{
		conn:    conn,
		onEvent: onEvent,
		logger:  logger,
		pending: make(map[int]chan ipcReply),
		done:    make(chan struct{}),
	}
	go c.readLoop(onClose)
	return c
}

// Call sends a command and waits for its reply.
func (c *ipcClient) Call(ctx context.Context, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errIPCClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan ipcReply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to encode ipc command: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to write ipc command: %w", err)
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Done is closed when the reader exits.
func (c *ipcClient) Done() <-chan struct{} { return c.done }

// Close closes the socket and waits for the reader to exit.
func (c *ipcClient) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *ipcClient) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *ipcClient) readLoop(onClose func(error)) {
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Debug("ignoring malformed ipc line", "error", err)
			continue
		}
		if msg.Event != "" {
			c.onEvent(msg)
			continue
		}
		c.deliver(msg)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int]chan ipcReply)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- ipcReply{err: errIPCClosed}
	}
	if onClose != nil {
		onClose(err)
	}
}

func (c *ipcClient) deliver(msg ipcMessage) {
	c.mu.Lock()
	ch, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()
	if !ok {
		return
	}

	if msg.Error != "" && msg.Error != "success" {
		ch <- ipcReply{err: fmt.Errorf("mpv: %s", msg.Error)}
		return
	}
	ch <- ipcReply{data: msg.Data}
}
