// Package framer establishes and drives the WebSocket conversation with
// one target's inspector backend: dialing out as a client (spec §4.1),
// encoding outbound JSON-RPC 2.0 requests, decoding and classifying
// inbound frames, and signaling terminal closure exactly once.
//
// Grounded on the teacher's outbound-dial shape (agents/k8s-agent's
// connectWebSocket: a gorilla/websocket.Dialer with a handshake timeout)
// and its read/write pump split (internal/websocket/agent_hub.go), here
// collapsed to one reader goroutine per connection feeding a decoded
// frame channel, and a mutex-guarded writer since gorilla's *Conn permits
// at most one concurrent writer.
package framer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	maxMessageSize    = 10 * 1024 * 1024 // 10MB: inspector payloads (object graphs) run larger than agent heartbeats
)

// Conn is one live WebSocket conversation with a target.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	frames chan protocol.Frame
	closed chan struct{}

	closeOnce sync.Once
	closeErr  error
	closeMu   sync.RWMutex
}

// Dial opens a WebSocket connection to url and starts the reader
// goroutine. The returned Conn is ready for Send and Frames immediately;
// the caller still performs whatever handshake commands the session
// layer requires (spec §4.5).
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &Conn{
		ws:     ws,
		frames: make(chan protocol.Frame, 64),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Frames returns the channel of decoded inbound frames. It is closed
// after Closed() fires and the reader goroutine has drained.
func (c *Conn) Frames() <-chan protocol.Frame { return c.frames }

// Closed returns a channel that is closed exactly once when the
// transport ends, for any reason (remote close, read error, local
// Close()). CloseErr() reports the cause once this fires.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// CloseErr returns the cause of transport closure; valid only after
// Closed() has fired. It is the read error that ended the reader
// goroutine, which is non-nil also after a local Close().
func (c *Conn) CloseErr() error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	return c.closeErr
}

// Close closes the underlying transport; safe to call multiple times
// and concurrently with Send/readLoop.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	return nil
}

// Send encodes and writes one JSON-RPC 2.0 request. Writes are
// serialized so that concurrent commands from unrelated callers never
// interleave a partial frame (spec §4.1 "Writes are atomic per
// message").
func (c *Conn) Send(ctx context.Context, id int64, method string, params interface{}) error {
	payload, err := protocol.EncodeRequest(id, method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.frames)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		frame := protocol.DecodeFrame(data)
		if frame.Kind == protocol.FrameInvalid {
			logger.Framer().Warn().Bytes("frame", data).Msg("dropping malformed frame")
			continue
		}
		c.frames <- frame
	}
}

func (c *Conn) finish(err error) {
	c.closeMu.Lock()
	c.closeErr = err
	c.closeMu.Unlock()
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	close(c.closed)
}
