// Package correlator implements the command correlator of spec §4.2: a
// monotonically increasing id allocator and an outstanding-request table
// mapping each in-flight command id to its completion sink.
//
// Grounded on the teacher's CommandDispatcher lifecycle vocabulary
// (pending → sent → completed/failed, internal/services/command_dispatcher.go)
// collapsed from "dispatch to one of many agents via a queue and worker
// pool" to "correlate one response per id on a single duplex stream" —
// the spec's correlator has no fan-out, so no queue or worker pool is
// needed, only the pending-table-plus-timeout core.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// DefaultTimeout is the default per-command deadline (spec §4.2).
const DefaultTimeout = 5 * time.Second

// Outcome is the terminal result of one correlated command.
type Outcome struct {
	Result []byte
	Err    error
}

// Sender is the minimal write-side contract the correlator needs from a
// transport; framer.Conn satisfies it.
type Sender interface {
	Send(ctx context.Context, id int64, method string, params interface{}) error
}

type pending struct {
	sink    chan Outcome
	timer   *time.Timer
	method  string
}

// Correlator allocates ids, tracks outstanding commands, and resolves
// each exactly once: by response, timeout, or bulk connection-lost
// failure (spec contract in §4.2, invariants I1/I2 in spec §8).
type Correlator struct {
	mu      sync.Mutex
	nextID  int64
	table   map[int64]*pending
	timeout time.Duration
	conn    Sender
	closed  bool
}

// New builds a Correlator writing commands through conn, using timeout
// as the per-command deadline (DefaultTimeout if timeout <= 0).
func New(conn Sender, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		nextID:  1,
		table:   make(map[int64]*pending),
		timeout: timeout,
		conn:    conn,
	}
}

// Call issues method with params and blocks until the response arrives,
// the per-command timeout elapses, ctx is canceled, or the connection is
// declared lost via FailAll. Exactly one of (result, err) is populated
// on every return path.
func (c *Correlator) Call(ctx context.Context, method string, params interface{}) ([]byte, error) {
	id, sink := c.register(method)

	if err := c.conn.Send(ctx, id, method, params); err != nil {
		c.resolve(id, Outcome{Err: err})
		return nil, err
	}

	select {
	case outcome := <-sink:
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		c.resolve(id, Outcome{Err: ctx.Err()})
		return nil, ctx.Err()
	}
}

func (c *Correlator) register(method string) (int64, chan Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	sink := make(chan Outcome, 1)
	p := &pending{sink: sink, method: method}
	p.timer = time.AfterFunc(c.timeout, func() {
		c.resolve(id, Outcome{Err: timeoutErr(method)})
	})
	c.table[id] = p
	return id, sink
}

// Resolve completes the pending command for id with a JSON-RPC
// response's result or error, as decoded by the event demultiplexer
// layer (spec §4.3 classifies the frame; this package only correlates).
func (c *Correlator) Resolve(id int64, result []byte, rpcErr *protocol.RPCError) {
	if rpcErr != nil {
		c.resolve(id, Outcome{Err: rpcErr})
		return
	}
	c.resolve(id, Outcome{Result: result})
}

func (c *Correlator) resolve(id int64, outcome Outcome) {
	c.mu.Lock()
	p, ok := c.table[id]
	if ok {
		delete(c.table, id)
	}
	c.mu.Unlock()

	if !ok {
		// Already resolved (e.g. a late response after timeout); the
		// spec tolerates and discards these (§4.2).
		return
	}
	p.timer.Stop()
	p.sink <- outcome
}

// FailAll resolves every outstanding command with a connection-lost
// error. Called once, on transport closure (spec §4.2, §5 Cancellation).
func (c *Correlator) FailAll(cause error) {
	c.mu.Lock()
	c.closed = true
	table := c.table
	c.table = make(map[int64]*pending)
	c.mu.Unlock()

	for id, p := range table {
		p.timer.Stop()
		p.sink <- Outcome{Err: connectionLostErr(cause)}
		logger.Correlator().Debug().Int64("id", id).Str("method", p.method).Msg("failed pending command on transport close")
	}
}

type timeoutError struct{ method string }

func (e timeoutError) Error() string { return "timeout waiting for " + e.method }
func timeoutErr(method string) error { return timeoutError{method: method} }

type connectionLostError struct{ cause error }

func (e connectionLostError) Error() string {
	if e.cause == nil {
		return "connection lost"
	}
	return "connection lost: " + e.cause.Error()
}
func (e connectionLostError) Unwrap() error { return e.cause }
func connectionLostErr(cause error) error   { return connectionLostError{cause: cause} }

// IsTimeout reports whether err is a per-command timeout.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}

// IsConnectionLost reports whether err is a connection-lost failure.
func IsConnectionLost(err error) bool {
	_, ok := err.(connectionLostError)
	return ok
}
