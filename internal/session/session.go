// Package session implements the Session aggregate of spec §3/§4.5: the
// per-target binding of one external session id to one live WebSocket
// conversation, its correlator, event demultiplexer, and cached state
// (breakpoints, scripts, paused snapshot, source-map engine).
//
// Grounded on the teacher's AgentConnection (internal/websocket/agent_hub.go):
// one struct per live connection holding the conn, a mutex, and derived
// state, with a dedicated goroutine consuming inbound frames. The spec's
// session has no Send/Receive channel pair; instead inbound frames are
// routed inline by the event demultiplexer (§4.3) while commands go
// straight through the correlator, so the teacher's channel-based hub
// loop collapses to one readLoop-driven dispatch goroutine.
package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/correlator"
	"github.com/streamspace-dev/inspector-broker/internal/framer"
	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
	"github.com/streamspace-dev/inspector-broker/internal/sourcemap"
)

// State is one of the session lifecycle states of spec §4.5.
type State int

const (
	Connecting State = iota
	Connected
	Running
	Paused
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Notification is a session-level event forwarded to the controlling
// client (spec §4.3: "emit a session-level notification"). The outer
// command-surface / transport layer subscribes via Notifications().
type Notification struct {
	SessionID string
	Kind      string // "paused", "resumed", "disconnected"
	Reason    string // populated for "paused"
}

// Session binds one external id to one target conversation.
type Session struct {
	ID       string
	Name     string
	TargetURL string

	conn       *framer.Conn
	correlator *correlator.Correlator
	sourcemaps *sourcemap.Engine

	notify chan Notification

	mu     sync.Mutex // serializes event-demux handlers against operation handlers (spec §5)
	state  State
	breakpoints map[string]*Breakpoint
	scripts     map[string]*Script
	paused      *PausedSnapshot
	pauseOnExceptions string

	createdAt time.Time
}

// Config parameterizes session creation.
type Config struct {
	ID             string
	Name           string
	TargetURL      string
	CommandTimeout time.Duration
	Fetcher        sourcemap.Fetcher
	Cache          sourcemap.ContentCache
}

// Connect dials the target, wires the correlator and source-map engine,
// performs the Debugger.enable / Runtime.enable handshake (spec §4.5),
// and starts the event-dispatch goroutine. On any failure the session is
// not installed and a CONNECTION_FAILED error is returned (spec §4.5
// CONNECTING -> (session not installed; error returned)).
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	conn, err := framer.Dial(ctx, cfg.TargetURL)
	if err != nil {
		return nil, brokererr.ConnectionFailed(err)
	}

	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = correlator.DefaultTimeout
	}

	s := &Session{
		ID:          cfg.ID,
		Name:        cfg.Name,
		TargetURL:   cfg.TargetURL,
		conn:        conn,
		correlator:  correlator.New(conn, timeout),
		sourcemaps:  sourcemap.New(cfg.Fetcher, cfg.Cache),
		notify:      make(chan Notification, 16),
		state:       Connecting,
		breakpoints: make(map[string]*Breakpoint),
		scripts:     make(map[string]*Script),
		pauseOnExceptions: "none",
		createdAt:   time.Now(),
	}

	go s.dispatchLoop()

	if _, err := s.correlator.Call(ctx, "Debugger.enable", struct{}{}); err != nil {
		s.teardown(err)
		return nil, brokererr.ConnectionFailed(fmt.Errorf("Debugger.enable: %w", err))
	}
	if _, err := s.correlator.Call(ctx, "Runtime.enable", struct{}{}); err != nil {
		s.teardown(err)
		return nil, brokererr.ConnectionFailed(fmt.Errorf("Runtime.enable: %w", err))
	}

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()

	return s, nil
}

// dispatchLoop consumes decoded frames for the session's lifetime,
// resolving responses through the correlator and routing events through
// the demultiplexer (spec §4.3), until the transport ends.
func (s *Session) dispatchLoop() {
	for frame := range s.conn.Frames() {
		switch frame.Kind {
		case protocol.FrameResponse:
			s.correlator.Resolve(frame.ID, frame.Result, frame.Err)
		case protocol.FrameEvent:
			s.handleEvent(frame.Method, frame.Params)
		}
	}

	cause := s.conn.CloseErr()
	s.correlator.FailAll(cause)

	s.mu.Lock()
	s.state = Disconnected
	s.paused = nil
	s.mu.Unlock()

	s.emit(Notification{SessionID: s.ID, Kind: "disconnected"})
	close(s.notify)

	logger.Session().Info().Str("sessionId", s.ID).Err(cause).Msg("session transport closed")
}

// teardown is used when Connect fails after dialing: it stops the
// dispatch goroutine by closing the transport, which drains the frames
// channel and lets dispatchLoop exit on its own.
func (s *Session) teardown(cause error) {
	_ = s.conn.Close()
}

// State returns the current lifecycle state (spec §4.5).
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreatedAt returns the session's creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Notifications returns the channel of session-level events forwarded to
// the controlling client (spec §4.3). Closed once the session reaches
// DISCONNECTED and has drained its final notification.
func (s *Session) Notifications() <-chan Notification { return s.notify }

func (s *Session) emit(n Notification) {
	select {
	case s.notify <- n:
	default:
		logger.Session().Warn().Str("sessionId", s.ID).Str("kind", n.Kind).Msg("notification channel full, dropping")
	}
}

// Disconnect closes the transport and transitions the session to
// DISCONNECTED (spec §4.5 "any live -> destroy_session -> DISCONNECTED").
// Idempotent: closing an already-closed transport is a no-op (spec R3 is
// enforced one level up, by the registry removing the id on first call).
func (s *Session) Disconnect() error {
	return s.conn.Close()
}

// requireState fails SESSION_INVALID_STATE unless the session is
// currently in one of the allowed states (spec §4.5 "Operation gating").
func (s *Session) requireState(op string, allowed ...State) error {
	current := s.State()
	for _, st := range allowed {
		if current == st {
			return nil
		}
	}
	return brokererr.SessionInvalidState(s.ID, op, current.String())
}

// requireNotTerminal fails SESSION_INVALID_STATE if the session has
// already disconnected (spec §4.5: several operations are "allowed in
// any non-terminal state").
func (s *Session) requireNotTerminal(op string) error {
	if s.State() == Disconnected {
		return brokererr.SessionInvalidState(s.ID, op, Disconnected.String())
	}
	return nil
}

// ValidateTargetURL applies the admission policy of spec §6.4: only
// ws:// or wss://, and the host must appear in allowedHosts.
func ValidateTargetURL(raw string, allowedHosts map[string]bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return brokererr.InvalidParameters(fmt.Sprintf("malformed target url: %s", err))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return brokererr.InvalidParameters(fmt.Sprintf("unsupported scheme %q, must be ws or wss", u.Scheme))
	}
	host := u.Hostname()
	if !allowedHosts[host] {
		return brokererr.InvalidParameters(fmt.Sprintf("host %q is not in the allow-list", host))
	}
	return nil
}

// DefaultAllowedHosts is the default admission allow-list (spec §6.4).
func DefaultAllowedHosts() map[string]bool {
	return map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"::1":       true,
	}
}
