// Package registry implements the session registry of spec §3/§4.5/§6.4:
// the single shared map from external session id to *session.Session,
// the URL admission policy, and the concurrency cap.
//
// Grounded on the teacher's AgentHub connections map
// (internal/websocket/agent_hub.go: map[string]*AgentConnection guarded
// by sync.RWMutex), here called synchronously by the command surface
// instead of through the hub's own register/unregister channels, since
// session create/destroy are already awaited RPCs rather than
// fire-and-forget hub events.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/session"
	"github.com/streamspace-dev/inspector-broker/internal/sourcemap"
)

// Config parameterizes a Registry.
type Config struct {
	MaxSessions    int
	AllowedHosts   map[string]bool
	CommandTimeout time.Duration
	Fetcher        sourcemap.Fetcher
	Cache          sourcemap.ContentCache
}

// Summary is the read-only projection of a session for the `debug://sessions`
// resource (spec §6.1).
type Summary struct {
	ID        string
	Name      string
	TargetURL string
	State     string
	CreatedAt time.Time
}

// Registry owns every live session. It is the single shared mutable
// structure of spec §5, guarded internally by session's own locking for
// per-session state and its own lock for the id→session map.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New builds an empty Registry. A zero MaxSessions means unlimited.
func New(cfg Config) *Registry {
	if cfg.AllowedHosts == nil {
		cfg.AllowedHosts = session.DefaultAllowedHosts()
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*session.Session),
	}
}

// Create implements connect_debugger (spec §6.1): validates the target
// URL against the admission policy, enforces the concurrency cap, then
// dials and handshakes a new session.
func (r *Registry) Create(ctx context.Context, targetURL, name string) (*session.Session, error) {
	if err := session.ValidateTargetURL(targetURL, r.cfg.AllowedHosts); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, brokererr.MaxSessionsReached(r.cfg.MaxSessions)
	}
	r.mu.Unlock()

	id := uuid.NewString()
	s, err := session.Connect(ctx, session.Config{
		ID:             id,
		Name:           name,
		TargetURL:      targetURL,
		CommandTimeout: r.cfg.CommandTimeout,
		Fetcher:        r.cfg.Fetcher,
		Cache:          r.cfg.Cache,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	logger.Registry().Info().Str("sessionId", id).Str("targetUrl", targetURL).Msg("session created")
	go r.reapOnDisconnect(id, s)

	return s, nil
}

// reapOnDisconnect removes a session from the registry once its
// transport has closed, so a subsequent lookup correctly reports
// SESSION_NOT_FOUND (spec §8 scenario 6) without requiring an explicit
// disconnect_debugger call.
func (r *Registry) reapOnDisconnect(id string, s *session.Session) {
	for range s.Notifications() {
		// drain; the registry only cares about the channel closing
	}
	r.mu.Lock()
	if current, ok := r.sessions[id]; ok && current == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	logger.Registry().Info().Str("sessionId", id).Msg("session removed from registry after transport close")
}

// Get implements the session-id lookup every other command-surface
// operation performs first (spec §6.1 "each command takes a session id").
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, brokererr.SessionNotFound(id)
	}
	return s, nil
}

// Destroy implements disconnect_debugger (spec §6.1, R3): closes the
// transport and removes the session immediately, so a second call in
// the same instant also observes SESSION_NOT_FOUND.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return brokererr.SessionNotFound(id)
	}
	return s.Disconnect()
}

// List implements the `debug://sessions` resource (spec §6.1): a
// read-only projection, no blocking (spec §5).
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, Summary{
			ID:        id,
			Name:      s.Name,
			TargetURL: s.TargetURL,
			State:     s.State().String(),
			CreatedAt: s.CreatedAt(),
		})
	}
	return out
}

// Count reports the number of live sessions (diagnostic use only).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
