package session

import (
	"context"
	"encoding/json"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// ResolvedLocation is one resolved (scriptId, line, column) pair for a
// breakpoint (spec §3 Breakpoint record).
type ResolvedLocation struct {
	ScriptID string
	Line     int
	Column   int
}

// Breakpoint is the session's record of one target-assigned breakpoint
// (spec §3). Requested and resolved locations are tracked separately:
// requested is fixed at creation, resolved grows via breakpointResolved
// events.
type Breakpoint struct {
	ID        string
	URL       string
	Line      int
	Column    *int
	Condition *string
	Enabled   bool
	Resolved  []ResolvedLocation
}

// SetBreakpoint issues Debugger.setBreakpointByUrl and stores the
// resulting record (spec §4.6 set_breakpoint). No de-duplication: two
// identical calls create two independent breakpoints (spec §9 Open
// Question, resolved: preserve source behavior).
func (s *Session) SetBreakpoint(ctx context.Context, url string, line int, column *int, condition *string) (*Breakpoint, error) {
	if err := s.requireNotTerminal("set_breakpoint"); err != nil {
		return nil, err
	}

	result, err := s.correlator.Call(ctx, "Debugger.setBreakpointByUrl", protocol.SetBreakpointByURLParams{
		URL:          url,
		LineNumber:   line,
		ColumnNumber: column,
		Condition:    condition,
	})
	if err != nil {
		return nil, translateCommandErr("Debugger.setBreakpointByUrl", err)
	}

	var parsed protocol.SetBreakpointByURLResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, brokererr.ProtocolError("Debugger.setBreakpointByUrl", err)
	}

	bp := &Breakpoint{
		ID:        parsed.BreakpointID,
		URL:       url,
		Line:      line,
		Column:    column,
		Condition: condition,
		Enabled:   true,
	}
	for _, loc := range parsed.Locations {
		bp.Resolved = append(bp.Resolved, ResolvedLocation{ScriptID: loc.ScriptID, Line: loc.LineNumber, Column: loc.ColumnNumber})
	}

	s.mu.Lock()
	s.breakpoints[bp.ID] = bp
	s.mu.Unlock()

	return bp, nil
}

// RemoveBreakpoint issues Debugger.removeBreakpoint and drops the
// session's record. Fails BREAKPOINT_NOT_FOUND if the session did not
// create this id (spec §4.6, §3 invariant).
func (s *Session) RemoveBreakpoint(ctx context.Context, id string) error {
	if err := s.requireNotTerminal("remove_breakpoint"); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.breakpoints[id]
	s.mu.Unlock()
	if !ok {
		return brokererr.BreakpointNotFound(id)
	}

	if _, err := s.correlator.Call(ctx, "Debugger.removeBreakpoint", protocol.RemoveBreakpointParams{BreakpointID: id}); err != nil {
		return translateCommandErr("Debugger.removeBreakpoint", err)
	}

	s.mu.Lock()
	delete(s.breakpoints, id)
	s.mu.Unlock()
	return nil
}

// ListBreakpoints returns a snapshot of every breakpoint the session
// currently owns (spec §4.6 list_breakpoints, a pure read of cached
// state, spec §5).
func (s *Session) ListBreakpoints() []*Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		cp := *bp
		cp.Resolved = append([]ResolvedLocation(nil), bp.Resolved...)
		out = append(out, &cp)
	}
	return out
}

// onBreakpointResolved appends a resolved location if the breakpoint is
// known; no-op otherwise, tolerating late resolves and resolves for
// breakpoints the target created directly (spec §4.3).
func (s *Session) onBreakpointResolved(evt protocol.BreakpointResolvedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp, ok := s.breakpoints[evt.BreakpointID]
	if !ok {
		return
	}
	bp.Resolved = append(bp.Resolved, ResolvedLocation{
		ScriptID: evt.Location.ScriptID,
		Line:     evt.Location.LineNumber,
		Column:   evt.Location.ColumnNumber,
	})
}
