// Package command implements the command surface of spec §6.1: the
// stable, typed contract between the (out of scope) outer tool-call RPC
// layer and the session registry. Every function here is thin and
// stateless over *registry.Registry — it looks up the session, checks
// nothing itself beyond what the session already enforces, and returns a
// plain result or a *brokererr.Error.
//
// Grounded on the teacher's command_dispatcher.go: a public API of typed
// request/response structs dispatched to an agent by id, generalized
// here from "dispatch one command to a named agent" to "invoke one typed
// operation against a named session."
package command

import (
	"context"

	"github.com/streamspace-dev/inspector-broker/internal/protocol"
	"github.com/streamspace-dev/inspector-broker/internal/registry"
	"github.com/streamspace-dev/inspector-broker/internal/session"
)

// Surface is the command surface: one method per row of spec §6.1's
// table, plus the two read-only resource projections.
type Surface struct {
	registry *registry.Registry
}

// New builds a Surface over reg.
func New(reg *registry.Registry) *Surface {
	return &Surface{registry: reg}
}

// ConnectSessionResult is connect_debugger's return value.
type ConnectSessionResult struct {
	SessionID string
	State     string
	TargetURL string
}

// ConnectDebugger implements connect_debugger.
func (s *Surface) ConnectDebugger(ctx context.Context, targetURL, name string) (ConnectSessionResult, error) {
	sess, err := s.registry.Create(ctx, targetURL, name)
	if err != nil {
		return ConnectSessionResult{}, err
	}
	return ConnectSessionResult{SessionID: sess.ID, State: sess.State().String(), TargetURL: sess.TargetURL}, nil
}

// DisconnectDebugger implements disconnect_debugger.
func (s *Surface) DisconnectDebugger(sessionID string) error {
	return s.registry.Destroy(sessionID)
}

// BreakpointResult is set_breakpoint's return value.
type BreakpointResult struct {
	BreakpointID string
	Resolved     []session.ResolvedLocation
}

// SetBreakpoint implements set_breakpoint (line is 0-based, spec §6.1).
func (s *Surface) SetBreakpoint(ctx context.Context, sessionID, url string, line int, column *int, condition *string) (BreakpointResult, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return BreakpointResult{}, err
	}
	bp, err := sess.SetBreakpoint(ctx, url, line, column, condition)
	if err != nil {
		return BreakpointResult{}, err
	}
	return BreakpointResult{BreakpointID: bp.ID, Resolved: bp.Resolved}, nil
}

// RemoveBreakpoint implements remove_breakpoint.
func (s *Surface) RemoveBreakpoint(ctx context.Context, sessionID, breakpointID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.RemoveBreakpoint(ctx, breakpointID)
}

// ListBreakpoints implements list_breakpoints.
func (s *Surface) ListBreakpoints(sessionID string) ([]*session.Breakpoint, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ListBreakpoints(), nil
}

// ResumeExecution implements resume_execution.
func (s *Surface) ResumeExecution(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return "", err
	}
	st, err := sess.ResumeExecution(ctx)
	if err != nil {
		return "", err
	}
	return st.String(), nil
}

// StepOver implements step_over.
func (s *Surface) StepOver(ctx context.Context, sessionID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.StepOver(ctx)
}

// StepInto implements step_into.
func (s *Surface) StepInto(ctx context.Context, sessionID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.StepInto(ctx)
}

// StepOut implements step_out.
func (s *Surface) StepOut(ctx context.Context, sessionID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.StepOut(ctx)
}

// PauseExecution implements pause_execution.
func (s *Surface) PauseExecution(ctx context.Context, sessionID string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.PauseExecution(ctx)
}

// CallStackResult is get_call_stack's return value.
type CallStackResult struct {
	Frames     []session.EnrichedFrame
	AsyncTrace *protocol.AsyncStackTrace
}

// GetCallStack implements get_call_stack.
func (s *Surface) GetCallStack(sessionID string, includeAsync bool) (CallStackResult, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return CallStackResult{}, err
	}
	frames, async, err := sess.GetCallStack(includeAsync)
	if err != nil {
		return CallStackResult{}, err
	}
	return CallStackResult{Frames: frames, AsyncTrace: async}, nil
}

// EvaluateResult is evaluate_expression's return value.
type EvaluateResult struct {
	Value            protocol.RemoteObject
	ExceptionDetails *protocol.ExceptionDetails
}

// EvaluateExpression implements evaluate_expression.
func (s *Surface) EvaluateExpression(ctx context.Context, sessionID, expression string, callFrameID *string, returnByValue bool) (EvaluateResult, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return EvaluateResult{}, err
	}
	value, exc, err := sess.EvaluateExpression(ctx, expression, callFrameID, returnByValue)
	if err != nil {
		return EvaluateResult{}, err
	}
	return EvaluateResult{Value: value, ExceptionDetails: exc}, nil
}

// GetScopeVariables implements get_scope_variables.
func (s *Surface) GetScopeVariables(ctx context.Context, sessionID, callFrameID string, scopeIndex int) ([]protocol.PropertyDescriptor, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.GetScopeVariables(ctx, callFrameID, scopeIndex)
}

// SetVariableValue implements set_variable_value.
func (s *Surface) SetVariableValue(ctx context.Context, sessionID, callFrameID string, scopeIndex int, variableName, newValue string) error {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.SetVariableValue(ctx, callFrameID, scopeIndex, variableName, newValue)
}

// SetPauseOnExceptions implements set_pause_on_exceptions.
func (s *Surface) SetPauseOnExceptions(ctx context.Context, sessionID, state string) (string, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return "", err
	}
	return sess.SetPauseOnExceptions(ctx, state)
}

// OriginalLocationResult is get_original_location's return value.
type OriginalLocationResult struct {
	HasSourceMap bool
	Original     *session.OriginalLocation
}

// GetOriginalLocation implements get_original_location (line is
// 1-based, column 0-based, spec §6.1/§4.4).
func (s *Surface) GetOriginalLocation(sessionID, scriptID string, line, column int) (OriginalLocationResult, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return OriginalLocationResult{}, err
	}
	hasMap, pos, err := sess.GetOriginalLocation(scriptID, line, column)
	if err != nil {
		return OriginalLocationResult{}, err
	}
	result := OriginalLocationResult{HasSourceMap: hasMap}
	if hasMap && pos != (session.OriginalLocation{}) {
		cp := pos
		result.Original = &cp
	}
	return result, nil
}

// ScriptSourceResult is get_script_source's return value.
type ScriptSourceResult struct {
	Source       string
	SourceURL    string
	IsOriginal   bool
	SourceMapURL string
}

// GetScriptSource implements get_script_source.
func (s *Surface) GetScriptSource(ctx context.Context, sessionID, scriptID string, preferOriginal bool) (ScriptSourceResult, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return ScriptSourceResult{}, err
	}
	source, sourceURL, isOriginal, sourceMapURL, err := sess.GetScriptSource(ctx, scriptID, preferOriginal)
	if err != nil {
		return ScriptSourceResult{}, err
	}
	return ScriptSourceResult{Source: source, SourceURL: sourceURL, IsOriginal: isOriginal, SourceMapURL: sourceMapURL}, nil
}

// ListScripts implements list_scripts.
func (s *Surface) ListScripts(sessionID string, includeInternal bool) ([]*session.Script, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ListScripts(includeInternal), nil
}

// ListSessions implements the `debug://sessions` resource.
func (s *Surface) ListSessions() []registry.Summary {
	return s.registry.List()
}

// SessionDetails is the `debug://sessions/{id}` resource's return value.
type SessionDetails struct {
	Summary     registry.Summary
	Breakpoints []*session.Breakpoint
	CallStack   *CallStackResult
}

// GetSessionDetails implements the `debug://sessions/{id}` resource: a
// summary, its breakpoints, and, if paused, the enriched call stack.
func (s *Surface) GetSessionDetails(sessionID string) (SessionDetails, error) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return SessionDetails{}, err
	}

	details := SessionDetails{
		Summary: registry.Summary{
			ID:        sess.ID,
			Name:      sess.Name,
			TargetURL: sess.TargetURL,
			State:     sess.State().String(),
			CreatedAt: sess.CreatedAt(),
		},
		Breakpoints: sess.ListBreakpoints(),
	}

	if sess.State() == session.Paused {
		frames, async, err := sess.GetCallStack(true)
		if err == nil {
			details.CallStack = &CallStackResult{Frames: frames, AsyncTrace: async}
		}
	}
	return details, nil
}
