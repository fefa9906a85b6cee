package session

import (
	"context"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// PausedSnapshot is the cached description of the target's state at the
// most recent Debugger.paused event (spec §3 Paused snapshot). Present
// iff the session is PAUSED; replaced wholesale on each paused event;
// cleared on resumed or transport loss (spec invariant I3).
type PausedSnapshot struct {
	Reason          string
	CallFrames      []protocol.CallFrame
	HitBreakpoints  []string
	AsyncStackTrace *protocol.AsyncStackTrace
}

// EnrichedFrame is one call frame projected for get_call_stack, with its
// original location attached when the owning script has a loaded source
// map (spec §4.6 get_call_stack).
type EnrichedFrame struct {
	CallFrameID  string
	FunctionName string
	Generated    protocol.Location
	Original     *OriginalLocation
	ScopeChain   []protocol.Scope
	This         protocol.RemoteObject
}

// onPaused installs a new paused snapshot and transitions to PAUSED
// (spec §4.3, §4.5).
func (s *Session) onPaused(evt protocol.PausedEvent) {
	s.mu.Lock()
	s.paused = &PausedSnapshot{
		Reason:          evt.Reason,
		CallFrames:      evt.CallFrames,
		HitBreakpoints:  evt.HitBreakpoints,
		AsyncStackTrace: evt.AsyncStackTrace,
	}
	s.state = Paused
	s.mu.Unlock()

	s.emit(Notification{SessionID: s.ID, Kind: "paused", Reason: evt.Reason})
}

// onResumed drops the paused snapshot and transitions to RUNNING (spec
// §4.3, §4.5).
func (s *Session) onResumed() {
	s.mu.Lock()
	s.paused = nil
	s.state = Running
	s.mu.Unlock()

	s.emit(Notification{SessionID: s.ID, Kind: "resumed"})
}

func (s *Session) pausedSnapshot() (*PausedSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == nil {
		return nil, false
	}
	return s.paused, true
}

func (s *Session) frameByID(snapshot *PausedSnapshot, callFrameID string) (*protocol.CallFrame, bool) {
	for i := range snapshot.CallFrames {
		if snapshot.CallFrames[i].CallFrameID == callFrameID {
			return &snapshot.CallFrames[i], true
		}
	}
	return nil, false
}

// GetCallStack implements spec §4.6 get_call_stack: projects the current
// paused snapshot into an enriched list, innermost frame first, with
// original locations attached where a source map is loaded.
func (s *Session) GetCallStack(includeAsync bool) ([]EnrichedFrame, *protocol.AsyncStackTrace, error) {
	if err := s.requireState("get_call_stack", Paused); err != nil {
		return nil, nil, err
	}
	snapshot, ok := s.pausedSnapshot()
	if !ok {
		return nil, nil, brokererr.SessionInvalidState(s.ID, "get_call_stack", Connected.String())
	}

	frames := make([]EnrichedFrame, 0, len(snapshot.CallFrames))
	for _, cf := range snapshot.CallFrames {
		ef := EnrichedFrame{
			CallFrameID:  cf.CallFrameID,
			FunctionName: cf.FunctionName,
			Generated:    cf.Location,
			ScopeChain:   cf.ScopeChain,
			This:         cf.This,
		}
		if hasMap, pos, err := s.GetOriginalLocation(cf.Location.ScriptID, cf.Location.LineNumber+1, cf.Location.ColumnNumber); err == nil && hasMap {
			if pos != (OriginalLocation{}) {
				cp := pos
				ef.Original = &cp
			}
		}
		frames = append(frames, ef)
	}

	if !includeAsync {
		return frames, nil, nil
	}
	return frames, snapshot.AsyncStackTrace, nil
}

// GetScopeVariables implements spec §4.6 get_scope_variables: fetches
// properties of the named frame's scope-chain entry at scopeIndex.
func (s *Session) GetScopeVariables(ctx context.Context, callFrameID string, scopeIndex int) ([]protocol.PropertyDescriptor, error) {
	if err := s.requireState("get_scope_variables", Paused); err != nil {
		return nil, err
	}
	snapshot, ok := s.pausedSnapshot()
	if !ok {
		return nil, brokererr.SessionInvalidState(s.ID, "get_scope_variables", Connected.String())
	}
	cf, ok := s.frameByID(snapshot, callFrameID)
	if !ok {
		return nil, brokererr.InvalidParameters("unknown call frame id " + callFrameID)
	}
	if scopeIndex < 0 || scopeIndex >= len(cf.ScopeChain) {
		return nil, brokererr.InvalidParameters("scope index out of range")
	}
	scope := cf.ScopeChain[scopeIndex]

	result, err := s.correlator.Call(ctx, "Runtime.getProperties", protocol.GetPropertiesParams{
		ObjectID:      scope.Object.ObjectID,
		OwnProperties: true,
	})
	if err != nil {
		return nil, translateCommandErr("Runtime.getProperties", err)
	}
	var parsed protocol.GetPropertiesResult
	if err := unmarshalResult(result, &parsed); err != nil {
		return nil, brokererr.ProtocolError("Runtime.getProperties", err)
	}

	out := make([]protocol.PropertyDescriptor, 0, len(parsed.Result))
	for _, p := range parsed.Result {
		if p.Value == nil {
			continue // accessors without values are skipped (spec §4.6)
		}
		out = append(out, p)
	}
	return out, nil
}

// SetVariableValue implements spec §4.6 set_variable_value's two-phase
// protocol: evaluate the new-value expression on the frame, then issue
// Debugger.setVariableValue with the evaluated argument.
func (s *Session) SetVariableValue(ctx context.Context, callFrameID string, scopeIndex int, varName, newValueExpr string) error {
	if err := s.requireState("set_variable_value", Paused); err != nil {
		return err
	}
	snapshot, ok := s.pausedSnapshot()
	if !ok {
		return brokererr.SessionInvalidState(s.ID, "set_variable_value", Connected.String())
	}
	if _, ok := s.frameByID(snapshot, callFrameID); !ok {
		return brokererr.InvalidParameters("unknown call frame id " + callFrameID)
	}

	evalResult, err := s.correlator.Call(ctx, "Debugger.evaluateOnCallFrame", protocol.EvaluateOnCallFrameParams{
		CallFrameID:   callFrameID,
		Expression:    newValueExpr,
		ReturnByValue: false,
	})
	if err != nil {
		return translateCommandErr("Debugger.evaluateOnCallFrame", err)
	}
	var evaluated protocol.EvaluateResult
	if err := unmarshalResult(evalResult, &evaluated); err != nil {
		return brokererr.ProtocolError("Debugger.evaluateOnCallFrame", err)
	}
	if evaluated.ExceptionDetails != nil {
		return brokererr.ProtocolError("Debugger.evaluateOnCallFrame", errExceptionDetails(evaluated.ExceptionDetails.Text))
	}

	arg := protocol.CallArgument{}
	switch {
	case evaluated.Result.HasObjectID():
		arg.ObjectID = evaluated.Result.ObjectID
	case evaluated.Result.UnserializableValue != "":
		arg.UnserializableValue = evaluated.Result.UnserializableValue
	default:
		arg.Value = evaluated.Result.Value
	}

	_, err = s.correlator.Call(ctx, "Debugger.setVariableValue", protocol.SetVariableValueParams{
		ScopeNumber:  scopeIndex,
		VariableName: varName,
		NewValue:     arg,
		CallFrameID:  callFrameID,
	})
	if err != nil {
		return translateCommandErr("Debugger.setVariableValue", err)
	}
	return nil
}

// EvaluateExpression implements spec §4.6 evaluate_expression: a frame-
// scoped evaluation (PAUSED required) or a global one (any non-terminal
// state).
func (s *Session) EvaluateExpression(ctx context.Context, expression string, callFrameID *string, returnByValue bool) (protocol.RemoteObject, *protocol.ExceptionDetails, error) {
	if callFrameID != nil {
		if err := s.requireState("evaluate_expression", Paused); err != nil {
			return protocol.RemoteObject{}, nil, err
		}
		result, err := s.correlator.Call(ctx, "Debugger.evaluateOnCallFrame", protocol.EvaluateOnCallFrameParams{
			CallFrameID:   *callFrameID,
			Expression:    expression,
			ReturnByValue: returnByValue,
		})
		if err != nil {
			return protocol.RemoteObject{}, nil, translateCommandErr("Debugger.evaluateOnCallFrame", err)
		}
		var parsed protocol.EvaluateResult
		if err := unmarshalResult(result, &parsed); err != nil {
			return protocol.RemoteObject{}, nil, brokererr.ProtocolError("Debugger.evaluateOnCallFrame", err)
		}
		return parsed.Result, parsed.ExceptionDetails, nil
	}

	if err := s.requireNotTerminal("evaluate_expression"); err != nil {
		return protocol.RemoteObject{}, nil, err
	}
	result, err := s.correlator.Call(ctx, "Runtime.evaluate", protocol.RuntimeEvaluateParams{
		Expression:    expression,
		ReturnByValue: returnByValue,
	})
	if err != nil {
		return protocol.RemoteObject{}, nil, translateCommandErr("Runtime.evaluate", err)
	}
	var parsed protocol.EvaluateResult
	if err := unmarshalResult(result, &parsed); err != nil {
		return protocol.RemoteObject{}, nil, brokererr.ProtocolError("Runtime.evaluate", err)
	}
	return parsed.Result, parsed.ExceptionDetails, nil
}

type exceptionDetailsError struct{ text string }

func (e exceptionDetailsError) Error() string { return e.text }
func errExceptionDetails(text string) error   { return exceptionDetailsError{text: text} }
