package session

import (
	"context"
	"encoding/json"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/correlator"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// translateCommandErr maps a correlator.Call error (timeout, connection
// lost, or a target protocol error) onto the broker's error taxonomy
// (spec §7).
func translateCommandErr(method string, err error) error {
	switch {
	case correlator.IsTimeout(err):
		return brokererr.Timeout(method)
	case correlator.IsConnectionLost(err):
		return brokererr.ConnectionFailed(err)
	default:
		if rpcErr, ok := err.(*protocol.RPCError); ok {
			return brokererr.ProtocolError(method, rpcErr)
		}
		return brokererr.ProtocolError(method, err)
	}
}

func unmarshalResult(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// ResumeExecution implements spec §4.6 resume_execution / §4.5's resume
// trigger: PAUSED issues Debugger.resume; CONNECTED issues
// Runtime.runIfWaitingForDebugger and transitions to RUNNING directly
// (the paused event, if any, will not arrive for this path).
func (s *Session) ResumeExecution(ctx context.Context) (State, error) {
	current := s.State()
	switch current {
	case Paused:
		if _, err := s.correlator.Call(ctx, "Debugger.resume", struct{}{}); err != nil {
			return current, translateCommandErr("Debugger.resume", err)
		}
		return s.State(), nil

	case Connected:
		if _, err := s.correlator.Call(ctx, "Runtime.runIfWaitingForDebugger", struct{}{}); err != nil {
			return current, translateCommandErr("Runtime.runIfWaitingForDebugger", err)
		}
		s.mu.Lock()
		s.state = Running
		s.mu.Unlock()
		return Running, nil

	default:
		return current, brokererr.SessionInvalidState(s.ID, "resume_execution", current.String())
	}
}

// step issues one of the three step commands; all three require PAUSED
// (spec §4.5). The ack only confirms the command was accepted — the
// session remains PAUSED in local state until a subsequent
// Debugger.paused event replaces the snapshot (spec §5 ordering: "no
// guaranteed ordering between an event and an in-flight command").
func (s *Session) step(ctx context.Context, method string) error {
	if err := s.requireState(stepOpName(method), Paused); err != nil {
		return err
	}
	if _, err := s.correlator.Call(ctx, method, struct{}{}); err != nil {
		return translateCommandErr(method, err)
	}
	return nil
}

func stepOpName(method string) string {
	switch method {
	case "Debugger.stepOver":
		return "step_over"
	case "Debugger.stepInto":
		return "step_into"
	case "Debugger.stepOut":
		return "step_out"
	default:
		return method
	}
}

func (s *Session) StepOver(ctx context.Context) error { return s.step(ctx, "Debugger.stepOver") }
func (s *Session) StepInto(ctx context.Context) error { return s.step(ctx, "Debugger.stepInto") }
func (s *Session) StepOut(ctx context.Context) error  { return s.step(ctx, "Debugger.stepOut") }

// PauseExecution implements spec §4.6 pause_execution: legal in
// CONNECTED or RUNNING (spec §4.5 Operation gating).
func (s *Session) PauseExecution(ctx context.Context) error {
	if err := s.requireState("pause_execution", Connected, Running); err != nil {
		return err
	}
	if _, err := s.correlator.Call(ctx, "Debugger.pause", struct{}{}); err != nil {
		return translateCommandErr("Debugger.pause", err)
	}
	return nil
}

// SetPauseOnExceptions implements spec §4.6: allowed in any non-terminal
// state.
func (s *Session) SetPauseOnExceptions(ctx context.Context, state string) (string, error) {
	if err := s.requireNotTerminal("set_pause_on_exceptions"); err != nil {
		return "", err
	}
	if state != "none" && state != "uncaught" && state != "all" {
		return "", brokererr.InvalidParameters("state must be one of none, uncaught, all")
	}
	if _, err := s.correlator.Call(ctx, "Debugger.setPauseOnExceptions", protocol.SetPauseOnExceptionsParams{State: state}); err != nil {
		return "", translateCommandErr("Debugger.setPauseOnExceptions", err)
	}

	s.mu.Lock()
	s.pauseOnExceptions = state
	s.mu.Unlock()
	return state, nil
}
