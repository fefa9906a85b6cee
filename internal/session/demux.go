package session

import (
	"encoding/json"

	"github.com/streamspace-dev/inspector-broker/internal/logger"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
)

// handleEvent is the event demultiplexer of spec §4.3: it routes one
// inbound notification by method name to the session's state handlers.
// Unknown methods are dropped silently.
func (s *Session) handleEvent(method string, params json.RawMessage) {
	switch method {
	case "Debugger.paused":
		var evt protocol.PausedEvent
		if err := json.Unmarshal(params, &evt); err != nil {
			logger.Session().Warn().Str("sessionId", s.ID).Err(err).Msg("dropping malformed Debugger.paused event")
			return
		}
		s.onPaused(evt)

	case "Debugger.resumed":
		s.onResumed()

	case "Debugger.scriptParsed":
		var evt protocol.ScriptParsedEvent
		if err := json.Unmarshal(params, &evt); err != nil {
			logger.Session().Warn().Str("sessionId", s.ID).Err(err).Msg("dropping malformed Debugger.scriptParsed event")
			return
		}
		s.onScriptParsed(evt)

	case "Debugger.breakpointResolved":
		var evt protocol.BreakpointResolvedEvent
		if err := json.Unmarshal(params, &evt); err != nil {
			logger.Session().Warn().Str("sessionId", s.ID).Err(err).Msg("dropping malformed Debugger.breakpointResolved event")
			return
		}
		s.onBreakpointResolved(evt)

	default:
		// Other inbound notifications are dropped silently (spec §4.3).
	}
}
