// Package brokererr provides the standardized error taxonomy for the
// debugging broker's command surface.
//
// Every command-surface operation returns either a result or a *Error.
// Errors are never thrown across the WebSocket reader goroutine; the
// reader logs and swallows what it can (malformed frames, source-map
// failures) and otherwise routes state changes through the session, not
// through this package.
package brokererr

import (
	"fmt"
	"net/http"
)

// Error is a structured application error with an HTTP projection for the
// thin outer adapter.
type Error struct {
	// Code is a machine-readable identifier, one of the Code* constants.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Details carries additional context (e.g. a wrapped protocol error).
	Details string `json:"details,omitempty"`

	// HTTPStatus is the status the thin adapter maps this code to.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the JSON shape returned to callers of the thin adapter.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToResponse converts an Error to its wire Response.
func (e *Error) ToResponse() Response {
	return Response{Error: e.Code, Message: e.Message, Details: e.Details}
}

// Taxonomy from spec §7.
const (
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionInvalidState = "SESSION_INVALID_STATE"
	CodeConnectionFailed    = "CONNECTION_FAILED"
	CodeProtocolError       = "PROTOCOL_ERROR"
	CodeInvalidParameters   = "INVALID_PARAMETERS"
	CodeTimeout             = "TIMEOUT"
	CodeBreakpointNotFound  = "BREAKPOINT_NOT_FOUND"
	CodeScriptNotFound      = "SCRIPT_NOT_FOUND"
	CodeSourceMapError      = "SOURCE_MAP_ERROR"
	CodeMaxSessionsReached  = "MAX_SESSIONS_REACHED"
)

func statusFor(code string) int {
	switch code {
	case CodeInvalidParameters:
		return http.StatusBadRequest
	case CodeSessionNotFound, CodeBreakpointNotFound, CodeScriptNotFound:
		return http.StatusNotFound
	case CodeSessionInvalidState, CodeMaxSessionsReached:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeConnectionFailed:
		return http.StatusBadGateway
	case CodeProtocolError, CodeSourceMapError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New builds an Error for code with a plain message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: statusFor(code)}
}

// Wrap builds an Error for code, message, attaching err's text as Details.
func Wrap(code, message string, err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &Error{Code: code, Message: message, Details: details, HTTPStatus: statusFor(code)}
}

func SessionNotFound(sessionID string) *Error {
	return New(CodeSessionNotFound, fmt.Sprintf("session %s not found", sessionID))
}

func SessionInvalidState(sessionID, op, state string) *Error {
	return New(CodeSessionInvalidState, fmt.Sprintf("operation %q not permitted on session %s in state %s", op, sessionID, state))
}

func ConnectionFailed(err error) *Error {
	return Wrap(CodeConnectionFailed, "connection to target failed", err)
}

func ProtocolError(method string, err error) *Error {
	return Wrap(CodeProtocolError, fmt.Sprintf("target returned an error for %s", method), err)
}

func InvalidParameters(message string) *Error {
	return New(CodeInvalidParameters, message)
}

func Timeout(method string) *Error {
	return New(CodeTimeout, fmt.Sprintf("command %s timed out", method))
}

func BreakpointNotFound(id string) *Error {
	return New(CodeBreakpointNotFound, fmt.Sprintf("breakpoint %s not found", id))
}

func ScriptNotFound(id string) *Error {
	return New(CodeScriptNotFound, fmt.Sprintf("script %s not found", id))
}

func SourceMapError(err error) *Error {
	return Wrap(CodeSourceMapError, "source map operation failed", err)
}

func MaxSessionsReached(limit int) *Error {
	return New(CodeMaxSessionsReached, fmt.Sprintf("maximum concurrent session count (%d) reached", limit))
}
