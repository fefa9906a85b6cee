package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/protocol"
	"github.com/streamspace-dev/inspector-broker/internal/sourcemap"
)

// mockTarget is a scripted inspector backend: it answers every inbound
// request via responder, and lets the test push spontaneous event
// frames through pushEvent (spec §8 end-to-end scenarios).
type mockTarget struct {
	srv   *httptest.Server
	wsURL string

	mu   sync.Mutex
	conn *websocket.Conn

	responder func(method string, params json.RawMessage) (result interface{}, rpcErr *protocol.RPCError)
}

func newMockTarget(t *testing.T, responder func(method string, params json.RawMessage) (interface{}, *protocol.RPCError)) *mockTarget {
	t.Helper()
	mt := &mockTarget{responder: responder}
	upgrader := websocket.Upgrader{}

	mt.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		mt.mu.Lock()
		mt.conn = conn
		mt.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req protocol.Request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			result, rpcErr := mt.responder(req.Method, nil)
			frame := map[string]interface{}{"id": req.ID}
			if rpcErr != nil {
				frame["error"] = rpcErr
			} else {
				frame["result"] = result
			}
			payload, _ := json.Marshal(frame)
			mt.send(payload)
		}
	}))
	mt.wsURL = "ws" + strings.TrimPrefix(mt.srv.URL, "http")
	return mt
}

func (mt *mockTarget) send(payload []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.conn == nil {
		return
	}
	_ = mt.conn.WriteMessage(websocket.TextMessage, payload)
}

func (mt *mockTarget) pushEvent(method string, params interface{}) {
	payload, _ := json.Marshal(map[string]interface{}{"method": method, "params": params})
	mt.send(payload)
}

// close ends the WebSocket from the target's side and shuts the server
// down; httptest.Server.Close alone leaves hijacked connections open.
func (mt *mockTarget) close() {
	mt.mu.Lock()
	if mt.conn != nil {
		_ = mt.conn.Close()
	}
	mt.mu.Unlock()
	mt.srv.Close()
}

func ackEverything(method string, params json.RawMessage) (interface{}, *protocol.RPCError) {
	return map[string]bool{"ok": true}, nil
}

func connectTestSession(t *testing.T, wsURL string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := Connect(ctx, Config{ID: "sess-1", TargetURL: wsURL, Fetcher: nil, Cache: nil})
	require.NoError(t, err)
	require.Equal(t, Connected, s.State())
	return s
}

// scenario 1: connect and handshake.
func TestConnectAndHandshake(t *testing.T) {
	mt := newMockTarget(t, ackEverything)
	defer mt.close()

	s := connectTestSession(t, mt.wsURL)
	defer s.Disconnect()

	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, Connected, s.State())
}

// scenario 2: breakpoint lifecycle.
func TestBreakpointLifecycle(t *testing.T) {
	mt := newMockTarget(t, func(method string, _ json.RawMessage) (interface{}, *protocol.RPCError) {
		switch method {
		case "Debugger.setBreakpointByUrl":
			return protocol.SetBreakpointByURLResult{
				BreakpointID: "bp-1",
				Locations:    []protocol.Location{{ScriptID: "s-1", LineNumber: 10, ColumnNumber: 0}},
			}, nil
		case "Debugger.removeBreakpoint":
			return map[string]bool{"ok": true}, nil
		default:
			return map[string]bool{"ok": true}, nil
		}
	})
	defer mt.close()

	s := connectTestSession(t, mt.wsURL)
	defer s.Disconnect()

	ctx := context.Background()
	bp, err := s.SetBreakpoint(ctx, "file:///a.js", 10, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "bp-1", bp.ID)
	require.Len(t, bp.Resolved, 1)

	mt.pushEvent("Debugger.breakpointResolved", protocol.BreakpointResolvedEvent{
		BreakpointID: "bp-1",
		Location:     protocol.Location{ScriptID: "s-1", LineNumber: 10, ColumnNumber: 4},
	})
	require.Eventually(t, func() bool {
		return len(s.ListBreakpoints()[0].Resolved) == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.RemoveBreakpoint(ctx, "bp-1"))
	require.Empty(t, s.ListBreakpoints())
}

// scenario 3: paused call stack with source map.
func TestPausedCallStackWithSourceMap(t *testing.T) {
	mapData := func() []byte {
		m := sourcemap.V3Map{
			Version:        3,
			Sources:        []string{"src/a.ts"},
			SourcesContent: []string{"export function f() {}\n"},
			Names:          []string{"f"},
			Mappings:       "AAKEA",
		}
		data, _ := json.Marshal(m)
		return data
	}()

	mt := newMockTarget(t, ackEverything)
	defer mt.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fetcher := &stubFetcher{data: mapData}
	s, err := Connect(ctx, Config{ID: "sess-1", TargetURL: mt.wsURL, Fetcher: fetcher})
	require.NoError(t, err)
	defer s.Disconnect()

	mt.pushEvent("Debugger.scriptParsed", protocol.ScriptParsedEvent{
		ScriptID:     "s-1",
		URL:          "file:///d/b.js",
		SourceMapURL: "b.js.map",
	})
	require.Eventually(t, func() bool { return len(s.ListScripts(true)) == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := s.script("s-1")
		return ok && s.sourcemaps.Has("s-1")
	}, time.Second, 10*time.Millisecond)

	mt.pushEvent("Debugger.paused", protocol.PausedEvent{
		Reason: "other",
		CallFrames: []protocol.CallFrame{
			{CallFrameID: "frame-1", FunctionName: "f", Location: protocol.Location{ScriptID: "s-1", LineNumber: 0, ColumnNumber: 0}},
		},
	})
	require.Eventually(t, func() bool { return s.State() == Paused }, time.Second, 10*time.Millisecond)

	frames, _, err := s.GetCallStack(true)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "s-1", frames[0].Generated.ScriptID)
	require.NotNil(t, frames[0].Original)
	require.Equal(t, "src/a.ts", frames[0].Original.Source)
	require.Equal(t, 6, frames[0].Original.Line)
	require.Equal(t, 2, frames[0].Original.Column)
}

// scenario 5: evaluate on frame with exception.
func TestEvaluateExpressionWithException(t *testing.T) {
	mt := newMockTarget(t, func(method string, _ json.RawMessage) (interface{}, *protocol.RPCError) {
		if method == "Debugger.evaluateOnCallFrame" {
			return protocol.EvaluateResult{
				Result:           protocol.RemoteObject{Type: "undefined"},
				ExceptionDetails: &protocol.ExceptionDetails{Text: "ReferenceError", LineNumber: 1, ColumnNumber: 0},
			}, nil
		}
		return map[string]bool{"ok": true}, nil
	})
	defer mt.close()

	s := connectTestSession(t, mt.wsURL)
	defer s.Disconnect()

	mt.pushEvent("Debugger.paused", protocol.PausedEvent{
		Reason:     "other",
		CallFrames: []protocol.CallFrame{{CallFrameID: "frame-1", FunctionName: "f"}},
	})
	require.Eventually(t, func() bool { return s.State() == Paused }, time.Second, 10*time.Millisecond)

	callFrameID := "frame-1"
	_, exc, err := s.EvaluateExpression(context.Background(), "boom", &callFrameID, false)
	require.NoError(t, err)
	require.NotNil(t, exc)
	require.Equal(t, "ReferenceError", exc.Text)
}

// scenario 6: transport loss cancels outstanding commands.
func TestTransportLossCancelsOutstanding(t *testing.T) {
	block := make(chan struct{})
	mt := newMockTarget(t, func(method string, _ json.RawMessage) (interface{}, *protocol.RPCError) {
		if method == "Runtime.runIfWaitingForDebugger" {
			<-block // never respond; the connection is closed out from under this call
			return nil, nil
		}
		return map[string]bool{"ok": true}, nil
	})

	s := connectTestSession(t, mt.wsURL)
	defer close(block)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.ResumeExecution(context.Background())
		errCh <- err
	}()

	// The session is still CONNECTED, so resume takes the
	// runIfWaitingForDebugger path; tear the transport down while that
	// command is in flight.
	time.Sleep(50 * time.Millisecond)
	mt.close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for in-flight command to fail on transport loss")
	}

	require.Eventually(t, func() bool { return s.State() == Disconnected }, time.Second, 10*time.Millisecond)
}

// scenario 4: step then pause.
func TestStepOverEmitsPausedNotification(t *testing.T) {
	mt := newMockTarget(t, ackEverything)
	defer mt.close()

	s := connectTestSession(t, mt.wsURL)
	defer s.Disconnect()

	mt.pushEvent("Debugger.paused", protocol.PausedEvent{
		Reason:     "other",
		CallFrames: []protocol.CallFrame{{CallFrameID: "frame-1", FunctionName: "f"}},
	})

	select {
	case n := <-s.Notifications():
		require.Equal(t, "paused", n.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial paused notification")
	}
	require.Equal(t, Paused, s.State())

	require.NoError(t, s.StepOver(context.Background()))
	// The ack only confirms the command was accepted; state remains
	// PAUSED locally until the subsequent paused event replaces the
	// snapshot (spec §5 ordering).
	require.Equal(t, Paused, s.State())

	mt.pushEvent("Debugger.paused", protocol.PausedEvent{
		Reason:     "step",
		CallFrames: []protocol.CallFrame{{CallFrameID: "frame-2", FunctionName: "g"}},
	})

	select {
	case n := <-s.Notifications():
		require.Equal(t, "paused", n.Kind)
		require.Equal(t, "step", n.Reason)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for step's paused notification")
	}

	require.Equal(t, Paused, s.State())
	frames, _, err := s.GetCallStack(true)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "frame-2", frames[0].CallFrameID)
}

func TestStepIntoAndStepOutRequirePaused(t *testing.T) {
	mt := newMockTarget(t, ackEverything)
	defer mt.close()

	s := connectTestSession(t, mt.wsURL)
	defer s.Disconnect()

	err := s.StepInto(context.Background())
	require.Error(t, err)
	var brokerErr *brokererr.Error
	require.ErrorAs(t, err, &brokerErr)
	require.Equal(t, brokererr.CodeSessionInvalidState, brokerErr.Code)

	mt.pushEvent("Debugger.paused", protocol.PausedEvent{
		Reason:     "other",
		CallFrames: []protocol.CallFrame{{CallFrameID: "frame-1"}},
	})
	require.Eventually(t, func() bool { return s.State() == Paused }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.StepInto(context.Background()))
	require.NoError(t, s.StepOut(context.Background()))
}

type stubFetcher struct{ data []byte }

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) { return f.data, nil }
