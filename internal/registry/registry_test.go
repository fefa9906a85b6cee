package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
)

func newAckTarget(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID int64 `json:"id"`
			}
			_ = json.Unmarshal(data, &req)
			resp, _ := json.Marshal(map[string]interface{}{"id": req.ID, "result": map[string]bool{"ok": true}})
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCreateGetDestroy(t *testing.T) {
	srv, wsURL := newAckTarget(t)
	defer srv.Close()

	r := New(Config{AllowedHosts: map[string]bool{"127.0.0.1": true, "localhost": true}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := r.Create(ctx, wsURL, "")
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	require.Equal(t, s, got)

	require.NoError(t, r.Destroy(s.ID))
	_, err = r.Get(s.ID)
	require.Error(t, err)
	var brokerErr *brokererr.Error
	require.ErrorAs(t, err, &brokerErr)
	require.Equal(t, brokererr.CodeSessionNotFound, brokerErr.Code)

	// R3: destroying again reports SESSION_NOT_FOUND.
	require.Error(t, r.Destroy(s.ID))
}

func TestAdmissionPolicyRejectsDisallowedHost(t *testing.T) {
	r := New(Config{AllowedHosts: map[string]bool{"localhost": true}})
	_, err := r.Create(context.Background(), "ws://evil.example/t", "")
	require.Error(t, err)
	var brokerErr *brokererr.Error
	require.ErrorAs(t, err, &brokerErr)
	require.Equal(t, brokererr.CodeInvalidParameters, brokerErr.Code)
}

func TestAdmissionPolicyRejectsBadScheme(t *testing.T) {
	r := New(Config{})
	_, err := r.Create(context.Background(), "http://localhost/t", "")
	require.Error(t, err)
}

func TestMaxSessionsReached(t *testing.T) {
	srv, wsURL := newAckTarget(t)
	defer srv.Close()

	r := New(Config{MaxSessions: 1, AllowedHosts: map[string]bool{"127.0.0.1": true, "localhost": true}})
	ctx := context.Background()
	_, err := r.Create(ctx, wsURL, "")
	require.NoError(t, err)

	_, err = r.Create(ctx, wsURL, "")
	require.Error(t, err)
	var brokerErr *brokererr.Error
	require.ErrorAs(t, err, &brokerErr)
	require.Equal(t, brokererr.CodeMaxSessionsReached, brokerErr.Code)
}
