package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		handler(conn)
	}))
	return srv
}

func TestWebSocketSource_SubscribeDeliversRecord(t *testing.T) {
	srv := newTestWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var req subscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		require.NoError(t, conn.WriteJSON(subscribeResponse{ID: req.ID, Result: 1}))

		notif := map[string]interface{}{
			"method": "transactionNotification",
			"params": map[string]interface{}{
				"subscription": 1,
				"result": map[string]interface{}{
					"signature": "sig1",
					"slot":      42,
					"transaction": map[string]interface{}{
						"transaction": map[string]interface{}{
							"accountKeys":  []string{"a1"},
							"instructions": []interface{}{},
						},
						"meta": map[string]interface{}{},
					},
				},
			},
		}
		require.NoError(t, conn.WriteJSON(notif))
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewWebSocketSource(wsURL, zerolog.Nop())
	ch, err := s.Subscribe(context.Background(), []string{"ProgramP"}, models.CommitmentConfirmed)
	require.NoError(t, err)

	select {
	case rec := <-ch:
		assert.Equal(t, "sig1", rec.Signature)
		assert.Equal(t, uint64(42), rec.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}

	s.Close()
}

func TestWebSocketSource_KeepaliveFailureTriggersReconnect(t *testing.T) {
	connected := make(chan struct{}, 1)
	srv := newTestWSServer(t, func(conn *websocket.Conn) {
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		require.NoError(t, conn.WriteJSON(subscribeResponse{ID: req.ID, Result: 1}))
		select {
		case connected <- struct{}{}:
		default:
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewWebSocketSource(wsURL, zerolog.Nop())
	s.keepaliveInterval = 20 * time.Millisecond
	// Only the keepalive loop runs (no read loop), so the reconnect below can
	// only come from a failed ping.
	accounts := []string{"ProgramP"}
	require.NoError(t, s.connectAndSubscribe(context.Background(), accounts, models.CommitmentConfirmed))
	go s.keepalive(accounts, models.CommitmentConfirmed)
	<-connected
	require.Equal(t, "RUNNING", s.Stats().State)

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return s.sm.currentState() == stateReconnecting
	}, 2*time.Second, 10*time.Millisecond, "expected keepalive ping failure to drive the state machine to RECONNECTING")

	s.Close()
}

func TestWebSocketSource_Stats_ReflectsRunningState(t *testing.T) {
	srv := newTestWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var req subscribeRequest
		require.NoError(t, conn.ReadJSON(&req))
		require.NoError(t, conn.WriteJSON(subscribeResponse{ID: req.ID, Result: 1}))
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewWebSocketSource(wsURL, zerolog.Nop())
	_, err := s.Subscribe(context.Background(), []string{"ProgramP"}, models.CommitmentConfirmed)
	require.NoError(t, err)

	assert.Equal(t, "RUNNING", s.Stats().State)
	s.Close()
}
