package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var hello map[string]string
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["event"])
	return conn
}

func TestHubDeliversToEverySocketOfUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 7)
	}))
	defer srv.Close()

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Connections(7) == 2 }, time.Second, 10*time.Millisecond)

	delivered := hub.Broadcast(7, PushMessage{Event: "notification", Title: "hi", Type: "system"})
	assert.Equal(t, 2, delivered)
	assert.Zero(t, hub.Broadcast(8, PushMessage{Event: "notification"}))

	for _, conn := range []*websocket.Conn{a, b} {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg PushMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "hi", msg.Title)
	}

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.Connections(7) == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	_, _, err := b.ReadMessage()
	require.Error(t, err)
	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return hub.Connections(7) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowSocket(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	c := &client{userID: 3, send: make(chan []byte, 1)}
	hub.add(c)

	assert.Equal(t, 1, hub.Broadcast(3, map[string]string{"n": "1"}))
	assert.Equal(t, 0, hub.Broadcast(3, map[string]string{"n": "2"}))
	assert.Zero(t, hub.Connections(3))

	_, open := <-c.send
	assert.True(t, open, "queued frame is still readable")
	_, open = <-c.send
	assert.False(t, open)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.kaiden.test"}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 1)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
