package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(r.URL.Query().Get("owner"), conn)
		hub.Register(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.Unregister(client)
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, owner string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?owner=" + owner
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_PublishesToOwnerOnly(t *testing.T) {
	hub, server := newTestHub(t)
	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	require.Eventually(t, func() bool {
		return hub.Connections("alice") == 1 && hub.Connections("bob") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), Event{Type: EventPhotoUpdated, OwnerID: "alice", PhotoID: "p1", Status: "SUCCESS"})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, EventPhotoUpdated, got["type"])
	assert.Equal(t, "p1", got["photo_id"])
	assert.NotContains(t, got, "OwnerID")

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's events")
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dial(t, server, "alice")
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, time.Second, 10*time.Millisecond)
}

type recorder struct{ events []Event }

func (r *recorder) Publish(_ context.Context, ev Event) { r.events = append(r.events, ev) }

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi(a, Nop(), b).Publish(context.Background(), Event{Type: EventCancelled})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
