package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestHub starts a hub and an HTTP server whose /ws endpoint attaches
// clients under the username passed in the query string.
func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := NewClient(hub, w, r, r.URL.Query().Get("user"))
		if err != nil {
			return
		}
		go client.Run()
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads frames until one of the wanted type arrives.
func readEnvelope(t *testing.T, conn *websocket.Conn, want MessageType) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var envelope struct {
			Type MessageType    `json:"type"`
			Data map[string]any `json:"data"`
		}
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &envelope))
		if envelope.Type == want {
			return envelope.Data
		}
	}
}

func TestWelcomeOnAttach(t *testing.T) {
	_, server := newTestHub(t)

	conn := dial(t, server, "DUPONT")
	data := readEnvelope(t, conn, MsgWelcome)
	assert.NotEmpty(t, data["client_id"])

	users, _ := data["connected_users"].([]any)
	assert.Contains(t, users, "DUPONT")
}

func TestPresenceEvents(t *testing.T) {
	_, server := newTestHub(t)

	first := dial(t, server, "DUPONT")
	readEnvelope(t, first, MsgWelcome)

	second := dial(t, server, "MARTIN")
	readEnvelope(t, second, MsgWelcome)

	data := readEnvelope(t, first, MsgUserConnected)
	assert.Equal(t, "MARTIN", data["username"])

	require.NoError(t, second.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	second.Close()

	data = readEnvelope(t, first, MsgUserDisconnected)
	assert.Equal(t, "MARTIN", data["username"])
}

func TestNotifyChangeReachesAllClients(t *testing.T) {
	hub, server := newTestHub(t)

	first := dial(t, server, "DUPONT")
	readEnvelope(t, first, MsgWelcome)
	second := dial(t, server, "MARTIN")
	readEnvelope(t, second, MsgWelcome)

	hub.NotifyChange("missions", ActionCreated, 42, "DUPONT")

	for _, conn := range []*websocket.Conn{first, second} {
		data := readEnvelope(t, conn, MsgDataChanged)
		assert.Equal(t, "missions", data["entity"])
		assert.Equal(t, ActionCreated, data["action"])
		assert.EqualValues(t, 42, data["entity_id"])
		assert.Equal(t, "DUPONT", data["changed_by"])
	}
}

func TestGetUsersRequest(t *testing.T) {
	_, server := newTestHub(t)

	conn := dial(t, server, "DUPONT")
	readEnvelope(t, conn, MsgWelcome)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_users"}))
	data := readEnvelope(t, conn, MsgConnectedUsers)
	users, _ := data["users"].([]any)
	assert.Contains(t, users, "DUPONT")
}

func TestDisconnectUser(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server, "DUPONT")
	readEnvelope(t, conn, MsgWelcome)

	require.Eventually(t, func() bool {
		clients, _ := hub.Counts()
		return clients == 1
	}, 5*time.Second, 10*time.Millisecond)

	dropped := hub.DisconnectUser("DUPONT")
	assert.Equal(t, 1, dropped)

	require.Eventually(t, func() bool {
		clients, users := hub.Counts()
		return clients == 0 && users == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCountsDistinctUsers(t *testing.T) {
	hub, server := newTestHub(t)

	a := dial(t, server, "DUPONT")
	readEnvelope(t, a, MsgWelcome)
	b := dial(t, server, "DUPONT")
	readEnvelope(t, b, MsgWelcome)
	c := dial(t, server, "MARTIN")
	readEnvelope(t, c, MsgWelcome)

	require.Eventually(t, func() bool {
		clients, users := hub.Counts()
		return clients == 3 && users == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"DUPONT", "MARTIN"}, hub.ConnectedUsers())
}
