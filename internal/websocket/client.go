package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the maximum time allowed to write a message to the peer.
	// A write that does not complete within this window closes the
	// connection so a stalled client cannot block the writePump.
	writeWait = 10 * time.Second

	// pongWait is how long the server waits for any client frame before
	// considering the connection stale.
	pongWait = 60 * time.Second

	// pingPeriod is how often the server pings the client. Must be less
	// than pongWait so the client has time to reply.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. Clients only send small
	// control messages (ping, get_users, user_message).
	maxMessageSize = 4096

	// sendBufferSize is the capacity of the per-client channel. A client
	// whose buffer fills up is too slow and gets evicted.
	sendBufferSize = 32
)

// upgrader performs the HTTP to WebSocket protocol upgrade. Origin
// validation is the reverse proxy's responsibility in deployments.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one attached push channel. Each client runs two goroutines:
// readPump handles inbound control messages and disconnect detection,
// writePump is the sole writer on the connection.
type Client struct {
	// ID is the opaque client id assigned at attach time.
	ID string

	// Username is the normalized owner of the channel, used for presence
	// events and force disconnect.
	Username string

	hub  *Hub
	conn *websocket.Conn

	// send hands messages from the hub to the writePump. It is never
	// closed; shutdown is signalled through the closed channel instead so
	// concurrent broadcasters cannot hit a closed channel.
	send chan Message

	closed    chan struct{}
	closeOnce sync.Once

	log *zap.Logger
}

// NewClient upgrades the HTTP connection and builds a Client for the given
// user. The caller must call Run to attach it to the hub.
func NewClient(hub *Hub, w http.ResponseWriter, r *http.Request, username string) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:       uuid.NewString(),
		Username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, sendBufferSize),
		closed:   make(chan struct{}),
		log: hub.log.With(
			zap.String("username", username),
			zap.String("remote_addr", r.RemoteAddr)),
	}
	return c, nil
}

// Close codes for rejected connections. Application-defined so browser
// clients can distinguish an expired token from an invalid one.
const (
	CloseTokenExpired = 4001
	CloseTokenInvalid = 4002
)

// Reject completes the upgrade only to deliver an application close code,
// then drops the connection. Browsers cannot read HTTP error bodies on a
// WebSocket request, so the code is the only signal they get.
func Reject(w http.ResponseWriter, r *http.Request, code int, reason string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// Run attaches the client to the hub and starts both pumps. It blocks until
// the connection closes, which is fine because the HTTP handler has already
// completed the upgrade.
func (c *Client) Run() {
	c.hub.Attach(c)

	go c.writePump()
	c.readPump()
}

// enqueue hands a message to the writePump without ever blocking. A full
// buffer evicts the client; fan-out to the others continues.
func (c *Client) enqueue(msg Message) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Warn("send buffer full, evicting client", zap.String("client_id", c.ID))
		c.shutdown()
		go c.hub.Detach(c)
	}
}

// shutdown signals both pumps to exit. Safe to call more than once.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// closeWithReason sends a close frame with the given text before shutting
// the client down. Used by force disconnect.
func (c *Client) closeWithReason(reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	c.shutdown()
}

// readPump consumes inbound frames: ping keep-alives, get_users requests
// and user_message relays. Anything unparsable is ignored. When the loop
// exits the client is detached from the hub.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.hub.Detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.log.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		// Any inbound frame proves liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			c.enqueue(NewMessage(MsgPong, map[string]any{}))
		case "get_users":
			c.enqueue(NewMessage(MsgConnectedUsers, map[string]any{
				"users": c.hub.ConnectedUsers(),
			}))
		case "user_message":
			c.hub.BroadcastExcept(c.ID, NewMessage(MsgUserMessage, map[string]any{
				"from":    c.Username,
				"message": msg.Message,
			}))
		}
	}
}

// writePump is the only goroutine writing to the connection. It forwards
// enqueued messages and sends periodic pings, and exits when the closed
// channel is signalled.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
