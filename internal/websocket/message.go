// Package websocket implements the live-sync hub that pushes change
// notifications to connected planning clients. Every committed mutation on a
// shared entity fans out a data_changed envelope so all open planning views
// converge without polling.
package websocket

import "time"

// MessageType identifies the kind of event carried by a Message.
type MessageType string

const (
	// MsgWelcome is sent once right after attach, carrying the assigned
	// client id and the users currently connected.
	MsgWelcome MessageType = "welcome"

	// MsgUserConnected and MsgUserDisconnected are presence events,
	// broadcast to everyone except the client that triggered them.
	MsgUserConnected    MessageType = "user_connected"
	MsgUserDisconnected MessageType = "user_disconnected"

	// MsgConnectedUsers is the reply to an explicit get_users request.
	MsgConnectedUsers MessageType = "connected_users"

	// MsgDataChanged announces a committed mutation on a shared entity.
	// It goes to every client including the originator; clients suppress
	// their own echo using changed_by.
	MsgDataChanged MessageType = "data_changed"

	// MsgRefreshRequired hints clients to drop their cache and re-read,
	// either everything or one entity kind.
	MsgRefreshRequired MessageType = "refresh_required"

	// MsgPong is the reply to a client ping keep-alive.
	MsgPong MessageType = "pong"

	// MsgUserMessage relays a user-sourced broadcast to the other clients.
	// Never used for domain data.
	MsgUserMessage MessageType = "user_message"
)

// Change actions carried in data_changed envelopes.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionRefresh = "refresh"
)

// Message is the envelope for every frame sent to clients.
//
// JSON example:
//
//	{"type":"data_changed","data":{"entity":"missions","action":"created",
//	 "entity_id":42,"changed_by":"PLANNER1"},"timestamp":"2025-03-12T09:30:00Z"}
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope stamped with the current time.
func NewMessage(t MessageType, data any) Message {
	return Message{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// ChangePayload is the data of a data_changed envelope.
type ChangePayload struct {
	Entity    string `json:"entity"`
	Action    string `json:"action"`
	EntityID  any    `json:"entity_id,omitempty"`
	ChangedBy string `json:"changed_by"`
}

// PresencePayload is the data of user_connected / user_disconnected.
type PresencePayload struct {
	Username string `json:"username"`
	ClientID string `json:"client_id"`
}

// WelcomePayload is the data of the welcome envelope.
type WelcomePayload struct {
	ClientID       string   `json:"client_id"`
	ConnectedUsers []string `json:"connected_users"`
}

// inbound is what clients may send upward: ping, get_users, user_message.
type inbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
