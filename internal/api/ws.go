package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/websocket"
)

// WSHandler upgrades /ws connections and exposes the hub status.
type WSHandler struct {
	auth *auth.Service
	hub  *websocket.Hub
	log  *zap.Logger
}

// NewWSHandler builds the WebSocket handler.
func NewWSHandler(authSvc *auth.Service, hub *websocket.Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{auth: authSvc, hub: hub, log: log}
}

// Connect handles GET /ws?token=... Browsers cannot set an Authorization
// header on a WebSocket request, so the token rides in the query string. A
// bad token still completes the upgrade, only to deliver an application
// close code the client can read.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		websocket.Reject(w, r, websocket.CloseTokenInvalid, "token requis")
		return
	}

	identity, err := h.auth.ValidateToken(r.Context(), token)
	if err != nil {
		code := websocket.CloseTokenInvalid
		if errors.Is(err, auth.ErrTokenExpired) {
			code = websocket.CloseTokenExpired
		}
		websocket.Reject(w, r, code, "session invalide")
		return
	}

	client, err := websocket.NewClient(h.hub, w, r, identity.User.Username)
	if err != nil {
		// Upgrade failed; the upgrader already wrote the HTTP error.
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	client.Run()
}

// Status handles GET /ws/status: attached clients and distinct users.
func (h *WSHandler) Status(w http.ResponseWriter, r *http.Request) {
	clients, users := h.hub.Counts()
	JSON(w, http.StatusOK, map[string]any{
		"clients":         clients,
		"users":           users,
		"connected_users": h.hub.ConnectedUsers(),
	})
}
