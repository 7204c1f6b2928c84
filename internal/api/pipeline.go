package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
	"github.com/planhub-io/planhub/internal/websocket"
)

// pipeline bundles the audit append and hub fan-out every mutating handler
// performs after its transaction commits.
type pipeline struct {
	activity *repository.ActivityRepository
	hub      *websocket.Hub
	log      *zap.Logger
}

// audit appends one audit entry for the calling identity. Failures are
// logged, never surfaced: the domain mutation already committed.
func (p *pipeline) audit(r *http.Request, identity *auth.Identity, action, entityType, entityID string, before, after any) {
	entry := &db.ActivityLog{
		Username:    identity.User.Username,
		SessionID:   identity.Session.SessionID,
		ActionType:  action,
		EntityType:  entityType,
		EntityID:    entityID,
		BeforeState: marshalState(before),
		AfterState:  marshalState(after),
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
	}
	// Detached from the request context: the mutation already committed, so
	// the trail entry must be written even if the client went away.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.activity.Append(ctx, entry); err != nil {
		p.log.Error("audit append failed",
			zap.Error(err),
			zap.String("action", action),
			zap.String("entity_type", entityType))
	}
}

// notify fans a data_changed envelope out to every connected client.
func (p *pipeline) notify(entity, action string, entityID any, identity *auth.Identity) {
	p.hub.NotifyChange(entity, action, entityID, identity.User.Username)
}

// marshalState serializes a before/after snapshot for the audit trail. A
// nil snapshot becomes the empty string, not "null".
func marshalState(state any) string {
	if state == nil {
		return ""
	}
	data, err := json.Marshal(state)
	if err != nil {
		return ""
	}
	return string(data)
}
