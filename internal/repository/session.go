package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/planhub-io/planhub/internal/db"
)

// SessionRepository persists login sessions.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository returns a SessionRepository backed by the provided *gorm.DB.
func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *db.Session) error {
	return translate("sessions: create", r.db.WithContext(ctx).Create(s).Error)
}

// GetBySessionID retrieves a session by its opaque id with the user and role
// preloaded.
func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*db.Session, error) {
	var s db.Session
	err := r.db.WithContext(ctx).
		Preload("User").Preload("User.Role").
		First(&s, "session_id = ?", sessionID).Error
	if err != nil {
		return nil, translate("sessions: get", err)
	}
	return &s, nil
}

// ListActive returns the active, unexpired sessions, newest first, users
// preloaded.
func (r *SessionRepository) ListActive(ctx context.Context, now time.Time) ([]db.Session, error) {
	var sessions []db.Session
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("is_active = ? AND expires_at > ?", true, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, translate("sessions: list active", err)
	}
	return sessions, nil
}

// TouchActivity bumps last_activity on a session.
func (r *SessionRepository) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&db.Session{}).
		Where("session_id = ?", sessionID).
		Update("last_activity", at).Error
	return translate("sessions: touch", err)
}

// Deactivate marks one session inactive. Returns ErrNotFound when the
// session does not exist or is already inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).Model(&db.Session{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Update("is_active", false)
	if result.Error != nil {
		return translate("sessions: deactivate", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateForUser marks all of a user's sessions inactive and returns how
// many were affected.
func (r *SessionRepository) DeactivateForUser(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&db.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return 0, translate("sessions: deactivate for user", result.Error)
	}
	return result.RowsAffected, nil
}

// DeactivateAll marks every active session inactive, except the one whose
// session_id is passed as keep (the admin doing the kicking). Returns the
// number of sessions closed.
func (r *SessionRepository) DeactivateAll(ctx context.Context, keep string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&db.Session{}).
		Where("is_active = ? AND session_id <> ?", true, keep).
		Update("is_active", false)
	if result.Error != nil {
		return 0, translate("sessions: deactivate all", result.Error)
	}
	return result.RowsAffected, nil
}

// SweepExpired marks expired-but-still-active sessions inactive and returns
// how many were swept. Called periodically by the scheduler.
func (r *SessionRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&db.Session{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Update("is_active", false)
	if result.Error != nil {
		return 0, translate("sessions: sweep expired", result.Error)
	}
	return result.RowsAffected, nil
}
