package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planhub-io/planhub/internal/db"
)

func createSessionUser(t *testing.T, users *UserRepository, username string) *db.User {
	t.Helper()
	u := &db.User{Username: username, IsActive: true}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func createSession(t *testing.T, sessions *SessionRepository, userID int64, sessionID string, expiresAt time.Time) *db.Session {
	t.Helper()
	s := &db.Session{
		SessionID:    sessionID,
		UserID:       userID,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		ExpiresAt:    expiresAt,
		IsActive:     true,
	}
	require.NoError(t, sessions.Create(context.Background(), s))
	return s
}

func TestSessionLifecycle(t *testing.T) {
	database := newTestDB(t)
	users := NewUserRepository(database)
	sessions := NewSessionRepository(database)
	ctx := context.Background()

	u := createSessionUser(t, users, "DUPONT")
	createSession(t, sessions, u.ID, "sess-1", time.Now().Add(time.Hour))

	got, err := sessions.GetBySessionID(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, "DUPONT", got.User.Username)

	require.NoError(t, sessions.Deactivate(ctx, "sess-1"))
	// Deactivating twice is a not-found, the session is already gone.
	assert.True(t, errors.Is(sessions.Deactivate(ctx, "sess-1"), ErrNotFound))
}

func TestSessionListActiveSkipsExpiredAndClosed(t *testing.T) {
	database := newTestDB(t)
	users := NewUserRepository(database)
	sessions := NewSessionRepository(database)
	ctx := context.Background()

	u := createSessionUser(t, users, "DUPONT")
	createSession(t, sessions, u.ID, "live", time.Now().Add(time.Hour))
	createSession(t, sessions, u.ID, "expired", time.Now().Add(-time.Minute))
	closed := createSession(t, sessions, u.ID, "closed", time.Now().Add(time.Hour))
	require.NoError(t, sessions.Deactivate(ctx, closed.SessionID))

	active, err := sessions.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].SessionID)
}

func TestSessionDeactivateForUser(t *testing.T) {
	database := newTestDB(t)
	users := NewUserRepository(database)
	sessions := NewSessionRepository(database)
	ctx := context.Background()

	u := createSessionUser(t, users, "DUPONT")
	other := createSessionUser(t, users, "MARTIN")
	createSession(t, sessions, u.ID, "a", time.Now().Add(time.Hour))
	createSession(t, sessions, u.ID, "b", time.Now().Add(time.Hour))
	createSession(t, sessions, other.ID, "c", time.Now().Add(time.Hour))

	n, err := sessions.DeactivateForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	active, err := sessions.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c", active[0].SessionID)
}

func TestSessionDeactivateAllKeepsCaller(t *testing.T) {
	database := newTestDB(t)
	users := NewUserRepository(database)
	sessions := NewSessionRepository(database)
	ctx := context.Background()

	u := createSessionUser(t, users, "ADMIN")
	for i := 0; i < 3; i++ {
		createSession(t, sessions, u.ID, fmt.Sprintf("sess-%d", i), time.Now().Add(time.Hour))
	}

	n, err := sessions.DeactivateAll(ctx, "sess-0")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	active, err := sessions.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sess-0", active[0].SessionID)
}

func TestSessionSweepExpired(t *testing.T) {
	database := newTestDB(t)
	users := NewUserRepository(database)
	sessions := NewSessionRepository(database)
	ctx := context.Background()

	u := createSessionUser(t, users, "DUPONT")
	createSession(t, sessions, u.ID, "old", time.Now().Add(-time.Hour))
	createSession(t, sessions, u.ID, "new", time.Now().Add(time.Hour))

	swept, err := sessions.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	// Already swept sessions are not counted again.
	swept, err = sessions.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, swept)
}
