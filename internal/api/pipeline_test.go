package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
	"github.com/planhub-io/planhub/internal/websocket"
)

func TestAuditSurvivesClientDisconnect(t *testing.T) {
	database, err := db.New(db.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	activity := repository.NewActivityRepository(database)

	pipe := &pipeline{activity: activity, hub: websocket.NewHub(zap.NewNop()), log: zap.NewNop()}

	identity := &auth.Identity{
		User:    &db.User{Username: "DUPONT"},
		Session: &db.Session{SessionID: "sid-1"},
	}

	// The client hung up before the handler finished.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/missions", nil).WithContext(ctx)

	pipe.audit(r, identity, db.ActionCreate, "mission", "42", nil, map[string]string{"statut": "planifie"})

	entries, total, err := activity.Query(context.Background(), repository.ActivityFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "DUPONT", entries[0].Username)
	assert.Equal(t, "mission", entries[0].EntityType)
	assert.Equal(t, "42", entries[0].EntityID)
}

func TestMarshalState(t *testing.T) {
	assert.Equal(t, "", marshalState(nil))
	assert.Equal(t, `{"a":1}`, marshalState(map[string]int{"a": 1}))
}
