package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

func newTestRepos(t *testing.T) (*repository.ActivityRepository, *repository.RequestLogRepository) {
	t.Helper()
	database, err := db.New(db.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return repository.NewActivityRepository(database), repository.NewRequestLogRepository(database)
}

func TestNewAppliesDefaults(t *testing.T) {
	activity, requests := newTestRepos(t)

	s, err := New(nil, nil, activity, requests, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 30, s.cfg.RetentionDays)
	assert.Equal(t, 5*time.Minute, s.cfg.SweepInterval)
	assert.Equal(t, 90, s.cfg.LogRetentionDays)

	_, err = New(nil, nil, activity, requests, Config{BackupHour: 24}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunLogRetention(t *testing.T) {
	activity, requests := newTestRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, activity.Append(ctx, &db.ActivityLog{
		Username: "DUPONT", ActionType: "create", EntityType: "mission",
		CreatedAt: now.AddDate(0, 0, -120),
	}))
	require.NoError(t, activity.Append(ctx, &db.ActivityLog{
		Username: "DUPONT", ActionType: "update", EntityType: "mission",
		CreatedAt: now,
	}))
	ms := int64(10)
	require.NoError(t, requests.Append(ctx, &db.ApiRequestLog{
		Method: "GET", Path: "/missions", StatusCode: 200, ResponseTimeMs: &ms,
		CreatedAt: now.AddDate(0, 0, -120),
	}))
	require.NoError(t, requests.Append(ctx, &db.ApiRequestLog{
		Method: "GET", Path: "/voyages", StatusCode: 200, ResponseTimeMs: &ms,
		CreatedAt: now,
	}))

	s, err := New(nil, nil, activity, requests, Config{LogRetentionDays: 90}, zap.NewNop())
	require.NoError(t, err)
	s.runLogRetention()

	// Only the entries younger than the retention window survive.
	_, total, err := activity.Query(ctx, repository.ActivityFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	entries, total, err := requests.List(ctx, repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "/voyages", entries[0].Path)
}
