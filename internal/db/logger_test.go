package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func traceAfter(l gormlogger.Interface, elapsed time.Duration) {
	l.Trace(context.Background(), time.Now().Add(-elapsed), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
}

func TestSlowQueryThreshold(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	l := newZapGORMLogger(zap.New(core), gormlogger.Warn, 50*time.Millisecond)
	traceAfter(l, 10*time.Millisecond)
	assert.Equal(t, 0, logs.Len())

	traceAfter(l, 200*time.Millisecond)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "gorm slow query", logs.All()[0].Message)
}

func TestSlowQueryDefaultAndDisable(t *testing.T) {
	// Zero falls back to the 200ms default.
	l, ok := newZapGORMLogger(zap.NewNop(), gormlogger.Warn, 0).(*zapGORMLogger)
	require.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, l.slowQueryThreshold)

	// Negative disables the slow query warning entirely.
	core, logs := observer.New(zap.WarnLevel)
	disabled := newZapGORMLogger(zap.New(core), gormlogger.Warn, -1)
	traceAfter(disabled, time.Second)
	assert.Equal(t, 0, logs.Len())
}
