package logging

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWatermillAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewWatermillAdapter(zap.New(core)).With(watermill.LogFields{"topic": "donations.credited"})

	adapter.Info("published", watermill.LogFields{"uuid": "d-1"})
	adapter.Trace("acked", nil)
	adapter.Error("publish failed", errors.New("redis down"), nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "watermill", entries[0].LoggerName)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "donations.credited", entries[0].ContextMap()["topic"])
	assert.Equal(t, "d-1", entries[0].ContextMap()["uuid"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "redis down", entries[2].ContextMap()["error"])
}
