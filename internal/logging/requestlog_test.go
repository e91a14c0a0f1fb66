package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLog_PreservesOrder(t *testing.T) {
	l := NewRequestLog()
	l.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC) }

	l.Add("first", map[string]any{"n": 1})
	l.Add("second", "text")

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Step)
	assert.Equal(t, "second", entries[1].Step)
	assert.Equal(t, "03:04:05.006", entries[0].Time)

	entries[0].Step = "mutated"
	assert.Equal(t, "first", l.Entries()[0].Step, "Entries returns a copy")
}

func TestRequestLog_NilReceiver(t *testing.T) {
	var l *RequestLog
	assert.NotPanics(t, func() {
		l.Add("step", nil)
		l.Flush(context.Background(), zap.NewNop(), "msg")
	})
	assert.Nil(t, l.Entries())
}

func TestRequestLog_FlushWritesOneEntry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	l := NewRequestLog()
	l.Add("a", 1)
	l.Add("b", 2)

	ctx := WithRequestID(context.Background(), "req-1")
	l.Flush(ctx, logger, "request trace")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request trace", entry.Message)
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
}

func TestRequestLog_Context(t *testing.T) {
	l := NewRequestLog()
	ctx := WithRequestLog(context.Background(), l)
	assert.Same(t, l, RequestLogFrom(ctx))
	assert.Nil(t, RequestLogFrom(context.Background()))

	_, ok := GetRequestID(context.Background())
	assert.False(t, ok)
}
