package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey  ctxKey = "request_id"
	requestLogKey ctxKey = "request_log"
)

// WithRequestID stores the request ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored on the context, if any.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// RequestLogEntry is one step recorded while serving a request.
type RequestLogEntry struct {
	Time string `json:"time"`
	Step string `json:"step"`
	Data any    `json:"data,omitempty"`
}

// RequestLog is an ordered, request-scoped log buffer. It is owned by a single
// request and is not safe for concurrent use.
type RequestLog struct {
	entries []RequestLogEntry
	now     func() time.Time
}

// NewRequestLog returns an empty buffer.
func NewRequestLog() *RequestLog {
	return &RequestLog{now: time.Now}
}

// Add appends a step. A nil receiver is a no-op so callers may pass nil when
// they do not care about the trace.
func (l *RequestLog) Add(step string, data any) {
	if l == nil {
		return
	}
	l.entries = append(l.entries, RequestLogEntry{
		Time: l.now().UTC().Format("15:04:05.000"),
		Step: step,
		Data: data,
	})
}

// Entries returns a copy of the recorded steps in insertion order.
func (l *RequestLog) Entries() []RequestLogEntry {
	if l == nil {
		return nil
	}
	out := make([]RequestLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Flush writes the whole buffer to logger as a single debug entry.
func (l *RequestLog) Flush(ctx context.Context, logger *zap.Logger, msg string) {
	if l == nil || logger == nil || len(l.entries) == 0 {
		return
	}
	fields := []zap.Field{zap.Any("steps", l.entries)}
	if id, ok := GetRequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	logger.Debug(msg, fields...)
}

// WithRequestLog stores the buffer on the context.
func WithRequestLog(ctx context.Context, l *RequestLog) context.Context {
	return context.WithValue(ctx, requestLogKey, l)
}

// RequestLogFrom returns the buffer stored on the context, or nil.
func RequestLogFrom(ctx context.Context) *RequestLog {
	l, _ := ctx.Value(requestLogKey).(*RequestLog)
	return l
}
