package history

import (
	"context"

	"github.com/sofatutor/imagegen-proxy/internal/logging"
	"go.uber.org/zap"
)

// Recorder appends to a Store on the request path. History is best-effort:
// failures are logged and never reach the caller.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder wraps store.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends rec and reports whether it was stored. The outcome is also
// added to the request log on ctx, when there is one.
func (r *Recorder) Record(ctx context.Context, rec Record) (Record, bool) {
	if r == nil || r.store == nil {
		return Record{}, false
	}
	saved, err := r.store.Append(ctx, rec)
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("backend", r.store.Backend())}
		if id, ok := logging.GetRequestID(ctx); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		r.logger.Warn("Failed to record generation history", fields...)
		logging.RequestLogFrom(ctx).Add("History Error", err.Error())
		return Record{}, false
	}
	logging.RequestLogFrom(ctx).Add("History Saved", saved.ID)
	return saved, true
}
