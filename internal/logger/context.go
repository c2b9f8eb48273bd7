package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields for a single outstanding
// OSD request as it moves through registration, dispatch, and reply.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Tid       uint64    // request tid, once registered
	Pgid      string    // placement group id, once computed
	Epoch     uint32    // osdmap epoch used for the last dispatch
	Target    int32     // last target node id (-1 if none)
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a request about to be registered.
func NewLogContext() *LogContext {
	return &LogContext{
		Target:    -1,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTid returns a copy with the request tid set
func (lc *LogContext) WithTid(tid uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Tid = tid
	}
	return clone
}

// WithDispatch returns a copy with the last dispatch decision recorded
func (lc *LogContext) WithDispatch(pgid string, epoch uint32, target int32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Pgid = pgid
		clone.Epoch = epoch
		clone.Target = target
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
