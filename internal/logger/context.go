package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context carried from the
// listener through the dispatcher.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	ActionID  string    // Wire action id
	Action    string    // Action name (file.upload, user.list, ...)
	Executor  string    // Acting user
	Listener  string    // public or private
	ClientIP  string    // Client IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext attaches the LogContext to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext carried by ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for a request from clientIP.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone returns a copy. Cloning nil yields nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithAction returns a copy with the action id and name set.
func (lc *LogContext) WithAction(id, name string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ActionID = id
		clone.Action = name
	}
	return clone
}

// WithExecutor returns a copy with the executor set.
func (lc *LogContext) WithExecutor(executor string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Executor = executor
	}
	return clone
}

// DurationMs returns the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
