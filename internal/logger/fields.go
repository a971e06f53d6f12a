package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently so
// log aggregation can query across components.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Action processing
	KeyActionID  = "action_id"
	KeyAction    = "action"
	KeyExecutor  = "executor"
	KeyRequestID = "request_id"
	KeyListener  = "listener"

	// File service
	KeyFileID = "file_id"
	KeyPath   = "path"
	KeySize   = "size"

	// Client identification
	KeyClientIP = "client_ip"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorType  = "error_type"
)

// Field constructors for type safety.

// ActionID returns a slog.Attr for an action id.
func ActionID(id string) slog.Attr {
	return slog.String(KeyActionID, id)
}

// ActionName returns a slog.Attr for an action name.
func ActionName(name string) slog.Attr {
	return slog.String(KeyAction, name)
}

// Executor returns a slog.Attr for the acting user.
func Executor(name string) slog.Attr {
	return slog.String(KeyExecutor, name)
}

// RequestID returns a slog.Attr for an internal request id.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Listener returns a slog.Attr for the listener name (public/private).
func Listener(name string) slog.Attr {
	return slog.String(KeyListener, name)
}

// FileID returns a slog.Attr for a file id.
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// Path returns a slog.Attr for a stored file path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Size returns a slog.Attr for a byte size.
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// ClientIP returns a slog.Attr for a client address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorType returns a slog.Attr for a categorical error kind.
func ErrorType(t string) slog.Attr {
	return slog.String(KeyErrorType, t)
}
