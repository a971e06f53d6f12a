package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for traced operations. Domain keys follow the
// <component>.<field> convention.
const (
	AttrClientIP = "client.ip"
	AttrListener = "listener.name" // public or private

	AttrActionID       = "action.id"
	AttrActionName     = "action.name"
	AttrActionExecutor = "action.executor"
	AttrActionError    = "action.error_type"

	AttrFileID   = "file.id"
	AttrFilePath = "file.path"
	AttrFileSize = "file.size"

	AttrProcessName     = "process.name"
	AttrProcessID       = "process.id"
	AttrProcessExecutor = "process.executor"
	AttrProcessExitCode = "process.exit_code"

	AttrReportID      = "report.id"
	AttrMailRecipient = "mail.to"
)

// Span names, one per traced operation.
const (
	SpanDispatchResolve = "dispatch.resolve"

	SpanFileStore    = "filestore.store"
	SpanFileRetrieve = "filestore.retrieve"
	SpanFileUpdate   = "filestore.update"
	SpanFileRemove   = "filestore.remove"
	SpanFileList     = "filestore.list"

	SpanProcessRun = "process.run"
	SpanMailSend   = "mail.send"
)

// ClientIP returns an attribute for the client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// Listener returns an attribute naming the listener a request entered
// on.
func Listener(name string) attribute.KeyValue {
	return attribute.String(AttrListener, name)
}

// ActionID returns an attribute for the action correlation id.
func ActionID(id string) attribute.KeyValue {
	return attribute.String(AttrActionID, id)
}

// ActionName returns an attribute for the action name.
func ActionName(name string) attribute.KeyValue {
	return attribute.String(AttrActionName, name)
}

// ActionExecutor returns an attribute for the resolved executor.
func ActionExecutor(executor string) attribute.KeyValue {
	return attribute.String(AttrActionExecutor, executor)
}

// ActionError returns an attribute for the reply's error class.
func ActionError(errorType string) attribute.KeyValue {
	return attribute.String(AttrActionError, errorType)
}

// FileID returns an attribute for a stored file's id.
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// FilePath returns an attribute for a stored file's logical path.
func FilePath(path string) attribute.KeyValue {
	return attribute.String(AttrFilePath, path)
}

// FileSize returns an attribute for a file's size in bytes.
func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// ProcessName returns an attribute for the catalog entry name.
func ProcessName(name string) attribute.KeyValue {
	return attribute.String(AttrProcessName, name)
}

// ProcessID returns an attribute for one process run's id.
func ProcessID(id string) attribute.KeyValue {
	return attribute.String(AttrProcessID, id)
}

// ProcessExecutor returns an attribute for the user a process runs as.
func ProcessExecutor(executor string) attribute.KeyValue {
	return attribute.String(AttrProcessExecutor, executor)
}

// ProcessExitCode returns an attribute for a finished process's exit
// code.
func ProcessExitCode(code int) attribute.KeyValue {
	return attribute.Int(AttrProcessExitCode, code)
}

// ReportID returns an attribute for an archived report's id.
func ReportID(id string) attribute.KeyValue {
	return attribute.String(AttrReportID, id)
}

// MailRecipient returns an attribute for an outbound message's
// recipient.
func MailRecipient(to string) attribute.KeyValue {
	return attribute.String(AttrMailRecipient, to)
}

// StartActionSpan starts the root span for one dispatched action,
// covering routing, authorization and handler execution.
func StartActionSpan(ctx context.Context, action string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		ActionName(action),
	}, attrs...)
	return StartSpan(ctx, SpanDispatchResolve,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(allAttrs...),
	)
}

// StartFileSpan starts a span for a file service task.
func StartFileSpan(ctx context.Context, span string, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		FilePath(path),
	}, attrs...)
	return StartSpan(ctx, span, trace.WithAttributes(allAttrs...))
}

// StartProcessSpan starts a span covering a spawned process's lifetime.
func StartProcessSpan(ctx context.Context, name, executor string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		ProcessName(name),
		ProcessExecutor(executor),
	}, attrs...)
	return StartSpan(ctx, SpanProcessRun, trace.WithAttributes(allAttrs...))
}
