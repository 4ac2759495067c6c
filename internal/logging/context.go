package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	projectKey struct{}
	sessionKey struct{}
	hookKey    struct{}
	loggerKey  struct{}
)

const maxSessionIDLen = 128

// Session ids come from the hook host and may contain dots.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ContextFields returns the correlation fields carried by ctx: trace and
// span ids, project, session id and hook event.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	if v := ProjectFromContext(ctx); v != "" {
		fields = append(fields, zap.String("project", v))
	}
	if v := SessionIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("session.id", v))
	}
	if v := HookFromContext(ctx); v != "" {
		fields = append(fields, zap.String("hook", v))
	}
	return fields
}

func stringValue(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithProject records the project a session works on. Empty names are
// ignored.
func WithProject(ctx context.Context, project string) context.Context {
	if project == "" {
		return ctx
	}
	return context.WithValue(ctx, projectKey{}, project)
}

func ProjectFromContext(ctx context.Context) string {
	return stringValue(ctx, projectKey{})
}

// WithSessionID records the assistant session id. Ids that are empty,
// longer than 128 bytes or contain characters other than letters, digits,
// dot, hyphen and underscore are rejected and ctx is returned unchanged.
func WithSessionID(ctx context.Context, id string) (context.Context, error) {
	switch {
	case id == "":
		return ctx, fmt.Errorf("logging: session id cannot be empty")
	case len(id) > maxSessionIDLen:
		return ctx, fmt.Errorf("logging: session id exceeds %d bytes", maxSessionIDLen)
	case !utf8.ValidString(id) || !sessionIDPattern.MatchString(id):
		return ctx, fmt.Errorf("logging: session id %q contains invalid characters", id)
	}
	return context.WithValue(ctx, sessionKey{}, id), nil
}

func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionKey{})
}

// WithHook records the lifecycle hook event being handled.
func WithHook(ctx context.Context, event string) context.Context {
	if event == "" {
		return ctx
	}
	return context.WithValue(ctx, hookKey{}, event)
}

func HookFromContext(ctx context.Context) string {
	return stringValue(ctx, hookKey{})
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
