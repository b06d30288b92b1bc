package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Entry is a single audit record for a sensitive operation.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"` // "success" or "failure"
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes audit entries into the application log stream. Each
// record is nested under an "audit" field so downstream pipelines can
// route them separately from ordinary request logs.
type Logger struct {
	out zerolog.Logger
}

// NewLogger creates an audit logger on the global zerolog output.
func NewLogger() *Logger {
	return NewLoggerWithZerolog(log.Logger)
}

// NewLoggerWithZerolog creates an audit logger on an explicit zerolog
// instance.
func NewLoggerWithZerolog(logger zerolog.Logger) *Logger {
	return &Logger{out: logger}
}

// Log writes an audit entry. Failures log at warn level so they stand
// out when scanning for abuse.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	evt := l.out.Info()
	if entry.Status == "failure" {
		evt = l.out.Warn()
	}

	evt.Interface("audit", entry).Msg("audit")
}

// LogSuccess records a completed sensitive operation.
func (l *Logger) LogSuccess(action, actor, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Status:       "success",
		Details:      details,
	})
}

// LogFailure records a rejected or failed sensitive operation.
func (l *Logger) LogFailure(action, actor, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		Actor:     actor,
		IPAddress: ipAddress,
		Status:    "failure",
		Details:   details,
	})
}

// extractClientIP gets the client IP from proxy headers or RemoteAddr.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// LogFromRequest records an operation performed over HTTP. The caller
// supplies the actor because authentication is resolved above this
// package.
func (l *Logger) LogFromRequest(r *http.Request, action, actor, resourceType, resourceID, status string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    extractClientIP(r),
		Status:       status,
		Details:      details,
	})
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const auditLoggerKey contextKey = "auditLogger"

// WithLogger adds an audit logger to the request context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext retrieves the audit logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger()
}
