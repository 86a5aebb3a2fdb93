// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context so every log line
// in a request's path carries the same scoping without each call site
// repeating it.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if scope := ScopeFromContext(ctx); scope != nil {
		fields = append(fields, zap.String("tenant_id", scope.TenantID))
		if scope.ProjectID != "" {
			fields = append(fields, zap.String("project_id", scope.ProjectID))
		}
		if scope.UserID != "" {
			fields = append(fields, zap.String("user_id", scope.UserID))
		}
	}

	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

// Context key types
type scopeCtxKey struct{}
type sessionCtxKey struct{}
type requestCtxKey struct{}

// Scope represents the tenant/project/user triple a request is bound to,
// the same scoping that gates data access throughout the service.
type Scope struct {
	TenantID  string
	ProjectID string
	UserID    string
}

// Validation constants
const (
	maxScopeFieldLen = 64
	maxIDLen         = 128
)

var (
	// scopeFieldPattern allows alphanumeric, hyphen, underscore
	scopeFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// idPattern allows alphanumeric, hyphen, underscore with optional prefix
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validateScopeField validates a tenant/project/user ID used only for log
// correlation. Empty is allowed for project/user (not every scope binds
// all three); the caller is responsible for required-field checks.
func validateScopeField(field, name string) error {
	if field == "" {
		return nil
	}
	if !utf8.ValidString(field) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(field) > maxScopeFieldLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxScopeFieldLen)
	}
	if !scopeFieldPattern.MatchString(field) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// validateID validates a session or request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// ScopeFromContext extracts the tenant/project/user scope from context.
func ScopeFromContext(ctx context.Context) *Scope {
	if s, ok := ctx.Value(scopeCtxKey{}).(*Scope); ok {
		return s
	}
	return nil
}

// WithScope adds a tenant/project/user scope to context.
// Panics if scope is nil, TenantID is empty, or any field has invalid characters.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	if scope == nil {
		panic("logging: scope cannot be nil")
	}
	if scope.TenantID == "" {
		panic("logging: scope.TenantID cannot be empty")
	}
	if err := validateScopeField(scope.TenantID, "scope.TenantID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if err := validateScopeField(scope.ProjectID, "scope.ProjectID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if err := validateScopeField(scope.UserID, "scope.UserID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, scopeCtxKey{}, scope)
}

// SessionIDFromContext extracts session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSessionID adds session ID to context.
// Panics if sessionID is empty or contains invalid characters.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if err := validateID(sessionID, "sessionID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
