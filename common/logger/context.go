package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (container_id, group_key, etc.) is automatically included in all log statements.
type LogFields struct {
	ContainerID *int64  // Container the event or activity belongs to
	ActorID     *int64  // Actor who performed the action
	GroupKey    *string // Buffer group key being appended to or finalized
	EventID     *string // Raw event ID
	Verb        *string // Event verb (e.g., "uploaded", "commented")
	Component   string  // Component name (OTel semantic convention style, e.g., "feed.sweeper")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ContainerID != nil {
		result.ContainerID = new.ContainerID
	}
	if new.ActorID != nil {
		result.ActorID = new.ActorID
	}
	if new.GroupKey != nil {
		result.GroupKey = new.GroupKey
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.Verb != nil {
		result.Verb = new.Verb
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ActorID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
