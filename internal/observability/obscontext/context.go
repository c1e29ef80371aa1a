package obscontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	matterIDKey  contextKey = "matter_id"
)

// WithRequestID stores the request identifier for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithMatterID stores the caller-supplied matter reference, when present.
func WithMatterID(ctx context.Context, matterID string) context.Context {
	if matterID == "" {
		return ctx
	}
	return context.WithValue(ctx, matterIDKey, matterID)
}

func MatterIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(matterIDKey).(string)
	return value
}
