package services

import "context"

type contextKey string

const (
	scanKey      contextKey = "scan"
	beamtimeKey  contextKey = "beamtime"
	passKey      contextKey = "pass_id"
	requestIDKey contextKey = "request_id"
)

// WithScan annotates context with the scan identifier being ingested.
func WithScan(ctx context.Context, scan string) context.Context {
	if scan == "" {
		return ctx
	}
	return context.WithValue(ctx, scanKey, scan)
}

// ScanFromContext returns the scan identifier if present.
func ScanFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scanKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBeamtime annotates context with the beamtime identifier.
func WithBeamtime(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, beamtimeKey, id)
}

// BeamtimeFromContext returns the beamtime identifier if present.
func BeamtimeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(beamtimeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPassID annotates context with the ingestion pass identifier.
func WithPassID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, passKey, id)
}

// PassIDFromContext returns the ingestion pass identifier if present.
func PassIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(passKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
