package logging

import (
	"context"
	"log/slog"

	"scingest/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldScan is the standardized structured logging key for scan identifiers.
	FieldScan = "scan"
	// FieldBeamtime is the standardized structured logging key for beamtime identifiers.
	FieldBeamtime = "beamtime"
	// FieldPassID identifies one debounce+ingest pass of the watcher.
	FieldPassID = "pass_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldModel is the catalog model a submission targets.
	FieldModel = "model"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.BeamtimeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBeamtime, id))
	}
	if pass, ok := services.PassIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPassID, pass))
	}
	if scan, ok := services.ScanFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldScan, scan))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
