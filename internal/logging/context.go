package logging

import (
	"context"
	"log/slog"

	"gapscan/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for the canonical id of a movie or show.
	FieldItemID = "item_id"
	// FieldStage is the standardized structured logging key for reconciliation stage names.
	FieldStage = "stage"
	// FieldLibrary is the standardized structured logging key for the scanned library.
	FieldLibrary = "library"
	// FieldScanID is the standardized structured logging key for the scan correlation identifier.
	FieldScanID = "scan_id"
	// FieldEventType names the machine-readable event behind a WARN or ERROR line.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType groups decision logs (exclusions, filters, TTL choices).
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ScanIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldScanID, id))
	}
	if lib, ok := services.LibraryFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLibrary, lib))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.ItemIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemID, id))
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
	return logger.With(Args(fields...)...)
}
