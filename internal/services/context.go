package services

import "context"

type contextKey string

const (
	itemIDKey  contextKey = "item_id"
	stageKey   contextKey = "stage"
	libraryKey contextKey = "library"
	scanIDKey  contextKey = "scan_id"
)

// WithItemID annotates context with the canonical id of the item being reconciled.
func WithItemID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the item identifier if present.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the reconciliation stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithLibrary annotates context with the library being scanned.
func WithLibrary(ctx context.Context, library string) context.Context {
	if library == "" {
		return ctx
	}
	return context.WithValue(ctx, libraryKey, library)
}

// LibraryFromContext returns the library name if present.
func LibraryFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(libraryKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithScanID annotates context with the correlation identifier of a scan.
func WithScanID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, scanIDKey, id)
}

// ScanIDFromContext extracts the scan correlation identifier if present.
func ScanIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scanIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
