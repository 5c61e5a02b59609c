// Package logging assembles the structured slog loggers used by gapscan.
//
// It owns the console and JSON handlers, picks a format automatically when the
// output is (or is not) a terminal, and can tee every record into a JSON log
// file. Context helpers tag lines with the scan id, library, stage, and item
// id, and the WarnWithContext helper enforces the event_type, error_hint, and
// impact fields on every warning. NewNop gives tests and optional wiring a
// logger that never fails.
package logging
