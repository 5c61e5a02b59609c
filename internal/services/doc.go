// Package services defines the failure taxonomy and context helpers shared by
// the catalog clients, library sources, and reconcilers.
//
// Key responsibilities:
//   - Sentinel markers (auth, configuration, not found, rate limit, transient,
//     cache corruption) plus the Wrap helper that tags errors with stage and
//     operation detail.
//   - Classify, IsFatal, and IsRetryable, which decide whether a failure aborts
//     a scan, is retried by the transport middleware, or is recorded against a
//     single item.
//   - Context helpers that stamp scan ids, library names, stages, and item ids
//     for logging.
//   - A Recorder carried on the context that counts upstream requests, cache
//     lookups, and phase timings for the scan statistics block of a report.
//
// Only auth and configuration failures abort a scan. Everything else is
// contained at the item or show granularity.
package services
