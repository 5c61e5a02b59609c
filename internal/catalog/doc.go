// Package catalog holds the response handling shared by the catalog and
// library HTTP clients: status codes become service error markers and
// Retry-After headers become durations. Retrying itself is the retry
// subpackage's job, wired in as an http.RoundTripper.
package catalog
