// Package retry provides an http.RoundTripper that retries catalog requests
// with capped exponential backoff. A Retry-After header from the upstream
// overrides the computed delay but never exceeds the policy maximum.
package retry
