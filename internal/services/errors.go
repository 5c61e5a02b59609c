package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAuth          = errors.New("authentication failed")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrTransient     = errors.New("transient failure")
	ErrCacheCorrupt  = errors.New("cache corrupt")
)

// Kind is the coarse classification of a failure used for propagation
// decisions and for the failure entries recorded in gap reports.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindConfig    Kind = "config"
	KindNotFound  Kind = "not_found"
	KindRateLimit Kind = "rate_limit"
	KindTransient Kind = "transient"
	KindCache     Kind = "cache"
	KindCanceled  Kind = "canceled"
	KindUnknown   Kind = "unknown"
)

// RateLimitError reports a 429 style response. RetryAfter is zero when the
// upstream did not say how long to wait.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded (retry after %s)", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Service)
}

// Is lets errors.Is(err, ErrRateLimited) match a *RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps err onto a Kind. Context cancellation is reported separately so
// callers can tell an interrupted scan from a failing catalog.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrConfiguration):
		return KindConfig
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrCacheCorrupt):
		return KindCache
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err must abort the whole scan.
func IsFatal(err error) bool {
	switch Classify(err) {
	case KindAuth, KindConfig:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindRateLimit, KindTransient:
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
