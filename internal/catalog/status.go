package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gapscan/internal/services"
)

const maxErrorBody = 512

// CheckResponse maps a non-2xx response onto the service error taxonomy and
// closes its body. A 2xx response is returned untouched as nil.
func CheckResponse(service, operation string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := fmt.Sprintf("%s returned %d", operation, resp.StatusCode)
	if body := strings.TrimSpace(string(snippet)); body != "" {
		detail += ": " + body
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, service, operation, detail, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, service, operation, detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &services.RateLimitError{
			Service:    service,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, service, operation, detail, nil)
	default:
		return fmt.Errorf("%s %s", service, detail)
	}
}

// TransportError wraps a failed round trip. Context cancellation is passed
// through so callers can tell an interrupted scan from a network fault.
func TransportError(service, operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", service, operation, err)
	}
	return services.Wrap(services.ErrTransient, service, operation, "request failed", err)
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as an
// HTTP date. Unparsable or past values give zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
