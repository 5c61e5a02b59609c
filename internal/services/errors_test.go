package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gapscan/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "tmdb", "movie details", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"tmdb", "movie details", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"auth", services.Wrap(services.ErrAuth, "tvdb", "login", "", nil), services.KindAuth},
		{"config", services.Wrap(services.ErrConfiguration, "config", "", "missing key", nil), services.KindConfig},
		{"not found", fmt.Errorf("lookup: %w", services.ErrNotFound), services.KindNotFound},
		{"rate limit struct", &services.RateLimitError{Service: "tmdb", RetryAfter: time.Second}, services.KindRateLimit},
		{"transient", services.Wrap(services.ErrTransient, "", "", "", errors.New("reset")), services.KindTransient},
		{"cache", services.Wrap(services.ErrCacheCorrupt, "cache", "load", "", nil), services.KindCache},
		{"canceled", fmt.Errorf("scan: %w", context.Canceled), services.KindCanceled},
		{"unknown", errors.New("mystery"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFatalAndRetryable(t *testing.T) {
	auth := services.Wrap(services.ErrAuth, "tmdb", "", "invalid key", nil)
	if !services.IsFatal(auth) {
		t.Fatal("expected auth error to be fatal")
	}
	if services.IsRetryable(auth) {
		t.Fatal("auth error must not be retryable")
	}

	limited := fmt.Errorf("collection: %w", &services.RateLimitError{Service: "tmdb"})
	if services.IsFatal(limited) {
		t.Fatal("rate limit must not be fatal")
	}
	if !services.IsRetryable(limited) {
		t.Fatal("expected rate limit to be retryable")
	}

	var rl *services.RateLimitError
	if !errors.As(limited, &rl) || rl.Service != "tmdb" {
		t.Fatalf("expected RateLimitError in chain, got %v", limited)
	}
	if services.IsFatal(nil) || services.IsRetryable(nil) {
		t.Fatal("nil error must be neither fatal nor retryable")
	}
}
