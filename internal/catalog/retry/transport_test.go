package retry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gapscan/internal/catalog/retry"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newClient(policy retry.Policy, sleeps *recordedSleeps) *http.Client {
	return &http.Client{Transport: retry.New("test", nil, policy, retry.WithSleeper(sleeps.sleep))}
}

func TestTransportRetriesRateLimitWithRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	resp, err := newClient(retry.Policy{Initial: time.Millisecond, Max: time.Minute, MaxRetries: 3}, sleeps).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || hits.Load() != 3 {
		t.Fatalf("expected success on third attempt, status=%d hits=%d", resp.StatusCode, hits.Load())
	}
	if len(sleeps.delays) != 2 || sleeps.delays[0] != 2*time.Second {
		t.Fatalf("expected Retry-After honored, got %v", sleeps.delays)
	}
}

func TestTransportCapsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	resp, err := newClient(retry.Policy{Initial: time.Millisecond, Max: 5 * time.Second, MaxRetries: 2}, sleeps).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if len(sleeps.delays) != 1 || sleeps.delays[0] != 5*time.Second {
		t.Fatalf("expected delay capped at max, got %v", sleeps.delays)
	}
}

func TestTransportGivesUpAndReturnsLastResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sleeps := &recordedSleeps{}
	resp, err := newClient(retry.Policy{Initial: time.Millisecond, Max: time.Second, MaxRetries: 2}, sleeps).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway || hits.Load() != 3 {
		t.Fatalf("expected 3 attempts ending in 502, status=%d hits=%d", resp.StatusCode, hits.Load())
	}
	for _, d := range sleeps.delays {
		if d > time.Second {
			t.Fatalf("delay %s exceeds max", d)
		}
	}
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := newClient(retry.DefaultPolicy(), &recordedSleeps{}).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt for 404, got %d", hits.Load())
	}
}

func TestTransportReplaysRequestBody(t *testing.T) {
	var (
		hits   atomic.Int32
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newClient(retry.Policy{Initial: time.Millisecond, MaxRetries: 1}, &recordedSleeps{}).
		Post(srv.URL, "application/json", strings.NewReader(`{"apikey":"k"}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"apikey":"k"}` {
		t.Fatalf("expected identical bodies on retry, got %q", bodies)
	}
}

func TestTransportStopsWhenContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := &http.Client{Transport: retry.New("test", nil, retry.Policy{MaxRetries: 5},
		retry.WithSleeper(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("expected cancellation error")
	}
}
