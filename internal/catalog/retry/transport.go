package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"gapscan/internal/catalog"
	"gapscan/internal/logging"
)

// Policy bounds the exponential backoff between attempts.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	MaxRetries int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		MaxRetries: 4,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Transport retries rate-limited, 5xx, and network-failed requests.
type Transport struct {
	base    http.RoundTripper
	policy  Policy
	sleep   Sleeper
	logger  *slog.Logger
	service string
}

// Option configures a Transport.
type Option func(*Transport)

// WithSleeper replaces the wait between attempts. Tests use it to avoid real sleeps.
func WithSleeper(s Sleeper) Option {
	return func(t *Transport) {
		if s != nil {
			t.sleep = s
		}
	}
}

// WithLogger attaches a logger for retry decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New wraps base, defaulting to http.DefaultTransport.
func New(service string, base http.RoundTripper, policy Policy, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:    base,
		policy:  policy.withDefaults(),
		sleep:   sleepContext,
		logger:  logging.NewNop(),
		service: service,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "retry").With(logging.String("service", service))
	return t
}

// RoundTrip implements http.RoundTripper. When retries run out the last
// response is returned so the client can map its status.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.policy.Initial
	b.MaxInterval = t.policy.Max
	b.Multiplier = t.policy.Multiplier
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 0; ; attempt++ {
		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}
		resp, err := t.base.RoundTrip(attemptReq)
		retryable, wait := t.classify(resp, err)
		if !retryable || attempt >= t.policy.MaxRetries || !replayable(req) {
			return resp, err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return resp, err
		}
		if wait > 0 {
			delay = min(wait, t.policy.Max)
		}
		if resp != nil {
			drain(resp)
		}
		t.logger.Debug("retrying catalog request",
			logging.String("url", req.URL.Redacted()),
			logging.Int("attempt", attempt+1),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if serr := t.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

func (t *Transport) classify(resp *http.Response, err error) (bool, time.Duration) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, 0
		}
		return true, 0
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, catalog.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusServiceUnavailable:
		return true, catalog.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented:
		return true, 0
	default:
		return false, 0
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
