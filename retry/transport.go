package retry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/agentpipe/logging"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Transport is an http.RoundTripper that retries according to Policy.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
	Sleep  SleepFunc
	Logger logging.Logger
}

// NewTransport wraps base (http.DefaultTransport if nil).
func NewTransport(base http.RoundTripper, policy Policy, logger logging.Logger) *Transport {
	return &Transport{Base: base, Policy: policy, Logger: logging.Scoped(logger, "retry")}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempts := max(t.Policy.Attempts, 1)

	req, err := ensureRewindable(req)
	if err != nil {
		return nil, err
	}

	var lastStatus int

	for attempt := 1; ; attempt++ {
		r := req
		if attempt > 1 {
			if r, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := t.base().RoundTrip(r)
		if err != nil {
			// Only configured statuses are retryable; transport failures are fatal.
			t.logger().Error("retry.transport_error", "url", req.URL.String(), "attempt", attempt, "error", err)
			return nil, err
		}
		if !t.Policy.Retryable(resp.StatusCode) {
			return resp, nil
		}
		lastStatus = resp.StatusCode
		discard(resp)

		if attempt >= attempts {
			t.logger().Error("retry.exhausted", "url", req.URL.String(), "attempts", attempt, "status", lastStatus)
			return nil, &ExhaustedError{Attempts: attempt, StatusCode: lastStatus}
		}

		delay := t.Policy.Backoff(attempt)
		t.logger().Warn("retry.attempt",
			"url", req.URL.String(),
			"attempt", attempt,
			"status", lastStatus,
			"delay", delay,
		)

		if err := t.sleep(req.Context(), delay); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() logging.Logger {
	if t.Logger == nil {
		return logging.NoOpLogger{}
	}
	return t.Logger
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ensureRewindable buffers a body without GetBody so it can be replayed.
func ensureRewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	return r, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody == nil {
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Base    http.RoundTripper
	Timeout time.Duration
	Logger  logging.Logger
}

// NewClient returns an http.Client whose transport retries per policy.
func NewClient(policy Policy, optFns ...func(o *ClientOptions)) *http.Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &http.Client{
		Transport: NewTransport(opts.Base, policy, opts.Logger),
		Timeout:   opts.Timeout,
	}
}
