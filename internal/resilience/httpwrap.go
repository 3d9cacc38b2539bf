package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a response the client gave up retrying.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "resilience: upstream responded " + e.Status
}

// HTTPClient is an http.Client with per-attempt timeouts, retries on
// transport errors, 5xx and 429, and an optional Breaker counting each
// attempt.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Fallback receives the last error once attempts are exhausted or the
	// breaker refuses.
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do sends req until it gets a non-retryable response or runs out of
// attempts. A Retry-After header given in seconds overrides the computed
// backoff.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := replayable(req)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	attempts := max(cl.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.send(ctx, req, body)
		ok := err == nil && !retryable(resp.StatusCode)
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, ok)
		}
		if ok {
			return resp, nil
		}

		wait := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				wait = d
			}
			drain(resp)
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// send issues one attempt on a clone of req carrying a fresh body reader.
func (cl HTTPClient) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	attempt := req.Clone(callCtx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
	}
	resp, err := cl.Client.Do(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the attempt context alive until the caller is done
// reading the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// replayable reads the request body once and installs GetBody so the same
// bytes can be sent on every attempt.
func replayable(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return data, nil
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// retryAfter parses the delay-seconds form of Retry-After, capped at 30s.
func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, 30*time.Second), true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
