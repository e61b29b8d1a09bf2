package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// StatusError carries a non-2xx response status through the retry loop.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d from %s", e.Status, e.URL)
}

func (e *StatusError) HTTPStatusCode() int { return e.Status }

func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableStatus(se.Status)
	}
	// DNS failures, refused connections and the like are worth one more try.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Fetcher issues GET requests with a per-request timeout, capped retries and
// a short fixed backoff. Transient failures (timeouts, 5xx, 429) are retried;
// anything else fails immediately.
type Fetcher struct {
	Client    *http.Client
	Retries   int
	Backoff   time.Duration
	UserAgent string
	MaxBody   int64
}

func NewFetcher(timeout time.Duration, retries int) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		Retries:   retries,
		Backoff:   300 * time.Millisecond,
		UserAgent: "Mozilla/5.0 (compatible; veritext/1.0)",
		MaxBody:   4 << 20,
	}
}

// Get returns the response body. The context bounds the whole attempt chain:
// once it is cancelled no further retries are issued.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	attempts := f.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Backoff):
			}
		}
		body, err := f.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}

	r := io.Reader(resp.Body)
	if f.MaxBody > 0 {
		r = io.LimitReader(resp.Body, f.MaxBody)
	}
	return io.ReadAll(r)
}
