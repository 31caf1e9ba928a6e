package quotron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/backoff"
	"github.com/starwalkn/quotron/internal/endpoint"
	"github.com/starwalkn/quotron/internal/evasion"
)

// rejectedBodyLimit bounds how much of a 4xx body is read for the provider's error detail.
const rejectedBodyLimit = 64 << 10

// httpUpstream is the Transport used against the market-data provider.
type httpUpstream struct {
	timeout             time.Duration
	maxResponseBodySize int64

	identity *evasion.Strategy
	client   *http.Client
	now      func() time.Time

	log *zap.Logger
}

func (u *httpUpstream) Do(ctx context.Context, target endpoint.Target) *UpstreamResponse {
	uresp := &UpstreamResponse{
		Headers: make(http.Header),
	}

	attemptCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := u.newRequest(attemptCtx, target)
	if err != nil {
		uresp.Err = &UpstreamError{
			Kind: UpstreamInternal,
			Err:  err,
		}

		return uresp
	}

	hresp, err := u.client.Do(req)
	if err != nil {
		uresp.Err = &UpstreamError{
			Kind: u.transportErrorKind(ctx, err, UpstreamConnection),
			Err:  err,
		}

		return uresp
	}
	defer hresp.Body.Close()

	uresp.Status = hresp.StatusCode
	uresp.Headers = hresp.Header.Clone()

	switch {
	case hresp.StatusCode == http.StatusTooManyRequests:
		uresp.Err = &UpstreamError{
			Kind:       UpstreamRateLimited,
			Status:     hresp.StatusCode,
			RetryAfter: u.retryAfter(hresp.Header),
			Err:        errors.New("upstream rate limit exceeded"),
		}

		return uresp
	case hresp.StatusCode >= http.StatusInternalServerError:
		uresp.Err = &UpstreamError{
			Kind:       UpstreamBadStatus,
			Status:     hresp.StatusCode,
			RetryAfter: u.retryAfter(hresp.Header),
			Err:        fmt.Errorf("upstream error: status %d", hresp.StatusCode),
		}

		return uresp
	case hresp.StatusCode < http.StatusOK || hresp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(hresp.Body, rejectedBodyLimit))

		rejectErr := providerErrorFrom(body)
		if rejectErr == nil {
			rejectErr = fmt.Errorf("upstream rejected request: status %d", hresp.StatusCode)
		}

		uresp.Err = &UpstreamError{
			Kind:   UpstreamRejected,
			Status: hresp.StatusCode,
			Err:    rejectErr,
		}

		return uresp
	}

	var reader io.Reader = hresp.Body
	if u.maxResponseBodySize > 0 {
		reader = io.LimitReader(hresp.Body, u.maxResponseBodySize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		uresp.Err = &UpstreamError{
			Kind: u.transportErrorKind(ctx, err, UpstreamReadError),
			Err:  err,
		}

		return uresp
	}

	if u.maxResponseBodySize > 0 && int64(len(body)) > u.maxResponseBodySize {
		uresp.Err = &UpstreamError{
			Kind:   UpstreamBodyTooLarge,
			Status: hresp.StatusCode,
			Err:    fmt.Errorf("response body exceeds %d bytes", u.maxResponseBodySize),
		}

		return uresp
	}

	uresp.Body = body

	return uresp
}

func (u *httpUpstream) newRequest(ctx context.Context, target endpoint.Target) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", u.identity.Current())
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// transportErrorKind separates caller cancellation from per-attempt timeouts.
// Only the caller's own context makes an attempt canceled.
func (u *httpUpstream) transportErrorKind(callerCtx context.Context, err error, fallback UpstreamErrorKind) UpstreamErrorKind {
	if callerCtx.Err() != nil {
		return UpstreamCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}

	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return UpstreamTimeout
	}

	return fallback
}

func (u *httpUpstream) retryAfter(h http.Header) time.Duration {
	d, ok := backoff.ParseRetryAfter(h.Get("Retry-After"), u.now())
	if !ok {
		return 0
	}

	return d
}
