package quotron

import (
	"context"
	"net/http"
	"time"

	"github.com/starwalkn/quotron/internal/endpoint"
)

// Transport performs a single upstream attempt for target.
type Transport interface {
	Do(ctx context.Context, target endpoint.Target) *UpstreamResponse
}

type UpstreamResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
	Err     *UpstreamError
}

type UpstreamError struct {
	Kind       UpstreamErrorKind
	Status     int           // Upstream status code, zero when no response was received.
	RetryAfter time.Duration // Server-requested wait, zero when absent.
	Err        error         // Original error. Not for client!
}

// Error returns the upstream error kind. Error kind is a custom string type, not error interface!
func (ue *UpstreamError) Error() string {
	return string(ue.Kind)
}

// Unwrap returns the original error.
func (ue *UpstreamError) Unwrap() error {
	return ue.Err
}

// Handled reports whether the failure is transient: it is retried and counted by the breaker.
func (ue *UpstreamError) Handled() bool {
	if ue == nil {
		return false
	}

	switch ue.Kind {
	case UpstreamTimeout, UpstreamConnection, UpstreamBadStatus, UpstreamRateLimited, UpstreamReadError:
		return true
	default:
		return false
	}
}

type UpstreamErrorKind string

const (
	UpstreamTimeout      UpstreamErrorKind = "timeout"
	UpstreamCanceled     UpstreamErrorKind = "canceled"
	UpstreamConnection   UpstreamErrorKind = "connection"
	UpstreamBadStatus    UpstreamErrorKind = "bad_status"
	UpstreamRateLimited  UpstreamErrorKind = "rate_limited"
	UpstreamRejected     UpstreamErrorKind = "rejected"
	UpstreamReadError    UpstreamErrorKind = "read_error"
	UpstreamBodyTooLarge UpstreamErrorKind = "body_too_large"
	UpstreamCircuitOpen  UpstreamErrorKind = "circuit_open"
	UpstreamInternal     UpstreamErrorKind = "internal"
)

func (r *UpstreamResponse) outcome() string {
	if r.Err == nil {
		return "success"
	}

	return string(r.Err.Kind)
}
