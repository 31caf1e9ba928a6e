package quotron

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/starwalkn/quotron/internal/endpoint"
)

// StatusClientClosedRequest is reported for fetches abandoned by their caller.
const StatusClientClosedRequest = 499

type FailureKind string

const (
	FailureInvalidQuery FailureKind = "invalid_query"
	FailureUnavailable  FailureKind = "upstream_unavailable"
	FailureTransient    FailureKind = "transient_upstream_error"
	FailureRejected     FailureKind = "upstream_rejected"
	FailureDecode       FailureKind = "decode_failure"
	FailureCanceled     FailureKind = "canceled"
)

// Failure is the classified outcome of an unsuccessful fetch.
type Failure struct {
	Kind   FailureKind
	Status int    // Upstream status for rejected fetches.
	Detail string // Human-readable, safe to show to API clients.
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}

	return string(f.Kind) + ": " + f.Detail
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// HTTPStatus maps the failure to the status an HTTP-facing layer should answer with.
func (f *Failure) HTTPStatus() int {
	switch f.Kind {
	case FailureInvalidQuery:
		return http.StatusBadRequest
	case FailureUnavailable:
		return http.StatusServiceUnavailable
	case FailureRejected:
		if f.Status >= 400 && f.Status < 500 {
			return f.Status
		}

		return http.StatusBadGateway
	case FailureCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// ClientError maps the failure to the API error code.
func (f *Failure) ClientError() ClientError {
	switch f.Kind {
	case FailureInvalidQuery:
		return ClientErrInvalidQuery
	case FailureUnavailable:
		return ClientErrUpstreamUnavailable
	case FailureRejected:
		return ClientErrUpstreamRejected
	case FailureDecode:
		return ClientErrUpstreamMalformed
	case FailureCanceled:
		return ClientErrAborted
	default:
		return ClientErrUpstreamError
	}
}

// Result carries either a decoded payload or a Failure, never both.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

func (r Result[T]) OK() bool {
	return r.Failure == nil
}

func (r Result[T]) Unwrap() (T, error) {
	if r.Failure != nil {
		var zero T
		return zero, r.Failure
	}

	return r.Value, nil
}

func succeed[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func fail[T any](f *Failure) Result[T] {
	return Result[T]{Failure: f}
}

func invalidQuery(err error) *Failure {
	return &Failure{
		Kind:   FailureInvalidQuery,
		Detail: err.Error(),
		Err:    err,
	}
}

func canceled(err error) *Failure {
	return &Failure{
		Kind:   FailureCanceled,
		Detail: "request canceled",
		Err:    err,
	}
}

func decodeFailure(err error) *Failure {
	return &Failure{
		Kind:   FailureDecode,
		Detail: "upstream payload could not be decoded",
		Err:    err,
	}
}

// classify turns a failed upstream response into a Failure.
func classify(uerr *UpstreamError) *Failure {
	switch uerr.Kind {
	case UpstreamCanceled:
		return canceled(uerr)
	case UpstreamCircuitOpen:
		return &Failure{
			Kind:   FailureUnavailable,
			Detail: "upstream is temporarily unavailable",
			Err:    uerr,
		}
	case UpstreamRejected:
		return &Failure{
			Kind:   FailureRejected,
			Status: uerr.Status,
			Detail: rejectedDetail(uerr),
			Err:    uerr,
		}
	case UpstreamBodyTooLarge:
		return &Failure{
			Kind:   FailureTransient,
			Detail: "upstream response body too large",
			Err:    uerr,
		}
	default:
		detail := "upstream request failed"
		if uerr.Status != 0 {
			detail = fmt.Sprintf("upstream responded with status %d", uerr.Status)
		}

		return &Failure{
			Kind:   FailureTransient,
			Status: uerr.Status,
			Detail: detail,
			Err:    uerr,
		}
	}
}

func rejectedDetail(uerr *UpstreamError) string {
	var perr *ProviderError
	if errors.As(uerr.Err, &perr) {
		return perr.Error()
	}

	return fmt.Sprintf("upstream rejected the request with status %d", uerr.Status)
}

func resolveFailure(err error) *Failure {
	if errors.Is(err, endpoint.ErrInvalidQuery) {
		return invalidQuery(err)
	}

	return &Failure{
		Kind:   FailureTransient,
		Detail: "internal error",
		Err:    err,
	}
}
