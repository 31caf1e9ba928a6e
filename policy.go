package quotron

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/backoff"
	"github.com/starwalkn/quotron/internal/circuitbreaker"
	"github.com/starwalkn/quotron/internal/endpoint"
	"github.com/starwalkn/quotron/internal/evasion"
	"github.com/starwalkn/quotron/internal/metric"
	"github.com/starwalkn/quotron/internal/tracing"
)

// ExecutionPolicy runs a transport call behind the circuit breaker, retrying
// handled failures inside a single breaker admission.
//
// The breaker sees one outcome per Execute: a success, a failure once retries are
// exhausted, or nothing when the caller cancels.
type ExecutionPolicy struct {
	breaker    *circuitbreaker.CircuitBreaker
	backoff    backoff.Policy
	maxRetries int
	identity   *evasion.Strategy

	sleep func(ctx context.Context, d time.Duration) error

	tracer  tracing.Tracer
	metrics metric.Metrics
	log     *zap.Logger
}

// Execute returns the final upstream response and the number of transport attempts made.
func (p *ExecutionPolicy) Execute(
	ctx context.Context,
	target endpoint.Target,
	call func(ctx context.Context) *UpstreamResponse,
) (*UpstreamResponse, int) {
	kind := string(target.Kind)

	if !p.breaker.Allow() {
		return &UpstreamResponse{
			Err: &UpstreamError{
				Kind: UpstreamCircuitOpen,
				Err:  errors.New("upstream circuit breaker is open"),
			},
		}, 0
	}

	for attempt := 1; ; attempt++ {
		resp := p.attempt(ctx, kind, attempt, call)

		if resp.Err == nil {
			p.breaker.OnSuccess()
			return resp, attempt
		}

		if ctx.Err() != nil || resp.Err.Kind == UpstreamCanceled {
			p.breaker.OnCancel()
			return canceledResponse(ctx.Err()), attempt
		}

		if !resp.Err.Handled() {
			// The upstream answered; a rejection says nothing about its health.
			if resp.Err.Kind == UpstreamInternal {
				p.breaker.OnCancel()
			} else {
				p.breaker.OnSuccess()
			}

			return resp, attempt
		}

		if attempt > p.maxRetries {
			p.breaker.OnFailure()

			p.log.Warn("upstream retries exhausted",
				zap.String("kind", kind),
				zap.String("url", target.URL()),
				zap.Int("attempts", attempt),
				zap.Int("status", resp.Status),
				zap.Error(resp.Err),
			)

			return resp, attempt
		}

		if resp.Err.Kind == UpstreamRateLimited {
			p.identity.Rotate()
			p.metrics.IncIdentityRotations()

			p.log.Info("upstream rate limited, client identity rotated", zap.String("kind", kind))
		}

		delay := p.backoff.Delay(attempt)
		if resp.Err.RetryAfter > 0 {
			delay = p.backoff.WithRetryAfter(delay, resp.Err.RetryAfter)
		}

		p.metrics.IncRetries(kind)

		p.log.Debug("retrying upstream call",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(resp.Err),
		)

		if err := p.sleep(ctx, delay); err != nil {
			p.breaker.OnCancel()
			return canceledResponse(err), attempt
		}
	}
}

func (p *ExecutionPolicy) attempt(
	ctx context.Context,
	kind string,
	attempt int,
	call func(ctx context.Context) *UpstreamResponse,
) *UpstreamResponse {
	ctx, span := p.tracer.StartAttempt(ctx, kind, attempt)
	defer span.End()

	start := time.Now()
	resp := call(ctx)

	p.metrics.UpdateUpstreamLatency(kind, time.Since(start))
	p.metrics.IncUpstreamAttempts(kind, resp.outcome())

	if resp.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	}

	if resp.Err != nil {
		span.SetError(resp.Err)
	}

	return resp
}

func canceledResponse(err error) *UpstreamResponse {
	if err == nil {
		err = context.Canceled
	}

	return &UpstreamResponse{
		Err: &UpstreamError{
			Kind: UpstreamCanceled,
			Err:  err,
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
