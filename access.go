package quotron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/starwalkn/quotron/internal/admission"
	"github.com/starwalkn/quotron/internal/cache"
	"github.com/starwalkn/quotron/internal/cache/rediscache"
	"github.com/starwalkn/quotron/internal/endpoint"
	"github.com/starwalkn/quotron/internal/metric"
	"github.com/starwalkn/quotron/internal/tracing"
)

// sharedStore is the optional second cache tier holding raw upstream bodies.
type sharedStore interface {
	Get(ctx context.Context, key string) (*rediscache.Entry, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// AccessLayer composes the cache, admission control and execution policy around
// the transport. It is safe for concurrent use.
type AccessLayer struct {
	instanceID string

	transport Transport
	policy    *ExecutionPolicy
	admission *admission.Controller
	cache     *cache.Cache
	shared    sharedStore
	flights   singleflight.Group

	tracer  tracing.Tracer
	metrics metric.Metrics
	log     *zap.Logger
}

// Fetch returns the payload for target, from cache when a fresh entry exists and
// from the upstream otherwise. Successful payloads are cached for ttl.
//
// The cache and in-flight requests hold the raw upstream body; every caller decodes
// its own copy, so a returned payload may be mutated freely.
//
// Fetch never panics or returns a bare error: every outcome is a Result.
func Fetch[T any](ctx context.Context, a *AccessLayer, target endpoint.Target, ttl time.Duration) Result[T] {
	fingerprint := target.Fingerprint()
	kind := string(target.Kind)

	ctx, span := a.tracer.StartFetch(ctx, kind, fingerprint)
	defer span.End()

	res, hit := lookup[T](ctx, a, target, fingerprint, ttl)
	span.SetAttributes(attribute.Bool("quotron.cache_hit", hit))

	if res.Failure != nil {
		span.SetAttributes(attribute.String("quotron.failure", string(res.Failure.Kind)))
		span.SetError(res.Failure)

		a.metrics.IncFetchFailures(kind, string(res.Failure.Kind))
	}

	return res
}

func lookup[T any](ctx context.Context, a *AccessLayer, target endpoint.Target, fingerprint string, ttl time.Duration) (Result[T], bool) {
	kind := string(target.Kind)

	if err := ctx.Err(); err != nil {
		return fail[T](canceled(err)), false
	}

	if v, ok := a.cache.Get(fingerprint); ok {
		if body, ok := v.([]byte); ok {
			if typed, err := decode[T](body); err == nil {
				a.metrics.IncCacheHits(kind)
				return succeed(typed), true
			}
		}
	}

	a.metrics.IncCacheMisses(kind)

	for {
		led := false

		ch := a.flights.DoChan(fingerprint, func() (any, error) {
			led = true

			body, f := load[T](ctx, a, target, fingerprint, ttl)
			if f != nil {
				return nil, f
			}

			return body, nil
		})

		select {
		case <-ctx.Done():
			return fail[T](canceled(ctx.Err())), false
		case r := <-ch:
			if r.Err == nil {
				body, ok := r.Val.([]byte)
				if !ok {
					return fail[T](decodeFailure(fmt.Errorf("shared fetch returned %T", r.Val))), false
				}

				v, err := decode[T](body)
				if err != nil {
					return fail[T](decodeFailure(err)), false
				}

				return succeed(v), false
			}

			var f *Failure
			if !errors.As(r.Err, &f) {
				f = &Failure{Kind: FailureTransient, Detail: "internal error", Err: r.Err}
			}

			// Another caller's cancellation ended the shared flight; ours is still live.
			if f.Kind == FailureCanceled && !led && ctx.Err() == nil {
				continue
			}

			return fail[T](f), false
		}
	}
}

// load performs the miss path: shared tier, admission, execution, decode, populate.
// Only a body that decodes into T is cached and returned.
func load[T any](ctx context.Context, a *AccessLayer, target endpoint.Target, fingerprint string, ttl time.Duration) ([]byte, *Failure) {
	if body, ok := loadShared[T](ctx, a, fingerprint, ttl); ok {
		return body, nil
	}

	token, err := a.admission.Acquire(ctx)
	if err != nil {
		return nil, canceled(err)
	}
	defer token.Release()

	a.metrics.IncAdmissionsInFlight()
	defer a.metrics.DecAdmissionsInFlight()

	resp, attempts := a.policy.Execute(ctx, target, func(ctx context.Context) *UpstreamResponse {
		return a.transport.Do(ctx, target)
	})

	if resp.Err != nil {
		f := classify(resp.Err)

		if f.Kind != FailureCanceled {
			a.log.Error("upstream fetch failed",
				zap.String("kind", string(target.Kind)),
				zap.String("fingerprint", fingerprint),
				zap.Int("attempts", attempts),
				zap.Int("status", resp.Status),
				zap.String("failure", string(f.Kind)),
				zap.Error(resp.Err),
			)
		}

		return nil, f
	}

	if _, err = decode[T](resp.Body); err != nil {
		a.log.Error("failed to decode upstream payload",
			zap.String("kind", string(target.Kind)),
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)

		return nil, decodeFailure(err)
	}

	a.cache.Put(fingerprint, resp.Body, ttl)

	if a.shared != nil {
		if err = a.shared.Set(ctx, fingerprint, resp.Body, ttl); err != nil {
			a.log.Warn("failed to store payload in shared cache",
				zap.String("fingerprint", fingerprint),
				zap.Error(err),
			)
		}
	}

	return resp.Body, nil
}

// loadShared consults the shared tier. Any error there is a miss.
func loadShared[T any](ctx context.Context, a *AccessLayer, fingerprint string, ttl time.Duration) ([]byte, bool) {
	if a.shared == nil {
		return nil, false
	}

	entry, err := a.shared.Get(ctx, fingerprint)
	if err != nil {
		a.log.Warn("shared cache lookup failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, false
	}

	if entry == nil {
		return nil, false
	}

	if _, err = decode[T](entry.Body); err != nil {
		a.log.Warn("discarding undecodable shared cache entry", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, false
	}

	if entry.TTL > 0 && entry.TTL < ttl {
		ttl = entry.TTL
	}

	a.cache.Put(fingerprint, entry.Body, ttl)

	return entry.Body, true
}
