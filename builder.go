package quotron

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/admission"
	"github.com/starwalkn/quotron/internal/backoff"
	"github.com/starwalkn/quotron/internal/cache"
	"github.com/starwalkn/quotron/internal/cache/rediscache"
	"github.com/starwalkn/quotron/internal/circuitbreaker"
	"github.com/starwalkn/quotron/internal/endpoint"
	"github.com/starwalkn/quotron/internal/evasion"
	"github.com/starwalkn/quotron/internal/metric"
	"github.com/starwalkn/quotron/internal/tracing"
)

type Option func(*options)

type options struct {
	metrics    metric.Metrics
	tracer     tracing.Tracer
	httpClient *http.Client
	transport  Transport
	redis      redis.Cmdable
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func WithMetrics(m metric.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithHTTPClient replaces the HTTP client used by the default transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTransport replaces the upstream transport entirely.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithRedis uses client as the shared cache tier regardless of cache.redis.enabled.
// The caller keeps ownership of client.
func WithRedis(client redis.Cmdable) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithClock replaces the clock used by the cache and the circuit breaker.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewClient wires the access layer described by cfg.
func NewClient(cfg Config, log *zap.Logger, opts ...Option) (*Client, error) {
	o := options{
		metrics: metric.NewNop(),
		tracer:  tracing.NoopTracer{},
		sleep:   sleepContext,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(&o)
	}

	instanceID := uuid.NewString()
	log = log.With(zap.String("instance_id", instanceID))

	upstreamCfg := cfg.Upstream
	if upstreamCfg.Hosts.Primary == "" || upstreamCfg.Hosts.Secondary == "" {
		return nil, errors.New("upstream hosts are required")
	}

	identity := evasion.New(upstreamCfg.UserAgents)

	breaker := circuitbreaker.New(
		upstreamCfg.CircuitBreaker.MaxFailures,
		upstreamCfg.CircuitBreaker.BreakDuration,
		circuitbreaker.WithClock(o.now),
		circuitbreaker.WithOnStateChange(breakerObserver(log.Named("circuitbreaker"), o.metrics)),
	)

	transport := o.transport
	if transport == nil {
		httpClient := o.httpClient
		if httpClient == nil {
			httpClient = newHTTPClient()
		}

		transport = &httpUpstream{
			timeout:             upstreamCfg.Timeout,
			maxResponseBodySize: upstreamCfg.MaxResponseBodySize,
			identity:            identity,
			client:              httpClient,
			now:                 o.now,
			log:                 log.Named("upstream"),
		}
	}

	responseCache := cache.New(
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithCleanupInterval(cfg.Cache.CleanupInterval),
		cache.WithClock(o.now),
	)

	client := &Client{
		resolver: endpoint.NewResolver(endpoint.Hosts{
			Primary:   upstreamCfg.Hosts.Primary,
			Secondary: upstreamCfg.Hosts.Secondary,
		}),
		ttl:   cfg.Cache.TTL,
		cache: responseCache,
		log:   log,
	}

	access := &AccessLayer{
		instanceID: instanceID,
		transport:  transport,
		policy: &ExecutionPolicy{
			breaker: breaker,
			backoff: backoff.New(
				upstreamCfg.Retry.BaseDelay,
				upstreamCfg.Retry.MaxJitter,
				upstreamCfg.Retry.MaxDelay,
			),
			maxRetries: upstreamCfg.Retry.MaxRetries,
			identity:   identity,
			sleep:      o.sleep,
			tracer:     o.tracer,
			metrics:    o.metrics,
			log:        log.Named("policy"),
		},
		admission: admission.New(upstreamCfg.Admission.MaxConcurrent),
		cache:     responseCache,
		tracer:    o.tracer,
		metrics:   o.metrics,
		log:       log.Named("access"),
	}

	redisClient := o.redis
	if redisClient == nil && cfg.Cache.Redis.Enabled {
		owned := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})

		redisClient = owned
		client.closers = append(client.closers, owned)
	}

	if redisClient != nil {
		access.shared = rediscache.New(redisClient, rediscache.WithPrefix(cfg.Cache.Redis.Prefix))
	}

	client.access = access

	return client, nil
}

func breakerObserver(log *zap.Logger, metrics metric.Metrics) func(from, to circuitbreaker.State) {
	return func(from, to circuitbreaker.State) {
		metrics.SetCircuitState(int(to))

		log.Warn("circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
}

func newHTTPClient() *http.Client {
	//nolint:mnd // be configurable in future
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: transport,
	}
}
