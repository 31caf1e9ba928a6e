package quotron

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/metric"
)

const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := getOrCreateRequestID(r)

		r.Header.Set(headerRequestID, id)
		w.Header().Set(headerRequestID, id)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func getOrCreateRequestID(r *http.Request) string {
	requestID := r.Header.Get(headerRequestID)
	if requestID != "" {
		return requestID
	}

	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, math.MaxInt64)

	return strings.ToLower(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.metrics.IncRequestsTotal()

		a.metrics.IncRequestsInFlight()
		defer a.metrics.DecRequestsInFlight()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		a.metrics.UpdateRequestsDuration(route, r.Method, start)
		a.metrics.IncResponsesTotal(route, status)

		a.log.Debug("request served",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := a.limiter.Take(extractClientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(a.limiter.Now()).Seconds())))

			a.metrics.IncFailedRequestsTotal(metric.FailReasonRateLimited)
			WriteError(w, ClientErrRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			a.metrics.IncFailedRequestsTotal(metric.FailReasonUnauthorized)
			WriteError(w, ClientErrUnauthorized, http.StatusUnauthorized, "missing bearer token")

			return
		}

		if err := a.auth.verify(raw); err != nil {
			a.log.Debug("rejected bearer token",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			a.metrics.IncFailedRequestsTotal(metric.FailReasonUnauthorized)
			WriteError(w, ClientErrUnauthorized, http.StatusUnauthorized, "invalid bearer token")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// authenticator verifies HS256 bearer tokens issued by the account service.
type authenticator struct {
	secret []byte
	issuer string
}

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

func (au *authenticator) verify(raw string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}

	if au.issuer != "" {
		opts = append(opts, jwt.WithIssuer(au.issuer))
	}

	_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}

		return au.secret, nil
	}, opts...)

	return err
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}

	return r.RemoteAddr
}
