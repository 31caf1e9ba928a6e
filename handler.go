package quotron

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/endpoint"
	"github.com/starwalkn/quotron/internal/metric"
	"github.com/starwalkn/quotron/internal/ratelimit"
)

// API serves the client operations over HTTP.
type API struct {
	client  *Client
	metrics metric.Metrics
	log     *zap.Logger

	auth    *authenticator
	limiter *ratelimit.RateLimit
}

func NewAPI(client *Client, cfg ServerConfig, log *zap.Logger, metrics metric.Metrics) *API {
	if metrics == nil {
		metrics = metric.NewNop()
	}

	api := &API{
		client:  client,
		metrics: metrics,
		log:     log,
	}

	if cfg.Auth.Enabled {
		api.auth = &authenticator{
			secret: []byte(cfg.Auth.Secret),
			issuer: cfg.Auth.Issuer,
		}
	}

	if cfg.RateLimiter.Enabled {
		api.limiter = ratelimit.New(cfg.RateLimiter.Limit, cfg.RateLimiter.Window)
	}

	return api
}

// Start runs background work of the API such as rate limiter cleanup.
func (a *API) Start() error {
	if a.limiter == nil {
		return nil
	}

	return a.limiter.Start()
}

func (a *API) Stop() error {
	if a.limiter == nil {
		return nil
	}

	return a.limiter.Stop()
}

// Routes returns the API router. Everything under /v1 is rate limited and
// authenticated when those features are enabled.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(a.instrument)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		a.metrics.IncFailedRequestsTotal(metric.FailReasonNoMatchedRoute)
		WriteError(w, ClientErrNotFound, http.StatusNotFound, "no route matched")
	})

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.rateLimit)
		}

		if a.auth != nil {
			r.Use(a.authenticate)
		}

		r.Get("/price/{symbol}", a.price)
		r.Get("/chart/{symbol}", a.chart)
		r.Get("/history/{symbol}", a.history)
		r.Get("/fundamentals/{symbol}", a.fundamentals)
		r.Get("/insights/{symbol}", a.insights)
		r.Get("/options/{symbol}", a.options)
		r.Get("/quote", a.quote)
		r.Get("/quote-summary/{symbol}", a.quoteSummary)
		r.Get("/recommendations/{symbol}", a.recommendations)
		r.Get("/screener/{id}", a.screener)
		r.Get("/search", a.search)
		r.Get("/trending/{region}", a.trending)
	})

	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	WriteData(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"instance_id": a.client.InstanceID(),
	})
}

func (a *API) price(w http.ResponseWriter, r *http.Request) {
	writeResult(a, w, r, a.client.Price(r.Context(), chi.URLParam(r, "symbol")))
}

func (a *API) chart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	prePost, err := parseBool(q.Get("include_pre_post"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Chart(r.Context(), endpoint.ChartQuery{
		Symbol:         chi.URLParam(r, "symbol"),
		Range:          endpoint.Range(valueOr(q.Get("range"), string(endpoint.Range1Mo))),
		Interval:       endpoint.Interval(valueOr(q.Get("interval"), string(endpoint.Interval1d))),
		IncludePrePost: prePost,
		Events:         splitList(q.Get("events")),
	}))
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period1, err := parseTime("period1", q.Get("period1"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	period2, err := parseTime("period2", q.Get("period2"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.History(r.Context(), endpoint.HistoryQuery{
		Symbol:   chi.URLParam(r, "symbol"),
		Period1:  period1,
		Period2:  period2,
		Interval: endpoint.Interval(valueOr(q.Get("interval"), string(endpoint.Interval1d))),
		Events:   splitList(q.Get("events")),
	}))
}

func (a *API) fundamentals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period1, err := parseTime("period1", q.Get("period1"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	period2, err := parseTime("period2", q.Get("period2"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Fundamentals(r.Context(), endpoint.FundamentalsQuery{
		Symbol:  chi.URLParam(r, "symbol"),
		Types:   splitList(q.Get("types")),
		Period1: period1,
		Period2: period2,
	}))
}

func (a *API) insights(w http.ResponseWriter, r *http.Request) {
	writeResult(a, w, r, a.client.Insights(r.Context(), chi.URLParam(r, "symbol")))
}

func (a *API) options(w http.ResponseWriter, r *http.Request) {
	expiry, err := parseTime("date", r.URL.Query().Get("date"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Options(r.Context(), endpoint.OptionsQuery{
		Symbol: chi.URLParam(r, "symbol"),
		Expiry: expiry,
	}))
}

func (a *API) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	writeResult(a, w, r, a.client.Quote(r.Context(), endpoint.QuoteQuery{
		Symbols: splitList(q.Get("symbols")),
		Fields:  splitList(q.Get("fields")),
	}))
}

func (a *API) quoteSummary(w http.ResponseWriter, r *http.Request) {
	writeResult(a, w, r, a.client.QuoteSummary(r.Context(), endpoint.QuoteSummaryQuery{
		Symbol:  chi.URLParam(r, "symbol"),
		Modules: splitList(r.URL.Query().Get("modules")),
	}))
}

func (a *API) recommendations(w http.ResponseWriter, r *http.Request) {
	writeResult(a, w, r, a.client.Recommendations(r.Context(), chi.URLParam(r, "symbol")))
}

func (a *API) screener(w http.ResponseWriter, r *http.Request) {
	count, err := parseCount("count", r.URL.Query().Get("count"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Screener(r.Context(), endpoint.ScreenerQuery{
		ID:    chi.URLParam(r, "id"),
		Count: count,
	}))
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	quotesCount, err := parseCount("quotes_count", q.Get("quotes_count"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	newsCount, err := parseCount("news_count", q.Get("news_count"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Search(r.Context(), endpoint.SearchQuery{
		Text:        q.Get("q"),
		QuotesCount: quotesCount,
		NewsCount:   newsCount,
	}))
}

func (a *API) trending(w http.ResponseWriter, r *http.Request) {
	count, err := parseCount("count", r.URL.Query().Get("count"))
	if err != nil {
		a.badRequest(w, err)
		return
	}

	writeResult(a, w, r, a.client.Trending(r.Context(), endpoint.TrendingQuery{
		Region: chi.URLParam(r, "region"),
		Count:  count,
	}))
}

func (a *API) badRequest(w http.ResponseWriter, err error) {
	a.metrics.IncFailedRequestsTotal(metric.FailReasonInvalidQuery)
	WriteError(w, ClientErrInvalidQuery, http.StatusBadRequest, err.Error())
}

func writeResult[T any](a *API, w http.ResponseWriter, r *http.Request, res Result[T]) {
	if res.OK() {
		WriteData(w, http.StatusOK, res.Value)
		return
	}

	f := res.Failure

	reason := metric.FailReasonUpstream
	if f.Kind == FailureInvalidQuery {
		reason = metric.FailReasonInvalidQuery
	}

	a.metrics.IncFailedRequestsTotal(reason)

	a.log.Debug("request failed",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("failure", string(f.Kind)),
		zap.Error(f),
	)

	WriteError(w, f.ClientError(), f.HTTPStatus(), f.Detail)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

// splitList splits a comma-separated parameter. Blank items are left for the resolver to drop.
func splitList(v string) []string {
	if v == "" {
		return nil
	}

	return strings.Split(v, ",")
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("include_pre_post: %q is not a boolean", v)
	}

	return b, nil
}

func parseCount(name, v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, v)
	}

	return n, nil
}

// parseTime accepts unix seconds, a date (2006-01-02) or RFC 3339. Empty means zero.
func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}

	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not a unix timestamp, date or RFC 3339 time", name, v)
	}

	return t, nil
}
