package quotron

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/starwalkn/quotron/internal/cache"
	"github.com/starwalkn/quotron/internal/endpoint"
)

// Client exposes one operation per endpoint kind. Every operation resolves its
// query, fetches through the access layer and returns a Result.
type Client struct {
	access   *AccessLayer
	resolver *endpoint.Resolver
	ttl      TTLConfig
	cache    *cache.Cache
	closers  []io.Closer

	log *zap.Logger
}

// Start runs the background cache janitor.
func (c *Client) Start() error {
	return c.cache.Start()
}

// Close stops the janitor and releases connections owned by the client.
func (c *Client) Close() error {
	errs := []error{c.cache.Stop()}

	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}

	return errors.Join(errs...)
}

func (c *Client) InstanceID() string {
	return c.access.instanceID
}

// Price returns the latest traded price of symbol, derived from its intraday chart.
func (c *Client) Price(ctx context.Context, symbol string) Result[PriceQuote] {
	res := fetchQuery[priceChart](ctx, c, endpoint.PriceQuery{Symbol: symbol})
	if !res.OK() {
		return fail[PriceQuote](res.Failure)
	}

	quote, err := priceFromChart(res.Value.ChartResponse)
	if err != nil {
		return fail[PriceQuote](decodeFailure(err))
	}

	return succeed(quote)
}

func (c *Client) Chart(ctx context.Context, q endpoint.ChartQuery) Result[ChartResponse] {
	return fetchQuery[ChartResponse](ctx, c, q)
}

func (c *Client) History(ctx context.Context, q endpoint.HistoryQuery) Result[ChartResponse] {
	return fetchQuery[ChartResponse](ctx, c, q)
}

func (c *Client) Fundamentals(ctx context.Context, q endpoint.FundamentalsQuery) Result[FundamentalsResponse] {
	return fetchQuery[FundamentalsResponse](ctx, c, q)
}

func (c *Client) Insights(ctx context.Context, symbol string) Result[InsightsResponse] {
	return fetchQuery[InsightsResponse](ctx, c, endpoint.InsightsQuery{Symbol: symbol})
}

// Options returns the options chain of q.Symbol; a zero q.Expiry selects the nearest expiration.
func (c *Client) Options(ctx context.Context, q endpoint.OptionsQuery) Result[OptionsResponse] {
	return fetchQuery[OptionsResponse](ctx, c, q)
}

func (c *Client) Quote(ctx context.Context, q endpoint.QuoteQuery) Result[QuoteResponse] {
	return fetchQuery[QuoteResponse](ctx, c, q)
}

func (c *Client) QuoteSummary(ctx context.Context, q endpoint.QuoteSummaryQuery) Result[QuoteSummaryResponse] {
	return fetchQuery[QuoteSummaryResponse](ctx, c, q)
}

func (c *Client) Recommendations(ctx context.Context, symbol string) Result[RecommendationsResponse] {
	return fetchQuery[RecommendationsResponse](ctx, c, endpoint.RecommendationsQuery{Symbol: symbol})
}

func (c *Client) Screener(ctx context.Context, q endpoint.ScreenerQuery) Result[ScreenerResponse] {
	return fetchQuery[ScreenerResponse](ctx, c, q)
}

func (c *Client) Search(ctx context.Context, q endpoint.SearchQuery) Result[SearchResponse] {
	return fetchQuery[SearchResponse](ctx, c, q)
}

func (c *Client) Trending(ctx context.Context, q endpoint.TrendingQuery) Result[TrendingResponse] {
	return fetchQuery[TrendingResponse](ctx, c, q)
}

func fetchQuery[T any](ctx context.Context, c *Client, q endpoint.Query) Result[T] {
	target, err := c.resolver.Resolve(q)
	if err != nil {
		c.log.Debug("rejected query", zap.String("kind", string(q.Kind())), zap.Error(err))
		return fail[T](resolveFailure(err))
	}

	return Fetch[T](ctx, c.access, target, c.ttl.For(target.Kind))
}

