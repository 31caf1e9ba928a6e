package endpoint

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Range string

const (
	Range1D  Range = "1d"
	Range5D  Range = "5d"
	Range1Mo Range = "1mo"
	Range3Mo Range = "3mo"
	Range6Mo Range = "6mo"
	Range1Y  Range = "1y"
	Range2Y  Range = "2y"
	Range5Y  Range = "5y"
	Range10Y Range = "10y"
	RangeYTD Range = "ytd"
	RangeMax Range = "max"
)

func (r Range) Valid() bool {
	switch r {
	case Range1D, Range5D, Range1Mo, Range3Mo, Range6Mo, Range1Y, Range2Y, Range5Y, Range10Y, RangeYTD, RangeMax:
		return true
	default:
		return false
	}
}

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval2m  Interval = "2m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval60m Interval = "60m"
	Interval90m Interval = "90m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval5d  Interval = "5d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
	Interval3mo Interval = "3mo"
)

func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval2m, Interval5m, Interval15m, Interval30m, Interval60m, Interval90m,
		Interval1h, Interval1d, Interval5d, Interval1wk, Interval1mo, Interval3mo:
		return true
	default:
		return false
	}
}

// PriceQuery asks for the latest traded price of one symbol.
type PriceQuery struct {
	Symbol string
}

func (PriceQuery) Kind() Kind { return KindPrice }

func (q PriceQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindPrice, h, "v8", "finance", "chart", seg)
	t.Query.Set("range", string(Range1D))
	t.Query.Set("interval", string(Interval1m))

	return t, nil
}

type ChartQuery struct {
	Symbol         string
	Range          Range
	Interval       Interval
	IncludePrePost bool
	Events         []string
}

func (ChartQuery) Kind() Kind { return KindChart }

func (q ChartQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	if !q.Range.Valid() {
		return Target{}, invalid("unsupported range %q", q.Range)
	}

	if !q.Interval.Valid() {
		return Target{}, invalid("unsupported interval %q", q.Interval)
	}

	t := newTarget(KindChart, h, "v8", "finance", "chart", seg)
	t.Query.Set("range", string(q.Range))
	t.Query.Set("interval", string(q.Interval))

	if q.IncludePrePost {
		t.Query.Set("includePrePost", "true")
	}

	if err = setOptionalList(t, "events", q.Events); err != nil {
		return Target{}, err
	}

	return t, nil
}

// HistoryQuery asks for bars between two instants, expressed as unix seconds upstream.
type HistoryQuery struct {
	Symbol   string
	Period1  time.Time
	Period2  time.Time
	Interval Interval
	Events   []string
}

func (HistoryQuery) Kind() Kind { return KindHistory }

func (q HistoryQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	if q.Period1.IsZero() || q.Period2.IsZero() {
		return Target{}, invalid("period1 and period2 are required")
	}

	if !q.Period1.Before(q.Period2) {
		return Target{}, invalid("period1 must be before period2")
	}

	if !q.Interval.Valid() {
		return Target{}, invalid("unsupported interval %q", q.Interval)
	}

	t := newTarget(KindHistory, h, "v8", "finance", "chart", seg)
	t.Query.Set("period1", unix(q.Period1))
	t.Query.Set("period2", unix(q.Period2))
	t.Query.Set("interval", string(q.Interval))

	if err = setOptionalList(t, "events", q.Events); err != nil {
		return Target{}, err
	}

	return t, nil
}

// FundamentalsQuery asks for fundamentals time series such as "annualTotalRevenue".
// The period is optional but, when given, both bounds are required.
type FundamentalsQuery struct {
	Symbol  string
	Types   []string
	Period1 time.Time
	Period2 time.Time
}

func (FundamentalsQuery) Kind() Kind { return KindFundamentals }

func (q FundamentalsQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	types, err := joinList("types", q.Types, nil)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindFundamentals, h, "ws", "fundamentals-timeseries", "v1", "finance", "timeseries", seg)
	t.Query.Set("type", types)

	switch {
	case q.Period1.IsZero() && q.Period2.IsZero():
	case q.Period1.IsZero() || q.Period2.IsZero():
		return Target{}, invalid("period1 and period2 must be set together")
	case !q.Period1.Before(q.Period2):
		return Target{}, invalid("period1 must be before period2")
	default:
		t.Query.Set("period1", unix(q.Period1))
		t.Query.Set("period2", unix(q.Period2))
	}

	return t, nil
}

type InsightsQuery struct {
	Symbol string
}

func (InsightsQuery) Kind() Kind { return KindInsights }

func (q InsightsQuery) resolve(h Hosts) (Target, error) {
	symbol, err := normalizeSymbol(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindInsights, h, "ws", "insights", "v2", "finance", "insights")
	t.Query.Set("symbol", symbol)

	return t, nil
}

// OptionsQuery asks for an options chain. A zero Expiry selects the nearest expiration.
type OptionsQuery struct {
	Symbol string
	Expiry time.Time
}

func (OptionsQuery) Kind() Kind { return KindOptions }

func (q OptionsQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindOptions, h, "v7", "finance", "options", seg)

	if !q.Expiry.IsZero() {
		t.Query.Set("date", unix(q.Expiry))
	}

	return t, nil
}

type QuoteQuery struct {
	Symbols []string
	Fields  []string
}

func (QuoteQuery) Kind() Kind { return KindQuote }

func (q QuoteQuery) resolve(h Hosts) (Target, error) {
	symbols, err := joinList("symbols", q.Symbols, strings.ToUpper)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindQuote, h, "v7", "finance", "quote")
	t.Query.Set("symbols", symbols)

	if err = setOptionalList(t, "fields", q.Fields); err != nil {
		return Target{}, err
	}

	return t, nil
}

type QuoteSummaryQuery struct {
	Symbol  string
	Modules []string
}

func (QuoteSummaryQuery) Kind() Kind { return KindQuoteSummary }

func (q QuoteSummaryQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	modules, err := joinList("modules", q.Modules, nil)
	if err != nil {
		return Target{}, err
	}

	t := newTarget(KindQuoteSummary, h, "v10", "finance", "quoteSummary", seg)
	t.Query.Set("modules", modules)

	return t, nil
}

type RecommendationsQuery struct {
	Symbol string
}

func (RecommendationsQuery) Kind() Kind { return KindRecommendations }

func (q RecommendationsQuery) resolve(h Hosts) (Target, error) {
	seg, err := symbolSegment(q.Symbol)
	if err != nil {
		return Target{}, err
	}

	return newTarget(KindRecommendations, h, "v6", "finance", "recommendationsbysymbol", seg), nil
}

// ScreenerQuery runs a predefined screener such as "day_gainers".
type ScreenerQuery struct {
	ID    string
	Count int
}

func (ScreenerQuery) Kind() Kind { return KindScreener }

func (q ScreenerQuery) resolve(h Hosts) (Target, error) {
	id := strings.TrimSpace(q.ID)
	if id == "" {
		return Target{}, invalid("screener id is required")
	}

	t := newTarget(KindScreener, h, "v1", "finance", "screener", "predefined", "saved")
	t.Query.Set("scrIds", id)

	if err := setOptionalCount(t, "count", q.Count); err != nil {
		return Target{}, err
	}

	return t, nil
}

type SearchQuery struct {
	Text        string
	QuotesCount int
	NewsCount   int
}

func (SearchQuery) Kind() Kind { return KindSearch }

func (q SearchQuery) resolve(h Hosts) (Target, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Target{}, invalid("search text is required")
	}

	t := newTarget(KindSearch, h, "v1", "finance", "search")
	t.Query.Set("q", text)

	if err := setOptionalCount(t, "quotesCount", q.QuotesCount); err != nil {
		return Target{}, err
	}

	if err := setOptionalCount(t, "newsCount", q.NewsCount); err != nil {
		return Target{}, err
	}

	return t, nil
}

// TrendingQuery asks for trending symbols of a region such as "US".
type TrendingQuery struct {
	Region string
	Count  int
}

func (TrendingQuery) Kind() Kind { return KindTrending }

func (q TrendingQuery) resolve(h Hosts) (Target, error) {
	region := strings.ToUpper(strings.TrimSpace(q.Region))
	if region == "" {
		return Target{}, invalid("region is required")
	}

	t := newTarget(KindTrending, h, "v1", "finance", "trending", url.PathEscape(region))

	if err := setOptionalCount(t, "count", q.Count); err != nil {
		return Target{}, err
	}

	return t, nil
}

// setOptionalList sets name only when values is non-empty, in which case it must hold a non-blank value.
func setOptionalList(t Target, name string, values []string) error {
	if len(values) == 0 {
		return nil
	}

	joined, err := joinList(name, values, nil)
	if err != nil {
		return err
	}

	t.Query.Set(name, joined)

	return nil
}

func setOptionalCount(t Target, name string, count int) error {
	if count < 0 {
		return invalid("%s must be positive", name)
	}

	if count > 0 {
		t.Query.Set(name, strconv.Itoa(count))
	}

	return nil
}

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
