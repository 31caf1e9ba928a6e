package quotron

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderError is the error object the provider embeds in its envelopes.
type ProviderError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}

	return e.Code + ": " + e.Description
}

// enveloped is implemented by payloads whose envelope may carry a ProviderError.
type enveloped interface {
	providerError() error
}

// keyed is implemented by payloads that must carry a top-level object under envelopeKey.
type keyed interface {
	envelopeKey() string
}

// validated payloads reject a well-formed body they cannot serve.
type validated interface {
	validate() error
}

var (
	errNotObject       = errors.New("payload is not a JSON object")
	errMissingEnvelope = errors.New("payload envelope is missing")
)

func envelopeErr(e *ProviderError) error {
	if e == nil {
		return nil
	}

	return e
}

// providerErrorFrom extracts a ProviderError from any top-level envelope of body.
func providerErrorFrom(body []byte) error {
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil
	}

	for _, raw := range parts {
		var part struct {
			Error *ProviderError `json:"error"`
		}

		if json.Unmarshal(raw, &part) == nil && part.Error != nil {
			return part.Error
		}
	}

	return nil
}

// decode parses body into T. A body that is not an object, lacks its envelope or
// carries a provider error inside a 2xx envelope fails the decode.
func decode[T any](body []byte) (T, error) {
	var v T

	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return v, errNotObject
	}

	if k, ok := any(v).(keyed); ok {
		raw, found := top[k.envelopeKey()]
		if !found || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return v, fmt.Errorf("%w: %q", errMissingEnvelope, k.envelopeKey())
		}
	}

	if e, ok := any(v).(enveloped); ok {
		if err := e.providerError(); err != nil {
			return v, fmt.Errorf("provider error: %w", err)
		}
	}

	if val, ok := any(v).(validated); ok {
		if err := val.validate(); err != nil {
			return v, err
		}
	}

	return v, nil
}

type ChartResponse struct {
	Chart struct {
		Result []ChartResult  `json:"result"`
		Error  *ProviderError `json:"error"`
	} `json:"chart"`
}

func (r ChartResponse) providerError() error { return envelopeErr(r.Chart.Error) }
func (ChartResponse) envelopeKey() string { return "chart" }

type ChartResult struct {
	Meta       ChartMeta       `json:"meta"`
	Timestamp  []int64         `json:"timestamp"`
	Indicators ChartIndicators `json:"indicators"`
	Events     *ChartEvents    `json:"events,omitempty"`
}

type ChartMeta struct {
	Currency             string          `json:"currency"`
	Symbol               string          `json:"symbol"`
	ExchangeName         string          `json:"exchangeName"`
	InstrumentType       string          `json:"instrumentType"`
	Timezone             string          `json:"timezone"`
	RegularMarketTime    int64           `json:"regularMarketTime"`
	RegularMarketPrice   decimal.Decimal `json:"regularMarketPrice"`
	ChartPreviousClose   decimal.Decimal `json:"chartPreviousClose"`
	PreviousClose        decimal.Decimal `json:"previousClose"`
	RegularMarketDayHigh decimal.Decimal `json:"regularMarketDayHigh"`
	RegularMarketDayLow  decimal.Decimal `json:"regularMarketDayLow"`
	DataGranularity      string          `json:"dataGranularity"`
	Range                string          `json:"range"`
}

type ChartIndicators struct {
	Quote    []ChartQuoteSeries `json:"quote"`
	AdjClose []struct {
		AdjClose []decimal.NullDecimal `json:"adjclose"`
	} `json:"adjclose,omitempty"`
}

// ChartQuoteSeries holds OHLCV columns; gaps in trading are null entries.
type ChartQuoteSeries struct {
	Open   []decimal.NullDecimal `json:"open"`
	High   []decimal.NullDecimal `json:"high"`
	Low    []decimal.NullDecimal `json:"low"`
	Close  []decimal.NullDecimal `json:"close"`
	Volume []*int64              `json:"volume"`
}

type ChartEvents struct {
	Dividends map[string]ChartDividend `json:"dividends,omitempty"`
	Splits    map[string]ChartSplit    `json:"splits,omitempty"`
}

type ChartDividend struct {
	Amount decimal.Decimal `json:"amount"`
	Date   int64           `json:"date"`
}

type ChartSplit struct {
	Date        int64  `json:"date"`
	Numerator   int64  `json:"numerator"`
	Denominator int64  `json:"denominator"`
	SplitRatio  string `json:"splitRatio"`
}

// PriceQuote is the reduced view returned by the price operation.
type PriceQuote struct {
	Symbol        string          `json:"symbol"`
	Currency      string          `json:"currency"`
	Exchange      string          `json:"exchange"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	MarketTime    time.Time       `json:"market_time"`
}

var errEmptyChart = errors.New("chart has no result")

// priceChart is the chart payload behind the price operation. A chart that
// cannot be reduced to a PriceQuote fails the decode and is never cached.
type priceChart struct {
	ChartResponse
}

func (p priceChart) validate() error {
	_, err := priceFromChart(p.ChartResponse)
	return err
}

func priceFromChart(chart ChartResponse) (PriceQuote, error) {
	if len(chart.Chart.Result) == 0 {
		return PriceQuote{}, errEmptyChart
	}

	meta := chart.Chart.Result[0].Meta

	prev := meta.PreviousClose
	if prev.IsZero() {
		prev = meta.ChartPreviousClose
	}

	q := PriceQuote{
		Symbol:        meta.Symbol,
		Currency:      meta.Currency,
		Exchange:      meta.ExchangeName,
		Price:         meta.RegularMarketPrice,
		PreviousClose: prev,
		Change:        meta.RegularMarketPrice.Sub(prev),
		MarketTime:    time.Unix(meta.RegularMarketTime, 0).UTC(),
	}

	if !prev.IsZero() {
		q.ChangePercent = q.Change.Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return q, nil
}

type QuoteResponse struct {
	QuoteResponse struct {
		Result []Quote        `json:"result"`
		Error  *ProviderError `json:"error"`
	} `json:"quoteResponse"`
}

func (r QuoteResponse) providerError() error { return envelopeErr(r.QuoteResponse.Error) }
func (QuoteResponse) envelopeKey() string { return "quoteResponse" }

type Quote struct {
	Symbol                     string          `json:"symbol"`
	ShortName                  string          `json:"shortName,omitempty"`
	LongName                   string          `json:"longName,omitempty"`
	QuoteType                  string          `json:"quoteType,omitempty"`
	Currency                   string          `json:"currency,omitempty"`
	Exchange                   string          `json:"exchange,omitempty"`
	MarketState                string          `json:"marketState,omitempty"`
	RegularMarketPrice         decimal.Decimal `json:"regularMarketPrice"`
	RegularMarketChange        decimal.Decimal `json:"regularMarketChange"`
	RegularMarketChangePercent decimal.Decimal `json:"regularMarketChangePercent"`
	RegularMarketPreviousClose decimal.Decimal `json:"regularMarketPreviousClose"`
	RegularMarketOpen          decimal.Decimal `json:"regularMarketOpen"`
	RegularMarketDayHigh       decimal.Decimal `json:"regularMarketDayHigh"`
	RegularMarketDayLow        decimal.Decimal `json:"regularMarketDayLow"`
	RegularMarketVolume        int64           `json:"regularMarketVolume"`
	RegularMarketTime          int64           `json:"regularMarketTime"`
	MarketCap                  int64           `json:"marketCap,omitempty"`
}

// QuoteSummaryResponse keeps each requested module as raw JSON; module shapes vary widely.
type QuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *ProviderError               `json:"error"`
	} `json:"quoteSummary"`
}

func (r QuoteSummaryResponse) providerError() error { return envelopeErr(r.QuoteSummary.Error) }
func (QuoteSummaryResponse) envelopeKey() string { return "quoteSummary" }

type OptionsResponse struct {
	OptionChain struct {
		Result []OptionChain  `json:"result"`
		Error  *ProviderError `json:"error"`
	} `json:"optionChain"`
}

func (r OptionsResponse) providerError() error { return envelopeErr(r.OptionChain.Error) }
func (OptionsResponse) envelopeKey() string { return "optionChain" }

type OptionChain struct {
	UnderlyingSymbol string            `json:"underlyingSymbol"`
	ExpirationDates  []int64           `json:"expirationDates"`
	Strikes          []decimal.Decimal `json:"strikes"`
	Quote            Quote             `json:"quote"`
	Options          []OptionSet       `json:"options"`
}

type OptionSet struct {
	ExpirationDate int64            `json:"expirationDate"`
	Calls          []OptionContract `json:"calls"`
	Puts           []OptionContract `json:"puts"`
}

type OptionContract struct {
	ContractSymbol    string          `json:"contractSymbol"`
	Currency          string          `json:"currency"`
	Strike            decimal.Decimal `json:"strike"`
	LastPrice         decimal.Decimal `json:"lastPrice"`
	Bid               decimal.Decimal `json:"bid"`
	Ask               decimal.Decimal `json:"ask"`
	Change            decimal.Decimal `json:"change"`
	PercentChange     decimal.Decimal `json:"percentChange"`
	ImpliedVolatility decimal.Decimal `json:"impliedVolatility"`
	Volume            int64           `json:"volume"`
	OpenInterest      int64           `json:"openInterest"`
	Expiration        int64           `json:"expiration"`
	InTheMoney        bool            `json:"inTheMoney"`
}

type FundamentalsResponse struct {
	Timeseries struct {
		Result []FundamentalsSeries `json:"result"`
		Error  *ProviderError       `json:"error"`
	} `json:"timeseries"`
}

func (r FundamentalsResponse) providerError() error { return envelopeErr(r.Timeseries.Error) }
func (FundamentalsResponse) envelopeKey() string { return "timeseries" }

// FundamentalsSeries is one requested type. The provider keys the data points by the
// type name itself, so Points is filled from the key named in Meta.Type.
type FundamentalsSeries struct {
	Meta struct {
		Symbol []string `json:"symbol"`
		Type   []string `json:"type"`
	} `json:"meta"`
	Timestamp []int64             `json:"timestamp,omitempty"`
	Type      string              `json:"type"`
	Points    []FundamentalsPoint `json:"points"`
}

type FundamentalsPoint struct {
	AsOfDate      string `json:"asOfDate"`
	PeriodType    string `json:"periodType"`
	CurrencyCode  string `json:"currencyCode"`
	ReportedValue struct {
		Raw decimal.Decimal `json:"raw"`
		Fmt string          `json:"fmt"`
	} `json:"reportedValue"`
}

func (s *FundamentalsSeries) UnmarshalJSON(data []byte) error {
	type plain FundamentalsSeries

	var base plain
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	*s = FundamentalsSeries(base)

	if len(s.Meta.Type) == 0 || s.Points != nil {
		return nil
	}

	s.Type = s.Meta.Type[0]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields[s.Type]
	if !ok {
		return nil
	}

	var points []*FundamentalsPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return fmt.Errorf("series %s: %w", s.Type, err)
	}

	for _, p := range points {
		if p != nil {
			s.Points = append(s.Points, *p)
		}
	}

	return nil
}

type InsightsResponse struct {
	Finance struct {
		Result *Insights      `json:"result"`
		Error  *ProviderError `json:"error"`
	} `json:"finance"`
}

func (r InsightsResponse) providerError() error { return envelopeErr(r.Finance.Error) }
func (InsightsResponse) envelopeKey() string { return "finance" }

type Insights struct {
	Symbol          string          `json:"symbol"`
	InstrumentInfo  json.RawMessage `json:"instrumentInfo,omitempty"`
	CompanySnapshot json.RawMessage `json:"companySnapshot,omitempty"`
	Recommendation  *struct {
		TargetPrice decimal.NullDecimal `json:"targetPrice"`
		Provider    string              `json:"provider"`
		Rating      string              `json:"rating"`
	} `json:"recommendation,omitempty"`
}

type RecommendationsResponse struct {
	Finance struct {
		Result []struct {
			Symbol             string `json:"symbol"`
			RecommendedSymbols []struct {
				Symbol string          `json:"symbol"`
				Score  decimal.Decimal `json:"score"`
			} `json:"recommendedSymbols"`
		} `json:"result"`
		Error *ProviderError `json:"error"`
	} `json:"finance"`
}

func (r RecommendationsResponse) providerError() error { return envelopeErr(r.Finance.Error) }
func (RecommendationsResponse) envelopeKey() string { return "finance" }

type ScreenerResponse struct {
	Finance struct {
		Result []struct {
			ID          string  `json:"id"`
			Title       string  `json:"title"`
			Description string  `json:"description"`
			Count       int     `json:"count"`
			Total       int     `json:"total"`
			Quotes      []Quote `json:"quotes"`
		} `json:"result"`
		Error *ProviderError `json:"error"`
	} `json:"finance"`
}

func (r ScreenerResponse) providerError() error { return envelopeErr(r.Finance.Error) }
func (ScreenerResponse) envelopeKey() string { return "finance" }

// SearchResponse has no error envelope; failures arrive as non-2xx statuses.
type SearchResponse struct {
	Count  int `json:"count"`
	Quotes []struct {
		Symbol    string          `json:"symbol"`
		ShortName string          `json:"shortname,omitempty"`
		LongName  string          `json:"longname,omitempty"`
		Exchange  string          `json:"exchange"`
		QuoteType string          `json:"quoteType"`
		Score     decimal.Decimal `json:"score"`
	} `json:"quotes"`
	News []struct {
		UUID                string `json:"uuid"`
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

func (SearchResponse) envelopeKey() string { return "quotes" }

type TrendingResponse struct {
	Finance struct {
		Result []struct {
			Count  int `json:"count"`
			Quotes []struct {
				Symbol string `json:"symbol"`
			} `json:"quotes"`
		} `json:"result"`
		Error *ProviderError `json:"error"`
	} `json:"finance"`
}

func (r TrendingResponse) providerError() error { return envelopeErr(r.Finance.Error) }
func (TrendingResponse) envelopeKey() string { return "finance" }
