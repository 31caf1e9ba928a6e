// Package endpoint maps logical market-data queries to fully formed upstream request targets.
//
// Resolution is pure: it performs no I/O and holds no state besides the configured hosts.
// Equal queries always resolve to byte-identical targets, so the target URL doubles as the
// cache fingerprint of the query.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidQuery is wrapped by every resolution error.
var ErrInvalidQuery = errors.New("invalid query")

type Kind string

const (
	KindPrice           Kind = "price"
	KindChart           Kind = "chart"
	KindHistory         Kind = "history"
	KindFundamentals    Kind = "fundamentals"
	KindInsights        Kind = "insights"
	KindOptions         Kind = "options"
	KindQuote           Kind = "quote"
	KindQuoteSummary    Kind = "quote_summary"
	KindRecommendations Kind = "recommendations"
	KindScreener        Kind = "screener"
	KindSearch          Kind = "search"
	KindTrending        Kind = "trending"
)

// Kinds lists every endpoint kind in a stable order.
var Kinds = []Kind{
	KindPrice,
	KindChart,
	KindHistory,
	KindFundamentals,
	KindInsights,
	KindOptions,
	KindQuote,
	KindQuoteSummary,
	KindRecommendations,
	KindScreener,
	KindSearch,
	KindTrending,
}

// Hosts holds the base URLs of the two provider hosts, e.g. "https://query1.finance.yahoo.com".
type Hosts struct {
	Primary   string
	Secondary string
}

// SecondaryHost reports whether kind is served by the secondary host.
func SecondaryHost(kind Kind) bool {
	switch kind {
	case KindFundamentals, KindInsights, KindOptions, KindQuoteSummary, KindRecommendations:
		return true
	default:
		return false
	}
}

// Host picks the base URL that serves kind.
func (h Hosts) Host(kind Kind) string {
	if SecondaryHost(kind) {
		return h.Secondary
	}

	return h.Primary
}

// Target is a resolved upstream request.
type Target struct {
	Kind  Kind
	Host  string
	Path  string // Already escaped.
	Query url.Values
}

// URL returns the absolute request URL. Query keys are sorted, so the output is deterministic.
func (t Target) URL() string {
	var sb strings.Builder

	sb.WriteString(t.Host)
	sb.WriteString(t.Path)

	if q := t.Query.Encode(); q != "" {
		sb.WriteByte('?')
		sb.WriteString(q)
	}

	return sb.String()
}

// Fingerprint returns the cache key of the target. The kind prefix keeps
// endpoints that share a URL (price and chart) apart.
func (t Target) Fingerprint() string {
	return string(t.Kind) + ":" + t.URL()
}

// Query is a logical upstream query. Implementations live in this package.
type Query interface {
	Kind() Kind
	resolve(hosts Hosts) (Target, error)
}

type Resolver struct {
	hosts Hosts
}

func NewResolver(hosts Hosts) *Resolver {
	return &Resolver{
		hosts: Hosts{
			Primary:   strings.TrimSuffix(hosts.Primary, "/"),
			Secondary: strings.TrimSuffix(hosts.Secondary, "/"),
		},
	}
}

// Resolve validates q and builds its target.
func (r *Resolver) Resolve(q Query) (Target, error) {
	if q == nil {
		return Target{}, fmt.Errorf("%w: nil query", ErrInvalidQuery)
	}

	return q.resolve(r.hosts)
}

func newTarget(kind Kind, hosts Hosts, segments ...string) Target {
	var sb strings.Builder

	for _, seg := range segments {
		sb.WriteByte('/')
		sb.WriteString(seg)
	}

	return Target{
		Kind:  kind,
		Host:  hosts.Host(kind),
		Path:  sb.String(),
		Query: url.Values{},
	}
}

// symbolSegment normalizes a ticker and escapes it for use as a path segment.
func symbolSegment(symbol string) (string, error) {
	s, err := normalizeSymbol(symbol)
	if err != nil {
		return "", err
	}

	return url.PathEscape(s), nil
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", invalid("symbol is required")
	}

	return s, nil
}

// joinList trims every value, drops blanks and joins the rest with commas.
func joinList(name string, values []string, normalize func(string) string) (string, error) {
	parts := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if normalize != nil {
			v = normalize(v)
		}

		parts = append(parts, v)
	}

	if len(parts) == 0 {
		return "", invalid("%s must contain at least one non-blank value", name)
	}

	return strings.Join(parts, ","), nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
