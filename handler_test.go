package quotron

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type apiFixture struct {
	stub *stubProvider
	api  *API
	srv  http.Handler
}

func newAPIFixture(t *testing.T, stub *stubProvider, serverCfg func(*ServerConfig)) *apiFixture {
	t.Helper()

	client := newTestClient(t, stub, nil)

	cfg := DefaultConfig().Server
	if serverCfg != nil {
		serverCfg(&cfg)
	}

	api := NewAPI(client, cfg, zap.NewNop(), nil)

	return &apiFixture{stub: stub, api: api, srv: api.Routes()}
}

func (f *apiFixture) get(t *testing.T, target string, header http.Header) (*httptest.ResponseRecorder, ClientResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.7:40000"

	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	var body ClientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}

	return rec, body
}

func TestAPI_QuoteEnvelope(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, quoteBody)}, nil)

	rec, body := f.get(t, "/v1/quote?symbols=aapl", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != contentTypeJSON {
		t.Errorf("Content-Type = %q; want %q", got, contentTypeJSON)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if len(body.Errors) != 0 {
		t.Errorf("expected no errors, got %v", body.Errors)
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body.Data, &quote); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if got := quote.QuoteResponse.Result[0].Symbol; got != "AAPL" {
		t.Errorf("expected AAPL, got %s", got)
	}
}

func TestAPI_Price(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, chartBody)}, nil)

	rec, body := f.get(t, "/v1/price/AAPL", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var price struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	if err := json.Unmarshal(body.Data, &price); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if price.Symbol != "AAPL" || price.Price != "190.5" {
		t.Errorf("unexpected price %+v", price)
	}
}

func TestAPI_Failures(t *testing.T) {
	tests := []struct {
		name       string
		upstream   func(int32, http.ResponseWriter, *http.Request)
		target     string
		wantStatus int
		wantCode   ClientError
		wantCalls  int32
	}{
		{
			name:       "invalid query",
			upstream:   respond(http.StatusOK, quoteBody),
			target:     "/v1/quote",
			wantStatus: http.StatusBadRequest,
			wantCode:   ClientErrInvalidQuery,
		},
		{
			name:       "unsupported range",
			upstream:   respond(http.StatusOK, chartBody),
			target:     "/v1/chart/AAPL?range=7y",
			wantStatus: http.StatusBadRequest,
			wantCode:   ClientErrInvalidQuery,
		},
		{
			name:       "bad count",
			upstream:   respond(http.StatusOK, `{}`),
			target:     "/v1/trending/us?count=many",
			wantStatus: http.StatusBadRequest,
			wantCode:   ClientErrInvalidQuery,
		},
		{
			name:       "bad period",
			upstream:   respond(http.StatusOK, chartBody),
			target:     "/v1/history/AAPL?period1=yesterday&period2=1700000000",
			wantStatus: http.StatusBadRequest,
			wantCode:   ClientErrInvalidQuery,
		},
		{
			name:       "upstream rejected",
			upstream:   respond(http.StatusNotFound, `{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found"}}}`),
			target:     "/v1/quote-summary/NOPE?modules=price",
			wantStatus: http.StatusNotFound,
			wantCode:   ClientErrUpstreamRejected,
			wantCalls:  1,
		},
		{
			name:       "upstream malformed",
			upstream:   respond(http.StatusOK, `[`),
			target:     "/v1/search?q=apple",
			wantStatus: http.StatusInternalServerError,
			wantCode:   ClientErrUpstreamMalformed,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, &stubProvider{handle: tt.upstream}, nil)

			rec, body := f.get(t, tt.target, nil)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantStatus)
			}

			if len(body.Errors) != 1 {
				t.Fatalf("expected 1 error, got %v", body.Errors)
			}
			if body.Errors[0].Code != tt.wantCode {
				t.Errorf("code = %q; want %q", body.Errors[0].Code, tt.wantCode)
			}
			if body.Errors[0].Message == "" {
				t.Error("expected an error message")
			}

			if body.Data != nil {
				t.Errorf("expected no data, got %s", body.Data)
			}

			if got := f.stub.calls.Load(); got != tt.wantCalls {
				t.Errorf("upstream calls = %d; want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestAPI_NotFound(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, `{}`)}, nil)

	rec, body := f.get(t, "/v2/quote", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	if len(body.Errors) != 1 || body.Errors[0].Code != ClientErrNotFound {
		t.Errorf("expected a single %s error, got %v", ClientErrNotFound, body.Errors)
	}
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, `{}`)}, func(cfg *ServerConfig) {
		cfg.Auth.Enabled = true
		cfg.Auth.Secret = "s3cret"
	})

	rec, body := f.get(t, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health check to bypass auth, got %d", rec.Code)
	}

	var health map[string]string
	if err := json.Unmarshal(body.Data, &health); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	if health["status"] != "ok" {
		t.Errorf("expected status ok, got %q", health["status"])
	}
	if health["instance_id"] != f.api.client.InstanceID() {
		t.Errorf("expected instance id %q, got %q", f.api.client.InstanceID(), health["instance_id"])
	}
}

func TestAPI_Authentication(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, quoteBody)}, func(cfg *ServerConfig) {
		cfg.Auth.Enabled = true
		cfg.Auth.Secret = "s3cret"
	})

	rec, body := f.get(t, "/v1/quote?symbols=AAPL", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if len(body.Errors) != 1 || body.Errors[0].Code != ClientErrUnauthorized {
		t.Errorf("expected a single %s error, got %v", ClientErrUnauthorized, body.Errors)
	}

	rec, _ = f.get(t, "/v1/quote?symbols=AAPL", http.Header{"Authorization": {"Bearer nope"}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", rec.Code)
	}
	if got := f.stub.calls.Load(); got != 0 {
		t.Errorf("expected no upstream calls, got %d", got)
	}

	token := signToken(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec, _ = f.get(t, "/v1/quote?symbols=AAPL", http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rec.Code)
	}
	if got := f.stub.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

func TestAPI_RateLimit(t *testing.T) {
	f := newAPIFixture(t, &stubProvider{handle: respond(http.StatusOK, quoteBody)}, func(cfg *ServerConfig) {
		cfg.RateLimiter.Enabled = true
		cfg.RateLimiter.Limit = 2
		cfg.RateLimiter.Window = time.Minute
	})

	if err := f.api.Start(); err != nil {
		t.Fatalf("start api: %v", err)
	}
	t.Cleanup(func() { _ = f.api.Stop() })

	for i := range 2 {
		rec, _ := f.get(t, "/v1/quote?symbols=AAPL", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("X-RateLimit-Limit = %q; want 2", got)
		}
		if got, want := rec.Header().Get("X-RateLimit-Remaining"), strconv.Itoa(1-i); got != want {
			t.Errorf("X-RateLimit-Remaining = %q; want %q", got, want)
		}
	}

	rec, body := f.get(t, "/v1/quote?symbols=AAPL", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(body.Errors) != 1 || body.Errors[0].Code != ClientErrRateLimitExceeded {
		t.Errorf("expected a single %s error, got %v", ClientErrRateLimitExceeded, body.Errors)
	}

	// Health checks are not rate limited.
	if rec, _ = f.get(t, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /healthz, got %d", rec.Code)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: time.Time{}},
		{in: "1700000000", want: time.Unix(1_700_000_000, 0).UTC()},
		{in: "2024-01-31", want: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-31T10:00:00Z", want: time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)},
		{in: "last week", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTime("period1", tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTime(%q): expected error", tt.in)
			}
			continue
		}

		if err != nil {
			t.Errorf("parseTime(%q) error: %v", tt.in, err)
			continue
		}

		if !tt.want.Equal(got) {
			t.Errorf("parseTime(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
