package quotron

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRequestIDMiddleware_ExistingID(t *testing.T) {
	handler := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(RequestIDFromContext(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/quote", nil)
	req.Header.Set("X-Request-ID", "01hx0c8d4k6v7w8y9z0a1b2c3d")

	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec.Header().Get("X-Request-ID") != "01hx0c8d4k6v7w8y9z0a1b2c3d" {
		t.Fatalf("expected propagated id, got %s", rec.Header().Get("X-Request-ID"))
	}

	if rec.Body.String() != "01hx0c8d4k6v7w8y9z0a1b2c3d" {
		t.Fatalf("expected id in context, got %s", rec.Body.String())
	}
}

func TestRequestIDMiddleware_GeneratedID(t *testing.T) {
	handler := requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Request-ID")))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quote", nil))

	id := rec.Header().Get("X-Request-ID")
	if len(id) != 26 {
		t.Fatalf("expected ulid request id, got %q", id)
	}

	if rec.Body.String() != id {
		t.Fatalf("expected upstream handler to see %s, got %s", id, rec.Body.String())
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, remote: "10.0.0.1:1234", want: "5.6.7.8"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, remote: "10.0.0.1:1234", want: "9.9.9.9"},
		{name: "remote addr", remote: "1.2.3.4:5678", want: "1.2.3.4"},
		{name: "remote addr without port", remote: "1.2.3.4", want: "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q; want %q", got, tt.want)
			}
		})
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return raw
}

func TestAuthenticator_Verify(t *testing.T) {
	au := &authenticator{secret: []byte("s3cret"), issuer: "accounts"}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: signToken(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"iss": "accounts", "exp": exp}),
		},
		{
			name:    "wrong secret",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"iss": "accounts", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "wrong issuer",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"iss": "elsewhere", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "missing expiry",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"iss": "accounts"}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"iss": "accounts", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "other algorithm",
			token:   signToken(t, jwt.SigningMethodHS512, []byte("s3cret"), jwt.MapClaims{"iss": "accounts", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.token",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := au.verify(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
