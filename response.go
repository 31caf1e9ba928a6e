package quotron

import (
	"encoding/json"
	"net/http"
)

// ClientResponse is the envelope of every API response.
type ClientResponse struct {
	Data   json.RawMessage     `json:"data,omitempty"`
	Errors []ClientErrorDetail `json:"errors,omitempty"`
}

type ClientErrorDetail struct {
	Code    ClientError `json:"code"`
	Message string      `json:"message,omitempty"`
}

type ClientError string

func (err ClientError) String() string {
	return string(err)
}

const (
	ClientErrRateLimitExceeded   ClientError = "RATE_LIMIT_EXCEEDED"
	ClientErrUnauthorized        ClientError = "UNAUTHORIZED"
	ClientErrNotFound            ClientError = "NOT_FOUND"
	ClientErrInvalidQuery        ClientError = "INVALID_QUERY"
	ClientErrUpstreamUnavailable ClientError = "UPSTREAM_UNAVAILABLE"
	ClientErrUpstreamError       ClientError = "UPSTREAM_ERROR"
	ClientErrUpstreamRejected    ClientError = "UPSTREAM_REJECTED"
	ClientErrUpstreamMalformed   ClientError = "UPSTREAM_MALFORMED"
	ClientErrInternal            ClientError = "INTERNAL"
	ClientErrAborted             ClientError = "ABORTED"
)

const contentTypeJSON = "application/json; charset=utf-8"

func WriteError(w http.ResponseWriter, code ClientError, status int, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	resp := ClientResponse{
		Data:   nil,
		Errors: []ClientErrorDetail{{Code: code, Message: message}},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Fallback on error
		http.Error(w, http.StatusText(status), status)
	}
}

// WriteData encodes v as the data member of the envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		WriteError(w, ClientErrInternal, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(mustMarshal(ClientResponse{Data: data}))
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"errors":[{"code":"INTERNAL","message":"internal error"}]}`)
	}

	return b
}
