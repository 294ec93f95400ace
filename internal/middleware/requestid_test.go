package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDAttachesLogger(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := RequestID(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		l := LoggerFrom(r.Context(), zerolog.Nop())
		l.Info().Msg("inside handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" {
		t.Fatalf("context id = %q", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("echoed id = %q", got)
	}
	if !strings.Contains(buf.String(), `"request_id":"abc-123"`) {
		t.Fatalf("log missing request id: %s", buf.String())
	}
}

func TestRequestIDReplacesUnusableClientIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "control bytes", id: "abc\x00def"},
		{name: "spaces", id: "two words"},
		{name: "too long", id: strings.Repeat("a", maxRequestIDLen+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", tc.id)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || seen == tc.id {
				t.Fatalf("client id %q kept as %q", tc.id, seen)
			}
			if rec.Header().Get("X-Request-ID") != seen {
				t.Fatalf("header %q != context %q", rec.Header().Get("X-Request-ID"), seen)
			}
		})
	}
}

func TestLoggerFromFallsBackOutsideRequest(t *testing.T) {
	var buf bytes.Buffer
	l := LoggerFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context(), zerolog.New(&buf))
	l.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("fallback logger not used: %q", buf.String())
	}
}

func TestAccessLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(zerolog.New(&buf))(Logger(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"request_id":"trace-9"`) || !strings.Contains(out, `"status":418`) {
		t.Fatalf("access log = %s", out)
	}
}
