package util

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		tls       bool
		forwarded string
		wantHSTS  bool
	}{
		{name: "plain http", wantHSTS: false},
		{name: "direct tls", tls: true, wantHSTS: true},
		{name: "forwarded https", forwarded: "https", wantHSTS: true},
		{name: "forwarded chain starts with https", forwarded: "HTTPS, http", wantHSTS: true},
		{name: "forwarded http", forwarded: "http", wantHSTS: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
			if tc.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tc.forwarded)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			for _, kv := range apiResponseHeaders {
				if got := rec.Header().Get(kv[0]); got != kv[1] {
					t.Fatalf("%s = %q, want %q", kv[0], got, kv[1])
				}
			}
			if got := rec.Header().Get("Strict-Transport-Security"); (got == hstsValue) != tc.wantHSTS {
				t.Fatalf("Strict-Transport-Security = %q, want set=%v", got, tc.wantHSTS)
			}
		})
	}
}

func TestSecurityHeadersKeepSessionDataOutOfCaches(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Ann"}`))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("handler headers must survive, got %q", got)
	}
}
