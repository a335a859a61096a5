package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func TestHTTPMiddleware(t *testing.T) {
	bearer := ServerConfig{Enabled: true, BearerToken: "secret"}
	basic := ServerConfig{Enabled: true, BasicAuthUsername: "ship", BasicAuthPassword: "pw"}

	tests := []struct {
		name   string
		cfg    ServerConfig
		header string
		want   int
	}{
		{"disabled", ServerConfig{}, "", http.StatusAccepted},
		{"missing header", bearer, "", http.StatusUnauthorized},
		{"valid bearer", bearer, "Bearer secret", http.StatusAccepted},
		{"wrong bearer", bearer, "Bearer nope", http.StatusUnauthorized},
		{"malformed bearer", bearer, "Token secret", http.StatusUnauthorized},
		{"valid basic", basic, "Basic " + basicAuthEncoded("ship", "pw"), http.StatusAccepted},
		{"wrong basic", basic, "Basic " + basicAuthEncoded("ship", "bad"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HTTPMiddleware(tt.cfg, okHandler())
			req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHTTPMiddlewareCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(authFailures.WithLabelValues("bearer"))

	h := HTTPMiddleware(ServerConfig{Enabled: true, BearerToken: "secret"}, okHandler())
	req := httptest.NewRequest(http.MethodPost, "/v1/logs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(authFailures.WithLabelValues("bearer")) - before; got != 1 {
		t.Errorf("bearer failures = %v, want 1", got)
	}
}

func TestHTTPTransport(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		cfg   ClientConfig
		check func(t *testing.T, h http.Header)
	}{
		{
			name: "bearer",
			cfg:  ClientConfig{BearerToken: "tok"},
			check: func(t *testing.T, h http.Header) {
				if h.Get("Authorization") != "Bearer tok" {
					t.Errorf("Authorization = %q", h.Get("Authorization"))
				}
			},
		},
		{
			name: "basic",
			cfg:  ClientConfig{BasicAuthUsername: "u", BasicAuthPassword: "p"},
			check: func(t *testing.T, h http.Header) {
				if h.Get("Authorization") != "Basic "+basicAuthEncoded("u", "p") {
					t.Errorf("Authorization = %q", h.Get("Authorization"))
				}
			},
		},
		{
			name: "custom headers",
			cfg:  ClientConfig{Headers: map[string]string{"X-Tenant": "team-a"}},
			check: func(t *testing.T, h http.Header) {
				if h.Get("X-Tenant") != "team-a" {
					t.Errorf("X-Tenant = %q", h.Get("X-Tenant"))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: HTTPTransport(tt.cfg, nil)}
			req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			tt.check(t, got)
			if req.Header.Get("Authorization") != "" {
				t.Error("transport modified the caller's request")
			}
		})
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := ParseHeaders("X-A=1, X-B = two ,")
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	if len(h) != 2 || h["X-A"] != "1" || h["X-B"] != "two" {
		t.Errorf("ParseHeaders() = %v", h)
	}
	if _, err := ParseHeaders("novalue"); err == nil {
		t.Error("expected error for missing '='")
	}
	if h, err := ParseHeaders(""); err != nil || len(h) != 0 {
		t.Errorf("ParseHeaders(\"\") = %v, %v", h, err)
	}
}
