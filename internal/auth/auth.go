// Package auth provides HTTP authentication for the ingest receiver and the
// collector client.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var authFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "logship_auth_failures_total",
	Help: "Rejected ingest requests by reason",
}, []string{"reason"})

func init() {
	prometheus.MustRegister(authFailures)
}

// ServerConfig holds authentication configuration for the receiver.
type ServerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BearerToken       string `yaml:"bearer_token"`
	BasicAuthUsername string `yaml:"basic_username"`
	BasicAuthPassword string `yaml:"basic_password"`
}

// ClientConfig holds authentication configuration for the collector client.
type ClientConfig struct {
	BearerToken       string            `yaml:"bearer_token"`
	BasicAuthUsername string            `yaml:"basic_username"`
	BasicAuthPassword string            `yaml:"basic_password"`
	Headers           map[string]string `yaml:"headers"`
}

// ParseHeaders parses "k1=v1,k2=v2" as used by the -exporter-headers flag.
func ParseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", pair)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}

// HTTPMiddleware rejects requests without the configured credentials.
func HTTPMiddleware(cfg ServerConfig, next http.Handler) http.Handler {
	if !cfg.Enabled {
		return next
	}
	expectedBasic := ""
	if cfg.BasicAuthUsername != "" && cfg.BasicAuthPassword != "" {
		expectedBasic = "Basic " + basicAuthEncoded(cfg.BasicAuthUsername, cfg.BasicAuthPassword)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			reject(w, "missing", "missing authorization header")
			return
		}

		if cfg.BearerToken != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				reject(w, "format", "invalid authorization header format")
				return
			}
			if !equal(token, cfg.BearerToken) {
				reject(w, "bearer", "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if expectedBasic != "" && !equal(header, expectedBasic) {
			reject(w, "basic", "invalid basic auth credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, reason, msg string) {
	authFailures.WithLabelValues(reason).Inc()
	http.Error(w, msg, http.StatusUnauthorized)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HTTPTransport returns an http.RoundTripper that adds authentication headers.
func HTTPTransport(cfg ClientConfig, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{base: base, cfg: cfg}
}

type authTransport struct {
	base http.RoundTripper
	cfg  ClientConfig
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())

	if t.cfg.BearerToken != "" {
		clone.Header.Set("Authorization", "Bearer "+t.cfg.BearerToken)
	}
	if t.cfg.BasicAuthUsername != "" && t.cfg.BasicAuthPassword != "" {
		clone.SetBasicAuth(t.cfg.BasicAuthUsername, t.cfg.BasicAuthPassword)
	}
	for k, v := range t.cfg.Headers {
		clone.Header.Set(k, v)
	}

	return t.base.RoundTrip(clone)
}

func basicAuthEncoded(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
