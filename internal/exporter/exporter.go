// Package exporter delivers batch bodies to the remote log collector over
// HTTP.
package exporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/szibis/logship/internal/auth"
	"github.com/szibis/logship/internal/compression"
	tlspkg "github.com/szibis/logship/internal/tls"
	"golang.org/x/net/http2"
)

const (
	// DefaultPath is appended to endpoints given without a path.
	DefaultPath = "/v1/logs"

	maxErrorBody = 1024
)

var (
	exportRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_export_requests_total",
		Help: "Total number of POST requests sent to the collector",
	})

	exportBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_export_bytes_total",
		Help: "Bytes sent to the collector, by compression",
	}, []string{"compression"})

	exportErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_export_errors_total",
		Help: "Failed POST requests by error type",
	}, []string{"error_type"})

	exportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logship_export_duration_seconds",
		Help:    "Duration of POST requests to the collector",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})
)

func init() {
	prometheus.MustRegister(exportRequestsTotal)
	prometheus.MustRegister(exportBytesTotal)
	prometheus.MustRegister(exportErrorsTotal)
	prometheus.MustRegister(exportDuration)
}

// HTTPClientConfig holds HTTP client connection pool settings.
type HTTPClientConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"-"`
	DisableKeepAlives   bool          `yaml:"disable_keep_alives"`
	ForceAttemptHTTP2   bool          `yaml:"force_http2"`
	// HTTP2ReadIdleTimeout sends a ping when no frame arrived for this long.
	HTTP2ReadIdleTimeout time.Duration `yaml:"-"`
	// HTTP2PingTimeout closes the connection if a ping is not answered.
	HTTP2PingTimeout time.Duration `yaml:"-"`
}

// Config holds the collector client configuration.
type Config struct {
	// Endpoint is the collector URL. A missing scheme defaults to https
	// (http when Insecure); a missing path defaults to DefaultPath.
	Endpoint string
	Insecure bool
	// Timeout bounds a whole POST including reading the response.
	Timeout     time.Duration
	UserAgent   string
	TLS         tlspkg.ClientConfig
	Auth        auth.ClientConfig
	Compression compression.Config
	HTTPClient  HTTPClientConfig
}

// HTTPClient POSTs batch bodies to the collector.
type HTTPClient struct {
	client      *http.Client
	endpoint    string
	userAgent   string
	compression compression.Config

	closeOnce sync.Once
}

// New creates an HTTPClient.
func New(cfg Config) (*HTTPClient, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     cfg.HTTPClient.ForceAttemptHTTP2,
		MaxIdleConns:          cfg.HTTPClient.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.HTTPClient.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.HTTPClient.MaxConnsPerHost,
		IdleConnTimeout:       cfg.HTTPClient.IdleConnTimeout,
		DisableKeepAlives:     cfg.HTTPClient.DisableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if transport.MaxIdleConns == 0 {
		transport.MaxIdleConns = 16
	}
	if transport.MaxIdleConnsPerHost == 0 {
		transport.MaxIdleConnsPerHost = 4
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = 90 * time.Second
	}

	if !cfg.Insecure {
		if cfg.TLS.Enabled {
			tlsConfig, err := tlspkg.NewClientTLSConfig(cfg.TLS)
			if err != nil {
				return nil, fmt.Errorf("failed to create TLS config: %w", err)
			}
			transport.TLSClientConfig = tlsConfig
		} else {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	if cfg.HTTPClient.ForceAttemptHTTP2 || transport.TLSClientConfig != nil {
		h2, err := http2.ConfigureTransports(transport)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP/2: %w", err)
		}
		if cfg.HTTPClient.HTTP2ReadIdleTimeout > 0 {
			h2.ReadIdleTimeout = cfg.HTTPClient.HTTP2ReadIdleTimeout
		}
		if cfg.HTTPClient.HTTP2PingTimeout > 0 {
			h2.PingTimeout = cfg.HTTPClient.HTTP2PingTimeout
		}
	}

	var roundTripper http.RoundTripper = transport
	if cfg.Auth.BearerToken != "" || cfg.Auth.BasicAuthUsername != "" || len(cfg.Auth.Headers) > 0 {
		roundTripper = auth.HTTPTransport(cfg.Auth, roundTripper)
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "logship"
	}

	return &HTTPClient{
		client:      &http.Client{Transport: roundTripper, Timeout: cfg.Timeout},
		endpoint:    endpoint,
		userAgent:   userAgent,
		compression: cfg.Compression,
	}, nil
}

// Endpoint returns the resolved collector URL.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Send POSTs body. Any 2xx status is success; anything else is returned as
// an *ExportError.
func (c *HTTPClient) Send(ctx context.Context, body []byte) error {
	compressionLabel := "none"
	if c.compression.Type != compression.TypeNone && c.compression.Type != "" {
		var err error
		body, err = compression.Compress(body, c.compression)
		if err != nil {
			return fmt.Errorf("failed to compress request: %w", err)
		}
		compressionLabel = string(c.compression.Type)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if encoding := c.compression.Type.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	exportRequestsTotal.Inc()
	start := time.Now()
	resp, err := c.client.Do(req)
	exportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		errType := classifyError(err)
		exportErrorsTotal.WithLabelValues(string(errType)).Inc()
		return &ExportError{Err: fmt.Errorf("failed to send request: %w", err), Type: errType}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		errType := classifyHTTPStatusCode(resp.StatusCode)
		exportErrorsTotal.WithLabelValues(string(errType)).Inc()
		return &ExportError{
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
			Type:       errType,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	exportBytesTotal.WithLabelValues(compressionLabel).Add(float64(len(body)))
	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.closeOnce.Do(c.client.CloseIdleConnections)
	return nil
}

func normalizeEndpoint(endpoint string, insecure bool) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("exporter endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https://"
		if insecure {
			scheme = "http://"
		}
		endpoint = scheme + endpoint
	}
	hostStart := strings.Index(endpoint, "://") + 3
	if !strings.Contains(endpoint[hostStart:], "/") {
		endpoint += DefaultPath
	}
	return endpoint, nil
}
