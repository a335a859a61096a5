// Package telemetry exports logship's own logs and Prometheus metrics over
// OTLP, tagged with the identity of the pipeline that produced them.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	prombridge "go.opentelemetry.io/contrib/bridges/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/szibis/logship/internal/logging"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	instrumentationName = "github.com/szibis/logship"

	// componentTelemetry tags log entries about the telemetry pipeline
	// itself. The log hook never forwards them.
	componentTelemetry = "telemetry"
)

// Config holds configuration for OTLP telemetry export.
type Config struct {
	// Endpoint is host:port, or a http(s) URL which selects the HTTP
	// protocol. Empty disables telemetry.
	Endpoint        string
	Protocol        string
	Insecure        bool
	Timeout         time.Duration
	PushInterval    time.Duration
	Compression     string
	Headers         map[string]string
	ShutdownTimeout time.Duration
	Retry           RetryConfig
	Resource        Resource
}

// RetryConfig mirrors the OTLP exporters' retry settings. Zero durations
// keep the SDK defaults.
type RetryConfig struct {
	Enabled     bool
	Initial     time.Duration
	MaxInterval time.Duration
	MaxElapsed  time.Duration
}

// Resource identifies the running pipeline. Empty fields are left out.
type Resource struct {
	ServiceName    string
	ServiceVersion string
	ShipperName    string
	BufferMode     string
	BufferPath     string
	// Collector is the exporter endpoint; credentials and query are removed
	// before it is attached.
	Collector string
}

// Telemetry holds the OTEL SDK providers for self-monitoring.
type Telemetry struct {
	logProvider     *sdklog.LoggerProvider
	meterProvider   *metric.MeterProvider
	logger          otellog.Logger
	shutdownFuncs   []func(context.Context) error
	shutdownTimeout time.Duration
}

// Enabled returns true if telemetry is configured.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.logger != nil
}

// ShutdownTimeout returns the configured shutdown timeout.
func (t *Telemetry) ShutdownTimeout() time.Duration {
	if t == nil || t.shutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return t.shutdownTimeout
}

// Init starts the OTLP log and metric pipelines. It returns nil when
// cfg.Endpoint is empty.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	settings, err := newExportSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	res, err := newResource(ctx, cfg.Resource)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	t := &Telemetry{shutdownTimeout: cfg.ShutdownTimeout}

	logExporter, err := settings.logExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create log exporter: %w", err)
	}
	t.logProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	t.shutdownFuncs = append(t.shutdownFuncs, t.logProvider.Shutdown)
	t.logger = t.logProvider.Logger(instrumentationName)

	metricExporter, err := settings.metricExporter(ctx)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	pushInterval := cfg.PushInterval
	if pushInterval <= 0 {
		pushInterval = 30 * time.Second
	}
	// The shipper, spool and receiver collectors live in the default
	// Prometheus registry; the bridge pushes them unchanged.
	t.meterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(pushInterval),
			metric.WithProducer(prombridge.NewMetricProducer()),
		)),
	)
	t.shutdownFuncs = append(t.shutdownFuncs, t.meterProvider.Shutdown)

	otel.SetErrorHandler(otel.ErrorHandlerFunc(exportErrorHandler(logging.NewSampler(time.Minute))))

	logging.Info("telemetry export enabled", logging.F(
		"endpoint", settings.endpoint,
		"protocol", settings.protocol,
		"push_interval", pushInterval.String(),
	))
	return t, nil
}

// Shutdown flushes and stops all providers. Later calls are no-ops.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	funcs := t.shutdownFuncs
	t.shutdownFuncs = nil

	var firstErr error
	for _, fn := range funcs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newResource(ctx context.Context, r Resource) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceInstanceID(uuid.NewString())}
	if r.ServiceName != "" {
		attrs = append(attrs, semconv.ServiceName(r.ServiceName))
	}
	if r.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(r.ServiceVersion))
	}
	for _, kv := range []struct{ key, value string }{
		{"logship.shipper.name", r.ShipperName},
		{"logship.buffer.mode", r.BufferMode},
		{"logship.buffer.path", r.BufferPath},
		{"logship.collector.endpoint", redactEndpoint(r.Collector)},
	} {
		if kv.value != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.value))
		}
	}
	return resource.New(ctx, resource.WithHost(), resource.WithAttributes(attrs...))
}

// redactEndpoint drops userinfo, query and fragment from a collector URL.
func redactEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// exportErrorHandler logs OTLP export failures locally, at most once per
// sampler interval.
func exportErrorHandler(sampler *logging.Sampler) func(error) {
	return func(err error) {
		suppressed, ok := sampler.Allow()
		if !ok {
			return
		}
		logging.Warn("telemetry export failed", logging.F(
			"component", componentTelemetry,
			"error", err.Error(),
			"suppressed", suppressed,
		))
	}
}

// resolveProtocol picks the protocol for endpoint. A http(s) URL without an
// explicit protocol implies HTTP; otherwise the default is gRPC.
func resolveProtocol(protocol, endpoint string) (string, error) {
	switch protocol {
	case "":
		if isEndpointURL(endpoint) {
			return ProtocolHTTP, nil
		}
		return ProtocolGRPC, nil
	case ProtocolGRPC, ProtocolHTTP:
		return protocol, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (want grpc or http)", protocol)
	}
}

func isEndpointURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}
