package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
)

// exportSettings is Config resolved once and shared by the log and metric
// exporters.
type exportSettings struct {
	protocol string
	endpoint string
	isURL    bool
	insecure bool
	timeout  time.Duration
	gzip     bool
	headers  map[string]string
	retry    RetryConfig
}

func newExportSettings(cfg Config) (exportSettings, error) {
	protocol, err := resolveProtocol(cfg.Protocol, cfg.Endpoint)
	if err != nil {
		return exportSettings{}, err
	}
	return exportSettings{
		protocol: protocol,
		endpoint: cfg.Endpoint,
		isURL:    isEndpointURL(cfg.Endpoint),
		insecure: cfg.Insecure,
		timeout:  cfg.Timeout,
		gzip:     cfg.Compression == "gzip",
		headers:  cfg.Headers,
		retry:    cfg.Retry,
	}, nil
}

func (s exportSettings) logExporter(ctx context.Context) (sdklog.Exporter, error) {
	if s.protocol == ProtocolHTTP {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(s.endpoint)}
		if s.isURL {
			opts = []otlploghttp.Option{otlploghttp.WithEndpointURL(s.endpoint)}
		}
		if s.insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if s.timeout > 0 {
			opts = append(opts, otlploghttp.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(s.headers))
		}
		if s.retry.Enabled {
			opts = append(opts, otlploghttp.WithRetry(otlploghttp.RetryConfig{
				Enabled:         true,
				InitialInterval: s.retry.Initial,
				MaxInterval:     s.retry.MaxInterval,
				MaxElapsedTime:  s.retry.MaxElapsed,
			}))
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(s.endpoint)}
	if s.isURL {
		opts = []otlploggrpc.Option{otlploggrpc.WithEndpointURL(s.endpoint)}
	}
	if s.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if s.timeout > 0 {
		opts = append(opts, otlploggrpc.WithTimeout(s.timeout))
	}
	if s.gzip {
		opts = append(opts, otlploggrpc.WithCompressor("gzip"))
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(s.headers))
	}
	if s.retry.Enabled {
		opts = append(opts, otlploggrpc.WithRetry(otlploggrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: s.retry.Initial,
			MaxInterval:     s.retry.MaxInterval,
			MaxElapsedTime:  s.retry.MaxElapsed,
		}))
	}
	return otlploggrpc.New(ctx, opts...)
}

func (s exportSettings) metricExporter(ctx context.Context) (metric.Exporter, error) {
	if s.protocol == ProtocolHTTP {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(s.endpoint)}
		if s.isURL {
			opts = []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(s.endpoint)}
		}
		if s.insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if s.timeout > 0 {
			opts = append(opts, otlpmetrichttp.WithTimeout(s.timeout))
		}
		if s.gzip {
			opts = append(opts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
		}
		if len(s.headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(s.headers))
		}
		if s.retry.Enabled {
			opts = append(opts, otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
				Enabled:         true,
				InitialInterval: s.retry.Initial,
				MaxInterval:     s.retry.MaxInterval,
				MaxElapsedTime:  s.retry.MaxElapsed,
			}))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(s.endpoint)}
	if s.isURL {
		opts = []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(s.endpoint)}
	}
	if s.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	if s.timeout > 0 {
		opts = append(opts, otlpmetricgrpc.WithTimeout(s.timeout))
	}
	if s.gzip {
		opts = append(opts, otlpmetricgrpc.WithCompressor("gzip"))
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(s.headers))
	}
	if s.retry.Enabled {
		opts = append(opts, otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: s.retry.Initial,
			MaxInterval:     s.retry.MaxInterval,
			MaxElapsedTime:  s.retry.MaxElapsed,
		}))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}
