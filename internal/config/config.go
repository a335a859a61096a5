// Package config loads logship settings from flags and an optional YAML file.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/szibis/logship/internal/auth"
	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/exporter"
	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/payload"
	"github.com/szibis/logship/internal/receiver"
	"github.com/szibis/logship/internal/shipper"
	"github.com/szibis/logship/internal/spool"
	"github.com/szibis/logship/internal/telemetry"
	tlspkg "github.com/szibis/logship/internal/tls"
)

// version is set at build time via ldflags
var version = "dev"

// Version returns the build version.
func Version() string {
	return version
}

// Buffer modes.
const (
	ModeDisk   = "disk"
	ModeMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	ConfigFile string

	// Receiver settings
	ReceiverAddr              string
	ReceiverPath              string
	ReceiverMaxBodyBytes      int64
	ReceiverReadTimeout       time.Duration
	ReceiverReadHeaderTimeout time.Duration
	ReceiverWriteTimeout      time.Duration
	ReceiverIdleTimeout       time.Duration
	ReceiverValidateJSON      bool

	// Receiver TLS settings
	ReceiverTLSEnabled    bool
	ReceiverTLSCertFile   string
	ReceiverTLSKeyFile    string
	ReceiverTLSCAFile     string
	ReceiverTLSClientAuth bool
	ReceiverTLSMinVersion string

	// Receiver Auth settings
	ReceiverAuthEnabled       bool
	ReceiverAuthBearerToken   string
	ReceiverAuthBasicUsername string
	ReceiverAuthBasicPassword string

	// Exporter settings
	ExporterEndpoint  string
	ExporterInsecure  bool
	ExporterTimeout   time.Duration
	ExporterUserAgent string
	ExporterFormat    string

	// Exporter TLS settings
	ExporterTLSEnabled            bool
	ExporterTLSCertFile           string
	ExporterTLSKeyFile            string
	ExporterTLSCAFile             string
	ExporterTLSInsecureSkipVerify bool
	ExporterTLSServerName         string
	ExporterTLSMinVersion         string

	// Exporter Auth settings
	ExporterAuthBearerToken   string
	ExporterAuthBasicUsername string
	ExporterAuthBasicPassword string
	ExporterAuthHeaders       string

	// Exporter Compression settings
	ExporterCompression      string
	ExporterCompressionLevel int

	// Exporter HTTP client settings
	ExporterMaxIdleConns         int
	ExporterMaxIdleConnsPerHost  int
	ExporterMaxConnsPerHost      int
	ExporterIdleConnTimeout      time.Duration
	ExporterDisableKeepAlives    bool
	ExporterForceHTTP2           bool
	ExporterHTTP2ReadIdleTimeout time.Duration
	ExporterHTTP2PingTimeout     time.Duration

	// Buffer settings
	BufferMode          string
	BufferPath          string
	BufferRolling       string
	BufferInterval      string
	BufferMaxFileBytes  int64
	BufferRetainedFiles int
	QueueMaxRecords     int
	QueueMaxBytes       int64

	// Shipper settings
	ShipperPeriod          time.Duration
	BatchMaxRecords        int
	BatchMaxBytes          int64
	RecordMaxBytes         int64
	PruneThreshold         int
	UnhealthyAfterFailures int

	// Stats and logging
	StatsAddr       string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Telemetry settings (OTLP self-monitoring)
	TelemetryEndpoint         string
	TelemetryProtocol         string
	TelemetryInsecure         bool
	TelemetryTimeout          time.Duration
	TelemetryPushInterval     time.Duration
	TelemetryCompression      string
	TelemetryHeaders          map[string]string
	TelemetryShutdownTimeout  time.Duration
	TelemetryRetryEnabled     bool
	TelemetryRetryInitial     time.Duration
	TelemetryRetryMaxInterval time.Duration
	TelemetryRetryMaxElapsed  time.Duration

	// Memory settings
	MemoryLimitRatio float64

	ShowHelp     bool
	ShowVersion  bool
	ValidateOnly bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ReceiverAddr:         ":4318",
		ReceiverPath:         receiver.DefaultPath,
		ReceiverMaxBodyBytes: receiver.DefaultMaxBodyBytes,

		ExporterInsecure:    false,
		ExporterTimeout:     30 * time.Second,
		ExporterUserAgent:   "logship/" + version,
		ExporterFormat:      "events",
		ExporterCompression: string(compression.TypeNone),

		BufferMode:      ModeDisk,
		BufferPath:      "/var/spool/logship/buffer",
		BufferRolling:   string(spool.RollingTime),
		BufferInterval:  "hour",
		QueueMaxRecords: 100000,
		QueueMaxBytes:   64 << 20,

		ShipperPeriod:          shipper.DefaultPeriod,
		BatchMaxRecords:        1000,
		BatchMaxBytes:          4 << 20,
		RecordMaxBytes:         256 << 10,
		PruneThreshold:         shipper.DefaultPruneThreshold,
		UnhealthyAfterFailures: 10,

		StatsAddr:       ":9090",
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,

		TelemetryInsecure:     true,
		TelemetryPushInterval: 30 * time.Second,
		TelemetryRetryEnabled: true,

		MemoryLimitRatio: 0.9,
	}
}

// ParseFlags parses os.Args and exits on a flag error.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logship: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds the configuration from args. When -config names a YAML file
// its values replace the defaults and flags set explicitly on the command
// line override both.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// -validate reports YAML errors itself.
	if cfg.ConfigFile == "" || cfg.ValidateOnly {
		return cfg, nil
	}

	yamlCfg, err := LoadYAML(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", cfg.ConfigFile, err)
	}
	merged := yamlCfg.ToConfig()
	merged.ConfigFile = cfg.ConfigFile

	// Re-parse onto the YAML values so only explicit flags override them.
	explicit := newFlagSet(merged, io.Discard)
	if err := explicit.Parse(args); err != nil {
		return nil, err
	}
	return merged, nil
}

func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("logship", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to YAML configuration file")

	// Receiver flags
	fs.StringVar(&cfg.ReceiverAddr, "receiver-listen", cfg.ReceiverAddr, "HTTP ingest listen address")
	fs.StringVar(&cfg.ReceiverPath, "receiver-path", cfg.ReceiverPath, "HTTP ingest path")
	byteSizeVar(fs, &cfg.ReceiverMaxBodyBytes, "receiver-max-body-size", "Maximum ingest request body (e.g. 16Mi), checked before and after decompression")
	fs.DurationVar(&cfg.ReceiverReadTimeout, "receiver-read-timeout", cfg.ReceiverReadTimeout, "Ingest server read timeout (0 = none)")
	fs.DurationVar(&cfg.ReceiverReadHeaderTimeout, "receiver-read-header-timeout", cfg.ReceiverReadHeaderTimeout, "Ingest server read header timeout (0 = 1m)")
	fs.DurationVar(&cfg.ReceiverWriteTimeout, "receiver-write-timeout", cfg.ReceiverWriteTimeout, "Ingest server write timeout (0 = 30s)")
	fs.DurationVar(&cfg.ReceiverIdleTimeout, "receiver-idle-timeout", cfg.ReceiverIdleTimeout, "Ingest server idle timeout (0 = 1m)")
	fs.BoolVar(&cfg.ReceiverValidateJSON, "receiver-validate-json", cfg.ReceiverValidateJSON, "Drop ingested lines that are not valid JSON")

	// Receiver TLS flags
	fs.BoolVar(&cfg.ReceiverTLSEnabled, "receiver-tls-enabled", cfg.ReceiverTLSEnabled, "Enable TLS for the receiver")
	fs.StringVar(&cfg.ReceiverTLSCertFile, "receiver-tls-cert", cfg.ReceiverTLSCertFile, "Path to receiver TLS certificate file")
	fs.StringVar(&cfg.ReceiverTLSKeyFile, "receiver-tls-key", cfg.ReceiverTLSKeyFile, "Path to receiver TLS private key file")
	fs.StringVar(&cfg.ReceiverTLSCAFile, "receiver-tls-ca", cfg.ReceiverTLSCAFile, "Path to CA certificate for client verification (mTLS)")
	fs.BoolVar(&cfg.ReceiverTLSClientAuth, "receiver-tls-client-auth", cfg.ReceiverTLSClientAuth, "Require client certificates (mTLS)")
	fs.StringVar(&cfg.ReceiverTLSMinVersion, "receiver-tls-min-version", cfg.ReceiverTLSMinVersion, "Minimum TLS version: 1.2 or 1.3")

	// Receiver Auth flags
	fs.BoolVar(&cfg.ReceiverAuthEnabled, "receiver-auth-enabled", cfg.ReceiverAuthEnabled, "Enable authentication for the receiver")
	fs.StringVar(&cfg.ReceiverAuthBearerToken, "receiver-auth-bearer-token", cfg.ReceiverAuthBearerToken, "Bearer token for receiver authentication")
	fs.StringVar(&cfg.ReceiverAuthBasicUsername, "receiver-auth-basic-username", cfg.ReceiverAuthBasicUsername, "Basic auth username for the receiver")
	fs.StringVar(&cfg.ReceiverAuthBasicPassword, "receiver-auth-basic-password", cfg.ReceiverAuthBasicPassword, "Basic auth password for the receiver")

	// Exporter flags
	fs.StringVar(&cfg.ExporterEndpoint, "exporter-endpoint", cfg.ExporterEndpoint, "Collector URL records are POSTed to (path defaults to /v1/logs)")
	fs.BoolVar(&cfg.ExporterInsecure, "exporter-insecure", cfg.ExporterInsecure, "Use plain HTTP when the endpoint has no scheme")
	fs.DurationVar(&cfg.ExporterTimeout, "exporter-timeout", cfg.ExporterTimeout, "Timeout of one POST including the response")
	fs.StringVar(&cfg.ExporterUserAgent, "exporter-user-agent", cfg.ExporterUserAgent, "User-Agent header sent to the collector")
	fs.StringVar(&cfg.ExporterFormat, "exporter-format", cfg.ExporterFormat, "Batch body format: events ({\"events\":[...]}) or array ([...])")

	// Exporter TLS flags
	fs.BoolVar(&cfg.ExporterTLSEnabled, "exporter-tls-enabled", cfg.ExporterTLSEnabled, "Enable custom TLS config for the exporter")
	fs.StringVar(&cfg.ExporterTLSCertFile, "exporter-tls-cert", cfg.ExporterTLSCertFile, "Path to client certificate file (mTLS)")
	fs.StringVar(&cfg.ExporterTLSKeyFile, "exporter-tls-key", cfg.ExporterTLSKeyFile, "Path to client private key file (mTLS)")
	fs.StringVar(&cfg.ExporterTLSCAFile, "exporter-tls-ca", cfg.ExporterTLSCAFile, "Path to CA certificate for server verification")
	fs.BoolVar(&cfg.ExporterTLSInsecureSkipVerify, "exporter-tls-skip-verify", cfg.ExporterTLSInsecureSkipVerify, "Skip TLS certificate verification")
	fs.StringVar(&cfg.ExporterTLSServerName, "exporter-tls-server-name", cfg.ExporterTLSServerName, "Override server name for TLS verification")
	fs.StringVar(&cfg.ExporterTLSMinVersion, "exporter-tls-min-version", cfg.ExporterTLSMinVersion, "Minimum TLS version: 1.2 or 1.3")

	// Exporter Auth flags
	fs.StringVar(&cfg.ExporterAuthBearerToken, "exporter-auth-bearer-token", cfg.ExporterAuthBearerToken, "Bearer token for exporter authentication")
	fs.StringVar(&cfg.ExporterAuthBasicUsername, "exporter-auth-basic-username", cfg.ExporterAuthBasicUsername, "Basic auth username for the exporter")
	fs.StringVar(&cfg.ExporterAuthBasicPassword, "exporter-auth-basic-password", cfg.ExporterAuthBasicPassword, "Basic auth password for the exporter")
	fs.StringVar(&cfg.ExporterAuthHeaders, "exporter-auth-headers", cfg.ExporterAuthHeaders, "Custom headers for the exporter (format: key1=value1,key2=value2)")

	// Exporter Compression flags
	fs.StringVar(&cfg.ExporterCompression, "exporter-compression", cfg.ExporterCompression, "Compression: none, gzip, zstd, snappy, zlib, deflate, lz4")
	fs.IntVar(&cfg.ExporterCompressionLevel, "exporter-compression-level", cfg.ExporterCompressionLevel, "Compression level (algorithm-specific, 0 for default)")

	// Exporter HTTP client flags
	fs.IntVar(&cfg.ExporterMaxIdleConns, "exporter-max-idle-conns", cfg.ExporterMaxIdleConns, "Maximum idle connections (0 = 16)")
	fs.IntVar(&cfg.ExporterMaxIdleConnsPerHost, "exporter-max-idle-conns-per-host", cfg.ExporterMaxIdleConnsPerHost, "Maximum idle connections per host (0 = 4)")
	fs.IntVar(&cfg.ExporterMaxConnsPerHost, "exporter-max-conns-per-host", cfg.ExporterMaxConnsPerHost, "Maximum connections per host (0 = unlimited)")
	fs.DurationVar(&cfg.ExporterIdleConnTimeout, "exporter-idle-conn-timeout", cfg.ExporterIdleConnTimeout, "Idle connection timeout (0 = 90s)")
	fs.BoolVar(&cfg.ExporterDisableKeepAlives, "exporter-disable-keep-alives", cfg.ExporterDisableKeepAlives, "Disable HTTP keep-alives")
	fs.BoolVar(&cfg.ExporterForceHTTP2, "exporter-force-http2", cfg.ExporterForceHTTP2, "Force HTTP/2 for the collector connection")
	fs.DurationVar(&cfg.ExporterHTTP2ReadIdleTimeout, "exporter-http2-read-idle-timeout", cfg.ExporterHTTP2ReadIdleTimeout, "HTTP/2 health check ping interval (0 = off)")
	fs.DurationVar(&cfg.ExporterHTTP2PingTimeout, "exporter-http2-ping-timeout", cfg.ExporterHTTP2PingTimeout, "HTTP/2 ping response timeout")

	// Buffer flags
	fs.StringVar(&cfg.BufferMode, "buffer-mode", cfg.BufferMode, "Buffer mode: disk (durable files) or memory (bounded queue)")
	fs.StringVar(&cfg.BufferPath, "buffer-path", cfg.BufferPath, "Buffer directory and file prefix")
	fs.StringVar(&cfg.BufferRolling, "buffer-rolling", cfg.BufferRolling, "Buffer file rolling: time or size")
	fs.StringVar(&cfg.BufferInterval, "buffer-interval", cfg.BufferInterval, "Time rolling interval: year, month, day, hour, halfhour, minute")
	byteSizeVar(fs, &cfg.BufferMaxFileBytes, "buffer-max-file-size", "Size rolling threshold per file (e.g. 64Mi, 0 = one file per day)")
	fs.IntVar(&cfg.BufferRetainedFiles, "buffer-retained-files", cfg.BufferRetainedFiles, "Maximum buffer files kept by the writer (0 = unlimited)")
	fs.IntVar(&cfg.QueueMaxRecords, "queue-max-records", cfg.QueueMaxRecords, "Memory mode: maximum queued records (0 = unlimited)")
	byteSizeVar(fs, &cfg.QueueMaxBytes, "queue-max-size", "Memory mode: maximum queued bytes (0 = unlimited)")

	// Shipper flags
	fs.DurationVar(&cfg.ShipperPeriod, "shipper-period", cfg.ShipperPeriod, "Delay between shipping ticks while healthy")
	fs.IntVar(&cfg.BatchMaxRecords, "batch-max-records", cfg.BatchMaxRecords, "Maximum records per POST (0 = unlimited)")
	byteSizeVar(fs, &cfg.BatchMaxBytes, "batch-max-size", "Maximum record bytes per POST (0 = unlimited)")
	byteSizeVar(fs, &cfg.RecordMaxBytes, "record-max-size", "Records larger than this are dropped (0 = unlimited)")
	fs.IntVar(&cfg.PruneThreshold, "prune-threshold", cfg.PruneThreshold, "Buffer file count at which the oldest file is deleted (minimum 3)")
	fs.IntVar(&cfg.UnhealthyAfterFailures, "unhealthy-after-failures", cfg.UnhealthyAfterFailures, "Consecutive delivery failures before /ready fails (0 = never)")

	// Stats and logging flags
	fs.StringVar(&cfg.StatsAddr, "stats-addr", cfg.StatsAddr, "Address for /metrics, /live and /ready")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for draining the receiver on shutdown")

	// Telemetry flags
	fs.StringVar(&cfg.TelemetryEndpoint, "telemetry-endpoint", cfg.TelemetryEndpoint, "OTLP endpoint for self-monitoring (empty = disabled)")
	fs.StringVar(&cfg.TelemetryProtocol, "telemetry-protocol", cfg.TelemetryProtocol, "OTLP protocol: grpc or http (empty: http for http(s):// endpoints, grpc otherwise)")
	fs.BoolVar(&cfg.TelemetryInsecure, "telemetry-insecure", cfg.TelemetryInsecure, "Use insecure OTLP connection")
	fs.DurationVar(&cfg.TelemetryPushInterval, "telemetry-push-interval", cfg.TelemetryPushInterval, "OTLP metric push interval")

	// Memory flags
	fs.Float64Var(&cfg.MemoryLimitRatio, "memory-limit-ratio", cfg.MemoryLimitRatio, "Ratio of container memory used for GOMEMLIMIT (0 = disabled)")

	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help (shorthand)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version (shorthand)")
	fs.BoolVar(&cfg.ValidateOnly, "validate", false, "Validate the -config file, print the result as JSON and exit")

	return fs
}

// byteSizeValue lets size flags accept the same Ki/Mi/Gi suffixes as YAML.
type byteSizeValue struct{ p *int64 }

func (b byteSizeValue) String() string {
	if b.p == nil {
		return "0"
	}
	return FormatByteSize(*b.p)
}

func (b byteSizeValue) Set(s string) error {
	n, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b.p = n
	return nil
}

func byteSizeVar(fs *flag.FlagSet, p *int64, name, usage string) {
	fs.Var(byteSizeValue{p}, name, usage)
}

// PrintUsage writes flag documentation to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "logship %s: durable log shipper\n\nUsage:\n  logship [flags]\n\nFlags:\n", version)
	fs := newFlagSet(DefaultConfig(), w)
	fs.PrintDefaults()
}

// ReceiverTLSConfig returns the TLS configuration for the receiver.
func (c *Config) ReceiverTLSConfig() tlspkg.ServerConfig {
	return tlspkg.ServerConfig{
		Enabled:    c.ReceiverTLSEnabled,
		CertFile:   c.ReceiverTLSCertFile,
		KeyFile:    c.ReceiverTLSKeyFile,
		CAFile:     c.ReceiverTLSCAFile,
		ClientAuth: c.ReceiverTLSClientAuth,
		MinVersion: c.ReceiverTLSMinVersion,
	}
}

// ReceiverAuthConfig returns the auth configuration for the receiver.
func (c *Config) ReceiverAuthConfig() auth.ServerConfig {
	return auth.ServerConfig{
		Enabled:           c.ReceiverAuthEnabled,
		BearerToken:       c.ReceiverAuthBearerToken,
		BasicAuthUsername: c.ReceiverAuthBasicUsername,
		BasicAuthPassword: c.ReceiverAuthBasicPassword,
	}
}

// ReceiverConfig returns the full receiver configuration.
func (c *Config) ReceiverConfig() receiver.Config {
	return receiver.Config{
		Addr:         c.ReceiverAddr,
		Path:         c.ReceiverPath,
		TLS:          c.ReceiverTLSConfig(),
		Auth:         c.ReceiverAuthConfig(),
		ValidateJSON: c.ReceiverValidateJSON,
		Server: receiver.ServerConfig{
			MaxBodyBytes:      c.ReceiverMaxBodyBytes,
			ReadTimeout:       c.ReceiverReadTimeout,
			ReadHeaderTimeout: c.ReceiverReadHeaderTimeout,
			WriteTimeout:      c.ReceiverWriteTimeout,
			IdleTimeout:       c.ReceiverIdleTimeout,
		},
	}
}

// ExporterTLSConfig returns the TLS configuration for the exporter.
func (c *Config) ExporterTLSConfig() tlspkg.ClientConfig {
	return tlspkg.ClientConfig{
		Enabled:            c.ExporterTLSEnabled,
		CertFile:           c.ExporterTLSCertFile,
		KeyFile:            c.ExporterTLSKeyFile,
		CAFile:             c.ExporterTLSCAFile,
		InsecureSkipVerify: c.ExporterTLSInsecureSkipVerify,
		ServerName:         c.ExporterTLSServerName,
		MinVersion:         c.ExporterTLSMinVersion,
	}
}

// ExporterAuthConfig returns the auth configuration for the exporter.
// Malformed header pairs are reported by Validate and skipped here.
func (c *Config) ExporterAuthConfig() auth.ClientConfig {
	headers, _ := auth.ParseHeaders(c.ExporterAuthHeaders)
	return auth.ClientConfig{
		BearerToken:       c.ExporterAuthBearerToken,
		BasicAuthUsername: c.ExporterAuthBasicUsername,
		BasicAuthPassword: c.ExporterAuthBasicPassword,
		Headers:           headers,
	}
}

// ExporterCompressionConfig returns the compression configuration for the exporter.
func (c *Config) ExporterCompressionConfig() compression.Config {
	compressionType, _ := compression.ParseType(c.ExporterCompression)
	return compression.Config{
		Type:  compressionType,
		Level: compression.Level(c.ExporterCompressionLevel),
	}
}

// ExporterHTTPClientConfig returns the HTTP client configuration for the exporter.
func (c *Config) ExporterHTTPClientConfig() exporter.HTTPClientConfig {
	return exporter.HTTPClientConfig{
		MaxIdleConns:         c.ExporterMaxIdleConns,
		MaxIdleConnsPerHost:  c.ExporterMaxIdleConnsPerHost,
		MaxConnsPerHost:      c.ExporterMaxConnsPerHost,
		IdleConnTimeout:      c.ExporterIdleConnTimeout,
		DisableKeepAlives:    c.ExporterDisableKeepAlives,
		ForceAttemptHTTP2:    c.ExporterForceHTTP2,
		HTTP2ReadIdleTimeout: c.ExporterHTTP2ReadIdleTimeout,
		HTTP2PingTimeout:     c.ExporterHTTP2PingTimeout,
	}
}

// ExporterConfig returns the full exporter configuration.
func (c *Config) ExporterConfig() exporter.Config {
	return exporter.Config{
		Endpoint:    c.ExporterEndpoint,
		Insecure:    c.ExporterInsecure,
		Timeout:     c.ExporterTimeout,
		UserAgent:   c.ExporterUserAgent,
		TLS:         c.ExporterTLSConfig(),
		Auth:        c.ExporterAuthConfig(),
		Compression: c.ExporterCompressionConfig(),
		HTTPClient:  c.ExporterHTTPClientConfig(),
	}
}

// Formatter returns the batch body formatter.
func (c *Config) Formatter() payload.Formatter {
	f, err := payload.Parse(c.ExporterFormat)
	if err != nil {
		return payload.Events{}
	}
	return f
}

// SpoolConfig returns the buffer writer configuration.
func (c *Config) SpoolConfig() spool.Config {
	rolling, _ := spool.ParseRolling(c.BufferRolling)
	interval, _ := fileset.ParseInterval(c.BufferInterval)
	return spool.Config{
		BasePath:       c.BufferPath,
		Rolling:        rolling,
		Interval:       interval,
		MaxFileBytes:   c.BufferMaxFileBytes,
		RetainedFiles:  c.BufferRetainedFiles,
		MaxRecordBytes: c.RecordMaxBytes,
	}
}

// ShipperConfig returns the shipping loop configuration.
func (c *Config) ShipperConfig() shipper.Config {
	return shipper.Config{
		Name:           c.BufferMode,
		Period:         c.ShipperPeriod,
		MaxRecords:     c.BatchMaxRecords,
		MaxBatchBytes:  c.BatchMaxBytes,
		MaxRecordBytes: c.RecordMaxBytes,
		PruneThreshold: c.PruneThreshold,
	}
}

// TelemetryConfig returns the OTLP self-monitoring configuration.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Endpoint:        c.TelemetryEndpoint,
		Protocol:        c.TelemetryProtocol,
		Insecure:        c.TelemetryInsecure,
		Timeout:         c.TelemetryTimeout,
		PushInterval:    c.TelemetryPushInterval,
		Compression:     c.TelemetryCompression,
		Headers:         c.TelemetryHeaders,
		ShutdownTimeout: c.TelemetryShutdownTimeout,
		Retry: telemetry.RetryConfig{
			Enabled:     c.TelemetryRetryEnabled,
			Initial:     c.TelemetryRetryInitial,
			MaxInterval: c.TelemetryRetryMaxInterval,
			MaxElapsed:  c.TelemetryRetryMaxElapsed,
		},
		Resource: c.telemetryResource(),
	}
}

func (c *Config) telemetryResource() telemetry.Resource {
	r := telemetry.Resource{
		ServiceName:    "logship",
		ServiceVersion: version,
		ShipperName:    c.BufferMode,
		BufferMode:     c.BufferMode,
		Collector:      c.ExporterEndpoint,
	}
	if c.BufferMode == ModeDisk {
		r.BufferPath = c.BufferPath
	}
	return r
}
