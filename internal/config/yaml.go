package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	LogLevel        string   `yaml:"log_level"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Receiver  ReceiverYAMLConfig  `yaml:"receiver"`
	Exporter  ExporterYAMLConfig  `yaml:"exporter"`
	Buffer    BufferYAMLConfig    `yaml:"buffer"`
	Shipper   ShipperYAMLConfig   `yaml:"shipper"`
	Stats     StatsYAMLConfig     `yaml:"stats"`
	Memory    MemoryYAMLConfig    `yaml:"memory"`
	Telemetry TelemetryYAMLConfig `yaml:"telemetry"`
}

// ReceiverYAMLConfig holds HTTP ingest configuration.
type ReceiverYAMLConfig struct {
	Address      string               `yaml:"address"`
	Path         string               `yaml:"path"`
	ValidateJSON bool                 `yaml:"validate_json"`
	Server       HTTPServerYAMLConfig `yaml:"server"`
	TLS          TLSServerYAMLConfig  `yaml:"tls"`
	Auth         AuthServerYAMLConfig `yaml:"auth"`
}

// HTTPServerYAMLConfig holds ingest server limits and timeouts.
type HTTPServerYAMLConfig struct {
	MaxBodySize       ByteSize `yaml:"max_body_size"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
}

// TLSServerYAMLConfig holds receiver TLS configuration.
type TLSServerYAMLConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ClientAuth bool   `yaml:"client_auth"`
	MinVersion string `yaml:"min_version"`
}

// AuthServerYAMLConfig holds receiver authentication configuration.
type AuthServerYAMLConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BearerToken   string `yaml:"bearer_token"`
	BasicUsername string `yaml:"basic_username"`
	BasicPassword string `yaml:"basic_password"`
}

// ExporterYAMLConfig holds collector client configuration.
type ExporterYAMLConfig struct {
	Endpoint    string                `yaml:"endpoint"`
	Insecure    bool                  `yaml:"insecure"`
	Timeout     Duration              `yaml:"timeout"`
	UserAgent   string                `yaml:"user_agent"`
	Format      string                `yaml:"format"`
	TLS         TLSClientYAMLConfig   `yaml:"tls"`
	Auth        AuthClientYAMLConfig  `yaml:"auth"`
	Compression CompressionYAMLConfig `yaml:"compression"`
	HTTPClient  HTTPClientYAMLConfig  `yaml:"http_client"`
}

// TLSClientYAMLConfig holds exporter TLS configuration.
type TLSClientYAMLConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ServerName         string `yaml:"server_name"`
	MinVersion         string `yaml:"min_version"`
}

// AuthClientYAMLConfig holds exporter authentication configuration.
type AuthClientYAMLConfig struct {
	BearerToken   string            `yaml:"bearer_token"`
	BasicUsername string            `yaml:"basic_username"`
	BasicPassword string            `yaml:"basic_password"`
	Headers       map[string]string `yaml:"headers"`
}

// CompressionYAMLConfig holds exporter compression configuration.
type CompressionYAMLConfig struct {
	Type  string `yaml:"type"`
	Level int    `yaml:"level"`
}

// HTTPClientYAMLConfig holds exporter connection pool settings.
type HTTPClientYAMLConfig struct {
	MaxIdleConns         int      `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost  int      `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost      int      `yaml:"max_conns_per_host"`
	IdleConnTimeout      Duration `yaml:"idle_conn_timeout"`
	DisableKeepAlives    bool     `yaml:"disable_keep_alives"`
	ForceHTTP2           bool     `yaml:"force_http2"`
	HTTP2ReadIdleTimeout Duration `yaml:"http2_read_idle_timeout"`
	HTTP2PingTimeout     Duration `yaml:"http2_ping_timeout"`
}

// BufferYAMLConfig holds buffer configuration for both modes.
type BufferYAMLConfig struct {
	Mode           string   `yaml:"mode"`
	Path           string   `yaml:"path"`
	Rolling        string   `yaml:"rolling"`
	Interval       string   `yaml:"interval"`
	MaxFileSize    ByteSize `yaml:"max_file_size"`
	RetainedFiles  int      `yaml:"retained_files"`
	QueueMaxRecord *int     `yaml:"queue_max_records"`
	QueueMaxSize   ByteSize `yaml:"queue_max_size"`
}

// ShipperYAMLConfig holds shipping loop configuration.
type ShipperYAMLConfig struct {
	Period                 Duration `yaml:"period"`
	BatchMaxRecords        *int     `yaml:"batch_max_records"`
	BatchMaxSize           ByteSize `yaml:"batch_max_size"`
	RecordMaxSize          ByteSize `yaml:"record_max_size"`
	PruneThreshold         int      `yaml:"prune_threshold"`
	UnhealthyAfterFailures *int     `yaml:"unhealthy_after_failures"`
}

// StatsYAMLConfig holds the stats server configuration.
type StatsYAMLConfig struct {
	Address string `yaml:"address"`
}

// MemoryYAMLConfig holds memory limit configuration.
type MemoryYAMLConfig struct {
	// LimitRatio is the ratio of container memory to use for GOMEMLIMIT (0.0-1.0)
	LimitRatio *float64 `yaml:"limit_ratio"`
}

// TelemetryYAMLConfig holds OTLP self-monitoring telemetry configuration.
type TelemetryYAMLConfig struct {
	Endpoint        string                   `yaml:"endpoint"`         // OTLP endpoint (empty = disabled)
	Protocol        string                   `yaml:"protocol"`         // "grpc" or "http"; empty infers from the endpoint
	Insecure        *bool                    `yaml:"insecure"`         // Use insecure connection (default: true)
	Timeout         Duration                 `yaml:"timeout"`          // Per-export timeout (0 = SDK default 10s)
	PushInterval    Duration                 `yaml:"push_interval"`    // Metric push interval (default: 30s)
	Compression     string                   `yaml:"compression"`      // "gzip" or ""
	ShutdownTimeout Duration                 `yaml:"shutdown_timeout"` // Shutdown grace period (default: 5s)
	Headers         map[string]string        `yaml:"headers"`          // Custom headers (auth, etc.)
	Retry           TelemetryRetryYAMLConfig `yaml:"retry"`
}

// TelemetryRetryYAMLConfig holds telemetry retry configuration.
type TelemetryRetryYAMLConfig struct {
	Enabled     *bool    `yaml:"enabled"`      // Enable retry (default: true)
	Initial     Duration `yaml:"initial"`      // Initial retry interval (default: 5s)
	MaxInterval Duration `yaml:"max_interval"` // Max retry interval (default: 30s)
	MaxElapsed  Duration `yaml:"max_elapsed"`  // Max total retry time (default: 1m)
}

// Duration is a wrapper for time.Duration that supports YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize is a wrapper for int64 that supports human-readable YAML values.
// Accepted formats: raw integer (bytes), or suffixed: Ki, Mi, Gi, Ti.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for ByteSize.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return FormatByteSize(int64(b)), nil
}

// ParseByteSize parses a human-readable byte size string.
// Accepted suffixes: Ki (1024), Mi (1048576), Gi (1073741824), Ti (1099511627776).
// Plain integers are treated as bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	suffixes := []struct {
		name string
		mult int64
	}{
		{"Ti", 1 << 40},
		{"Gi", 1 << 30},
		{"Mi", 1 << 20},
		{"Ki", 1 << 10},
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.name) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.name))
			// "1.5Gi" is allowed
			var f float64
			var trail string
			if n, _ := fmt.Sscanf(numStr, "%f%s", &f, &trail); n != 1 || f < 0 {
				return 0, fmt.Errorf("invalid byte size: %q", s)
			}
			return int64(f * float64(sf.mult)), nil
		}
	}
	var n int64
	var trail string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &trail); err == nil && trail != "" {
		return 0, fmt.Errorf("invalid byte size: %q (use Ki, Mi, Gi, or Ti suffixes)", s)
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return n, nil
}

// FormatByteSize formats bytes as a human-readable string with binary suffix.
func FormatByteSize(b int64) string {
	switch {
	case b >= 1<<40 && b%(1<<40) == 0:
		return fmt.Sprintf("%dTi", b>>40)
	case b >= 1<<30 && b%(1<<30) == 0:
		return fmt.Sprintf("%dGi", b>>30)
	case b >= 1<<20 && b%(1<<20) == 0:
		return fmt.Sprintf("%dMi", b>>20)
	case b >= 1<<10 && b%(1<<10) == 0:
		return fmt.Sprintf("%dKi", b>>10)
	}
	return fmt.Sprintf("%d", b)
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML configuration from bytes. Unknown keys are errors.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ToConfig converts the YAML document to a Config. Fields left empty keep
// the defaults of DefaultConfig.
func (y *YAMLConfig) ToConfig() *Config {
	cfg := DefaultConfig()

	setString(&cfg.LogLevel, y.LogLevel)
	setDuration(&cfg.ShutdownTimeout, y.ShutdownTimeout)

	r := y.Receiver
	setString(&cfg.ReceiverAddr, r.Address)
	setString(&cfg.ReceiverPath, r.Path)
	cfg.ReceiverValidateJSON = r.ValidateJSON
	setBytes(&cfg.ReceiverMaxBodyBytes, r.Server.MaxBodySize)
	setDuration(&cfg.ReceiverReadTimeout, r.Server.ReadTimeout)
	setDuration(&cfg.ReceiverReadHeaderTimeout, r.Server.ReadHeaderTimeout)
	setDuration(&cfg.ReceiverWriteTimeout, r.Server.WriteTimeout)
	setDuration(&cfg.ReceiverIdleTimeout, r.Server.IdleTimeout)
	cfg.ReceiverTLSEnabled = r.TLS.Enabled
	cfg.ReceiverTLSCertFile = r.TLS.CertFile
	cfg.ReceiverTLSKeyFile = r.TLS.KeyFile
	cfg.ReceiverTLSCAFile = r.TLS.CAFile
	cfg.ReceiverTLSClientAuth = r.TLS.ClientAuth
	cfg.ReceiverTLSMinVersion = r.TLS.MinVersion
	cfg.ReceiverAuthEnabled = r.Auth.Enabled
	cfg.ReceiverAuthBearerToken = r.Auth.BearerToken
	cfg.ReceiverAuthBasicUsername = r.Auth.BasicUsername
	cfg.ReceiverAuthBasicPassword = r.Auth.BasicPassword

	e := y.Exporter
	setString(&cfg.ExporterEndpoint, e.Endpoint)
	cfg.ExporterInsecure = e.Insecure
	setDuration(&cfg.ExporterTimeout, e.Timeout)
	setString(&cfg.ExporterUserAgent, e.UserAgent)
	setString(&cfg.ExporterFormat, e.Format)
	cfg.ExporterTLSEnabled = e.TLS.Enabled
	cfg.ExporterTLSCertFile = e.TLS.CertFile
	cfg.ExporterTLSKeyFile = e.TLS.KeyFile
	cfg.ExporterTLSCAFile = e.TLS.CAFile
	cfg.ExporterTLSInsecureSkipVerify = e.TLS.InsecureSkipVerify
	cfg.ExporterTLSServerName = e.TLS.ServerName
	cfg.ExporterTLSMinVersion = e.TLS.MinVersion
	cfg.ExporterAuthBearerToken = e.Auth.BearerToken
	cfg.ExporterAuthBasicUsername = e.Auth.BasicUsername
	cfg.ExporterAuthBasicPassword = e.Auth.BasicPassword
	cfg.ExporterAuthHeaders = headersMapToString(e.Auth.Headers)
	setString(&cfg.ExporterCompression, e.Compression.Type)
	cfg.ExporterCompressionLevel = e.Compression.Level
	cfg.ExporterMaxIdleConns = e.HTTPClient.MaxIdleConns
	cfg.ExporterMaxIdleConnsPerHost = e.HTTPClient.MaxIdleConnsPerHost
	cfg.ExporterMaxConnsPerHost = e.HTTPClient.MaxConnsPerHost
	setDuration(&cfg.ExporterIdleConnTimeout, e.HTTPClient.IdleConnTimeout)
	cfg.ExporterDisableKeepAlives = e.HTTPClient.DisableKeepAlives
	cfg.ExporterForceHTTP2 = e.HTTPClient.ForceHTTP2
	setDuration(&cfg.ExporterHTTP2ReadIdleTimeout, e.HTTPClient.HTTP2ReadIdleTimeout)
	setDuration(&cfg.ExporterHTTP2PingTimeout, e.HTTPClient.HTTP2PingTimeout)

	b := y.Buffer
	setString(&cfg.BufferMode, b.Mode)
	setString(&cfg.BufferPath, b.Path)
	setString(&cfg.BufferRolling, b.Rolling)
	setString(&cfg.BufferInterval, b.Interval)
	setBytes(&cfg.BufferMaxFileBytes, b.MaxFileSize)
	cfg.BufferRetainedFiles = b.RetainedFiles
	if b.QueueMaxRecord != nil {
		cfg.QueueMaxRecords = *b.QueueMaxRecord
	}
	setBytes(&cfg.QueueMaxBytes, b.QueueMaxSize)

	s := y.Shipper
	setDuration(&cfg.ShipperPeriod, s.Period)
	if s.BatchMaxRecords != nil {
		cfg.BatchMaxRecords = *s.BatchMaxRecords
	}
	setBytes(&cfg.BatchMaxBytes, s.BatchMaxSize)
	setBytes(&cfg.RecordMaxBytes, s.RecordMaxSize)
	if s.PruneThreshold != 0 {
		cfg.PruneThreshold = s.PruneThreshold
	}
	if s.UnhealthyAfterFailures != nil {
		cfg.UnhealthyAfterFailures = *s.UnhealthyAfterFailures
	}

	setString(&cfg.StatsAddr, y.Stats.Address)
	if y.Memory.LimitRatio != nil {
		cfg.MemoryLimitRatio = *y.Memory.LimitRatio
	}

	t := y.Telemetry
	cfg.TelemetryEndpoint = t.Endpoint
	setString(&cfg.TelemetryProtocol, t.Protocol)
	if t.Insecure != nil {
		cfg.TelemetryInsecure = *t.Insecure
	}
	cfg.TelemetryTimeout = time.Duration(t.Timeout)
	setDuration(&cfg.TelemetryPushInterval, t.PushInterval)
	cfg.TelemetryCompression = t.Compression
	cfg.TelemetryHeaders = t.Headers
	cfg.TelemetryShutdownTimeout = time.Duration(t.ShutdownTimeout)
	if t.Retry.Enabled != nil {
		cfg.TelemetryRetryEnabled = *t.Retry.Enabled
	}
	cfg.TelemetryRetryInitial = time.Duration(t.Retry.Initial)
	cfg.TelemetryRetryMaxInterval = time.Duration(t.Retry.MaxInterval)
	cfg.TelemetryRetryMaxElapsed = time.Duration(t.Retry.MaxElapsed)

	return cfg
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v != 0 {
		*dst = time.Duration(v)
	}
}

func setBytes(dst *int64, v ByteSize) {
	if v != 0 {
		*dst = int64(v)
	}
}

func headersMapToString(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+headers[k])
	}
	return strings.Join(parts, ",")
}
