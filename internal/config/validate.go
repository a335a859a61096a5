package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/szibis/logship/internal/auth"
	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/payload"
	"github.com/szibis/logship/internal/spool"
	"github.com/szibis/logship/internal/telemetry"
	tlspkg "github.com/szibis/logship/internal/tls"
)

// ValidationSeverity indicates the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError indicates a configuration error that prevents startup.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates a potential issue that won't prevent startup.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// ValidationResult holds the complete validation output.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// JSON returns the validation result as formatted JSON.
func (r *ValidationResult) JSON() string {
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

// Validate returns every error-level issue in one error, or nil.
func (c *Config) Validate() error {
	var msgs []string
	for _, issue := range c.Issues() {
		if issue.Severity == SeverityError {
			msgs = append(msgs, issue.Field+": "+issue.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Issues returns all errors and warnings for the configuration.
func (c *Config) Issues() []ValidationIssue {
	var issues []ValidationIssue
	fail := func(field, format string, args ...interface{}) {
		issues = append(issues, ValidationIssue{Severity: SeverityError, Field: field, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(field, format string, args ...interface{}) {
		issues = append(issues, ValidationIssue{Severity: SeverityWarning, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.ExporterEndpoint == "" {
		fail("exporter.endpoint", "is required")
	} else if u, err := url.Parse(c.ExporterEndpoint); err != nil {
		fail("exporter.endpoint", "invalid URL: %v", err)
	} else if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" && u.Host != "" {
		fail("exporter.endpoint", "unsupported scheme %q", u.Scheme)
	}
	if c.ExporterTimeout <= 0 {
		fail("exporter.timeout", "must be positive, got %s", c.ExporterTimeout)
	}
	if _, err := payload.Parse(c.ExporterFormat); err != nil {
		fail("exporter.format", "%v", err)
	}
	if _, err := compression.ParseType(c.ExporterCompression); err != nil {
		fail("exporter.compression.type", "%v", err)
	}
	if _, err := auth.ParseHeaders(c.ExporterAuthHeaders); err != nil {
		fail("exporter.auth.headers", "%v", err)
	}
	if _, err := tlspkg.ParseMinVersion(c.ExporterTLSMinVersion); err != nil {
		fail("exporter.tls.min_version", "%v", err)
	}
	if c.ExporterInsecure && strings.HasPrefix(c.ExporterEndpoint, "https://") {
		warn("exporter.insecure", "ignored because the endpoint names https")
	}

	if c.ReceiverAddr == "" {
		fail("receiver.address", "is required")
	}
	if !strings.HasPrefix(c.ReceiverPath, "/") {
		fail("receiver.path", "must start with /, got %q", c.ReceiverPath)
	}
	if c.ReceiverMaxBodyBytes < 0 {
		fail("receiver.server.max_body_size", "must not be negative")
	}
	if c.ReceiverTLSEnabled && (c.ReceiverTLSCertFile == "" || c.ReceiverTLSKeyFile == "") {
		fail("receiver.tls", "cert_file and key_file are required when TLS is enabled")
	}
	if _, err := tlspkg.ParseMinVersion(c.ReceiverTLSMinVersion); err != nil {
		fail("receiver.tls.min_version", "%v", err)
	}
	if c.ReceiverAuthEnabled && c.ReceiverAuthBearerToken == "" && c.ReceiverAuthBasicUsername == "" {
		fail("receiver.auth", "bearer_token or basic_username is required when auth is enabled")
	}

	switch c.BufferMode {
	case ModeDisk:
		if c.BufferPath == "" {
			fail("buffer.path", "is required in disk mode")
		}
		rolling, err := spool.ParseRolling(c.BufferRolling)
		if err != nil {
			fail("buffer.rolling", "%v", err)
		}
		if _, ok := fileset.ParseInterval(c.BufferInterval); !ok {
			fail("buffer.interval", "unknown interval %q", c.BufferInterval)
		}
		if rolling == spool.RollingSize && c.BufferMaxFileBytes == 0 {
			warn("buffer.max_file_size", "size rolling without a limit writes one file per day")
		}
		if c.BufferRetainedFiles > 0 && c.BufferRetainedFiles < c.PruneThreshold {
			warn("buffer.retained_files", "retention (%d) deletes files before the shipper prune threshold (%d) is reached", c.BufferRetainedFiles, c.PruneThreshold)
		}
	case ModeMemory:
		if c.QueueMaxRecords < 0 || c.QueueMaxBytes < 0 {
			fail("buffer.queue", "limits must not be negative")
		}
		if c.QueueMaxRecords == 0 && c.QueueMaxBytes == 0 {
			warn("buffer.queue", "memory queue is unbounded")
		}
	default:
		fail("buffer.mode", "must be %s or %s, got %q", ModeDisk, ModeMemory, c.BufferMode)
	}

	if c.ShipperPeriod <= 0 {
		fail("shipper.period", "must be positive, got %s", c.ShipperPeriod)
	}
	if c.BatchMaxRecords < 0 {
		fail("shipper.batch_max_records", "must not be negative")
	}
	if c.BatchMaxBytes < 0 || c.RecordMaxBytes < 0 {
		fail("shipper.batch_max_size", "sizes must not be negative")
	}
	if c.BatchMaxBytes > 0 && c.RecordMaxBytes > c.BatchMaxBytes {
		warn("shipper.record_max_size", "records up to %s are shipped alone because the batch limit is %s",
			FormatByteSize(c.RecordMaxBytes), FormatByteSize(c.BatchMaxBytes))
	}
	if c.PruneThreshold > 0 && c.PruneThreshold < 3 {
		warn("shipper.prune_threshold", "raised to the minimum of 3")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		fail("log_level", "%v", err)
	}
	if c.MemoryLimitRatio < 0 || c.MemoryLimitRatio > 1 {
		fail("memory.limit_ratio", "must be between 0.0 and 1.0, got %g", c.MemoryLimitRatio)
	}
	if c.TelemetryEndpoint != "" && c.TelemetryProtocol != "" && c.TelemetryProtocol != telemetry.ProtocolGRPC && c.TelemetryProtocol != telemetry.ProtocolHTTP {
		fail("telemetry.protocol", "must be grpc, http or empty, got %q", c.TelemetryProtocol)
	}

	if c.ReceiverTLSEnabled {
		checkFileWarning(c.ReceiverTLSCertFile, "receiver.tls.cert_file", &issues)
		checkFileWarning(c.ReceiverTLSKeyFile, "receiver.tls.key_file", &issues)
		checkFileWarning(c.ReceiverTLSCAFile, "receiver.tls.ca_file", &issues)
	}
	if c.ExporterTLSEnabled {
		checkFileWarning(c.ExporterTLSCertFile, "exporter.tls.cert_file", &issues)
		checkFileWarning(c.ExporterTLSKeyFile, "exporter.tls.key_file", &issues)
		checkFileWarning(c.ExporterTLSCAFile, "exporter.tls.ca_file", &issues)
	}
	return issues
}

func checkFileWarning(path, field string, issues *[]ValidationIssue) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		*issues = append(*issues, ValidationIssue{
			Severity: SeverityWarning,
			Field:    field,
			Message:  fmt.Sprintf("file not found: %s", path),
		})
	}
}

// ValidateFile loads a YAML config file and validates it, returning structured results.
func ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{Valid: true, File: path}

	info, err := os.Stat(path)
	if err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "file",
			Message:  fmt.Sprintf("cannot access file: %v", err),
		})
		return result
	}
	if info.IsDir() {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "file",
			Message:  "path is a directory, expected a file",
		})
		return result
	}

	yamlCfg, err := LoadYAML(path)
	if err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity: SeverityError,
			Field:    "yaml",
			Message:  fmt.Sprintf("YAML parse error: %v", err),
		})
		return result
	}

	cfg := yamlCfg.ToConfig()
	cfg.ConfigFile = path
	for _, issue := range cfg.Issues() {
		if issue.Severity == SeverityError {
			result.Valid = false
		}
		result.Issues = append(result.Issues, issue)
	}
	return result
}
