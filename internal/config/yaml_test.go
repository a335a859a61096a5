package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"1024", 1024, false},
		{"4Ki", 4096, false},
		{"16Mi", 16 << 20, false},
		{"1.5Gi", 3 << 29, false},
		{"1Ti", 1 << 40, false},
		{" 2Mi ", 2 << 20, false},
		{"256MB", 0, true},
		{"Mi", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseByteSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatByteSize(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		1000:     "1000",
		2048:     "2Ki",
		64 << 20: "64Mi",
		3 << 30:  "3Gi",
		1 << 40:  "1Ti",
	}
	for in, want := range tests {
		if got := FormatByteSize(in); got != want {
			t.Errorf("FormatByteSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestDurationAndByteSizeYAML(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
		B ByteSize `yaml:"b"`
		N ByteSize `yaml:"n"`
	}
	if err := yaml.Unmarshal([]byte("d: 90s\nb: 8Mi\nn: 512\n"), &v); err != nil {
		t.Fatal(err)
	}
	if time.Duration(v.D) != 90*time.Second || v.B != 8<<20 || v.N != 512 {
		t.Errorf("got %+v", v)
	}

	if err := yaml.Unmarshal([]byte("d: soon\n"), &v); err == nil {
		t.Error("expected error for invalid duration")
	}

	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
		B ByteSize `yaml:"b"`
	}{Duration(2 * time.Minute), ByteSize(4 << 10)})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "d: 2m0s") || !strings.Contains(string(out), "b: 4Ki") {
		t.Errorf("marshal = %s", out)
	}
}

func TestParseYAMLUnknownField(t *testing.T) {
	if _, err := ParseYAML([]byte("shipper:\n  periood: 2s\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseYAMLEmpty(t *testing.T) {
	y, err := ParseYAML(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := y.ToConfig()
	def := DefaultConfig()
	if cfg.BufferMode != def.BufferMode || cfg.BatchMaxRecords != def.BatchMaxRecords {
		t.Errorf("empty document changed defaults: %+v", cfg)
	}
}

func TestToConfig(t *testing.T) {
	y, err := ParseYAML([]byte(`
log_level: debug
receiver:
  address: ":9000"
  validate_json: true
  server:
    max_body_size: 1Mi
  auth:
    enabled: true
    bearer_token: secret
exporter:
  endpoint: https://collector
  format: array
  compression:
    type: gzip
    level: 9
  auth:
    headers:
      X-B: "2"
      X-A: "1"
buffer:
  mode: memory
  queue_max_records: 0
  queue_max_size: 32Mi
shipper:
  batch_max_records: 0
  unhealthy_after_failures: 0
memory:
  limit_ratio: 0
telemetry:
  endpoint: otel:4317
  insecure: false
  retry:
    enabled: false
`))
	if err != nil {
		t.Fatal(err)
	}
	cfg := y.ToConfig()

	if cfg.LogLevel != "debug" || cfg.ReceiverAddr != ":9000" || !cfg.ReceiverValidateJSON {
		t.Errorf("receiver/log fields: %+v", cfg)
	}
	if cfg.ReceiverMaxBodyBytes != 1<<20 || !cfg.ReceiverAuthEnabled || cfg.ReceiverAuthBearerToken != "secret" {
		t.Errorf("receiver server/auth fields: %+v", cfg)
	}
	if cfg.ExporterFormat != "array" || cfg.ExporterCompression != "gzip" || cfg.ExporterCompressionLevel != 9 {
		t.Errorf("exporter fields: %+v", cfg)
	}
	if cfg.ExporterAuthHeaders != "X-A=1,X-B=2" {
		t.Errorf("ExporterAuthHeaders = %q", cfg.ExporterAuthHeaders)
	}
	// Explicit zeros on pointer fields disable the limit.
	if cfg.QueueMaxRecords != 0 || cfg.BatchMaxRecords != 0 || cfg.UnhealthyAfterFailures != 0 || cfg.MemoryLimitRatio != 0 {
		t.Errorf("explicit zeros not kept: %+v", cfg)
	}
	if cfg.QueueMaxBytes != 32<<20 {
		t.Errorf("QueueMaxBytes = %d", cfg.QueueMaxBytes)
	}
	if cfg.TelemetryEndpoint != "otel:4317" || cfg.TelemetryInsecure || cfg.TelemetryRetryEnabled {
		t.Errorf("telemetry fields: %+v", cfg)
	}
}
