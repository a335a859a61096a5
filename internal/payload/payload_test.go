package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestFormatters(t *testing.T) {
	records := []string{`{"msg":"a"}`, `{"msg":"b","n":2}`}

	tests := []struct {
		name      string
		formatter Formatter
		records   []string
		want      string
	}{
		{"events", Events{}, records, `{"events":[{"msg":"a"},{"msg":"b","n":2}]}`},
		{"events empty", Events{}, nil, `{"events":[]}`},
		{"array", Array{}, records, `[{"msg":"a"},{"msg":"b","n":2}]`},
		{"array single", Array{}, records[:1], `[{"msg":"a"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.formatter.Format(&buf, tt.records); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Format() = %s, want %s", buf.String(), tt.want)
			}
			if !json.Valid(buf.Bytes()) {
				t.Errorf("Format() produced invalid JSON: %s", buf.String())
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("boom") }

func TestFormatPropagatesWriteErrors(t *testing.T) {
	if err := (Events{}).Format(failingWriter{}, []string{"{}"}); err == nil {
		t.Error("expected write error")
	}
}

func TestParse(t *testing.T) {
	if f, err := Parse(""); err != nil || f != (Events{}) {
		t.Errorf("Parse(\"\") = %v, %v", f, err)
	}
	if f, err := Parse("Array"); err != nil || f != (Array{}) {
		t.Errorf("Parse(Array) = %v, %v", f, err)
	}
	if _, err := Parse("ndjson"); err == nil {
		t.Error("expected error for unknown format")
	}
}
