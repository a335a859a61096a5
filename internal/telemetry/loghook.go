package telemetry

import (
	"context"
	"fmt"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/szibis/logship/internal/logging"
)

// attributeKeys maps the field names used across logship's log lines to
// OTEL attribute keys. Fields not listed keep their name under "logship.".
var attributeKeys = map[string]string{
	"error":                "exception.message",
	"file":                 "log.file.path",
	"path":                 "log.file.path",
	"dir":                  "logship.buffer.dir",
	"shipper":              "logship.shipper.name",
	"bookmark":             "logship.bookmark.path",
	"records":              "logship.batch.records",
	"bytes":                "logship.batch.bytes",
	"consecutive_failures": "logship.shipper.consecutive_failures",
	"retry_in":             "logship.shipper.retry_in",
	"retryable":            "logship.shipper.retryable",
	"suppressed":           "logship.log.suppressed",
	"addr":                 "server.address",
}

// NewLogHook returns a logging.LogHook that emits each entry as an OTLP log
// record. It returns nil when telemetry is disabled.
func (t *Telemetry) NewLogHook() logging.LogHook {
	if !t.Enabled() {
		return nil
	}
	logger := t.logger

	return func(level logging.Level, msg string, attrs map[string]interface{}) {
		// Export failures are logged locally only; forwarding them would feed
		// the pipeline that is failing.
		if attrs["component"] == componentTelemetry {
			return
		}
		logger.Emit(context.Background(), newRecord(time.Now(), level, msg, attrs))
	}
}

// Attach forwards every log entry of the logging package to OTLP. It is a
// no-op when telemetry is disabled.
func (t *Telemetry) Attach() {
	if hook := t.NewLogHook(); hook != nil {
		logging.SetHook(hook)
	}
}

func newRecord(ts time.Time, level logging.Level, msg string, attrs map[string]interface{}) otellog.Record {
	var record otellog.Record
	record.SetTimestamp(ts)
	record.SetBody(otellog.StringValue(msg))
	record.SetSeverity(toOTELSeverity(level))
	record.SetSeverityText(string(level))

	if len(attrs) > 0 {
		kvs := make([]otellog.KeyValue, 0, len(attrs))
		for k, v := range attrs {
			kvs = append(kvs, otellog.KeyValue{Key: attributeKey(k), Value: toOTELValue(v)})
		}
		record.AddAttributes(kvs...)
	}
	return record
}

func attributeKey(field string) string {
	if key, ok := attributeKeys[field]; ok {
		return key
	}
	return "logship." + field
}

func toOTELSeverity(level logging.Level) otellog.Severity {
	switch level {
	case logging.LevelDebug:
		return otellog.SeverityDebug
	case logging.LevelWarn:
		return otellog.SeverityWarn
	case logging.LevelError:
		return otellog.SeverityError
	case logging.LevelFatal:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}

func toOTELValue(v interface{}) otellog.Value {
	switch val := v.(type) {
	case nil:
		return otellog.StringValue("")
	case string:
		return otellog.StringValue(val)
	case int:
		return otellog.IntValue(val)
	case int64:
		return otellog.Int64Value(val)
	case uint64:
		return otellog.Int64Value(int64(val))
	case float64:
		return otellog.Float64Value(val)
	case bool:
		return otellog.BoolValue(val)
	case time.Duration:
		return otellog.StringValue(val.String())
	case time.Time:
		return otellog.StringValue(val.UTC().Format(time.RFC3339Nano))
	case error:
		return otellog.StringValue(val.Error())
	case []string:
		values := make([]otellog.Value, len(val))
		for i, s := range val {
			values[i] = otellog.StringValue(s)
		}
		return otellog.SliceValue(values...)
	default:
		return otellog.StringValue(fmt.Sprint(val))
	}
}
