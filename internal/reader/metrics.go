package reader

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons for logship_records_dropped_total.
const (
	ReasonOversized   = "oversized"
	ReasonQueueFull   = "queue_full"
	ReasonWriteFailed = "write_failed"
	ReasonInvalid     = "invalid"
)

var recordsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "logship_records_dropped_total",
		Help: "Records dropped before delivery, by reason",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(recordsDropped)
}

// CountDropped adds n to the dropped-records counter for reason.
func CountDropped(reason string, n int) {
	recordsDropped.WithLabelValues(reason).Add(float64(n))
}

// DroppedCounter returns the dropped-records counter for reason.
func DroppedCounter(reason string) prometheus.Counter {
	return recordsDropped.WithLabelValues(reason)
}
