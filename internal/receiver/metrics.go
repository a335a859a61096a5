package receiver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_receiver_requests_total",
		Help: "Total number of ingest requests received",
	})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_receiver_errors_total",
		Help: "Total number of rejected ingest requests by type",
	}, []string{"type"})

	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_receiver_records_total",
		Help: "Records received by outcome",
	}, []string{"outcome"})

	requestBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logship_receiver_request_bytes",
		Help:    "Decompressed ingest request body size",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, errorsTotal, recordsTotal, requestBytes)

	// Initialize counters with 0 so they appear in /metrics immediately
	for _, t := range []string{"content_type", "content_encoding", "too_large", "decompress", "read"} {
		errorsTotal.WithLabelValues(t).Add(0)
	}
	recordsTotal.WithLabelValues("accepted").Add(0)
	recordsTotal.WithLabelValues("dropped").Add(0)
}
