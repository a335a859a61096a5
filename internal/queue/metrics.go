package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	queueRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_queue_records",
		Help: "Current number of records in the in-memory queue",
	})

	queueBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_queue_bytes",
		Help: "Current total bytes of records in the in-memory queue",
	})

	queueMaxRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_queue_max_records",
		Help: "Configured record cap of the in-memory queue (0 = unbounded)",
	})

	queueMaxBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logship_queue_max_bytes",
		Help: "Configured byte cap of the in-memory queue (0 = unbounded)",
	})
)

func init() {
	prometheus.MustRegister(queueRecords)
	prometheus.MustRegister(queueBytes)
	prometheus.MustRegister(queueMaxRecords)
	prometheus.MustRegister(queueMaxBytes)
}
