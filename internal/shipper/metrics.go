package shipper

import "github.com/prometheus/client_golang/prometheus"

var (
	batchesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_batches_sent_total",
		Help: "Batches delivered to the collector",
	}, []string{"shipper"})

	recordsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_records_sent_total",
		Help: "Records delivered to the collector",
	}, []string{"shipper"})

	bytesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_payload_bytes_sent_total",
		Help: "Uncompressed payload bytes delivered to the collector",
	}, []string{"shipper"})

	sendFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_send_failures_total",
		Help: "Failed batch deliveries",
	}, []string{"shipper"})

	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_ticks_total",
		Help: "Shipping ticks executed",
	}, []string{"shipper"})

	filesDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logship_files_deleted_total",
		Help: "Stale buffer files deleted by backlog pruning",
	}, []string{"shipper"})
)

func init() {
	prometheus.MustRegister(batchesSentTotal)
	prometheus.MustRegister(recordsSentTotal)
	prometheus.MustRegister(bytesSentTotal)
	prometheus.MustRegister(sendFailuresTotal)
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(filesDeletedTotal)
}
