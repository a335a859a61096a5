package spool

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_spool_records_written_total",
		Help: "Records appended to buffer files",
	})
	bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_spool_bytes_written_total",
		Help: "Bytes appended to buffer files, including line terminators",
	})
	filesRolled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_spool_files_rolled_total",
		Help: "Times the writer moved to a new buffer file",
	})
	filesRetentionDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logship_spool_files_deleted_total",
		Help: "Buffer files deleted by the retention limit",
	})
)

func init() {
	prometheus.MustRegister(recordsWritten, bytesWritten, filesRolled, filesRetentionDeleted)
}
