package compression

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "logship_compression_pool_gets_total",
			Help: "Encoder pool Get() calls",
		}, func() float64 { return float64(poolGets.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "logship_compression_pool_puts_total",
			Help: "Encoders returned to the pool",
		}, func() float64 { return float64(poolPuts.Load()) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "logship_compression_pool_new_total",
			Help: "Encoders created because the pool was empty",
		}, func() float64 { return float64(poolNews.Load()) }),
	)
}
