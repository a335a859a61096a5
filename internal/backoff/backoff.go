// Package backoff maps consecutive shipping failures to the next retry delay.
package backoff

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MinBackoff is the floor applied before doubling, so a very short polling
	// period still backs off visibly.
	MinBackoff = 5 * time.Second
	// MaxBackoff is the ceiling for any escalated delay.
	MaxBackoff = 10 * time.Minute
)

var (
	backoffSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_backoff_seconds",
		Help: "Delay before the next shipping tick",
	}, []string{"shipper"})

	consecutiveFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logship_consecutive_failures",
		Help: "Consecutive failed shipping attempts since the last success",
	}, []string{"shipper"})
)

func init() {
	prometheus.MustRegister(backoffSeconds)
	prometheus.MustRegister(consecutiveFailures)
}

// Option configures a Schedule.
type Option func(*Schedule)

// WithName labels the schedule's gauges.
func WithName(name string) Option {
	return func(s *Schedule) { s.name = name }
}

// Schedule tracks consecutive failures for one shipper. It is not safe for
// concurrent use; the shipping loop owns it.
type Schedule struct {
	period   time.Duration
	failures int
	name     string
}

// NewSchedule creates a schedule around the configured polling period.
func NewSchedule(period time.Duration, opts ...Option) *Schedule {
	s := &Schedule{period: period}
	for _, opt := range opts {
		opt(s)
	}
	s.observe()
	return s
}

// Failures returns the consecutive failure count.
func (s *Schedule) Failures() int {
	return s.failures
}

// OnSuccess resets the failure count.
func (s *Schedule) OnSuccess() {
	s.failures = 0
	s.observe()
}

// OnFailure records one more consecutive failure.
func (s *Schedule) OnFailure() {
	s.failures++
	s.observe()
}

// Next returns the delay before the next tick.
func (s *Schedule) Next() time.Duration {
	return Interval(s.period, s.failures)
}

// Interval computes the delay for a period after failures consecutive
// failures. A single failure never escalates.
func Interval(period time.Duration, failures int) time.Duration {
	if failures <= 1 {
		return period
	}

	d := period
	if d < MinBackoff {
		d = MinBackoff
	}
	// Double until the ceiling is reached; stopping early keeps large
	// failure counts from overflowing.
	for i := 1; i < failures && d < MaxBackoff; i++ {
		d *= 2
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	if d < period {
		d = period
	}
	return d
}

func (s *Schedule) observe() {
	if s.name == "" {
		return
	}
	backoffSeconds.WithLabelValues(s.name).Set(s.Next().Seconds())
	consecutiveFailures.WithLabelValues(s.name).Set(float64(s.failures))
}
