// Package shipper drains buffered records to the collector.
//
// A Shipper runs one tick at a time on a schedule.Timer. Each tick assembles
// batches under the configured limits and POSTs them until the backlog is
// drained or a delivery fails; the next tick is then scheduled after the
// backoff delay. Two variants exist: NewDurable reads rolling buffer files
// and checkpoints progress in a bookmark, NewInMemory drains a bounded
// queue.
package shipper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/logship/internal/backoff"
	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/payload"
	"github.com/szibis/logship/internal/queue"
	"github.com/szibis/logship/internal/reader"
	"github.com/szibis/logship/internal/schedule"
)

const (
	// DefaultPeriod is the polling period when none is configured.
	DefaultPeriod = 2 * time.Second
	// DefaultPruneThreshold deletes the oldest drained file once this many
	// buffer files exist.
	DefaultPruneThreshold = 3
)

// Client delivers one formatted batch body.
type Client interface {
	Send(ctx context.Context, body []byte) error
	Close() error
}

// retryableError is implemented by client errors that know whether an
// unchanged request can succeed later.
type retryableError interface {
	error
	IsRetryable() bool
}

// Config holds the shipping limits.
type Config struct {
	// Name labels metrics and log lines.
	Name   string
	Period time.Duration
	// Zero limits are unbounded.
	MaxRecords     int
	MaxBatchBytes  int64
	MaxRecordBytes int64
	// PruneThreshold is the buffer file count at which the oldest file is
	// deleted. Values below 3 are raised to 3 so the file being written is
	// never pruned.
	PruneThreshold int
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.PruneThreshold < DefaultPruneThreshold {
		c.PruneThreshold = DefaultPruneThreshold
	}
}

func (c Config) limits() reader.Limits {
	return reader.Limits{
		MaxRecords:     c.MaxRecords,
		MaxRecordBytes: c.MaxRecordBytes,
		MaxBatchBytes:  c.MaxBatchBytes,
	}
}

// Option configures a Shipper.
type Option func(*Shipper)

// WithClock replaces the real clock, used by tests to drive ticks.
func WithClock(clock schedule.Clock) Option {
	return func(s *Shipper) { s.clock = clock }
}

// WithFormatter replaces the default {"events":[...]} body format.
func WithFormatter(f payload.Formatter) Option {
	return func(s *Shipper) { s.formatter = f }
}

// Shipper owns one shipping loop.
type Shipper struct {
	cfg       Config
	client    Client
	formatter payload.Formatter
	clock     schedule.Clock
	timer     *schedule.Timer

	// only touched from tick, which never runs concurrently with itself
	backoff *backoff.Schedule
	pending *reader.Batch
	body    bytes.Buffer

	files fileset.FileSet
	queue *queue.BoundedQueue

	failures    atomic.Int64
	lastSuccess atomic.Int64
	closing     atomic.Bool
	// emitMu orders Emit against Close: once Close holds it, no record can
	// enter the queue behind the final tick.
	emitMu      sync.RWMutex
	closeOnce   sync.Once
	closeErr    error
}

func newShipper(cfg Config, client Client, opts []Option) *Shipper {
	cfg.applyDefaults()
	s := &Shipper{
		cfg:       cfg,
		client:    client,
		formatter: payload.Events{},
		clock:     schedule.RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backoff = backoff.NewSchedule(cfg.Period, backoff.WithName(cfg.Name))
	s.timer = schedule.NewTimer(s.tick, s.clock)
	return s
}

// NewDurable creates a shipper draining the buffer files of files.
func NewDurable(cfg Config, files fileset.FileSet, client Client, opts ...Option) *Shipper {
	s := newShipper(cfg, client, opts)
	s.files = files
	return s
}

// NewInMemory creates a shipper draining q.
func NewInMemory(cfg Config, q *queue.BoundedQueue, client Client, opts ...Option) *Shipper {
	s := newShipper(cfg, client, opts)
	s.queue = q
	return s
}

// Name returns the shipper's name.
func (s *Shipper) Name() string {
	return s.cfg.Name
}

// Start schedules the first tick one period from now.
func (s *Shipper) Start() {
	variant := "memory"
	if s.files != nil {
		variant = "durable"
	}
	logging.Info("shipper started", logging.F(
		"shipper", s.cfg.Name,
		"variant", variant,
		"period", s.cfg.Period.String(),
		"max_records", s.cfg.MaxRecords,
		"max_batch_bytes", s.cfg.MaxBatchBytes,
	))
	s.timer.Start(s.cfg.Period)
}

// Emit enqueues a record on an in-memory shipper. It never blocks and
// reports false when the record was dropped. Durable shippers read their
// records from buffer files and always return false.
func (s *Shipper) Emit(record string) bool {
	if s.queue == nil {
		return false
	}
	if s.cfg.MaxRecordBytes > 0 && int64(len(record)) > s.cfg.MaxRecordBytes {
		reader.CountDropped(reader.ReasonOversized, 1)
		return false
	}
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.closing.Load() {
		return false
	}
	return s.queue.TryEnqueue(record)
}

// Close stops the timer, waits for an in-flight tick, runs one final tick
// to flush what remains and closes the client. Delivery failures during the
// final tick are logged, not returned.
func (s *Shipper) Close() error {
	s.closeOnce.Do(func() {
		s.emitMu.Lock()
		s.closing.Store(true)
		s.emitMu.Unlock()
		s.timer.Dispose()
		s.tick()
		s.closeErr = s.client.Close()
		logging.Info("shipper stopped", logging.F(
			"shipper", s.cfg.Name,
			"consecutive_failures", s.failures.Load(),
		))
	})
	return s.closeErr
}

// Failures returns the consecutive failure count.
func (s *Shipper) Failures() int {
	return int(s.failures.Load())
}

// LastSuccess returns the time of the last successful tick, zero if none.
func (s *Shipper) LastSuccess() time.Time {
	ns := s.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Healthy returns an error once maxFailures consecutive deliveries failed.
// A non-positive maxFailures disables the check.
func (s *Shipper) Healthy(maxFailures int) error {
	if maxFailures <= 0 {
		return nil
	}
	if n := s.failures.Load(); n >= int64(maxFailures) {
		return fmt.Errorf("shipper %s: %d consecutive delivery failures", s.cfg.Name, n)
	}
	return nil
}

func (s *Shipper) tick() {
	ticksTotal.WithLabelValues(s.cfg.Name).Inc()

	if s.queue != nil {
		s.tickMemory()
	} else {
		s.tickDurable()
	}

	if !s.closing.Load() {
		s.timer.Start(s.backoff.Next())
	}
}

func (s *Shipper) onSuccess() {
	s.backoff.OnSuccess()
	s.failures.Store(0)
	s.lastSuccess.Store(s.clock.Now().UnixNano())
}

func (s *Shipper) onFailure() {
	s.backoff.OnFailure()
	s.failures.Store(int64(s.backoff.Failures()))
}

// send formats and POSTs one batch.
func (s *Shipper) send(batch reader.Batch) error {
	s.body.Reset()
	if err := s.formatter.Format(&s.body, batch.Records); err != nil {
		return fmt.Errorf("failed to format batch: %w", err)
	}

	if err := s.client.Send(context.Background(), s.body.Bytes()); err != nil {
		sendFailuresTotal.WithLabelValues(s.cfg.Name).Inc()
		fields := logging.F(
			"shipper", s.cfg.Name,
			"records", len(batch.Records),
			"bytes", s.body.Len(),
			"consecutive_failures", s.backoff.Failures()+1,
			"retry_in", backoff.Interval(s.cfg.Period, s.backoff.Failures()+1).String(),
			"error", err.Error(),
		)
		var classified retryableError
		if errors.As(err, &classified) {
			fields["retryable"] = classified.IsRetryable()
		}
		logging.Warn("failed to ship batch, will retry", fields)
		return err
	}

	batchesSentTotal.WithLabelValues(s.cfg.Name).Inc()
	recordsSentTotal.WithLabelValues(s.cfg.Name).Add(float64(len(batch.Records)))
	bytesSentTotal.WithLabelValues(s.cfg.Name).Add(float64(s.body.Len()))
	logging.Debug("batch shipped", logging.F(
		"shipper", s.cfg.Name,
		"records", len(batch.Records),
		"bytes", s.body.Len(),
		"has_reached_limit", batch.HasReachedLimit,
	))
	return nil
}

// tickMemory drains the queue. A batch whose delivery failed is kept and
// sent again before anything new is dequeued.
func (s *Shipper) tickMemory() {
	for {
		var batch reader.Batch
		if s.pending != nil {
			batch = *s.pending
		} else {
			batch = queue.ReadBatch(s.queue, s.cfg.MaxRecords, s.cfg.MaxBatchBytes)
		}

		if batch.Empty() {
			s.onSuccess()
			return
		}

		if err := s.send(batch); err != nil {
			s.pending = &batch
			s.onFailure()
			return
		}
		s.pending = nil
		s.onSuccess()

		if !batch.HasReachedLimit {
			return
		}
	}
}
