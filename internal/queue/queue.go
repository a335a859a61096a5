// Package queue provides the bounded in-memory record queue used when
// durability is not required.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/reader"
)

// DequeueResult is the outcome of TryDequeue.
type DequeueResult int

const (
	// Dequeued means a record was removed and returned.
	Dequeued DequeueResult = iota
	// Empty means the queue holds no records.
	Empty
	// TooLarge means the head record exceeds the requested size and was
	// left in place.
	TooLarge
)

func (r DequeueResult) String() string {
	switch r {
	case Dequeued:
		return "dequeued"
	case Empty:
		return "empty"
	case TooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// BoundedQueue is a FIFO of records capped by item count and total bytes.
// Producers never block: a record that does not fit is dropped.
type BoundedQueue struct {
	mu       sync.Mutex
	items    []string
	head     int
	bytes    int64
	maxItems int
	maxBytes int64

	dropped atomic.Int64
	dropLog *logging.Sampler
}

// NewBoundedQueue creates a queue. A zero cap leaves that dimension
// unbounded.
func NewBoundedQueue(maxItems int, maxBytes int64) *BoundedQueue {
	queueMaxRecords.Set(float64(maxItems))
	queueMaxBytes.Set(float64(maxBytes))
	return &BoundedQueue{
		maxItems: maxItems,
		maxBytes: maxBytes,
		dropLog:  logging.NewSampler(10 * time.Second),
	}
}

// TryEnqueue appends record, or drops it and returns false when either cap
// would be exceeded. A rejected record leaves the totals unchanged.
func (q *BoundedQueue) TryEnqueue(record string) bool {
	size := int64(len(record))

	q.mu.Lock()
	n := len(q.items) - q.head
	if (q.maxItems > 0 && n+1 > q.maxItems) || (q.maxBytes > 0 && q.bytes+size > q.maxBytes) {
		q.mu.Unlock()
		q.reject(size)
		return false
	}
	q.items = append(q.items, record)
	q.bytes += size
	records, bytes := n+1, q.bytes
	q.mu.Unlock()

	queueRecords.Set(float64(records))
	queueBytes.Set(float64(bytes))
	return true
}

func (q *BoundedQueue) reject(size int64) {
	total := q.dropped.Add(1)
	reader.CountDropped(reader.ReasonQueueFull, 1)
	if suppressed, ok := q.dropLog.Allow(); ok {
		logging.Warn("queue full, dropping record", logging.F(
			"record_bytes", size,
			"max_records", q.maxItems,
			"max_bytes", q.maxBytes,
			"dropped_total", total,
			"suppressed", suppressed,
		))
	}
}

// TryDequeue removes and returns the head record. When maxSize is positive
// and the head is larger, the head stays queued and TooLarge is returned.
func (q *BoundedQueue) TryDequeue(maxSize int64) (string, DequeueResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return "", Empty
	}
	record := q.items[q.head]
	if maxSize > 0 && int64(len(record)) > maxSize {
		return "", TooLarge
	}
	q.popLocked()
	return record, Dequeued
}

// Discard removes the head record regardless of its size.
func (q *BoundedQueue) Discard() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return "", false
	}
	record := q.items[q.head]
	q.popLocked()
	return record, true
}

func (q *BoundedQueue) popLocked() {
	record := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	q.bytes -= int64(len(record))

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	queueRecords.Set(float64(len(q.items) - q.head))
	queueBytes.Set(float64(q.bytes))
}

// Len returns the number of queued records.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Bytes returns the total size of queued records.
func (q *BoundedQueue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Dropped returns how many records were rejected at enqueue.
func (q *BoundedQueue) Dropped() int64 {
	return q.dropped.Load()
}
