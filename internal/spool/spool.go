// Package spool appends records to rolling buffer files that a durable
// shipper drains.
package spool

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/reader"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("spool: writer closed")

// Rolling selects how buffer files are rolled.
type Rolling string

const (
	RollingTime Rolling = "time"
	RollingSize Rolling = "size"
)

// ParseRolling parses a rolling mode name.
func ParseRolling(s string) (Rolling, error) {
	switch Rolling(strings.ToLower(strings.TrimSpace(s))) {
	case "", RollingTime:
		return RollingTime, nil
	case RollingSize:
		return RollingSize, nil
	default:
		return "", fmt.Errorf("unknown rolling mode %q (want time or size)", s)
	}
}

// Config configures a Writer.
type Config struct {
	// BasePath is the buffer directory plus file prefix.
	BasePath string
	Rolling  Rolling
	// Interval is the time-rolled file granularity.
	Interval fileset.Interval
	// MaxFileBytes starts a new size-rolled file once the active one would
	// grow past it. Zero disables size rolling within a day.
	MaxFileBytes int64
	// RetainedFiles caps the number of buffer files, oldest deleted first.
	// Zero keeps everything.
	RetainedFiles int
	// MaxRecordBytes drops larger records. Zero is unbounded.
	MaxRecordBytes int64
}

// Writer appends one record per line to the active buffer file. It holds
// a shared flock on the active file so a shipper never moves past a file
// that may still grow.
type Writer struct {
	cfg   Config
	now   func() time.Time
	timed *fileset.TimeRolled
	sized *fileset.SizeRolled
	files fileset.FileSet

	mu      sync.Mutex
	file    *os.File
	path    string
	date    string
	seq     int
	size    int64
	closed  bool
	line    []byte
	dropLog *logging.Sampler
}

// New creates the buffer directory and returns a Writer. No file is opened
// until the first record arrives.
func New(cfg Config) (*Writer, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("spool: base path is required")
	}
	if cfg.Rolling == "" {
		cfg.Rolling = RollingTime
	}

	w := &Writer{
		cfg:     cfg,
		now:     time.Now,
		dropLog: logging.NewSampler(10 * time.Second),
	}
	switch cfg.Rolling {
	case RollingTime:
		w.timed = fileset.NewTimeRolledInterval(cfg.BasePath, cfg.Interval)
		w.files = w.timed
	case RollingSize:
		w.sized = fileset.NewSizeRolled(cfg.BasePath)
		w.files = w.sized
	default:
		return nil, fmt.Errorf("spool: unknown rolling mode %q", cfg.Rolling)
	}

	if err := os.MkdirAll(w.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}
	return w, nil
}

// FileSet returns the file set the writer produces, for the shipper.
func (w *Writer) FileSet() fileset.FileSet {
	return w.files
}

// Dir returns the buffer directory.
func (w *Writer) Dir() string {
	if w.timed != nil {
		return w.timed.Dir()
	}
	return w.sized.Dir()
}

// Emit writes record and reports whether it was stored. Failures are
// counted and logged, never returned.
func (w *Writer) Emit(record string) bool {
	if w.cfg.MaxRecordBytes > 0 && int64(len(record)) > w.cfg.MaxRecordBytes {
		reader.CountDropped(reader.ReasonOversized, 1)
		return false
	}
	if strings.ContainsAny(record, "\r\n") {
		reader.CountDropped(reader.ReasonInvalid, 1)
		return false
	}

	err := w.Write(record)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrClosed) {
		return false
	}

	reader.CountDropped(reader.ReasonWriteFailed, 1)
	if suppressed, ok := w.dropLog.Allow(); ok {
		logging.Warn("failed to write record to buffer file", logging.F(
			"dir", w.Dir(),
			"disk_full", errors.Is(err, syscall.ENOSPC),
			"suppressed", suppressed,
			"error", err.Error(),
		))
	}
	return false
}

// Write appends record followed by a newline in a single write call.
func (w *Writer) Write(record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	n := int64(len(record) + 1)
	if err := w.rollLocked(n); err != nil {
		return err
	}

	w.line = append(w.line[:0], record...)
	w.line = append(w.line, '\n')
	written, err := w.file.Write(w.line)
	w.size += int64(written)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.path, err)
	}

	recordsWritten.Inc()
	bytesWritten.Add(float64(written))
	return nil
}

// rollLocked makes sure the active file is the one n more bytes belong in.
func (w *Writer) rollLocked(n int64) error {
	now := w.now()

	var target string
	if w.timed != nil {
		target = w.timed.Format(now)
	} else {
		date := now.Format("20060102")
		switch {
		case w.file == nil || date != w.date:
			seq, err := w.lastSequence(date)
			if err != nil {
				return err
			}
			w.date, w.seq = date, seq
		case w.cfg.MaxFileBytes > 0 && w.size > 0 && w.size+n > w.cfg.MaxFileBytes:
			w.seq++
		}
		target = w.sized.Format(now, w.seq)
	}

	if w.file != nil && target == w.path {
		return nil
	}
	if err := w.openLocked(target); err != nil {
		return err
	}

	// A reopened size-rolled file may already be full.
	if w.sized != nil && w.cfg.MaxFileBytes > 0 && w.size > 0 && w.size+n > w.cfg.MaxFileBytes {
		w.seq++
		return w.openLocked(w.sized.Format(now, w.seq))
	}
	return nil
}

// lastSequence returns the highest existing sequence for date.
func (w *Writer) lastSequence(date string) (int, error) {
	candidates, err := w.sized.Candidates()
	if err != nil {
		return 0, fmt.Errorf("failed to list buffer files: %w", err)
	}
	last := 0
	for _, c := range candidates {
		if d, seq, ok := w.sized.Sequence(c); ok && d == date && seq > last {
			last = seq
		}
	}
	return last, nil
}

func (w *Writer) openLocked(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open buffer file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		f.Close()
		return fmt.Errorf("failed to lock buffer file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat buffer file %s: %w", path, err)
	}

	previous := w.path
	w.closeFileLocked()
	w.file, w.path, w.size = f, path, info.Size()

	if previous != "" {
		filesRolled.Inc()
		logging.Debug("rolled buffer file", logging.F("from", previous, "to", path))
	}
	w.enforceRetentionLocked()
	return nil
}

func (w *Writer) closeFileLocked() {
	if w.file == nil {
		return
	}
	_ = w.file.Sync()
	_ = w.file.Close() // releases the flock
	w.file = nil
}

// enforceRetentionLocked deletes the oldest buffer files beyond
// RetainedFiles. The active file is never deleted.
func (w *Writer) enforceRetentionLocked() {
	if w.cfg.RetainedFiles <= 0 {
		return
	}
	candidates, err := w.files.Candidates()
	if err != nil {
		logging.Warn("failed to list buffer files for retention", logging.F("dir", w.Dir(), "error", err.Error()))
		return
	}
	excess := len(candidates) - w.cfg.RetainedFiles
	for _, path := range candidates {
		if excess <= 0 {
			break
		}
		if path == w.path {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("failed to delete retained buffer file", logging.F("file", path, "error", err.Error()))
			continue
		}
		excess--
		filesRetentionDeleted.Inc()
		logging.Info("deleted buffer file over retention limit", logging.F(
			"file", path,
			"retained_files", w.cfg.RetainedFiles,
		))
	}
}

// Check reports whether the buffer directory accepts new files.
func (w *Writer) Check() error {
	f, err := os.CreateTemp(w.Dir(), ".probe-*")
	if err != nil {
		return fmt.Errorf("buffer directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Close syncs and closes the active file. Further writes return ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	err := w.file.Sync()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to close buffer file %s: %w", w.path, err)
	}
	return nil
}
