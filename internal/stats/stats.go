// Package stats reports pipeline state: a periodic summary log line and
// buffer backlog gauges.
package stats

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/logging"
)

// Source returns the current values of one component.
type Source func() map[string]interface{}

// Collector gathers named sources for the periodic stats line.
type Collector struct {
	mu        sync.Mutex
	sources   map[string]Source
	startTime time.Time
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		sources:   make(map[string]Source),
		startTime: time.Now(),
	}
}

// Add registers a source. Its keys are reported as "<name>_<key>".
func (c *Collector) Add(name string, s Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = s
}

// Snapshot returns the flattened values of all sources plus uptime.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.Lock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sources := make(map[string]Source, len(c.sources))
	for k, v := range c.sources {
		sources[k] = v
	}
	c.mu.Unlock()
	sort.Strings(names)

	out := map[string]interface{}{
		"uptime_seconds": int64(time.Since(c.startTime).Seconds()),
	}
	for _, name := range names {
		for k, v := range sources[name]() {
			out[name+"_"+k] = v
		}
	}
	return out
}

// StartPeriodicLogging logs a snapshot every interval until ctx is done.
func (c *Collector) StartPeriodicLogging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logging.Info("stats", c.Snapshot())
		}
	}
}

var (
	backlogFilesDesc = prometheus.NewDesc(
		"logship_buffer_files",
		"Buffer files waiting to be shipped, including the active one",
		[]string{"shipper"}, nil,
	)
	backlogBytesDesc = prometheus.NewDesc(
		"logship_buffer_bytes",
		"Total size of the buffer files",
		[]string{"shipper"}, nil,
	)
	oldestAgeDesc = prometheus.NewDesc(
		"logship_buffer_oldest_file_age_seconds",
		"Age of the oldest buffer file by modification time",
		[]string{"shipper"}, nil,
	)
)

// BacklogCollector exports the size of a buffer directory at scrape time.
type BacklogCollector struct {
	name  string
	files fileset.FileSet
	now   func() time.Time
}

// NewBacklogCollector returns a collector for files, labelled with name.
func NewBacklogCollector(name string, files fileset.FileSet) *BacklogCollector {
	return &BacklogCollector{name: name, files: files, now: time.Now}
}

// Backlog returns the number of buffer files, their total size and the
// modification time of the oldest one.
func (b *BacklogCollector) Backlog() (files int, size int64, oldest time.Time, err error) {
	candidates, err := b.files.Candidates()
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			// removed by the shipper after listing
			continue
		}
		files++
		size += info.Size()
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	return files, size, oldest, nil
}

// Describe implements prometheus.Collector.
func (b *BacklogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- backlogFilesDesc
	ch <- backlogBytesDesc
	ch <- oldestAgeDesc
}

// Collect implements prometheus.Collector.
func (b *BacklogCollector) Collect(ch chan<- prometheus.Metric) {
	files, size, oldest, err := b.Backlog()
	if err != nil {
		logging.Warn("failed to measure buffer backlog", logging.F("shipper", b.name, "error", err.Error()))
		return
	}
	age := 0.0
	if !oldest.IsZero() {
		age = b.now().Sub(oldest).Seconds()
	}
	ch <- prometheus.MustNewConstMetric(backlogFilesDesc, prometheus.GaugeValue, float64(files), b.name)
	ch <- prometheus.MustNewConstMetric(backlogBytesDesc, prometheus.GaugeValue, float64(size), b.name)
	ch <- prometheus.MustNewConstMetric(oldestAgeDesc, prometheus.GaugeValue, age, b.name)
}

// Source returns a stats source reporting the backlog.
func (b *BacklogCollector) Source() Source {
	return func() map[string]interface{} {
		files, size, _, err := b.Backlog()
		if err != nil {
			return map[string]interface{}{"error": err.Error()}
		}
		return map[string]interface{}{"files": files, "bytes": size}
	}
}
