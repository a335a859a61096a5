package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/szibis/logship/internal/fileset"
)

func TestSnapshot(t *testing.T) {
	c := NewCollector()
	c.Add("shipper", func() map[string]interface{} {
		return map[string]interface{}{"failures": 2}
	})
	c.Add("queue", func() map[string]interface{} {
		return map[string]interface{}{"records": 10, "bytes": int64(512)}
	})

	snap := c.Snapshot()
	want := map[string]interface{}{
		"shipper_failures": 2,
		"queue_records":    10,
		"queue_bytes":      int64(512),
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("snapshot[%s] = %v, want %v", k, snap[k], v)
		}
	}
	if _, ok := snap["uptime_seconds"]; !ok {
		t.Error("snapshot is missing uptime_seconds")
	}
}

func TestSnapshotReplacesSource(t *testing.T) {
	c := NewCollector()
	c.Add("a", func() map[string]interface{} { return map[string]interface{}{"v": 1} })
	c.Add("a", func() map[string]interface{} { return map[string]interface{}{"v": 2} })
	if got := c.Snapshot()["a_v"]; got != 2 {
		t.Errorf("a_v = %v, want 2", got)
	}
}

func writeBufferFiles(t *testing.T, sizes ...int) (*fileset.SizeRolled, []string) {
	t.Helper()
	files := fileset.NewSizeRolled(filepath.Join(t.TempDir(), "buffer"))
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i, n := range sizes {
		path := files.Format(day, i)
		if err := os.WriteFile(path, []byte(strings.Repeat("x", n)), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := day.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return files, paths
}

func TestBacklog(t *testing.T) {
	files, _ := writeBufferFiles(t, 10, 20, 30)
	b := NewBacklogCollector("disk", files)

	n, size, oldest, err := b.Backlog()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || size != 60 {
		t.Errorf("Backlog() = %d files, %d bytes, want 3 and 60", n, size)
	}
	if want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC); !oldest.Equal(want) {
		t.Errorf("oldest = %s, want %s", oldest, want)
	}

	src := b.Source()()
	if src["files"] != 3 || src["bytes"] != int64(60) {
		t.Errorf("Source() = %v", src)
	}
}

func TestBacklogEmptyDirectory(t *testing.T) {
	files := fileset.NewSizeRolled(filepath.Join(t.TempDir(), "missing", "buffer"))
	n, size, oldest, err := NewBacklogCollector("disk", files).Backlog()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || size != 0 || !oldest.IsZero() {
		t.Errorf("Backlog() = %d, %d, %s", n, size, oldest)
	}
}

func TestBacklogCollector(t *testing.T) {
	files, _ := writeBufferFiles(t, 5, 7)
	b := NewBacklogCollector("disk", files)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 0, 10, 0, 0, time.UTC) }

	reg := prometheus.NewRegistry()
	reg.MustRegister(b)

	expected := `
# HELP logship_buffer_bytes Total size of the buffer files
# TYPE logship_buffer_bytes gauge
logship_buffer_bytes{shipper="disk"} 12
# HELP logship_buffer_files Buffer files waiting to be shipped, including the active one
# TYPE logship_buffer_files gauge
logship_buffer_files{shipper="disk"} 2
# HELP logship_buffer_oldest_file_age_seconds Age of the oldest buffer file by modification time
# TYPE logship_buffer_oldest_file_age_seconds gauge
logship_buffer_oldest_file_age_seconds{shipper="disk"} 600
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}
