package spool

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/szibis/logship/internal/bookmark"
	"github.com/szibis/logship/internal/fileset"
	"github.com/szibis/logship/internal/reader"
)

func newWriter(t *testing.T, cfg Config, now *time.Time) *Writer {
	t.Helper()
	if cfg.BasePath == "" {
		cfg.BasePath = filepath.Join(t.TempDir(), "buffer")
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if now != nil {
		w.now = func() time.Time { return *now }
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func candidates(t *testing.T, w *Writer) []string {
	t.Helper()
	c, err := w.FileSet().Candidates()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestParseRolling(t *testing.T) {
	tests := []struct {
		in      string
		want    Rolling
		wantErr bool
	}{
		{"", RollingTime, false},
		{"time", RollingTime, false},
		{"SIZE", RollingSize, false},
		{"daily", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRolling(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRolling(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriterAppendsLines(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	w := newWriter(t, Config{}, &now)

	for _, r := range []string{`{"a":1}`, `{"a":2}`} {
		if !w.Emit(r) {
			t.Fatalf("Emit(%s) = false", r)
		}
	}

	files := candidates(t, w)
	if len(files) != 1 || filepath.Base(files[0]) != "buffer-2024030110.txt" {
		t.Fatalf("files = %v", files)
	}
	data, _ := os.ReadFile(files[0])
	if string(data) != "{\"a\":1}\n{\"a\":2}\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriterTimeRolling(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	w := newWriter(t, Config{}, &now)

	w.Emit("one")
	now = now.Add(2 * time.Minute)
	w.Emit("two")

	files := candidates(t, w)
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2", files)
	}
	if filepath.Base(files[1]) != "buffer-2024030111.txt" {
		t.Errorf("second file = %s", files[1])
	}
}

func TestWriterSizeRolling(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := newWriter(t, Config{Rolling: RollingSize, MaxFileBytes: 10}, &now)

	for _, r := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		if !w.Emit(r) {
			t.Fatalf("Emit(%s) = false", r)
		}
	}

	var names []string
	for _, f := range candidates(t, w) {
		names = append(names, filepath.Base(f))
	}
	want := []string{"buffer-20240301.txt", "buffer-20240301_1.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", names, want)
	}
	data, _ := os.ReadFile(filepath.Join(w.Dir(), "buffer-20240301_1.txt"))
	if string(data) != "cccc\ndddd\n" {
		t.Errorf("second file content = %q", data)
	}
}

func TestWriterSizeRollingResumesSequence(t *testing.T) {
	base := filepath.Join(t.TempDir(), "buffer")
	set := fileset.NewSizeRolled(base)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	os.MkdirAll(filepath.Dir(base), 0o755)
	os.WriteFile(set.Format(now, 7), []byte("old\n"), 0o644)

	w := newWriter(t, Config{BasePath: base, Rolling: RollingSize, MaxFileBytes: 100}, &now)
	w.Emit("new")

	data, _ := os.ReadFile(set.Format(now, 7))
	if string(data) != "old\nnew\n" {
		t.Errorf("content = %q, want append to the last sequence", data)
	}
}

func TestWriterRetention(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := newWriter(t, Config{RetainedFiles: 2}, &now)

	for i := 0; i < 4; i++ {
		w.Emit("x")
		now = now.Add(time.Hour)
	}

	files := candidates(t, w)
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2", files)
	}
	if filepath.Base(files[1]) != "buffer-2024030103.txt" {
		t.Errorf("newest file = %s", files[1])
	}
}

func TestWriterHoldsSharedLock(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := newWriter(t, Config{}, &now)
	w.Emit("x")
	active := candidates(t, w)[0]

	locked, err := bookmark.IsFileLocked(active)
	if err != nil || !locked {
		t.Fatalf("active file locked = %v, %v", locked, err)
	}

	now = now.Add(time.Hour)
	w.Emit("y")
	if locked, _ := bookmark.IsFileLocked(active); locked {
		t.Error("previous file still locked after roll")
	}

	w.Close()
	if locked, _ := bookmark.IsFileLocked(candidates(t, w)[1]); locked {
		t.Error("file still locked after Close")
	}
}

func TestWriterDrops(t *testing.T) {
	w := newWriter(t, Config{MaxRecordBytes: 8}, nil)

	oversized := testutil.ToFloat64(reader.DroppedCounter(reader.ReasonOversized))
	invalid := testutil.ToFloat64(reader.DroppedCounter(reader.ReasonInvalid))

	if w.Emit("123456789") {
		t.Error("oversized record accepted")
	}
	if w.Emit("a\nb") {
		t.Error("record with newline accepted")
	}
	if got := testutil.ToFloat64(reader.DroppedCounter(reader.ReasonOversized)) - oversized; got != 1 {
		t.Errorf("oversized drops = %v", got)
	}
	if got := testutil.ToFloat64(reader.DroppedCounter(reader.ReasonInvalid)) - invalid; got != 1 {
		t.Errorf("invalid drops = %v", got)
	}
}

func TestWriterClosed(t *testing.T) {
	w := newWriter(t, Config{}, nil)
	w.Emit("x")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write("y"); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
	if w.Emit("y") {
		t.Error("Emit after Close = true")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestWriterCheck(t *testing.T) {
	w := newWriter(t, Config{}, nil)
	if err := w.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
	entries, _ := os.ReadDir(w.Dir())
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestWriterOutputIsReadable(t *testing.T) {
	w := newWriter(t, Config{}, nil)
	for _, r := range []string{`{"a":1}`, `{"a":2}`, `{"a":3}`} {
		w.Emit(r)
	}
	batch, next, err := reader.Read(candidates(t, w)[0], 0, reader.Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 3 || batch.Records[2] != `{"a":3}` {
		t.Errorf("records = %v", batch.Records)
	}
	if next != int64(3*len(`{"a":1}`+"\n")) {
		t.Errorf("next = %d", next)
	}
}

func TestNewRequiresBasePath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty base path succeeded")
	}
}
