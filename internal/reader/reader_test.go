package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buffer-20240101.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write buffer file: %v", err)
	}
	return path
}

func lines(records ...string) string {
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestReadAll(t *testing.T) {
	content := lines(`{"a":1}`, `{"b":2}`, `{"c":3}`)
	path := writeFile(t, content)

	batch, next, err := Read(path, 0, Limits{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	if !reflect.DeepEqual(batch.Records, want) {
		t.Errorf("Records = %v, want %v", batch.Records, want)
	}
	if next != int64(len(content)) {
		t.Errorf("offset = %d, want %d", next, len(content))
	}
	if batch.HasReachedLimit {
		t.Error("HasReachedLimit set without limits")
	}
	if batch.Bytes != 21 {
		t.Errorf("Bytes = %d, want 21", batch.Bytes)
	}
}

func TestReadRoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(200)
		records := make([]string, n)
		for i := range records {
			records[i] = fmt.Sprintf(`{"i":%d,"pad":"%s"}`, i, strings.Repeat("x", rng.Intn(300)))
		}
		content := lines(records...)
		path := writeFile(t, content)

		limits := Limits{
			MaxRecords:    1 + rng.Intn(20),
			MaxBatchBytes: int64(200 + rng.Intn(4000)),
		}

		var got []string
		var offset int64
		for calls := 0; ; calls++ {
			if calls > n+1 {
				t.Fatalf("iteration %d: reader did not converge", iter)
			}
			batch, next, err := Read(path, offset, limits)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if batch.Empty() {
				break
			}
			if next <= offset {
				t.Fatalf("offset did not advance: %d -> %d", offset, next)
			}
			got = append(got, batch.Records...)
			offset = next
		}

		if len(records) == 0 {
			records = nil
		}
		if !reflect.DeepEqual(got, records) {
			t.Fatalf("iteration %d: records differ (got %d, want %d)", iter, len(got), len(records))
		}
		if offset != int64(len(content)) {
			t.Fatalf("iteration %d: final offset %d, file length %d", iter, offset, len(content))
		}
	}
}

func TestPartialFinalLineNeverReturned(t *testing.T) {
	for complete := 0; complete <= 3; complete++ {
		var recs []string
		for i := 0; i < complete; i++ {
			recs = append(recs, fmt.Sprintf(`{"n":%d}`, i))
		}
		body := lines(recs...)
		path := writeFile(t, body+`{"partial":tr`)

		batch, next, err := Read(path, 0, Limits{})
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(batch.Records) != complete {
			t.Errorf("%d complete: got %d records", complete, len(batch.Records))
		}
		for _, r := range batch.Records {
			if strings.Contains(r, "partial") {
				t.Errorf("partial line returned: %s", r)
			}
		}
		if next != int64(len(body)) {
			t.Errorf("offset = %d, want %d", next, len(body))
		}
	}
}

func TestPartialLineCompletedLater(t *testing.T) {
	path := writeFile(t, "one\ntw")
	batch, next, err := Read(path, 0, Limits{})
	if err != nil || len(batch.Records) != 1 || next != 4 {
		t.Fatalf("Read() = %v, %d, %v", batch.Records, next, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("o\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	batch, next, err = Read(path, next, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"two"}) || next != 8 {
		t.Errorf("Read() = %v, %d", batch.Records, next)
	}
}

func TestOversizedRecordDropped(t *testing.T) {
	big := strings.Repeat("x", 200*1024)
	content := lines("small-1", big, "small-2")
	path := writeFile(t, content)

	before := testutil.ToFloat64(recordsDropped.WithLabelValues(ReasonOversized))
	batch, next, err := Read(path, 0, Limits{MaxRecordBytes: 1024})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"small-1", "small-2"}) {
		t.Errorf("Records = %v", batch.Records)
	}
	if next != int64(len(content)) {
		t.Errorf("offset = %d, want %d", next, len(content))
	}
	if got := testutil.ToFloat64(recordsDropped.WithLabelValues(ReasonOversized)) - before; got != 1 {
		t.Errorf("oversized drops = %v, want 1", got)
	}
}

func TestRecordAtLimitIsKept(t *testing.T) {
	path := writeFile(t, lines("12345", "123456"))
	batch, _, err := Read(path, 0, Limits{MaxRecordBytes: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"12345"}) {
		t.Errorf("Records = %v", batch.Records)
	}
}

func TestBatchByteLimitPrefixThenRemainder(t *testing.T) {
	recs := []string{"aaaa", "bbbb", "cccc", "dddd", "eeee"}
	content := lines(recs...)
	path := writeFile(t, content)

	first, next, err := Read(path, 0, Limits{MaxBatchBytes: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Records, recs[:2]) {
		t.Errorf("first batch = %v", first.Records)
	}
	if !first.HasReachedLimit {
		t.Error("HasReachedLimit not set")
	}
	if next != 10 {
		t.Errorf("offset = %d, want 10", next)
	}

	rest, end, err := Read(path, next, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rest.Records, recs[2:]) {
		t.Errorf("remainder = %v", rest.Records)
	}
	if end != int64(len(content)) {
		t.Errorf("final offset = %d", end)
	}
}

func TestRecordLargerThanBatchTakenAlone(t *testing.T) {
	path := writeFile(t, lines("0123456789", "ab"))

	batch, next, err := Read(path, 0, Limits{MaxBatchBytes: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"0123456789"}) {
		t.Errorf("Records = %v", batch.Records)
	}
	if !batch.HasReachedLimit || next != 11 {
		t.Errorf("HasReachedLimit = %v, offset = %d", batch.HasReachedLimit, next)
	}
}

func TestCountLimit(t *testing.T) {
	var recs []string
	for i := 0; i < 250; i++ {
		recs = append(recs, fmt.Sprintf("r%d", i))
	}
	path := writeFile(t, lines(recs...))

	var sizes []int
	var offset int64
	for {
		batch, next, err := Read(path, offset, Limits{MaxRecords: 100})
		if err != nil {
			t.Fatal(err)
		}
		if batch.Empty() {
			break
		}
		sizes = append(sizes, len(batch.Records))
		if batch.HasReachedLimit != (len(batch.Records) == 100) {
			t.Errorf("batch of %d: HasReachedLimit = %v", len(batch.Records), batch.HasReachedLimit)
		}
		offset = next
	}
	if !reflect.DeepEqual(sizes, []int{100, 100, 50}) {
		t.Errorf("batch sizes = %v", sizes)
	}
}

func TestCRLFAndBlankLines(t *testing.T) {
	content := "one\r\n\r\n\ntwo\r\n"
	path := writeFile(t, content)

	batch, next, err := Read(path, 0, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"one", "two"}) {
		t.Errorf("Records = %q", batch.Records)
	}
	if next != int64(len(content)) {
		t.Errorf("offset = %d, want %d", next, len(content))
	}
}

func TestByteOrderMarkConsumed(t *testing.T) {
	content := "\xEF\xBB\xBFfirst\nsecond\n"
	path := writeFile(t, content)

	batch, next, err := Read(path, 0, Limits{MaxRecords: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"first"}) {
		t.Errorf("Records = %q", batch.Records)
	}
	if next != 9 {
		t.Errorf("offset = %d, want 9", next)
	}

	batch, next, err = Read(path, next, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch.Records, []string{"second"}) || next != int64(len(content)) {
		t.Errorf("Read() = %q, %d", batch.Records, next)
	}
}

func TestLongLineAcrossBuffers(t *testing.T) {
	long := strings.Repeat("y", 3*readBufferSize+17)
	content := lines(long, "tail")
	path := writeFile(t, content)

	batch, next, err := Read(path, 0, Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 2 || batch.Records[0] != long {
		t.Errorf("long record not returned intact (%d records)", len(batch.Records))
	}
	if next != int64(len(content)) {
		t.Errorf("offset = %d", next)
	}
}

func TestMissingFile(t *testing.T) {
	_, next, err := Read(filepath.Join(t.TempDir(), "gone.txt"), 12, Limits{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist", err)
	}
	if next != 12 {
		t.Errorf("offset = %d, want unchanged 12", next)
	}
}

func TestOffsetAtEOF(t *testing.T) {
	content := lines("a", "b")
	path := writeFile(t, content)
	batch, next, err := Read(path, int64(len(content)), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Empty() || next != int64(len(content)) {
		t.Errorf("Read() at EOF = %v, %d", batch.Records, next)
	}
}
