// Package reader assembles batches of records from a buffer file.
package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/szibis/logship/internal/logging"
)

const readBufferSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var oversizedLog = logging.NewSampler(10 * time.Second)

// Limits bound a single batch. Zero means unlimited.
type Limits struct {
	MaxRecords     int
	MaxRecordBytes int64
	MaxBatchBytes  int64
}

// Batch is a group of serialized records for one delivery attempt.
type Batch struct {
	Records []string
	// Bytes is the sum of record lengths, terminators excluded.
	Bytes int64
	// HasReachedLimit is set when a count or byte limit stopped the batch,
	// meaning more records are likely waiting.
	HasReachedLimit bool
}

// Empty reports whether the batch has no records.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}

// Read returns complete lines of path starting at offset, and the offset just
// past the last consumed line. A final line without a terminator is never
// returned; it is read again once the writer finishes it.
//
// Lines longer than MaxRecordBytes are dropped and consumed. A line that
// would push the batch past MaxBatchBytes is left for the next call unless
// the batch is still empty, in which case it is returned alone.
func Read(path string, offset int64, limits Limits) (Batch, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, offset, fmt.Errorf("failed to open buffer file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Batch{}, offset, fmt.Errorf("failed to seek buffer file %s to %d: %w", path, offset, err)
	}

	br := bufio.NewReaderSize(f, readBufferSize)
	pos := offset
	if offset == 0 {
		if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
			pos += int64(len(utf8BOM))
		}
	}

	var batch Batch
	for {
		if limits.MaxRecords > 0 && len(batch.Records) >= limits.MaxRecords {
			batch.HasReachedLimit = true
			break
		}

		line, n, complete, err := readLine(br, limits.MaxRecordBytes)
		if err != nil {
			return Batch{}, offset, fmt.Errorf("failed to read buffer file %s: %w", path, err)
		}
		if !complete {
			break
		}

		if line == nil {
			pos += n
			CountDropped(ReasonOversized, 1)
			if suppressed, ok := oversizedLog.Allow(); ok {
				logging.Warn("dropping record larger than the per-record limit", logging.F(
					"file", path,
					"offset", pos-n,
					"bytes", n,
					"limit", limits.MaxRecordBytes,
					"suppressed", suppressed,
				))
			}
			continue
		}
		if len(line) == 0 {
			pos += n
			continue
		}

		size := int64(len(line))
		if limits.MaxBatchBytes > 0 && batch.Bytes+size > limits.MaxBatchBytes && !batch.Empty() {
			batch.HasReachedLimit = true
			break
		}

		batch.Records = append(batch.Records, string(line))
		batch.Bytes += size
		pos += n
	}
	return batch, pos, nil
}

// readLine reads through the next '\n'. It returns the record without its
// terminator (and without a trailing '\r'), the raw bytes consumed and whether
// a terminator was found. A record longer than max is returned as nil with
// its full length in n.
func readLine(br *bufio.Reader, max int64) (line []byte, n int64, complete bool, err error) {
	var oversized bool
	line = []byte{}
	for {
		chunk, err := br.ReadSlice('\n')
		n += int64(len(chunk))
		if !oversized {
			line = append(line, chunk...)
			if max > 0 && int64(len(bytes.TrimRight(line, "\r\n"))) > max {
				oversized = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, n, true, nil
			}
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			return line, n, true, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return nil, n, false, nil
		default:
			return nil, n, false, err
		}
	}
}
