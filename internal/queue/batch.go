package queue

import (
	"time"

	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/reader"
)

var discardLog = logging.NewSampler(10 * time.Second)

// ReadBatch drains up to maxRecords records totalling at most maxBatchBytes.
// A head record that does not fit ends a non-empty batch. If the batch is
// still empty the record can never fit, so it is discarded.
func ReadBatch(q *BoundedQueue, maxRecords int, maxBatchBytes int64) reader.Batch {
	var batch reader.Batch
	for {
		if maxRecords > 0 && len(batch.Records) >= maxRecords {
			batch.HasReachedLimit = true
			return batch
		}

		maxSize := int64(0)
		if maxBatchBytes > 0 {
			maxSize = maxBatchBytes - batch.Bytes
			if maxSize <= 0 {
				batch.HasReachedLimit = q.Len() > 0
				return batch
			}
		}
		record, res := q.TryDequeue(maxSize)
		switch res {
		case Empty:
			return batch
		case TooLarge:
			if !batch.Empty() {
				batch.HasReachedLimit = true
				return batch
			}
			if dropped, ok := q.Discard(); ok {
				reader.CountDropped(reader.ReasonOversized, 1)
				if suppressed, ok := discardLog.Allow(); ok {
					logging.Warn("discarding queued record larger than the batch limit", logging.F(
						"record_bytes", len(dropped),
						"limit", maxBatchBytes,
						"suppressed", suppressed,
					))
				}
			}
		case Dequeued:
			batch.Records = append(batch.Records, record)
			batch.Bytes += int64(len(record))
		}
	}
}
