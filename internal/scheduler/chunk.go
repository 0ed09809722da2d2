// Package scheduler partitions transactions into chunks and dispatches them
// concurrently to an oracle.
package scheduler

import (
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Chunk is an ordered run of transactions sent to the oracle in one call.
type Chunk struct {
	Number       int // 1-based
	Transactions []domain.Transaction
}

// Schedule slices txns into runs of chunkSize, preserving order. A trailing
// remainder shorter than a tenth of chunkSize is folded into the previous
// chunk rather than sent on its own, so 79 transactions at 26 become
// 26, 26, 27. chunkSize is therefore a target: the last chunk may hold up to
// chunkSize+max(1, chunkSize/10)-1 transactions. A non-positive chunkSize uses the
// default.
func Schedule(txns []domain.Transaction, chunkSize int) []Chunk {
	return ScheduleFrom(txns, chunkSize, 1)
}

// ScheduleFrom is Schedule with chunk numbers starting at first.
func ScheduleFrom(txns []domain.Transaction, chunkSize, first int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	if len(txns) == 0 {
		return nil
	}

	minTail := max(1, chunkSize/10)
	var chunks []Chunk
	for start := 0; start < len(txns); start += chunkSize {
		end := min(start+chunkSize, len(txns))
		if rest := len(txns) - end; rest > 0 && rest < minTail {
			end = len(txns)
		}
		chunks = append(chunks, Chunk{
			Number:       first + len(chunks),
			Transactions: txns[start:end],
		})
		if end == len(txns) {
			break
		}
	}
	return chunks
}
