package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// Snowflake IDs
// ============================================================================
//
// Ledger entry numbers, redemption numbers and outbox message keys must be
// unique across instances and roughly time ordered so they index well.
//
// Layout (64 bits):
//
//   0 - 41 bit timestamp - 10 bit worker - 12 bit sequence
//   |   |                  |              |
//   |   |                  |              +-- per-millisecond sequence (0-4095)
//   |   |                  +-- worker id (0-1023)
//   |   +-- milliseconds since epoch
//   +-- sign bit, always 0
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init sets the worker id of the default generator. Only the first call
// has an effect.
func Init(workerID int64) error {
	if workerID < 0 || workerID > maxWorkerID {
		return fmt.Errorf("idgen: worker id must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	once.Do(func() {
		defaultGenerator = &Snowflake{workerID: workerID}
	})
	return nil
}

func NextID() int64 {
	once.Do(func() {
		defaultGenerator = &Snowflake{workerID: 1}
	})
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted, spin to the next millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	id := ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence

	return id
}

func formatNo(prefix string) string {
	id := NextID()
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s%s%08d", prefix, timestamp, id%100000000)
}

// GenerateEntryNo returns a ledger entry number.
// Format: PTS + yyyyMMddHHmmss (UTC) + low 8 digits of a snowflake id,
// e.g. PTS2024011514305212345678.
func GenerateEntryNo() string {
	return formatNo("PTS")
}

func GenerateRedemptionNo() string {
	return formatNo("RDM")
}

// GenerateMessageKey returns a unique outbox message key.
func GenerateMessageKey() string {
	return fmt.Sprintf("EVT%d", NextID())
}
