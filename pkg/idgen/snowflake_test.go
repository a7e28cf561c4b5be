package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsUniqueAndIncreasing(t *testing.T) {
	s := &Snowflake{workerID: 3}
	prev := s.Generate()
	for i := 0; i < 10000; i++ {
		id := s.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestNextIDConcurrent(t *testing.T) {
	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NextID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestNumberFormats(t *testing.T) {
	entry := GenerateEntryNo()
	assert.True(t, strings.HasPrefix(entry, "PTS"))
	assert.Len(t, entry, 3+14+8)

	redemption := GenerateRedemptionNo()
	assert.True(t, strings.HasPrefix(redemption, "RDM"))
	assert.Len(t, redemption, 3+14+8)

	assert.True(t, strings.HasPrefix(GenerateMessageKey(), "EVT"))
	assert.NotEqual(t, GenerateMessageKey(), GenerateMessageKey())
}

func TestInitRejectsBadWorker(t *testing.T) {
	assert.Error(t, Init(-1))
	assert.Error(t, Init(maxWorkerID+1))
}
