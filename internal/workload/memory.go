package workload

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxRetainedChunks bounds the eviction ring: enough chunks to keep
	// sustained pressure on the allocator without inviting the OOM killer.
	maxRetainedChunks = 48
	// touchStride spaces the byte writes that force physical backing;
	// one write per page is enough to defeat lazy allocation.
	touchStride = 4096

	memoryBackoffInterval = 250 * time.Millisecond
)

var chunkSizes = []int{1 << 20, 4 << 20, 16 << 20}

// memoryWorker keeps a bounded ring of touched allocations. Oldest chunks
// are evicted once the ring is full; on allocation pressure the newest
// chunk is shed and the worker backs off.
type memoryWorker struct {
	seq    int
	sizes  []int
	budget int64

	retained      [][]byte
	retainedBytes int64
	iteration     int
}

func newMemoryWorker(seq int, intensity float64) *memoryWorker {
	sizes := make([]int, len(chunkSizes))
	for i, size := range chunkSizes {
		scaled := int(float64(size) * intensity)
		if scaled < touchStride {
			scaled = touchStride
		}
		sizes[i] = scaled
	}

	var budget int64
	for _, size := range sizes {
		budget += int64(size)
	}
	budget *= maxRetainedChunks

	return &memoryWorker{seq: seq, sizes: sizes, budget: budget}
}

func (w *memoryWorker) run(ctx context.Context) {
	bo := backoff.NewConstantBackOff(memoryBackoffInterval)

	for ctx.Err() == nil {
		if !w.step() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
		}
	}
}

// step performs one allocate-touch-evict cycle. It reports false when the
// worker hit its pressure limit and should back off.
func (w *memoryWorker) step() bool {
	size := w.sizes[w.iteration%len(w.sizes)]
	w.iteration++

	if w.retainedBytes+int64(size) > w.budget {
		w.shedNewest()
		return false
	}

	chunk := make([]byte, size)
	for i := 0; i < len(chunk); i += touchStride {
		chunk[i] = byte(i)
	}

	w.retained = append(w.retained, chunk)
	w.retainedBytes += int64(size)

	for len(w.retained) > maxRetainedChunks {
		w.retainedBytes -= int64(len(w.retained[0]))
		w.retained[0] = nil
		w.retained = w.retained[1:]
	}

	return true
}

func (w *memoryWorker) shedNewest() {
	if len(w.retained) == 0 {
		return
	}
	last := len(w.retained) - 1
	w.retainedBytes -= int64(len(w.retained[last]))
	w.retained[last] = nil
	w.retained = w.retained[:last]
}
