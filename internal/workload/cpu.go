package workload

import (
	"context"
	"math"
)

const (
	cpuBatchSize = 200_000
	cpuBatchMin  = 1_000
)

// cpuWorker burns cycles with a mix of transcendental float math and
// integer modulo arithmetic. No I/O and no allocation growth.
type cpuWorker struct {
	seq   int
	batch int

	// sink receives each batch result so the compiler cannot elide the
	// work. Per-worker: exactly one goroutine writes it.
	sink float64
}

func newCPUWorker(seq int, intensity float64) *cpuWorker {
	batch := int(intensity * cpuBatchSize)
	if batch < cpuBatchMin {
		batch = cpuBatchMin
	}
	return &cpuWorker{seq: seq, batch: batch}
}

func (w *cpuWorker) run(ctx context.Context) {
	acc := float64(w.seq + 1)
	n := w.seq + 17

	for ctx.Err() == nil {
		for i := 0; i < w.batch; i++ {
			acc += math.Sin(acc) * math.Exp(-math.Abs(acc)/1e6)
			acc += math.Sqrt(float64(n))
			n = (n*31 + 7) % 1_000_003
			if acc > 1e9 {
				acc = float64(n)
			}
		}
		w.sink = acc
	}
}
