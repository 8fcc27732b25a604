package workload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	ioBlockSize     = 4 << 20
	ioBlocksPerFile = 16
	ioChurnFiles    = 32
	ioChurnSize     = 4 << 10

	ioBackoffInterval = 500 * time.Millisecond
)

// ioWorker pushes sequential throughput through one large scratch file and
// then churns filesystem metadata with many small create/write/delete
// cycles. Any failure is swallowed and retried after a backoff.
type ioWorker struct {
	seq       int
	scratch   string
	blocks    int
	churn     int
	iteration int
}

func newIOWorker(seq int, scratchDir string, intensity float64) *ioWorker {
	blocks := int(float64(ioBlocksPerFile) * intensity)
	if blocks < 1 {
		blocks = 1
	}
	churn := int(float64(ioChurnFiles) * intensity)

	return &ioWorker{
		seq:     seq,
		scratch: scratchDir,
		blocks:  blocks,
		churn:   churn,
	}
}

func (w *ioWorker) run(ctx context.Context) {
	bo := backoff.NewConstantBackOff(ioBackoffInterval)

	for ctx.Err() == nil {
		if err := w.step(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
		}
	}
}

func (w *ioWorker) step(ctx context.Context) error {
	if err := w.sequentialPass(ctx); err != nil {
		return err
	}
	return w.churnPass(ctx)
}

// sequentialPass writes a large file in big blocks, reads it back fully
// and deletes it.
func (w *ioWorker) sequentialPass(ctx context.Context) error {
	path := filepath.Join(w.scratch, fmt.Sprintf("burnin_io_%d_%d.dat", os.Getpid(), w.seq))
	defer os.Remove(path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	block := make([]byte, ioBlockSize)
	for i := range block {
		block[i] = byte(i * (w.seq + 1))
	}

	for i := 0; i < w.blocks; i++ {
		if ctx.Err() != nil {
			f.Close()
			return ctx.Err()
		}
		if _, err := f.Write(block); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_ = data

	return os.Remove(path)
}

// churnPass generates filesystem metadata load with uniquely named
// short-lived files.
func (w *ioWorker) churnPass(ctx context.Context) error {
	payload := make([]byte, ioChurnSize)

	for i := 0; i < w.churn; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.iteration++
		path := filepath.Join(w.scratch,
			fmt.Sprintf("burnin_churn_%d_%d_%d.tmp", os.Getpid(), w.seq, w.iteration))

		if err := os.WriteFile(path, payload, 0o600); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}

	return nil
}
