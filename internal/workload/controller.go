// Package workload generates sustained synthetic load. The controller owns
// one cancellation context shared by every worker; workers observe it at
// each iteration boundary and never propagate their own failures.
package workload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/navik/boardburn/internal/logger"
)

// Kind identifies a worker flavor.
type Kind string

const (
	KindCPU    Kind = "cpu"
	KindMemory Kind = "memory"
	KindIO     Kind = "io"
	KindGPU    Kind = "gpu"
)

// Config holds the per-run workload parameters.
type Config struct {
	CPUWorkers    int
	MemoryWorkers int
	IOWorkers     int
	GPUWorkers    int

	// Intensity scales the per-iteration work volume, [0.0, 1.0].
	Intensity  float64
	ScratchDir string
	GPUTool    string

	// Grace bounds how long Stop waits for workers to observe cancellation.
	Grace time.Duration
}

// Handle identifies one spawned worker.
type Handle struct {
	Kind Kind
	Seq  int
}

func (h Handle) String() string {
	return fmt.Sprintf("%s-%d", h.Kind, h.Seq)
}

type worker interface {
	run(ctx context.Context)
}

// Controller starts and stops the worker set as a unit.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	handles []Handle
}

func NewController(cfg Config) *Controller {
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Second
	}
	return &Controller{cfg: cfg}
}

// Start spawns the configured workers. All of them share a context derived
// from ctx; load generation begins immediately.
func (c *Controller) Start(ctx context.Context) []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return c.handles
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg = &sync.WaitGroup{}
	c.handles = nil

	spawn := func(kind Kind, count int, make func(seq int) worker) {
		for seq := 0; seq < count; seq++ {
			h := Handle{Kind: kind, Seq: seq}
			c.handles = append(c.handles, h)
			w := make(seq)
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				w.run(ctx)
			}()
		}
	}

	spawn(KindCPU, c.cfg.CPUWorkers, func(seq int) worker {
		return newCPUWorker(seq, c.cfg.Intensity)
	})
	spawn(KindMemory, c.cfg.MemoryWorkers, func(seq int) worker {
		return newMemoryWorker(seq, c.cfg.Intensity)
	})
	spawn(KindIO, c.cfg.IOWorkers, func(seq int) worker {
		return newIOWorker(seq, c.cfg.ScratchDir, c.cfg.Intensity)
	})
	spawn(KindGPU, c.cfg.GPUWorkers, func(seq int) worker {
		return newGPUWorker(seq, c.cfg.GPUTool)
	})

	logger.Info().
		Int("cpu", c.cfg.CPUWorkers).
		Int("memory", c.cfg.MemoryWorkers).
		Int("io", c.cfg.IOWorkers).
		Int("gpu", c.cfg.GPUWorkers).
		Float64("intensity", c.cfg.Intensity).
		Msg("Workload started")

	return c.handles
}

// Stop requests cessation and waits up to the grace period. Cancellation is
// cooperative: a worker that does not come back in time is abandoned, not
// killed. Returns true when every worker exited within the grace period.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	cancel := c.cancel
	wg := c.wg
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Debug().Msg("All workers exited")
		return true
	case <-time.After(c.cfg.Grace):
		logger.Warn().Dur("grace", c.cfg.Grace).Msg("Grace period expired, abandoning unresponsive workers")
		return false
	}
}
