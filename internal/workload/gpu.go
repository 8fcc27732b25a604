package workload

import (
	"context"
	"os/exec"
	"time"

	"codeberg.org/navik/boardburn/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

const gpuBackoffMax = 30 * time.Second

// gpuWorker drives the GPU through an external benchmark tool. A missing
// tool degrades the worker to an idle wait: logged once, re-probed with a
// growing backoff instead of a tight retry loop.
type gpuWorker struct {
	seq  int
	tool string
	args []string

	loggedMissing bool
}

func newGPUWorker(seq int, tool string) *gpuWorker {
	if tool == "" {
		tool = "glmark2"
	}
	return &gpuWorker{
		seq:  seq,
		tool: tool,
		args: []string{"--off-screen", "--run-forever", "-b", "build"},
	}
}

func (w *gpuWorker) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = gpuBackoffMax
	bo.MaxElapsedTime = 0

	for ctx.Err() == nil {
		if err := w.invoke(ctx); err != nil {
			if !w.loggedMissing {
				logger.Warn().Err(err).Str("tool", w.tool).Int("seq", w.seq).
					Msg("GPU load tool unavailable, worker degraded")
				w.loggedMissing = true
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		bo.Reset()
	}
}

// invoke runs one benchmark pass under the worker's context. The tool runs
// until the context is cancelled; cancellation kills the child process.
func (w *gpuWorker) invoke(ctx context.Context) error {
	if _, err := exec.LookPath(w.tool); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, w.tool, w.args...)
	err := cmd.Run()
	if ctx.Err() != nil {
		// Shutdown path: the kill is ours, not a tool failure.
		return nil
	}
	return err
}
