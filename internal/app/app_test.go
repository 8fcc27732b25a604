package app

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/navik/boardburn/internal/config"
	"codeberg.org/navik/boardburn/internal/dashboard"
	"codeberg.org/navik/boardburn/internal/recorder"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/workload"
)

func fixtureSampler(t *testing.T) *sensors.Sampler {
	t.Helper()

	root := t.TempDir()
	sysfs := filepath.Join(root, "sys")
	proc := filepath.Join(root, "proc")

	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("proc/stat", "cpu  100 0 100 800 0 0 0 0 0 0\n"+
		"cpu0 50 0 50 400 0 0 0 0 0 0\n"+
		"cpu1 50 0 50 400 0 0 0 0 0 0\n")
	write("proc/meminfo", "MemTotal: 8000000 kB\nMemAvailable: 6000000 kB\n")
	write("sys/class/thermal/thermal_zone0/temp", "51200\n")

	return sensors.NewSampler(sensors.Options{SysfsRoot: sysfs, ProcRoot: proc})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		LogPath:     filepath.Join(t.TempDir(), "burnin.csv"),
		Interval:    1,
		WarnTemp:    75,
		MaxSafeTemp: 85,
		GracePeriod: 2,
	}
}

func newOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *recorder.Recorder) {
	t.Helper()

	sampler := fixtureSampler(t)
	rec, err := recorder.New(cfg.LogPath, sampler.Cores())
	require.NoError(t, err)

	orch, err := New(Options{
		Config:    cfg,
		Sampler:   sampler,
		Workloads: workload.NewController(workload.Config{Grace: time.Second}),
		Recorder:  rec,
		Renderer:  dashboard.NewRenderer(io.Discard).Plain(),
	})
	require.NoError(t, err)

	return orch, rec
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRunBoundedByDuration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Duration = 2

	orch, _ := newOrchestrator(t, cfg)
	assert.Equal(t, StateIdle, orch.State())

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateStopped, orch.State())
	assert.Equal(t, cfg.LogPath, summary.LogPath)
	assert.False(t, summary.Stragglers)
	assert.InDelta(t, 51.2, summary.PeakTempC, 0.01)

	// One sample per second plus the initial one; wide bounds keep the
	// test stable on loaded CI hosts.
	assert.GreaterOrEqual(t, summary.Rows, 2)
	assert.LessOrEqual(t, summary.Rows, 4)

	file, err := os.Open(cfg.LogPath)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, summary.Rows+1) // header plus data rows
	assert.Equal(t, recorder.Header(2), rows[0])
}

func TestRunStopsOnCancellation(t *testing.T) {
	cfg := testConfig(t)

	orch, _ := newOrchestrator(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var summary Summary
	var runErr error
	go func() {
		summary, runErr = orch.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	require.NoError(t, runErr)
	assert.Equal(t, StateStopped, orch.State())
	assert.GreaterOrEqual(t, summary.Rows, 1)
}

func TestRunRejectsReuse(t *testing.T) {
	cfg := testConfig(t)
	cfg.Duration = 1

	orch, _ := newOrchestrator(t, cfg)

	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRunAbortsOnRecorderFailure(t *testing.T) {
	cfg := testConfig(t)

	orch, rec := newOrchestrator(t, cfg)
	require.NoError(t, rec.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := orch.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, StateStopped, orch.State())
}
