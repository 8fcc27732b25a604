package recorder_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/navik/boardburn/internal/recorder"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFixture(cores int) *sensors.Sample {
	gpuFreq := 960.0
	voltage := 0.856

	s := &sensors.Sample{
		Timestamp:   time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Elapsed:     12.5,
		TempC:       67.3,
		CPUAvg:      99.2,
		CoreUtil:    make([]float64, cores),
		CoreFreqMHz: make([]float64, cores),
		Throttle:    thermal.Flags{UnderVoltage: true, Throttling: true},
		MemUsed:     2 << 30,
		MemTotal:    8 << 30,
		MemPercent:  25.0,
		GPUMemory:   "76M",
		GPUFreqMHz:  &gpuFreq,
		VoltageV:    &voltage,
	}
	for i := 0; i < cores; i++ {
		s.CoreUtil[i] = 99.9
		s.CoreFreqMHz[i] = 2400
	}

	return s
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestHeaderColumnCount(t *testing.T) {
	for _, cores := range []int{1, 2, 4, 8, 16} {
		assert.Len(t, recorder.Header(cores), 4+2*cores+11, "cores=%d", cores)
	}
}

func TestAppendRowsMatchHeaderShape(t *testing.T) {
	const cores = 4
	path := filepath.Join(t.TempDir(), "burnin.csv")

	r, err := recorder.New(path, cores)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Append(sampleFixture(cores)))
	}
	assert.Equal(t, 3, r.Rows())
	require.NoError(t, r.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 4, "header + 3 sample rows")
	want := 4 + 2*cores + 11
	for i, row := range rows {
		assert.Len(t, row, want, "row %d", i)
	}
}

func TestRowContent(t *testing.T) {
	const cores = 2
	path := filepath.Join(t.TempDir(), "burnin.csv")

	r, err := recorder.New(path, cores)
	require.NoError(t, err)
	require.NoError(t, r.Append(sampleFixture(cores)))
	require.NoError(t, r.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 2)

	header, row := rows[0], rows[1]
	byName := map[string]string{}
	for i, name := range header {
		byName[name] = row[i]
	}

	assert.Equal(t, "2026-08-31 12:00:00", byName["timestamp"])
	assert.Equal(t, "67.3", byName["temperature_c"])
	assert.Equal(t, "99.2", byName["cpu_avg_percent"])
	assert.Equal(t, "12.5", byName["elapsed_seconds"])
	assert.Equal(t, "99.9", byName["cpu_core_0_percent"])
	assert.Equal(t, "2400", byName["cpu_core_1_freq_mhz"])
	assert.Equal(t, "1", byName["throttling_under_voltage"])
	assert.Equal(t, "0", byName["throttling_freq_capped"])
	assert.Equal(t, "1", byName["throttling_active"])
	assert.Equal(t, "0", byName["throttling_soft_limit"])
	assert.Equal(t, "25.0", byName["memory_percent"])
	assert.Equal(t, "2.00", byName["memory_used_gb"])
	assert.Equal(t, "8.00", byName["memory_total_gb"])
	assert.Equal(t, "76M", byName["gpu_memory"])
	assert.Equal(t, "960", byName["gpu_frequency"])
	assert.Equal(t, "0.8560", byName["voltage"])
	assert.Equal(t, "N/A", byName["current_a"])
}

func TestUnavailableFieldsRenderNA(t *testing.T) {
	const cores = 1
	path := filepath.Join(t.TempDir(), "burnin.csv")

	r, err := recorder.New(path, cores)
	require.NoError(t, err)

	s := &sensors.Sample{
		Timestamp:   time.Now(),
		CoreUtil:    make([]float64, cores),
		CoreFreqMHz: make([]float64, cores),
	}
	require.NoError(t, r.Append(s))
	require.NoError(t, r.Close())

	rows := readAll(t, path)
	header, row := rows[0], rows[1]
	byName := map[string]string{}
	for i, name := range header {
		byName[name] = row[i]
	}

	assert.Equal(t, "N/A", byName["gpu_memory"])
	assert.Equal(t, "N/A", byName["gpu_frequency"])
	assert.Equal(t, "N/A", byName["voltage"])
	assert.Equal(t, "N/A", byName["current_a"])
	assert.Equal(t, "0.0", byName["temperature_c"])
}

func TestNewFailsOnUnwritablePath(t *testing.T) {
	_, err := recorder.New("/nonexistent/dir/burnin.csv", 4)
	require.Error(t, err)
}

func TestNewTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burnin.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o600))

	r, err := recorder.New(path, 1)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 1, "only the fresh header remains")
	assert.Equal(t, "timestamp", rows[0][0])
}
