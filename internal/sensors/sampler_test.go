package sensors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func fixtureRoots(t *testing.T) (sysfs, proc string) {
	t.Helper()
	sysfs = t.TempDir()
	proc = t.TempDir()

	writeFixture(t, proc, "stat", `cpu  100 0 100 800 0 0 0 0 0 0
cpu0 25 0 25 200 0 0 0 0 0 0
cpu1 25 0 25 200 0 0 0 0 0 0
cpu2 25 0 25 200 0 0 0 0 0 0
cpu3 25 0 25 200 0 0 0 0 0 0
`)
	writeFixture(t, proc, "meminfo", `MemTotal:        8000000 kB
MemFree:         2000000 kB
MemAvailable:    6000000 kB
`)
	writeFixture(t, sysfs, "class/thermal/thermal_zone0/temp", "48500\n")
	writeFixture(t, sysfs, "class/thermal/thermal_zone1/temp", "51200\n")
	writeFixture(t, sysfs, "devices/platform/soc/soc:firmware/get_throttled", "50005\n")
	writeFixture(t, sysfs, "class/devfreq/13040000.gpu/cur_freq", "960000000\n")
	for _, core := range []string{"cpu0", "cpu1", "cpu2", "cpu3"} {
		writeFixture(t, sysfs, filepath.Join("devices/system/cpu", core, "cpufreq/scaling_cur_freq"), "2400000\n")
	}

	return sysfs, proc
}

func TestSampleFromFixtureTree(t *testing.T) {
	sysfs, proc := fixtureRoots(t)
	s := NewSampler(Options{SysfsRoot: sysfs, ProcRoot: proc})

	require.Equal(t, 4, s.Cores())

	sample := s.Sample(context.Background())

	// Worst case across the two thermal zones.
	assert.InDelta(t, 51.2, sample.TempC, 0.001)

	require.Len(t, sample.CoreUtil, 4)
	require.Len(t, sample.CoreFreqMHz, 4)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 2400.0, sample.CoreFreqMHz[i], 0.001, "core %d", i)
	}

	// Live flags from mask 0x50005: under-voltage + actively throttling.
	assert.True(t, sample.Throttle.UnderVoltage)
	assert.False(t, sample.Throttle.FreqCapped)
	assert.True(t, sample.Throttle.Throttling)
	assert.False(t, sample.Throttle.SoftLimit)

	assert.Equal(t, uint64(8000000*1024), sample.MemTotal)
	assert.Equal(t, uint64(2000000*1024), sample.MemUsed)
	assert.InDelta(t, 25.0, sample.MemPercent, 0.001)

	require.NotNil(t, sample.GPUFreqMHz)
	assert.InDelta(t, 960.0, *sample.GPUFreqMHz, 0.001)

	// Commands are disabled, so command-backed readings stay unavailable.
	assert.Empty(t, sample.GPUMemory)
	assert.Nil(t, sample.VoltageV)
	assert.Nil(t, sample.CurrentA)
}

func TestSampleUtilizationDelta(t *testing.T) {
	sysfs, proc := fixtureRoots(t)
	s := NewSampler(Options{SysfsRoot: sysfs, ProcRoot: proc})

	// First tick has no previous counters: utilization is the sentinel 0.
	first := s.Sample(context.Background())
	for i, u := range first.CoreUtil {
		assert.Zero(t, u, "core %d first tick", i)
	}
	assert.Zero(t, first.CPUAvg)

	// Advance each core by 100 jiffies: 75 busy, 25 idle.
	writeFixture(t, proc, "stat", `cpu  400 0 400 900 0 0 0 0 0 0
cpu0 75 0 50 225 0 0 0 0 0 0
cpu1 75 0 50 225 0 0 0 0 0 0
cpu2 75 0 50 225 0 0 0 0 0 0
cpu3 75 0 50 225 0 0 0 0 0 0
`)

	second := s.Sample(context.Background())
	for i, u := range second.CoreUtil {
		assert.InDelta(t, 75.0, u, 0.001, "core %d second tick", i)
	}
	assert.InDelta(t, 75.0, second.CPUAvg, 0.001)
}

func TestSampleEmptyTreeSentinels(t *testing.T) {
	s := NewSampler(Options{SysfsRoot: t.TempDir(), ProcRoot: t.TempDir()})

	sample := s.Sample(context.Background())

	assert.Zero(t, sample.TempC)
	assert.Zero(t, sample.CPUAvg)
	assert.Equal(t, len(sample.CoreUtil), len(sample.CoreFreqMHz),
		"per-core slices must always be equal length")
	assert.False(t, sample.Throttle.Any())
	assert.Zero(t, sample.MemTotal)
	assert.Zero(t, sample.MemPercent)
	assert.Nil(t, sample.GPUFreqMHz)
	assert.Empty(t, sample.GPUMemory)
	assert.Nil(t, sample.VoltageV)
	assert.Nil(t, sample.CurrentA)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestParseThrottleMask(t *testing.T) {
	tests := []struct {
		raw  string
		want uint64
	}{
		{"0\n", 0x0},
		{"50005\n", 0x50005},
		{"throttled=0x50005", 0x50005},
		{"0xf", 0xF},
	}

	for _, tt := range tests {
		mask, err := parseThrottleMask(tt.raw)
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, mask, "raw %q", tt.raw)
	}

	_, err := parseThrottleMask("garbage")
	assert.Error(t, err)
}
