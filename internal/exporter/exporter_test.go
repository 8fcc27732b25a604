package exporter

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
)

func TestCollectBeforePublish(t *testing.T) {
	e := New()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(e))

	count := testutil.CollectAndCount(e)
	assert.Zero(t, count)
}

func TestCollectPublishedSample(t *testing.T) {
	e := New()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(e))

	gpuFreq := 960.0
	voltage := 0.856
	e.Publish(&sensors.Sample{
		TempC:       81.4,
		CPUAvg:      97.5,
		CoreUtil:    []float64{99.1, 95.9},
		CoreFreqMHz: []float64{2400, 2400},
		Throttle:    thermal.Flags{UnderVoltage: true, Throttling: true},
		MemUsed:     2 << 30,
		MemTotal:    8 << 30,
		GPUFreqMHz:  &gpuFreq,
		VoltageV:    &voltage,
	}, thermal.Alert)

	expected := `
# HELP boardburn_temperature_celsius Worst-case board temperature.
# TYPE boardburn_temperature_celsius gauge
boardburn_temperature_celsius 81.4
# HELP boardburn_severity_level Thermal severity: 0 normal, 1 warning, 2 alert, 3 critical.
# TYPE boardburn_severity_level gauge
boardburn_severity_level 2
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"boardburn_temperature_celsius", "boardburn_severity_level")
	require.NoError(t, err)

	assert.Equal(t, 99.1, testutil.ToFloat64(metricWithLabel(t, e, "boardburn_cpu_core_percent", "core", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metricWithLabel(t, e, "boardburn_throttle_flag", "condition", "under_voltage")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metricWithLabel(t, e, "boardburn_throttle_flag", "condition", "freq_capped")))
}

func TestCollectOmitsUnavailableGauges(t *testing.T) {
	e := New()
	e.Publish(&sensors.Sample{TempC: 50}, thermal.Normal)

	err := testutil.CollectAndCompare(e, strings.NewReader(""),
		"boardburn_gpu_freq_mhz", "boardburn_core_voltage_volts", "boardburn_core_current_amperes")
	assert.NoError(t, err)
}

func TestPublishReplacesSnapshot(t *testing.T) {
	e := New()
	e.Publish(&sensors.Sample{TempC: 50}, thermal.Normal)
	e.Publish(&sensors.Sample{TempC: 86}, thermal.Critical)

	expected := `
# HELP boardburn_temperature_celsius Worst-case board temperature.
# TYPE boardburn_temperature_celsius gauge
boardburn_temperature_celsius 86
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected), "boardburn_temperature_celsius")
	assert.NoError(t, err)
}

// metricWithLabel collects e into a throwaway gatherer and returns a
// single-metric collector for the matching series.
func metricWithLabel(t *testing.T, e *Exporter, name, label, value string) prometheus.Collector {
	t.Helper()

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(e))

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "probe"})
					g.Set(metric.GetGauge().GetValue())
					return g
				}
			}
		}
	}
	t.Fatalf("series %s{%s=%q} not found", name, label, value)
	return nil
}
