// Package exporter publishes the latest sample as Prometheus gauges so a
// long burn-in can be watched from an existing scrape setup. The exporter
// is passive: the orchestrator pushes snapshots, scrapes read the latest.
package exporter

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeberg.org/navik/boardburn/internal/logger"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
)

const (
	namespace       = "boardburn"
	shutdownTimeout = 3 * time.Second
)

type Exporter struct {
	mu       sync.RWMutex
	sample   *sensors.Sample
	severity thermal.Severity

	server *http.Server

	tempDesc     *prometheus.Desc
	severityDesc *prometheus.Desc
	cpuAvgDesc   *prometheus.Desc
	coreUtilDesc *prometheus.Desc
	coreFreqDesc *prometheus.Desc
	throttleDesc *prometheus.Desc
	memUsedDesc  *prometheus.Desc
	memTotalDesc *prometheus.Desc
	gpuFreqDesc  *prometheus.Desc
	voltageDesc  *prometheus.Desc
	currentDesc  *prometheus.Desc
}

func New() *Exporter {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &Exporter{
		tempDesc:     desc("temperature_celsius", "Worst-case board temperature."),
		severityDesc: desc("severity_level", "Thermal severity: 0 normal, 1 warning, 2 alert, 3 critical."),
		cpuAvgDesc:   desc("cpu_avg_percent", "Average CPU utilization across cores."),
		coreUtilDesc: desc("cpu_core_percent", "Per-core CPU utilization.", "core"),
		coreFreqDesc: desc("cpu_core_freq_mhz", "Per-core CPU clock in MHz.", "core"),
		throttleDesc: desc("throttle_flag", "Firmware throttle condition, 1 when active.", "condition"),
		memUsedDesc:  desc("memory_used_bytes", "Used system memory."),
		memTotalDesc: desc("memory_total_bytes", "Total system memory."),
		gpuFreqDesc:  desc("gpu_freq_mhz", "GPU clock in MHz, absent when unavailable."),
		voltageDesc:  desc("core_voltage_volts", "Core rail voltage, absent when unavailable."),
		currentDesc:  desc("core_current_amperes", "Core rail current, absent when unavailable."),
	}
}

// Publish replaces the snapshot served to scrapes.
func (e *Exporter) Publish(sample *sensors.Sample, severity thermal.Severity) {
	e.mu.Lock()
	e.sample = sample
	e.severity = severity
	e.mu.Unlock()
}

// Serve registers the exporter and listens on addr until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(e); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.ListenAndServe()
	}()

	logger.Info().Str("addr", addr).Msg("Prometheus exporter listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.tempDesc
	ch <- e.severityDesc
	ch <- e.cpuAvgDesc
	ch <- e.coreUtilDesc
	ch <- e.coreFreqDesc
	ch <- e.throttleDesc
	ch <- e.memUsedDesc
	ch <- e.memTotalDesc
	ch <- e.gpuFreqDesc
	ch <- e.voltageDesc
	ch <- e.currentDesc
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.RLock()
	sample := e.sample
	severity := e.severity
	e.mu.RUnlock()

	if sample == nil {
		return
	}

	gauge := func(desc *prometheus.Desc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
	}

	gauge(e.tempDesc, sample.TempC)
	gauge(e.severityDesc, float64(severity))
	gauge(e.cpuAvgDesc, sample.CPUAvg)

	for i, util := range sample.CoreUtil {
		core := strconv.Itoa(i)
		gauge(e.coreUtilDesc, util, core)
		if i < len(sample.CoreFreqMHz) {
			gauge(e.coreFreqDesc, sample.CoreFreqMHz[i], core)
		}
	}

	flag := func(name string, active bool) {
		value := 0.0
		if active {
			value = 1.0
		}
		gauge(e.throttleDesc, value, name)
	}
	flag("under_voltage", sample.Throttle.UnderVoltage)
	flag("freq_capped", sample.Throttle.FreqCapped)
	flag("throttling", sample.Throttle.Throttling)
	flag("soft_limit", sample.Throttle.SoftLimit)

	gauge(e.memUsedDesc, float64(sample.MemUsed))
	gauge(e.memTotalDesc, float64(sample.MemTotal))

	if sample.GPUFreqMHz != nil {
		gauge(e.gpuFreqDesc, *sample.GPUFreqMHz)
	}
	if sample.VoltageV != nil {
		gauge(e.voltageDesc, *sample.VoltageV)
	}
	if sample.CurrentA != nil {
		gauge(e.currentDesc, *sample.CurrentA)
	}
}
