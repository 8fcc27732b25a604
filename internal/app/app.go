// Package app wires the sampler, workloads, and sinks into the burn-in run
// loop. It owns the run lifecycle; process concerns (flags, signals, the
// PID file) stay in the command.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/navik/boardburn/internal/config"
	"codeberg.org/navik/boardburn/internal/dashboard"
	"codeberg.org/navik/boardburn/internal/errors"
	"codeberg.org/navik/boardburn/internal/exporter"
	"codeberg.org/navik/boardburn/internal/logger"
	"codeberg.org/navik/boardburn/internal/recorder"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/telemetry"
	"codeberg.org/navik/boardburn/internal/thermal"
	"codeberg.org/navik/boardburn/internal/workload"
)

// State tracks where the orchestrator is in its lifecycle. Transitions
// only move forward: Idle -> Running -> Stopping -> Stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Summary describes a finished run.
type Summary struct {
	Rows       int
	Elapsed    time.Duration
	LogPath    string
	PeakTempC  float64
	Stragglers bool
}

// Options carries the orchestrator's collaborators. Exporter and Renderer
// are optional; the rest are required.
type Options struct {
	Config    *config.Config
	Sampler   *sensors.Sampler
	Workloads *workload.Controller
	Recorder  *recorder.Recorder
	Archiver  telemetry.Archiver
	Exporter  *exporter.Exporter
	Renderer  *dashboard.Renderer
}

type Orchestrator struct {
	cfg       *config.Config
	sampler   *sensors.Sampler
	workloads *workload.Controller
	recorder  *recorder.Recorder
	archiver  telemetry.Archiver
	exporter  *exporter.Exporter
	renderer  *dashboard.Renderer

	state atomic.Int32
}

func New(opts Options) (*Orchestrator, error) {
	errFactory := errors.New()

	if opts.Config == nil || opts.Sampler == nil || opts.Workloads == nil || opts.Recorder == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "config, sampler, workloads, and recorder are required")
	}
	if opts.Archiver == nil {
		opts.Archiver = telemetry.Noop()
	}

	return &Orchestrator{
		cfg:       opts.Config,
		sampler:   opts.Sampler,
		workloads: opts.Workloads,
		recorder:  opts.Recorder,
		archiver:  opts.Archiver,
		exporter:  opts.Exporter,
		renderer:  opts.Renderer,
	}, nil
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run drives the burn-in until ctx is cancelled or the configured duration
// elapses. A recorder failure aborts the run: a burn-in without its record
// is worthless. Archive and render failures only warn.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	errFactory := errors.New()

	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Summary{}, errFactory.New(errors.ErrAlreadyRunning)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if d := o.cfg.RunDuration(); d > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	handles := o.workloads.Start(runCtx)
	logger.Info().
		Int("workers", len(handles)).
		Float64("intensity", o.cfg.Intensity).
		Str("log_path", o.cfg.LogPath).
		Msg("Burn-in started")

	summary := Summary{LogPath: o.cfg.LogPath}
	lastSeverity := thermal.Normal
	interval := o.cfg.SampleInterval()

	var runErr error
loop:
	for {
		sample := o.sampler.Sample(runCtx)
		severity := thermal.Classify(sample.TempC, o.cfg.WarnTemp, o.cfg.MaxSafeTemp)

		if sample.TempC > summary.PeakTempC {
			summary.PeakTempC = sample.TempC
		}
		o.logSeverityChange(lastSeverity, severity, sample.TempC)
		lastSeverity = severity

		if err := o.recorder.Append(&sample); err != nil {
			runErr = err
			break loop
		}

		if err := o.archiver.Record(runCtx, &sample, severity); err != nil {
			logger.Warn().Err(err).Msg("Failed to archive sample")
		}

		if o.exporter != nil {
			o.exporter.Publish(&sample, severity)
		}
		if o.renderer != nil {
			o.renderer.Render(dashboard.Snapshot{
				Sample:   &sample,
				Severity: severity,
				Elapsed:  time.Since(start),
				LogPath:  o.cfg.LogPath,
			})
		}

		// The pause is a fixed sleep, not a corrected tick: under heavy
		// load sampling itself is slow and the effective period is
		// interval plus sampling cost. Elapsed time in the record stays
		// honest because it is wall clock, not tick count.
		select {
		case <-runCtx.Done():
			break loop
		case <-time.After(interval):
		}
	}

	o.state.Store(int32(StateStopping))
	logger.Info().Msg("Stopping workloads")

	clean := o.workloads.Stop()
	summary.Stragglers = !clean

	if err := o.recorder.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if err := o.archiver.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close sample archive")
	}

	summary.Rows = o.recorder.Rows()
	summary.Elapsed = time.Since(start)
	o.state.Store(int32(StateStopped))

	logger.Info().
		Int("rows", summary.Rows).
		Float64("peak_temp", summary.PeakTempC).
		Str("elapsed", summary.Elapsed.Round(time.Second).String()).
		Str("log_path", summary.LogPath).
		Msg("Burn-in finished")

	return summary, runErr
}

func (o *Orchestrator) logSeverityChange(prev, next thermal.Severity, temp float64) {
	if next == prev {
		return
	}

	event := logger.Info()
	switch {
	case next >= thermal.Critical:
		event = logger.Error()
	case next >= thermal.Alert:
		event = logger.Warn()
	}
	event.
		Str("severity", next.String()).
		Float64("temperature", temp).
		Msg("Thermal severity changed")
}
