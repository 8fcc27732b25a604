package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/navik/boardburn/internal/app"
	"codeberg.org/navik/boardburn/internal/config"
	"codeberg.org/navik/boardburn/internal/dashboard"
	"codeberg.org/navik/boardburn/internal/errors"
	"codeberg.org/navik/boardburn/internal/exporter"
	"codeberg.org/navik/boardburn/internal/logger"
	"codeberg.org/navik/boardburn/internal/pid"
	"codeberg.org/navik/boardburn/internal/recorder"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/telemetry"
	"codeberg.org/navik/boardburn/internal/workload"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Msg("failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	err := run(ctx)

	if removeErr := pid.Remove(); removeErr != nil {
		logger.Error().Err(removeErr).Msg("failed to remove PID file")
	}
	if err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("burn-in failed")
		} else {
			logger.Error().Err(err).Msg("burn-in failed")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	sampler := sensors.NewSampler(sensors.Options{Commands: true})

	rec, err := recorder.New(cfg.LogPath, sampler.Cores())
	if err != nil {
		return err
	}

	archiver, err := telemetry.NewService(telemetry.Config{
		DBPath:  cfg.ArchiveDB,
		Enabled: cfg.Archive,
	})
	if err != nil {
		return err
	}

	controller := workload.NewController(workload.Config{
		CPUWorkers:    cfg.CPUWorkers,
		MemoryWorkers: cfg.MemoryWorkers,
		IOWorkers:     cfg.IOWorkers,
		GPUWorkers:    cfg.GPUWorkers,
		Intensity:     cfg.Intensity,
		ScratchDir:    cfg.ScratchDir,
		GPUTool:       cfg.GPUTool,
		Grace:         cfg.StopGrace(),
	})

	var exp *exporter.Exporter
	if cfg.Listen != "" {
		exp = exporter.New()
		go func() {
			if serveErr := exp.Serve(ctx, cfg.Listen); serveErr != nil {
				logger.Error().Err(serveErr).Msg("Prometheus exporter stopped")
			}
		}()
	}

	// Services write frames nowhere; the terminal dashboard is for an
	// operator sitting at the board.
	var renderer *dashboard.Renderer
	if !logger.IsService() {
		renderer = dashboard.NewRenderer(os.Stdout)
	}

	orch, err := app.New(app.Options{
		Config:    cfg,
		Sampler:   sampler,
		Workloads: controller,
		Recorder:  rec,
		Archiver:  archiver,
		Exporter:  exp,
		Renderer:  renderer,
	})
	if err != nil {
		return err
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(summary)

	return nil
}

func printSummary(summary app.Summary) {
	fmt.Printf("\nBurn-in complete: %d samples over %s\n",
		summary.Rows, summary.Elapsed.Round(time.Second))
	fmt.Printf("Peak temperature: %.1f°C\n", summary.PeakTempC)
	fmt.Printf("Log written to %s\n", summary.LogPath)
	if summary.Stragglers {
		fmt.Println("Warning: some workers did not stop within the grace period")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
