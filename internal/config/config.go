package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"codeberg.org/navik/boardburn/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval    = 1
	defaultIntensity   = 1.0
	defaultWarnTemp    = 75.0
	defaultMaxSafeTemp = 85.0
	defaultGracePeriod = 5
	defaultArchiveDB   = "/var/lib/boardburn/samples.db"
	defaultGPUTool     = "glmark2"
)

// Config holds every knob for a burn-in run. It is loaded once before the
// run starts and treated as immutable afterwards.
type Config struct {
	// Sampling and recording
	LogPath     string  `mapstructure:"log_path"`
	Interval    int     `mapstructure:"interval"`
	Duration    int     `mapstructure:"duration"`
	WarnTemp    float64 `mapstructure:"warn_temp"`
	MaxSafeTemp float64 `mapstructure:"max_safe_temp"`

	// Workload
	CPUWorkers    int     `mapstructure:"cpu_workers"`
	MemoryWorkers int     `mapstructure:"memory_workers"`
	IOWorkers     int     `mapstructure:"io_workers"`
	GPUWorkers    int     `mapstructure:"gpu_workers"`
	Intensity     float64 `mapstructure:"intensity"`
	ScratchDir    string  `mapstructure:"scratch_dir"`
	GracePeriod   int     `mapstructure:"grace_period"`
	GPUTool       string  `mapstructure:"gpu_tool"`

	// Sample archive (SQLite)
	Archive   bool   `mapstructure:"archive"`
	ArchiveDB string `mapstructure:"archive_db"`

	// Prometheus exporter, disabled when empty
	Listen string `mapstructure:"listen"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	setDefaults(v)

	flags := pflag.NewFlagSet("boardburn", pflag.ContinueOnError)
	flags.String("log-path", "", "CSV log file path")
	flags.Int("interval", defaultInterval, "Seconds between telemetry samples")
	flags.Int("duration", 0, "Run duration in seconds (0 = run until interrupted)")
	flags.Float64("warn-temp", defaultWarnTemp, "Warning temperature threshold in °C")
	flags.Float64("max-safe-temp", defaultMaxSafeTemp, "Critical temperature threshold in °C")
	flags.Int("cpu-workers", runtime.NumCPU(), "Number of CPU load workers")
	flags.Int("memory-workers", 1, "Number of memory load workers")
	flags.Int("io-workers", 1, "Number of disk I/O load workers")
	flags.Int("gpu-workers", 1, "Number of GPU load workers")
	flags.Float64("intensity", defaultIntensity, "Per-tick work volume scale [0.0-1.0]")
	flags.String("scratch-dir", os.TempDir(), "Scratch directory for the I/O workers")
	flags.Int("grace-period", defaultGracePeriod, "Seconds to wait for workers on shutdown")
	flags.String("gpu-tool", defaultGPUTool, "External GPU benchmark tool")
	flags.Bool("archive", false, "Archive samples to SQLite in addition to the CSV log")
	flags.String("archive-db", defaultArchiveDB, "Path to the SQLite sample archive")
	flags.String("listen", "", "Prometheus exporter listen address (empty = disabled)")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Flags use dashes, config keys use underscores.
	flags.Visit(func(f *pflag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("BOARDBURN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if config.LogPath == "" {
		config.LogPath = fmt.Sprintf("burnin_%s.csv", time.Now().Format("20060102_150405"))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	if path := os.Getenv("BOARDBURN_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("boardburn")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("duration", 0)
	v.SetDefault("warn_temp", defaultWarnTemp)
	v.SetDefault("max_safe_temp", defaultMaxSafeTemp)
	v.SetDefault("cpu_workers", runtime.NumCPU())
	v.SetDefault("memory_workers", 1)
	v.SetDefault("io_workers", 1)
	v.SetDefault("gpu_workers", 1)
	v.SetDefault("intensity", defaultIntensity)
	v.SetDefault("scratch_dir", os.TempDir())
	v.SetDefault("grace_period", defaultGracePeriod)
	v.SetDefault("gpu_tool", defaultGPUTool)
	v.SetDefault("archive", false)
	v.SetDefault("archive_db", defaultArchiveDB)
	v.SetDefault("listen", "")
	v.SetDefault("log_level", DefaultLogLevel)
}

// Validate checks the loaded configuration for values the run cannot start with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Intensity < 0 || c.Intensity > 1 {
		return errFactory.WithData(errors.ErrInvalidIntensity, c.Intensity)
	}
	if c.WarnTemp >= c.MaxSafeTemp {
		return errFactory.WithData(errors.ErrInvalidThreshold, c.WarnTemp)
	}
	if c.CPUWorkers < 0 || c.MemoryWorkers < 0 || c.IOWorkers < 0 || c.GPUWorkers < 0 {
		return errFactory.New(errors.ErrInvalidWorkers)
	}
	if c.Duration < 0 {
		return errFactory.WithData(errors.ErrInvalidArgument, c.Duration)
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

// RunDuration returns the configured duration, zero meaning unbounded.
func (c *Config) RunDuration() time.Duration {
	return time.Duration(c.Duration) * time.Second
}

// SampleInterval returns the tick period.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// StopGrace returns how long shutdown waits for workers.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.GracePeriod) * time.Second
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}
