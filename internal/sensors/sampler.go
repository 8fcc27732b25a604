// Package sensors samples board telemetry: temperature, per-core CPU
// utilization and frequency, firmware throttle state, memory pressure and
// the best-effort GPU/power readings. Every sub-reading is individually
// best-effort; Sample never fails.
package sensors

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"codeberg.org/navik/boardburn/internal/logger"
	"codeberg.org/navik/boardburn/internal/probe"
	"codeberg.org/navik/boardburn/internal/thermal"
)

const (
	milliDegreesPerDegree = 1000.0
	kiloHertzPerMegaHertz = 1000.0
	commandTimeout        = 2 * time.Second
)

// Options configures a Sampler. Zero values select the live system paths;
// tests point the roots at fixture trees and disable external commands.
type Options struct {
	SysfsRoot   string
	ProcRoot    string
	Commands    bool
	FirmwareCmd string
}

type Sampler struct {
	sysfs    string
	proc     string
	commands bool
	firmware string

	cores   int
	start   time.Time
	gpuFreq *probe.Resolver

	// Previous-tick jiffy counters, one slot per core. Utilization is the
	// busy share of the delta since the last tick; the first tick reports 0.
	prevBusy  []uint64
	prevTotal []uint64
}

func NewSampler(opts Options) *Sampler {
	if opts.SysfsRoot == "" {
		opts.SysfsRoot = "/sys"
	}
	if opts.ProcRoot == "" {
		opts.ProcRoot = "/proc"
	}
	if opts.FirmwareCmd == "" {
		opts.FirmwareCmd = "vcgencmd"
	}

	s := &Sampler{
		sysfs:    opts.SysfsRoot,
		proc:     opts.ProcRoot,
		commands: opts.Commands,
		firmware: opts.FirmwareCmd,
		start:    time.Now(),
	}

	s.cores = s.detectCores()
	s.prevBusy = make([]uint64, s.cores)
	s.prevTotal = make([]uint64, s.cores)
	s.gpuFreq = probe.NewResolver(s.gpuFreqProbes())

	logger.Debug().Int("cores", s.cores).Msg("Sampler initialized")

	return s
}

// Cores returns the detected core count, stable for the sampler's lifetime.
func (s *Sampler) Cores() int {
	return s.cores
}

// Sample collects one snapshot. It never returns an error: each reading
// degrades to its sentinel independently.
func (s *Sampler) Sample(ctx context.Context) Sample {
	now := time.Now()
	sample := Sample{
		Timestamp:   now,
		Elapsed:     now.Sub(s.start).Seconds(),
		TempC:       s.readTemperature(),
		CoreUtil:    make([]float64, s.cores),
		CoreFreqMHz: make([]float64, s.cores),
		Throttle:    s.readThrottle(ctx),
	}

	s.readCoreUtilization(sample.CoreUtil)
	for i := 0; i < s.cores; i++ {
		sample.CoreFreqMHz[i] = s.readCoreFrequency(i)
	}

	var sum float64
	for _, u := range sample.CoreUtil {
		sum += u
	}
	if s.cores > 0 {
		sample.CPUAvg = sum / float64(s.cores)
	}

	sample.MemUsed, sample.MemTotal, sample.MemPercent = s.readMemory()

	if freq, err := s.gpuFreq.Resolve(ctx); err == nil {
		sample.GPUFreqMHz = &freq
	}
	sample.GPUMemory = s.readGPUMemory(ctx)
	sample.VoltageV = s.readFirmwareValue(ctx, "measure_volts", "core")
	sample.CurrentA = s.readFirmwareValue(ctx, "pmic_read_adc", "VDD_CORE_A")

	return sample
}

func (s *Sampler) detectCores() int {
	f, err := os.Open(filepath.Join(s.proc, "stat"))
	if err != nil {
		return runtime.NumCPU()
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if strings.HasPrefix(fields[0], "cpu") && fields[0] != "cpu" {
			count++
		}
	}
	if count == 0 {
		return runtime.NumCPU()
	}
	return count
}

// readTemperature reads every thermal zone under the sysfs root and
// reports the hottest one. Worst-case reporting: a burn-in run cares
// about the hottest spot, not the average.
func (s *Sampler) readTemperature() float64 {
	zones := []string{
		filepath.Join(s.sysfs, "class/thermal/thermal_zone0/temp"),
		filepath.Join(s.sysfs, "class/thermal/thermal_zone1/temp"),
	}

	max := 0.0
	for _, zone := range zones {
		raw, err := os.ReadFile(zone)
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		if temp := milli / milliDegreesPerDegree; temp > max {
			max = temp
		}
	}

	return max
}

// readCoreUtilization fills util with the per-core busy share of the jiffy
// delta since the previous call. Cores whose counters cannot be read stay 0.
func (s *Sampler) readCoreUtilization(util []float64) {
	f, err := os.Open(filepath.Join(s.proc, "stat"))
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 8 || !strings.HasPrefix(fields[0], "cpu") || fields[0] == "cpu" {
			continue
		}

		core, err := strconv.Atoi(strings.TrimPrefix(fields[0], "cpu"))
		if err != nil || core < 0 || core >= len(util) {
			continue
		}

		var vals [7]uint64
		for i := 0; i < 7; i++ {
			vals[i], _ = strconv.ParseUint(fields[i+1], 10, 64)
		}
		// user + nice + system + irq + softirq; idle + iowait are the rest.
		busy := vals[0] + vals[1] + vals[2] + vals[5] + vals[6]
		total := busy + vals[3] + vals[4]

		dBusy := busy - s.prevBusy[core]
		dTotal := total - s.prevTotal[core]
		if s.prevTotal[core] > 0 && dTotal > 0 && busy >= s.prevBusy[core] {
			util[core] = 100 * float64(dBusy) / float64(dTotal)
		}

		s.prevBusy[core] = busy
		s.prevTotal[core] = total
	}
}

func (s *Sampler) readCoreFrequency(core int) float64 {
	path := filepath.Join(s.sysfs, "devices/system/cpu",
		fmt.Sprintf("cpu%d", core), "cpufreq/scaling_cur_freq")

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	khz, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0
	}

	return khz / kiloHertzPerMegaHertz
}

// readThrottle decodes the firmware throttle mask, preferring the sysfs
// file and falling back to the firmware tool.
func (s *Sampler) readThrottle(ctx context.Context) thermal.Flags {
	path := filepath.Join(s.sysfs, "devices/platform/soc/soc:firmware/get_throttled")
	if raw, err := os.ReadFile(path); err == nil {
		if mask, err := parseThrottleMask(string(raw)); err == nil {
			return thermal.DecodeThrottleBits(mask)
		}
	}

	if s.commands {
		if out, err := s.runFirmware(ctx, "get_throttled"); err == nil {
			if mask, err := parseThrottleMask(out); err == nil {
				return thermal.DecodeThrottleBits(mask)
			}
		}
	}

	return thermal.Flags{}
}

func parseThrottleMask(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndexByte(raw, '='); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = strings.TrimPrefix(raw, "0x")

	return strconv.ParseUint(raw, 16, 64)
}

func (s *Sampler) readMemory() (used, total uint64, percent float64) {
	f, err := os.Open(filepath.Join(s.proc, "meminfo"))
	if err != nil {
		return 0, 0, 0
	}
	defer f.Close()

	var totalKB, availKB uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			availKB, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}

	if totalKB == 0 || availKB > totalKB {
		return 0, 0, 0
	}

	total = totalKB * 1024
	used = (totalKB - availKB) * 1024
	percent = 100 * float64(used) / float64(total)

	return used, total, percent
}

func (s *Sampler) gpuFreqProbes() []probe.Probe {
	probes := []probe.Probe{
		// Pi 5 exposes the V3D block as a devfreq device.
		{Name: "devfreq-pi5", Kind: probe.File, Path: filepath.Join(s.sysfs, "class/devfreq/13040000.gpu/cur_freq")},
		// Older firmware revisions use a different node address.
		{Name: "devfreq-legacy", Kind: probe.File, Path: filepath.Join(s.sysfs, "class/devfreq/fec00000.v3d/cur_freq")},
	}
	if s.commands {
		probes = append(probes,
			probe.Probe{Name: "vcgencmd-v3d", Kind: probe.Command, Argv: []string{s.firmware, "measure_clock", "v3d"}},
			probe.Probe{Name: "vcgencmd-core", Kind: probe.Command, Argv: []string{s.firmware, "measure_clock", "core"}},
		)
	}
	return probes
}

func (s *Sampler) readGPUMemory(ctx context.Context) string {
	if !s.commands {
		return ""
	}

	out, err := s.runFirmware(ctx, "get_mem", "gpu")
	if err != nil {
		return ""
	}
	out = strings.TrimSpace(out)
	if idx := strings.LastIndexByte(out, '='); idx >= 0 {
		out = out[idx+1:]
	}

	return out
}

func (s *Sampler) readFirmwareValue(ctx context.Context, args ...string) *float64 {
	if !s.commands {
		return nil
	}

	out, err := s.runFirmware(ctx, args...)
	if err != nil {
		return nil
	}
	value, err := probe.ParseValue(out)
	if err != nil {
		return nil
	}

	return &value
}

func (s *Sampler) runFirmware(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.firmware, args...).Output()
	if err != nil {
		return "", err
	}

	return string(out), nil
}
