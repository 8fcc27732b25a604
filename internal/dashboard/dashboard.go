// Package dashboard renders the live console view. Rendering is a pure
// function of the snapshot it is given: no sampling, no state, no side
// effects beyond the write.
package dashboard

import (
	"fmt"
	"io"
	"strings"
	"time"

	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
)

const (
	gaugeWidth = 30
	ruleWidth  = 62

	ansiClear  = "\033[2J\033[H"
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiRedBG  = "\033[41;97m"
)

// Snapshot is everything one frame needs.
type Snapshot struct {
	Sample   *sensors.Sample
	Severity thermal.Severity
	Elapsed  time.Duration
	LogPath  string
}

type Renderer struct {
	out   io.Writer
	color bool
	clear bool
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, color: true, clear: true}
}

// Plain disables ANSI control sequences; used by tests and dumb terminals.
func (r *Renderer) Plain() *Renderer {
	r.color = false
	r.clear = false
	return r
}

// Render writes one full-screen frame. It never fails: absent readings
// drop their section and write errors are ignored (the terminal is a
// best-effort surface, the CSV sink is the record).
func (r *Renderer) Render(snap Snapshot) {
	if snap.Sample == nil {
		return
	}

	var b strings.Builder

	if r.clear {
		b.WriteString(ansiClear)
	}

	rule := strings.Repeat("=", ruleWidth)
	b.WriteString(rule + "\n")
	b.WriteString("  BOARD BURN-IN\n")
	b.WriteString(rule + "\n\n")

	s := snap.Sample

	fmt.Fprintf(&b, "  Temperature  %s%5.1f°C  [%s]%s\n",
		r.severityColor(snap.Severity), s.TempC, snap.Severity, r.reset())

	if s.Throttle.Any() {
		fmt.Fprintf(&b, "  Throttled    %s%s%s\n",
			r.colorCode(ansiRed), strings.Join(throttleNames(s.Throttle), ", "), r.reset())
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "  CPU avg      %5.1f%%\n", s.CPUAvg)
	for i := range s.CoreUtil {
		freq := 0.0
		if i < len(s.CoreFreqMHz) {
			freq = s.CoreFreqMHz[i]
		}
		fmt.Fprintf(&b, "  core %-2d %s %5.1f%%  %4.0f MHz\n",
			i, gauge(s.CoreUtil[i]), s.CoreUtil[i], freq)
	}
	b.WriteString("\n")

	if s.MemTotal > 0 {
		fmt.Fprintf(&b, "  Memory  %s %5.1f%%  %.2f / %.2f GB\n",
			gauge(s.MemPercent), s.MemPercent,
			float64(s.MemUsed)/(1<<30), float64(s.MemTotal)/(1<<30))
	}

	if gpu := gpuLine(s); gpu != "" {
		fmt.Fprintf(&b, "  GPU     %s\n", gpu)
	}
	if power := powerLine(s); power != "" {
		fmt.Fprintf(&b, "  Power   %s\n", power)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  Elapsed  %s\n", formatElapsed(snap.Elapsed))
	fmt.Fprintf(&b, "  Log      %s\n", snap.LogPath)
	b.WriteString(rule + "\n")

	_, _ = io.WriteString(r.out, b.String())
}

func gauge(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * gaugeWidth)

	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", gaugeWidth-filled) + "]"
}

func throttleNames(f thermal.Flags) []string {
	var names []string
	if f.UnderVoltage {
		names = append(names, "under-voltage")
	}
	if f.FreqCapped {
		names = append(names, "freq-capped")
	}
	if f.Throttling {
		names = append(names, "throttling")
	}
	if f.SoftLimit {
		names = append(names, "soft-limit")
	}
	return names
}

func gpuLine(s *sensors.Sample) string {
	var parts []string
	if s.GPUFreqMHz != nil {
		parts = append(parts, fmt.Sprintf("%.0f MHz", *s.GPUFreqMHz))
	}
	if s.GPUMemory != "" {
		parts = append(parts, fmt.Sprintf("mem %s", s.GPUMemory))
	}
	return strings.Join(parts, "  ")
}

func powerLine(s *sensors.Sample) string {
	var parts []string
	if s.VoltageV != nil {
		parts = append(parts, fmt.Sprintf("%.4f V", *s.VoltageV))
	}
	if s.CurrentA != nil {
		parts = append(parts, fmt.Sprintf("%.3f A", *s.CurrentA))
	}
	return strings.Join(parts, "  ")
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (r *Renderer) severityColor(severity thermal.Severity) string {
	if !r.color {
		return ""
	}
	switch severity {
	case thermal.Critical:
		return ansiRedBG
	case thermal.Alert:
		return ansiRed
	case thermal.Warning:
		return ansiYellow
	default:
		return ansiGreen
	}
}

func (r *Renderer) colorCode(code string) string {
	if !r.color {
		return ""
	}
	return code
}

func (r *Renderer) reset() string {
	if !r.color {
		return ""
	}
	return ansiReset
}
