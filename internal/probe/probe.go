// Package probe resolves a telemetry value from an ordered list of
// candidate sources. Board revisions expose the same sensor under
// different sysfs paths or behind different firmware tools, so each
// consumer declares its candidates once and new variants become probe
// entries instead of new code paths.
package probe

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/navik/boardburn/internal/errors"
)

// Kind selects how a probe obtains its raw value.
type Kind int

const (
	// File reads and parses a sysfs-style file.
	File Kind = iota
	// Command runs an external tool and parses its stdout.
	Command
)

// Probe is a single named strategy for obtaining one telemetry value.
type Probe struct {
	Name string
	Kind Kind
	// Path is the file to read for File probes.
	Path string
	// Argv is the command line for Command probes.
	Argv []string
}

const defaultCommandTimeout = 2 * time.Second

// Resolver tries its candidates in order and returns the first value that
// parses. The index of the last hit is cached so dead candidates are not
// re-probed every tick.
type Resolver struct {
	probes  []Probe
	timeout time.Duration

	mu      sync.Mutex
	lastHit int
}

func NewResolver(probes []Probe) *Resolver {
	return &Resolver{
		probes:  probes,
		timeout: defaultCommandTimeout,
		lastHit: -1,
	}
}

// WithTimeout overrides the per-command timeout.
func (r *Resolver) WithTimeout(d time.Duration) *Resolver {
	r.timeout = d
	return r
}

// Resolve returns the first candidate value, unit-normalized. It never
// panics and never blocks longer than the command timeout per candidate;
// when every candidate fails it returns ErrNoProbe.
func (r *Resolver) Resolve(ctx context.Context) (float64, error) {
	r.mu.Lock()
	hit := r.lastHit
	r.mu.Unlock()

	if hit >= 0 && hit < len(r.probes) {
		if value, err := r.read(ctx, r.probes[hit]); err == nil {
			return Normalize(value), nil
		}
	}

	for i, p := range r.probes {
		if i == hit {
			continue
		}
		value, err := r.read(ctx, p)
		if err != nil {
			continue
		}

		r.mu.Lock()
		r.lastHit = i
		r.mu.Unlock()

		return Normalize(value), nil
	}

	r.mu.Lock()
	r.lastHit = -1
	r.mu.Unlock()

	return 0, errors.New().New(ErrNoProbe)
}

func (r *Resolver) read(ctx context.Context, p Probe) (float64, error) {
	switch p.Kind {
	case Command:
		return r.readCommand(ctx, p)
	default:
		return readFile(p.Path)
	}
}

func readFile(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return ParseValue(string(data))
}

func (r *Resolver) readCommand(ctx context.Context, p Probe) (float64, error) {
	if len(p.Argv) == 0 {
		return 0, errors.New().New(ErrUnparseable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...).Output()
	if ctx.Err() != nil {
		return 0, errors.New().Wrap(ErrProbeTimeout, ctx.Err())
	}
	if err != nil {
		return 0, err
	}

	return ParseValue(string(out))
}

// ParseValue extracts the first numeric token from raw probe output.
// Firmware tools wrap the number in labels ("frequency(0)=960000000",
// "volt=0.8560V"), sysfs files are bare integers.
func ParseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New().New(ErrUnparseable)
	}

	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}

	// Labeled output: keep only what follows the last '='.
	if idx := strings.LastIndexByte(raw, '='); idx >= 0 {
		raw = raw[idx+1:]
	}

	var (
		buf  strings.Builder
		seen bool
	)
	for _, c := range raw {
		if c >= '0' && c <= '9' || c == '.' {
			buf.WriteRune(c)
			seen = true
			continue
		}
		if seen {
			break
		}
	}
	if !seen {
		return 0, errors.New().New(ErrUnparseable)
	}

	v, err := strconv.ParseFloat(buf.String(), 64)
	if err != nil {
		return 0, errors.New().Wrap(ErrUnparseable, err)
	}
	return v, nil
}

// Normalize applies the unit heuristic for frequency-like values: raw
// readings above 10000 are Hz-scale (divide by 1e6 to reach MHz), readings
// in [1000, 10000) are kHz/milli-scale (divide by 1e3), anything smaller
// is already in target units.
func Normalize(raw float64) float64 {
	switch {
	case raw > 10_000:
		return raw / 1_000_000
	case raw >= 1_000:
		return raw / 1_000
	default:
		return raw
	}
}
