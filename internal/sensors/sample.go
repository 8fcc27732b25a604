package sensors

import (
	"time"

	"codeberg.org/navik/boardburn/internal/thermal"
)

// Sample is one telemetry snapshot. Every field is always set: readings
// whose source could not be read carry their zero sentinel, and the
// optional pointer fields are nil when the board has no such sensor.
// Formatting (including the "N/A" rendering of nil fields) happens at the
// serialization boundary, not here.
type Sample struct {
	Timestamp time.Time
	Elapsed   float64

	// Temperature in °C, worst case across the available thermal zones.
	TempC float64

	// Per-core readings, both slices are always coreCount long.
	CPUAvg      float64
	CoreUtil    []float64
	CoreFreqMHz []float64

	Throttle thermal.Flags

	MemUsed    uint64
	MemTotal   uint64
	MemPercent float64

	// Best-effort firmware readings, nil/empty when unavailable.
	GPUMemory  string
	GPUFreqMHz *float64
	VoltageV   *float64
	CurrentA   *float64
}
