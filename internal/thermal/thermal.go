// Package thermal classifies temperature readings against the configured
// safety thresholds and decodes the firmware throttling bitmask.
package thermal

// Severity is the ordered classification of a temperature reading.
type Severity int

const (
	Normal Severity = iota
	Warning
	Alert
	Critical
)

// warningMargin is how far below the warning threshold the Warning band starts.
const warningMargin = 10.0

func (s Severity) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Alert:
		return "ALERT"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a temperature to a severity level. The bands are, from hot
// to cold: Critical at or above maxSafeTemp, Alert at or above warnTemp,
// Warning within warningMargin below warnTemp, Normal below that.
// Monotonic: a hotter reading never yields a lower severity.
func Classify(temp, warnTemp, maxSafeTemp float64) Severity {
	switch {
	case temp >= maxSafeTemp:
		return Critical
	case temp >= warnTemp:
		return Alert
	case temp >= warnTemp-warningMargin:
		return Warning
	default:
		return Normal
	}
}

// Flags are the four independent conditions reported by the firmware
// throttling bitmask. All four may be set at once.
type Flags struct {
	UnderVoltage bool
	FreqCapped   bool
	Throttling   bool
	SoftLimit    bool
}

// Any reports whether at least one condition is active.
func (f Flags) Any() bool {
	return f.UnderVoltage || f.FreqCapped || f.Throttling || f.SoftLimit
}

// DecodeThrottleBits decodes bits 0-3 of the firmware throttle mask.
// Higher bits (the "has occurred" history bits) are ignored.
func DecodeThrottleBits(mask uint64) Flags {
	return Flags{
		UnderVoltage: mask&0x1 != 0,
		FreqCapped:   mask&0x2 != 0,
		Throttling:   mask&0x4 != 0,
		SoftLimit:    mask&0x8 != 0,
	}
}
