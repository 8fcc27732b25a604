// Package recorder owns the CSV sink. The header is written exactly once
// per run; every appended row reaches durable storage before Append
// returns, so a crash loses at most the in-flight row.
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"codeberg.org/navik/boardburn/internal/errors"
	"codeberg.org/navik/boardburn/internal/sensors"
)

const (
	// Unavailable readings are rendered as this literal.
	notAvailable = "N/A"

	timestampLayout = "2006-01-02 15:04:05"
	bytesPerGB      = float64(1 << 30)
)

type Recorder struct {
	file   *os.File
	writer *csv.Writer
	cores  int
	rows   int
}

// New truncates path, writes the column header for the given core count
// and syncs it. The core count is assumed stable for the run.
func New(path string, cores int) (*Recorder, error) {
	errFactory := errors.New()

	f, err := os.Create(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrSinkOpen, err)
	}

	r := &Recorder{
		file:   f,
		writer: csv.NewWriter(f),
		cores:  cores,
	}

	if err := r.writeRow(Header(cores)); err != nil {
		f.Close()
		return nil, err
	}

	return r, nil
}

// Header returns the column schema for a core count: a fixed prefix, two
// columns per core, and a fixed suffix.
func Header(cores int) []string {
	header := []string{"timestamp", "temperature_c", "cpu_avg_percent", "elapsed_seconds"}
	for i := 0; i < cores; i++ {
		header = append(header,
			fmt.Sprintf("cpu_core_%d_percent", i),
			fmt.Sprintf("cpu_core_%d_freq_mhz", i),
		)
	}
	header = append(header,
		"throttling_under_voltage", "throttling_freq_capped",
		"throttling_active", "throttling_soft_limit",
		"memory_percent", "memory_used_gb", "memory_total_gb",
		"gpu_memory", "gpu_frequency", "voltage", "current_a",
	)

	return header
}

// Append writes one sample row and flushes it to disk before returning.
func (r *Recorder) Append(sample *sensors.Sample) error {
	if err := r.writeRow(r.formatRow(sample)); err != nil {
		return err
	}
	r.rows++

	return nil
}

// Rows reports how many sample rows have been appended.
func (r *Recorder) Rows() int {
	return r.rows
}

func (r *Recorder) Close() error {
	if err := r.file.Close(); err != nil {
		return errors.New().Wrap(ErrSinkClose, err)
	}
	return nil
}

func (r *Recorder) writeRow(row []string) error {
	errFactory := errors.New()

	if err := r.writer.Write(row); err != nil {
		return errFactory.Wrap(ErrSinkWrite, err)
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		return errFactory.Wrap(ErrSinkWrite, err)
	}
	if err := r.file.Sync(); err != nil {
		return errFactory.Wrap(ErrSinkWrite, err)
	}

	return nil
}

func (r *Recorder) formatRow(s *sensors.Sample) []string {
	row := []string{
		s.Timestamp.Format(timestampLayout),
		strconv.FormatFloat(s.TempC, 'f', 1, 64),
		strconv.FormatFloat(s.CPUAvg, 'f', 1, 64),
		strconv.FormatFloat(s.Elapsed, 'f', 1, 64),
	}

	// The sample's slices match the detected core count for the run, but
	// guard the row shape against a short sample anyway.
	for i := 0; i < r.cores; i++ {
		util, freq := 0.0, 0.0
		if i < len(s.CoreUtil) {
			util = s.CoreUtil[i]
		}
		if i < len(s.CoreFreqMHz) {
			freq = s.CoreFreqMHz[i]
		}
		row = append(row,
			strconv.FormatFloat(util, 'f', 1, 64),
			strconv.FormatFloat(freq, 'f', 0, 64),
		)
	}

	row = append(row,
		formatBool(s.Throttle.UnderVoltage),
		formatBool(s.Throttle.FreqCapped),
		formatBool(s.Throttle.Throttling),
		formatBool(s.Throttle.SoftLimit),
		strconv.FormatFloat(s.MemPercent, 'f', 1, 64),
		strconv.FormatFloat(float64(s.MemUsed)/bytesPerGB, 'f', 2, 64),
		strconv.FormatFloat(float64(s.MemTotal)/bytesPerGB, 'f', 2, 64),
		formatString(s.GPUMemory),
		formatOptional(s.GPUFreqMHz, 0),
		formatOptional(s.VoltageV, 4),
		formatOptional(s.CurrentA, 3),
	)

	return row
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatString(v string) string {
	if v == "" {
		return notAvailable
	}
	return v
}

func formatOptional(v *float64, precision int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}
