package telemetry

import (
	"context"

	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
)

// Archiver persists samples alongside the CSV sink. Archive failures are
// reported but never fatal; the CSV sink carries the durability contract.
type Archiver interface {
	Record(ctx context.Context, sample *sensors.Sample, severity thermal.Severity) error
	Close() error
}

// Repository is the storage backend behind an Archiver.
type Repository interface {
	Store(ctx context.Context, sample *sensors.Sample, severity thermal.Severity) error
	Close() error
}
