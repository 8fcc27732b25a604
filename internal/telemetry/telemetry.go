package telemetry

import (
	"context"

	"codeberg.org/navik/boardburn/internal/errors"
	"codeberg.org/navik/boardburn/internal/logger"
	"codeberg.org/navik/boardburn/internal/sensors"
	"codeberg.org/navik/boardburn/internal/thermal"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopArchiver struct{}

// Noop returns an Archiver that discards every sample.
func Noop() Archiver {
	return &noopArchiver{}
}

// NewService returns an Archiver for the configuration; a disabled archive
// yields a no-op collector so callers need no conditional.
func NewService(cfg Config) (Archiver, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Sample archive disabled, using no-op archiver")
		return &noopArchiver{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, sample *sensors.Sample, severity thermal.Severity) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Store(ctx, sample, severity); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopArchiver) Record(_ context.Context, _ *sensors.Sample, _ thermal.Severity) error {
	return nil
}

func (*noopArchiver) Close() error {
	return nil
}
