package probe

import "codeberg.org/navik/boardburn/internal/errors"

const (
	ErrNoProbe      = errors.ErrorCode("probe_no_candidate_resolved")
	ErrUnparseable  = errors.ErrorCode("probe_unparseable_value")
	ErrProbeTimeout = errors.ErrorCode("probe_command_timeout")
)
