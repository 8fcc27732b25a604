package recorder

import "codeberg.org/navik/boardburn/internal/errors"

const (
	ErrSinkOpen  = errors.ErrorCode("recorder_sink_open_failed")
	ErrSinkWrite = errors.ErrorCode("recorder_sink_write_failed")
	ErrSinkClose = errors.ErrorCode("recorder_sink_close_failed")
)
