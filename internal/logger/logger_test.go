package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"codeberg.org/navik/boardburn/internal/errors"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	old := log
	log = zerolog.New(&buf)
	t.Cleanup(func() { log = old })

	return &buf
}

func TestErrorWithCode(t *testing.T) {
	buf := captureOutput(t)
	SetLogLevel(ErrorLevel)

	err := errors.New().New(errors.ErrAlreadyRunning)
	ErrorWithCode(err).Msg("startup refused")

	out := buf.String()
	assert.Contains(t, out, "already_running")
	assert.Contains(t, out, "Another instance is already running")
	assert.Contains(t, out, "startup refused")
}

func TestErrorWithCodeWrappedCause(t *testing.T) {
	buf := captureOutput(t)
	SetLogLevel(ErrorLevel)

	err := errors.New().Wrap(errors.ErrReadConfig, assert.AnError)
	ErrorWithCode(err).Msg("")

	out := buf.String()
	assert.Contains(t, out, "read_config_failed")
	assert.Contains(t, out, assert.AnError.Error())
}
