package cmd

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConsoleWriterRendersEvents(t *testing.T) {
	buffer := strings.Builder{}
	writer := &ConsoleWriter{out: &buffer}
	logger := zerolog.New(writer)

	logger.Info().Str("task", "install").Msg("Installing pillow 7.2.0")
	assert.Contains(t, buffer.String(), "install: Installing pillow 7.2.0")

	buffer.Reset()
	logger.Info().Str("task", "install").Bool("command", true).Msg("python3 setup.py build_ext")
	assert.Contains(t, buffer.String(), "install: $ python3 setup.py build_ext")

	buffer.Reset()
	logger.Error().Msg("task failed")
	assert.Contains(t, buffer.String(), "Error: task failed")

	buffer.Reset()
	logger.Error().Err(eris.New("exit status 1")).Msg("check failed")
	assert.Contains(t, buffer.String(), "check failed")
	assert.Contains(t, buffer.String(), "exit status 1")
}
