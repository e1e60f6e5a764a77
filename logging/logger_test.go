package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Jelela/mishorasmed/logging"
)

func TestNew(t *testing.T) {
	logger, err := logging.New("debug", "console", "closing-engine")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = logging.New("warn", "json", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_RejectsUnknownValues(t *testing.T) {
	_, err := logging.New("verbose", "json", "")
	assert.Error(t, err)

	_, err = logging.New("info", "xml", "")
	assert.Error(t, err)
}
