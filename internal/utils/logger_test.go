package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, ParseLevel(input), "level %q", input)
	}
}

func TestInitLogger(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	require.NoError(t, InitLogger("debug"))
	require.NotNil(t, Logger)
	assert.True(t, Logger.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, Logger, GetLogger())
	Sync()
}
