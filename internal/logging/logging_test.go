package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fusion/internal/logging"
)

func TestLogToBuffer(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	log, err := logging.New().FromWriter(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, log)

	require.Equal(t, 0, buff.Len())
	log.Logger.Info().Str("backend", "sqlite").Msg("Test")
	assert.Contains(t, buff.String(), `"message":"Test"`)
	assert.Contains(t, buff.String(), `"backend":"sqlite"`)

	log.Logger.Debug().Msg("hidden")
	assert.NotContains(t, buff.String(), "hidden")
}

func TestLogToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	buff := bytes.NewBuffer([]byte{})

	log, err := logging.New().FromPath(path).FromWriter(buff).Level(zerolog.DebugLevel).Make()
	require.NoError(t, err)

	log.Logger.Debug().Msg("both")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "both")
	assert.Contains(t, buff.String(), "both")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"WARNING":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"CRITICAL": zerolog.FatalLevel,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}
