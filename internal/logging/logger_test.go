package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"agenda/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testApp = config.AppConfig{Name: "agenda", Environment: "test", Version: "0.1.0"}

func TestNew_Outputs(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LoggingConfig
		level zerolog.Level
	}{
		{"stdout by default", config.LoggingConfig{}, zerolog.InfoLevel},
		{"stderr", config.LoggingConfig{Level: "debug", Output: "stderr"}, zerolog.DebugLevel},
		{"console", config.LoggingConfig{Level: "WARN", Format: "console"}, zerolog.WarnLevel},
		{"unknown level falls back to info", config.LoggingConfig{Level: "loud"}, zerolog.InfoLevel},
		{"blank level falls back to info", config.LoggingConfig{Level: "  "}, zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := New(tt.cfg, testApp)
			require.NoError(t, err)
			assert.Nil(t, closer)
			assert.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestNew_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "agenda.log")
	logger, closer, err := New(config.LoggingConfig{Output: "file", FilePath: logPath}, testApp)
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Info().Int64("booking_id", 7).Msg("booking created")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &line))
	assert.Equal(t, "agenda", line["app"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "0.1.0", line["version"])
	assert.Equal(t, "booking created", line["message"])
	assert.EqualValues(t, 7, line["booking_id"])

	t.Run("MissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, testApp)
		assert.Error(t, err)
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Component(&base, "sync_worker").Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"sync_worker"`)

	assert.NotPanics(t, func() {
		Component(nil, "x").Info().Msg("dropped")
	})
}
