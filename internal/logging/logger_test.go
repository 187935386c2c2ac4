package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/l0p7/toptracks/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", CorrelationHeader: "X-Request-ID"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	for _, level := range []string{"", "debug", "WARN", "warning", "error"} {
		logger, err := New(config.LoggingConfig{Level: level, Format: "text"})
		require.NoError(t, err, level)
		require.NotNil(t, logger)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(config.LoggingConfig{Format: "binary"})
	require.Error(t, err)
}

func TestNewWithWriterTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json", CorrelationHeader: "X-Request-ID"}, &buf)
	require.NoError(t, err)

	logger.Debug("request complete", "artist", "drake")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "toptracks", entry["component"])
	require.Equal(t, "X-Request-ID", entry["correlation_header"])
	require.Equal(t, "drake", entry["artist"])
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("ignored")
	require.Zero(t, buf.Len())

	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}
