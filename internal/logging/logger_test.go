package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production_JSONHandler(t *testing.T) {
	logger := NewLogger("production", slog.LevelInfo)
	require.NotNil(t, logger)

	handler := logger.Handler()
	_, ok := handler.(*slog.JSONHandler)
	assert.True(t, ok, "production logger should use JSONHandler, got %T", handler)
}

func TestNewLogger_Development_TextHandler(t *testing.T) {
	logger := NewLogger("development", slog.LevelDebug)
	require.NotNil(t, logger)

	handler := logger.Handler()
	_, ok := handler.(*slog.TextHandler)
	assert.True(t, ok, "development logger should use TextHandler, got %T", handler)
}

func TestNewLogger_LevelFloor(t *testing.T) {
	logger := NewLogger("production", slog.LevelWarn)
	assert.True(t, logger.Handler().Enabled(nil, slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(nil, slog.LevelInfo))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
