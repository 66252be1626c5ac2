package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_Layout(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := newLogger(zapcore.AddSync(&out), zapcore.AddSync(&errOut), "info", "projcache")

	logger.Debug("hidden")
	logger.Warn("cache degraded", zap.String("namespace", "course"))
	logger.Error("boom")
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1, "debug is filtered and errors go to the error stream")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cache degraded", entry["message"])
	assert.Equal(t, "projcache", entry["service"])
	assert.Equal(t, "course", entry["namespace"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "caller")

	assert.Contains(t, errOut.String(), `"message":"boom"`)
	assert.Contains(t, errOut.String(), `"stacktrace"`)
}
