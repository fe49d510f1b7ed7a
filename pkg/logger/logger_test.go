package logger

import (
	"certify_backend/internal/config"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(config.LogConfig{Level: "warn", File: file, MaxSizeMB: 1}, "debug")
	require.NoError(t, err)

	l.Info("dropped below level")
	l.Warn("quiz generation slow", zap.String("course", "trafego-pago"))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "quiz generation slow", entry["msg"])
	assert.Equal(t, "trafego-pago", entry["course"])
	assert.Equal(t, "certify", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Console: true}, "debug")
	assert.Error(t, err)

	_, err = New(config.LogConfig{}, "debug")
	assert.Error(t, err)
}

func TestParseLevelFollowsMode(t *testing.T) {
	cases := []struct {
		name, mode string
		want       zapcore.Level
	}{
		{"", "debug", zapcore.DebugLevel},
		{"", "release", zapcore.InfoLevel},
		{"error", "debug", zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		got, err := parseLevel(tc.name, tc.mode)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	cfg := &config.Config{Log: config.LogConfig{File: filepath.Join(t.TempDir(), "app.log")}}
	require.NoError(t, InitLogger(cfg))
	assert.NotSame(t, prev, Log)

	before := Log
	cfg.Log.Level = "nope"
	assert.Error(t, InitLogger(cfg))
	assert.Same(t, before, Log)
}
