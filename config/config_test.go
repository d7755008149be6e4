package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "TASKS_FILE", "COOP_GROUP", "CASCADE_RETRY_INTERVAL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(nil, noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FlagsThenEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/var/lib/payroll.db")
	t.Setenv("CASCADE_RETRY_INTERVAL", "30s")

	cfg, err := load([]string{"-port", "9090", "-db", ":memory:", "-coop-group", "coop-atlas", "-log-format", "text"}, noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/var/lib/payroll.db", cfg.DBPath)
	assert.Equal(t, "coop-atlas", cfg.CoopGroup)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("TASKS_FILE")
	os.Unsetenv("LOG_LEVEL")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TASKS_FILE=tasks.yaml\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("TASKS_FILE")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := load(nil, path)

	require.NoError(t, err)
	assert.Equal(t, "tasks.yaml", cfg.TasksFile)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"port not a number", nil, map[string]string{"PORT": "http"}},
		{"port out of range", []string{"-port", "70000"}, nil},
		{"bad interval", nil, map[string]string{"CASCADE_RETRY_INTERVAL": "soon"}},
		{"unknown flag", []string{"-verbose"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load(tt.args, noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("hidden")
	logger.WithField("report_id", "r1").Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "r1", entry["report_id"])

	assert.Equal(t, logrus.InfoLevel, newLogger("loud", "text", &buf).GetLevel())
	_, isText := newLogger("debug", "TEXT", &buf).Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("info", "json", &buf)

	LogError(logger, "api", "GenerateBiMonthly", "cascade", map[string]string{"report_id": "r1"}, errors.New("disk full"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "disk full", entry["msg"])
	assert.Equal(t, "GenerateBiMonthly", entry["funcName"])
	assert.Equal(t, "error", entry["level"])
}
