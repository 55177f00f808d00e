package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/kestrelmoor/harvester-cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resetGlobalLogger restores the singleton between tests.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// testSyncer is an in-memory WriteSyncer for asserting on console output.
type testSyncer struct {
	bytes.Buffer
}

func (t *testSyncer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format produces a readable line", func(t *testing.T) {
		resetGlobalLogger()
		var buf testSyncer
		cfg := config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "harvester"}
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Info("Session restored.")

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "harvester.")
		assert.Contains(t, out, "Session restored.")
	})

	t.Run("json format produces parseable entries", func(t *testing.T) {
		resetGlobalLogger()
		var buf testSyncer
		cfg := config.LoggerConfig{Level: "info", Format: "json", ServiceName: "harvester"}
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Warn("Artifact rejected.", zap.String("path", "/tmp/session.json"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "harvester", entry["logger"])
		assert.Equal(t, "Artifact rejected.", entry["msg"])
		assert.Equal(t, "/tmp/session.json", entry["path"])
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		resetGlobalLogger()
		logFile := t.TempDir() + "/harvester.log"
		var buf testSyncer
		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}
		Initialize(cfg, zapcore.Lock(&buf))

		GetLogger().Error("This should reach the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should reach the file.")
	})

	t.Run("second initialization is ignored", func(t *testing.T) {
		resetGlobalLogger()
		var buf testSyncer
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, zapcore.Lock(&buf))
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.Lock(&buf))
		assert.Equal(t, first, GetLogger())
	})
}

func TestGetLoggerFallback(t *testing.T) {
	resetGlobalLogger()
	logger := GetLogger()
	require.NotNil(t, logger)
}
