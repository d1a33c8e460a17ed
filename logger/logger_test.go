package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WithLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	err := Init(Config{LogDir: logDir})
	require.NoError(t, err)
	t.Cleanup(func() { Logger = nil })

	_, err = os.Stat(logDir)
	assert.NoError(t, err, "log directory should be created")
	require.NotNil(t, Logger)

	Info("test info message", "key", "value")
	Warn("test warning message")

	_, err = os.Stat(filepath.Join(logDir, "obligation-engine.log"))
	assert.NoError(t, err, "log file should exist after first write")
}

func TestInit_DebugStderrOnly(t *testing.T) {
	err := Init(Config{Debug: true})
	require.NoError(t, err)
	t.Cleanup(func() { Logger = nil })

	require.NotNil(t, Logger)
	Debug("test debug message in debug mode")
	assert.NotNil(t, StandardLog())
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("test debug message")
	Info("test info message")
	Warn("test warning message")
	Error("test error message")

	std := StandardLog()
	require.NotNil(t, std)
	std.Print("discarded")
}
