package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/contentsync/pkg/logger"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := logger.NewLogger(logger.Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contentsync.log")

	log, err := logger.NewLogger(logger.Config{Level: "debug", Format: "json", Filename: path})
	require.NoError(t, err)

	log.Info("queue item processed")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"queue item processed"`)
	assert.Contains(t, string(data), `"level":"info"`)
}
