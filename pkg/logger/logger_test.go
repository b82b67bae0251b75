package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "debug", Format: "json"}, &buf))
	t.Cleanup(func() { _ = Close() })

	WithFields(logrus.Fields{"order_id": 101}).Info("reconciled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reconciled", entry["msg"])
	assert.Equal(t, float64(101), entry["order_id"])
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())
}

func TestInitWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "loud"}, &buf))
	t.Cleanup(func() { _ = Close() })

	Debugf("hidden")
	Infof("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(Config{Level: "info", OutputFile: path, MaxSize: 1}, &buf))

	Warnf("to file")
	assert.Equal(t, path, GetCurrentLogFile())
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
