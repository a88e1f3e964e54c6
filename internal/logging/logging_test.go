package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlab/promptsync/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"WARNING", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input).String())
		})
	}
}

func TestNew_AutoUsesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "info", Format: "auto"}, &buf)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("exported", "records", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "exported", entry["msg"])
	assert.EqualValues(t, 3, entry["records"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	defer closer.Close()

	logger.Debug("visible", "name", "a/b@1.0.0")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "name=a/b@1.0.0")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "promptsync.log")
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "info", Format: "json", File: path}, &buf)

	logger.Warn("partial import", "failed", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "partial import")
	assert.Equal(t, buf.String(), string(data))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
