package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonFormatWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := WithFields(NewLoggerWithOutput(Config{Format: "json", Level: "info"}, buf), map[string]interface{}{"id": "abc"})

	logger.Info("request complete", map[string]interface{}{"status": 200})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request complete", entry["msg"])
	assert.Equal(t, "abc", entry["id"])
	assert.EqualValues(t, 200, entry["status"])
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLoggerWithOutput(Config{Format: "logfmt", Level: "info", NoColor: true}, buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}
