package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"achievements/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.Log{Level: "info"})
		log.Info("granted", "key", "achievements-core.x")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "granted", line["msg"])
		assert.Equal(t, "achievements-core.x", line["key"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.Log{Level: "info", Format: "TEXT"})
		log.Info("granted")
		assert.Contains(t, buf.String(), "msg=granted")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.Log{Level: "warn"})
		log.Info("hidden")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.Log{Level: "loud"})
		log.Debug("hidden")
		assert.Empty(t, buf.String())
	})
}
