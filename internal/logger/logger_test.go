package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(Close)

	l := Component("driver")
	l.Info().Str("state", "PLACING").Msg("transition")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"driver"`)
	assert.Contains(t, string(data), `"state":"PLACING"`)
	assert.Contains(t, string(data), `"app":"candlebot"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "loud", Output: "stderr"})
	assert.Error(t, err)
}

func TestInitLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, Init(Config{Level: "warn", Output: path}))
	Log.Info().Msg("hidden")
	Log.Warn().Msg("shown")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}
