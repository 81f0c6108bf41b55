package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	prefs, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), prefs)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedspool.toml")
	err := os.WriteFile(path, []byte(`
keep_hours = 24
update_on_start = false
notification_enabled = false
probe_address = "example.com:80"
`), 0644)
	require.NoError(t, err)

	prefs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 24, prefs.KeepHours)
	assert.False(t, prefs.UpdateOnStart)
	assert.False(t, prefs.NotificationEnabled)
	assert.Equal(t, "example.com:80", prefs.ProbeAddress)
	// Unset fields keep their defaults.
	assert.Equal(t, Default().FetchTimeoutSeconds, prefs.FetchTimeoutSeconds)
}

func TestLoad_RejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("keep_hours = ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_SanitizesNonPositiveValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedspool.toml")
	require.NoError(t, os.WriteFile(path, []byte("keep_hours = -1"), 0644))

	prefs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().KeepHours, prefs.KeepHours)
}
