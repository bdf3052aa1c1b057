package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
[settings]

[[channel]]
name = "main"
output_name = "mixer-out"
width = 1920
height = 1080
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, 8080, cfg.Settings.StatusPort)
	assert.Equal(t, 30, cfg.Channel[0].FrameRate)
}

func TestLoadRejectsMissingChannelName(t *testing.T) {
	path := writeTemp(t, `
[[channel]]
output_name = "mixer-out"
width = 1920
height = 1080
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "name")
}

func TestLoadRejectsDuplicateChannelNames(t *testing.T) {
	path := writeTemp(t, `
[[channel]]
name = "main"
output_name = "out-a"
width = 1920
height = 1080

[[channel]]
name = "main"
output_name = "out-b"
width = 1280
height = 720
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeTemp(t, `
[settings]
log_level = "verbose"

[[channel]]
name = "main"
output_name = "out"
width = 100
height = 100
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadParsesOverlayAndFilterBindings(t *testing.T) {
	path := writeTemp(t, `
[[channel]]
name = "main"
output_name = "out"
width = 1920
height = 1080

[channel.ndi_input]
source = "Cam"
z_index = 0

[[channel.browser_overlay]]
url = "https://example.com/overlay"
width = 1920
height = 1080
reload_interval = 60

[[channel.browser_overlay.filter]]
name = "vignette"
params = [0.6, 0.2]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	ch := cfg.Channel[0]
	require.NotNil(t, ch.NDIInput)
	assert.Equal(t, "Cam", ch.NDIInput.Source)
	assert.Equal(t, 1.0, ch.NDIInput.Opacity)
	require.Len(t, ch.BrowserOverlay, 1)
	assert.Equal(t, 1, ch.BrowserOverlay[0].ZIndex)
}
