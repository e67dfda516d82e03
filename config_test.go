package dieselrhi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.FramesInFlight)
	assert.Equal(t, Duration(10*time.Second), cfg.FenceTimeout)
}

func TestParseConfig(t *testing.T) {
	cfg := DefaultConfig()
	err := ParseConfig([]byte(`
app_name = "demo"
frames_in_flight = 3
vsync = false
fence_timeout = "250ms"

[log]
level = "debug"
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.False(t, cfg.VSync)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.FenceTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 1280, cfg.Width)
}

func TestParseConfigErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":  `frames = 2`,
		"bad duration": `fence_timeout = "soon"`,
		"ring depth":   `frames_in_flight = 0`,
		"size":         `width = -1`,
		"images":       `swapchain_images = 1`,
		"log level":    "[log]\nlevel = \"loud\"",
		"syntax":       `width = `,
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, ParseConfig([]byte(doc), &cfg))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rhi.toml")
	require.NoError(t, os.WriteFile(path, []byte("width = 640\nheight = 480\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AppName = "roundtrip"
	cfg.FenceTimeout = Duration(3 * time.Second)
	cfg.Log.File = "rhi.log"
	b, err := cfg.Encode()
	require.NoError(t, err)
	assert.Regexp(t, `fence_timeout = ['"]3s['"]`, string(b))

	var got Config
	require.NoError(t, ParseConfig(b, &got))
	assert.Equal(t, cfg, got)
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhi.log")
	log, closer, err := NewLogger(LogConfig{Level: "warn", File: path})
	require.NoError(t, err)
	log.Info("dropped")
	log.Warn("kept", "frame", 7)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "frame=7")
}
