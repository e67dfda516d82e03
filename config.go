package dieselrhi

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that reads as a TOML string ("10s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return errors.Wrapf(err, "config: duration %q", b)
	}
	*d = Duration(v)
	return nil
}

// LogConfig selects where and how verbosely the device logs.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// File is appended to when set; stderr otherwise.
	File string `toml:"file"`
}

// Config holds every device setting. The zero value is not usable; start
// from DefaultConfig or LoadConfig.
type Config struct {
	AppName string `toml:"app_name"`

	// FramesInFlight is the depth N of the frame ring.
	FramesInFlight  int  `toml:"frames_in_flight"`
	SwapchainImages int  `toml:"swapchain_images"`
	Width           int  `toml:"width"`
	Height          int  `toml:"height"`
	VSync           bool `toml:"vsync"`

	// Validation enables the backend's validation layers.
	Validation bool `toml:"validation"`
	// Debug enables caller-contract assertions and full-key checks in the
	// layout cache.
	Debug bool `toml:"debug"`

	FenceTimeout Duration `toml:"fence_timeout"`

	PreferDiscrete bool `toml:"prefer_discrete"`

	// StagingBlockSize and DeviceBlockSize size the sub-allocator blocks of
	// the Vulkan backend.
	StagingBlockSize uint64 `toml:"staging_block_size"`
	DeviceBlockSize  uint64 `toml:"device_block_size"`

	Log LogConfig `toml:"log"`
}

func DefaultConfig() Config {
	return Config{
		AppName:          "dieselrhi",
		FramesInFlight:   2,
		SwapchainImages:  3,
		Width:            1280,
		Height:           720,
		VSync:            true,
		FenceTimeout:     Duration(10 * time.Second),
		PreferDiscrete:   true,
		StagingBlockSize: 16 << 20,
		DeviceBlockSize:  64 << 20,
		Log:              LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys missing from the
// file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: read %s", path)
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes TOML into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(err, "config: decode")
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > 8 {
		return errors.Newf("config: frames_in_flight must be in [1,8], got %d", c.FramesInFlight)
	}
	if c.SwapchainImages < 2 {
		return errors.Newf("config: swapchain_images must be at least 2, got %d", c.SwapchainImages)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("config: invalid size %dx%d", c.Width, c.Height)
	}
	if c.FenceTimeout <= 0 {
		return errors.New("config: fence_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// Encode writes cfg as TOML.
func (c Config) Encode() ([]byte, error) {
	b, err := toml.Marshal(c)
	return b, errors.Wrap(err, "config: encode")
}
