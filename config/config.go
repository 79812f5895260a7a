// Package config loads the compositor's configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"

	"deedles.dev/wlc/pointer"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml"
)

// File is the location of the configuration file relative to the XDG
// config directories.
const File = "wlc/config.toml"

type Config struct {
	BGColor     []float64 `toml:"bg_color"`
	Renderer    string    `toml:"renderer"`
	Terminal    string    `toml:"terminal"`
	XKBLayout   string    `toml:"xkb_layout"`
	XKBOptions  string    `toml:"xkb_options"`
	RepeatRate  int32     `toml:"repeat_rate"`
	RepeatDelay int32     `toml:"repeat_delay"`
	CursorTheme string    `toml:"cursor_theme"`
	CursorSize  int       `toml:"cursor_size"`

	// Pointer holds per-device settings keyed by the name that the
	// kernel reports for the device.
	Pointer map[string]pointer.Config `toml:"pointer"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	return &Config{
		BGColor:     []float64{0.2, 0.1, 0.2},
		Renderer:    "accel",
		Terminal:    "foot",
		XKBLayout:   "us",
		RepeatRate:  25,
		RepeatDelay: 600,
		CursorTheme: "default",
		CursorSize:  24,
	}
}

// Load reads the configuration at path. If path is empty, the file is
// searched for in the XDG config directories and the defaults are
// returned if it isn't found anywhere.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := xdg.SearchConfigFile(File)
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	defer file.Close()

	cfg, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	return cfg, nil
}

// Decode reads a configuration from r. Settings that r doesn't mention
// keep their defaults. Unknown settings are an error.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	err := toml.NewDecoder(r).Strict(true).Decode(cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.BGColor) != 3 {
		return fmt.Errorf("bg_color must have 3 components, not %v", len(cfg.BGColor))
	}
	for _, c := range cfg.BGColor {
		if c < 0 || c > 1 {
			return fmt.Errorf("bg_color component %v out of range [0, 1]", c)
		}
	}

	switch cfg.Renderer {
	case "", "accel", "software":
	default:
		return fmt.Errorf("unknown renderer %q", cfg.Renderer)
	}

	if cfg.RepeatRate < 0 {
		return fmt.Errorf("negative repeat_rate %v", cfg.RepeatRate)
	}
	if cfg.RepeatDelay < 0 {
		return fmt.Errorf("negative repeat_delay %v", cfg.RepeatDelay)
	}
	if cfg.CursorSize <= 0 {
		return fmt.Errorf("invalid cursor_size %v", cfg.CursorSize)
	}
	return nil
}

// Background returns the background color as an opaque pixel.
func (cfg *Config) Background() shmimage.ARGB8888Color {
	c := func(v float64) uint8 {
		return uint8(math.Round(v * 0xFF))
	}
	return shmimage.NewARGB8888Color(c(cfg.BGColor[0]), c(cfg.BGColor[1]), c(cfg.BGColor[2]), 0xFF)
}

// PointerConfig returns the settings for the named device. A device
// with no settings gets the zero Config.
func (cfg *Config) PointerConfig(name string) pointer.Config {
	return cfg.Pointer[name]
}
