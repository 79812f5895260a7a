package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	const data = `
bg_color = [1.0, 0.0, 0.5]
renderer = "software"
xkb_layout = "us,de"
repeat_rate = 30

[pointer."SynPS/2 Synaptics TouchPad"]
tap_to_click = true
accel_speed = 0.5
`

	cfg, err := Decode(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Renderer != "software" {
		t.Fatalf("renderer = %q", cfg.Renderer)
	}
	if cfg.XKBLayout != "us,de" {
		t.Fatalf("xkb_layout = %q", cfg.XKBLayout)
	}
	if cfg.RepeatRate != 30 || cfg.RepeatDelay != 600 {
		t.Fatalf("repeat = %v, %v", cfg.RepeatRate, cfg.RepeatDelay)
	}
	if bg := cfg.Background(); bg != 0xFFFF0080 {
		t.Fatalf("background = %#x", uint32(bg))
	}

	pc := cfg.PointerConfig("SynPS/2 Synaptics TouchPad")
	if !pc.Tap() || pc.Natural() || pc.Speed() != 0.5 {
		t.Fatalf("pointer config = %+v", pc)
	}
	if pc := cfg.PointerConfig("other"); pc.Tap() {
		t.Fatalf("unconfigured pointer taps")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"UnknownKey", `wallpaper = "x.png"`},
		{"ShortColor", `bg_color = [0.1, 0.2]`},
		{"ColorRange", `bg_color = [2.0, 0.0, 0.0]`},
		{"Renderer", `renderer = "vulkan"`},
		{"RepeatRate", `repeat_rate = -1`},
		{"Syntax", `bg_color = [`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(test.data))
			if err == nil {
				t.Fatalf("decoded %q", test.data)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Renderer != Default().Renderer {
		t.Fatalf("missing file did not give defaults: %+v", cfg)
	}

	path := filepath.Join(dir, "config.toml")
	err = os.WriteFile(path, []byte(`terminal = "alacritty"`), 0600)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Terminal != "alacritty" {
		t.Fatalf("terminal = %q", cfg.Terminal)
	}
}
