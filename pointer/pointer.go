// Package pointer contains utilities for handling pointer input.
package pointer

import "math"

// Button indicates a mouse button.
type Button uint32

// These values were pulled from linux/input-event-codes.h.
const (
	ButtonLeft Button = 0x110 + iota
	ButtonRight
	ButtonMiddle
	ButtonSide
	ButtonExtra
	ButtonForward
	ButtonBack
	ButtonTask
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonSide:
		return "side"
	case ButtonExtra:
		return "extra"
	case ButtonForward:
		return "forward"
	case ButtonBack:
		return "back"
	case ButtonTask:
		return "task"
	}

	return "unknown"
}

// Config is the configuration of a single pointer device. Unset fields
// use the device's defaults.
type Config struct {
	TapToClick    *bool    `toml:"tap_to_click"`
	NaturalScroll *bool    `toml:"natural_scroll"`
	AccelSpeed    *float64 `toml:"accel_speed"`
}

// Tap returns true if tapping a touchpad should click.
func (c Config) Tap() bool {
	return c.TapToClick != nil && *c.TapToClick
}

// Natural returns true if scrolling should move the content rather
// than the view.
func (c Config) Natural() bool {
	return c.NaturalScroll != nil && *c.NaturalScroll
}

// Speed returns the acceleration speed, clamped to [-1, 1].
func (c Config) Speed() float64 {
	if c.AccelSpeed == nil || math.IsNaN(*c.AccelSpeed) {
		return 0
	}
	return max(-1, min(*c.AccelSpeed, 1))
}

// Accelerate scales a relative motion according to the configured
// speed. A speed of 0 leaves the motion unchanged, -1 stops it, and 1
// doubles it.
func (c Config) Accelerate(dx, dy float64) (float64, float64) {
	f := 1 + c.Speed()
	return dx * f, dy * f
}

// Scroll adjusts a scroll amount for the configured direction.
func (c Config) Scroll(v float64) float64 {
	if c.Natural() {
		return -v
	}
	return v
}
