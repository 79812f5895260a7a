// Package input defines the device independent input events that
// backends deliver to the compositor, and decodes them from evdev.
package input

import (
	"fmt"
	"strings"
	"time"

	"deedles.dev/wlc/pointer"
)

// Caps is a set of device capabilities.
type Caps uint32

const (
	CapPointer Caps = 1 << iota
	CapKeyboard
	CapTouch
)

func (c Caps) String() string {
	var names []string
	if c&CapPointer != 0 {
		names = append(names, "pointer")
	}
	if c&CapKeyboard != 0 {
		names = append(names, "keyboard")
	}
	if c&CapTouch != 0 {
		names = append(names, "touch")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Device is an input device.
type Device struct {
	ID   int
	Name string
	Caps Caps

	// Pointer is the device's configuration if it is a pointer.
	Pointer pointer.Config
}

func (dev *Device) String() string {
	return fmt.Sprintf("%v (%v)", dev.Name, dev.Caps)
}

// Header is common to every event.
type Header struct {
	Device *Device

	// Time is a monotonic timestamp with an unspecified base.
	Time time.Duration
}

func (h Header) EventHeader() Header {
	return h
}

// Millis returns the timestamp in the form used by the protocol.
func (h Header) Millis() uint32 {
	return uint32(h.Time.Milliseconds())
}

// Event is an input event. The concrete types are defined in this
// package.
type Event interface {
	EventHeader() Header
}

type DeviceAdded struct{ Header }

type DeviceRemoved struct{ Header }

// PointerMotion is a relative motion, in pixels.
type PointerMotion struct {
	Header
	DX, DY float64
}

// PointerMotionAbsolute is a motion to a position normalized to [0, 1]
// across the output that the device is mapped to. Output is the name of
// that output, or empty for the first one.
type PointerMotionAbsolute struct {
	Header
	Output string
	X, Y   float64
}

type PointerButton struct {
	Header
	Button  pointer.Button
	Pressed bool
}

type Axis int

const (
	AxisVertical Axis = iota
	AxisHorizontal
)

type AxisSource int

const (
	AxisSourceWheel AxisSource = iota
	AxisSourceFinger
	AxisSourceContinuous
)

// PointerAxis is a scroll. Value is in the same units as motion.
// Discrete is the number of wheel clicks, or 0 if the source doesn't
// have clicks.
type PointerAxis struct {
	Header
	Axis     Axis
	Source   AxisSource
	Value    float64
	Discrete int32
}

// Key is a key press or release. Key is an evdev key code.
type Key struct {
	Header
	Key     uint32
	Pressed bool
}

// TouchDown is a new touch point. Positions are normalized as for
// PointerMotionAbsolute.
type TouchDown struct {
	Header
	Output string
	Slot   int32
	X, Y   float64
}

type TouchMotion struct {
	Header
	Output string
	Slot   int32
	X, Y   float64
}

type TouchUp struct {
	Header
	Slot int32
}

// TouchFrame ends a group of touch events that happened at once.
type TouchFrame struct{ Header }
