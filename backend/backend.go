// Package backend defines how the compositor talks to the outside
// world: where its frames go and where its input comes from.
//
// A backend reports everything that happens to it as an Event on the
// channel returned by Events. The compositor's event loop is the only
// reader of that channel, and the only caller of every other method
// except Close.
package backend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"deedles.dev/wlc/input"
	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/pointer"
	"deedles.dev/wlc/session"
	"deedles.dev/wlc/shm/shmimage"
)

// Mode is a display mode.
type Mode struct {
	Size image.Point

	// Refresh is the refresh rate in mHz.
	Refresh int
}

func (m Mode) String() string {
	return fmt.Sprintf("%vx%v@%.2f", m.Size.X, m.Size.Y, float64(m.Refresh)/1000)
}

// Output is a place that frames can be presented to. Backends fill it
// in before reporting it and don't change it afterwards. Mode changes
// are applied by the receiver of ModeChanged.
type Output struct {
	Name        string
	Description string
	Make        string
	Model       string
	Mode        Mode

	// PhysicalSize is in millimeters, or zero if unknown.
	PhysicalSize image.Point
}

func (out *Output) String() string {
	return fmt.Sprintf("%v (%v)", out.Name, out.Mode)
}

// Event is something that happened to a backend.
type Event interface {
	backendEvent()
}

// OutputAdded reports a new output. Nothing should be presented to it
// before it has been received.
type OutputAdded struct{ Output *Output }

// OutputRemoved reports that an output went away. The backend
// completes or drops any frame in flight on it first.
type OutputRemoved struct{ Output *Output }

// ModeChanged reports that an output's mode has changed.
type ModeChanged struct {
	Output *Output
	Mode   Mode
}

// FrameDone reports that the last frame presented to Output is on
// screen and that the image that it was presented from may be reused.
type FrameDone struct {
	Output *Output
	Err    error
}

// Input carries an input event.
type Input struct{ Event input.Event }

// SessionPaused means that the backend lost access to its devices.
// Nothing should be presented until SessionResumed. Frames that were in
// flight are discarded and no FrameDone follows for them.
type SessionPaused struct{}

type SessionResumed struct{}

// Closed means that the backend stopped working altogether, such as
// when the host compositor of a nested backend goes away.
type Closed struct{ Err error }

func (OutputAdded) backendEvent()    {}
func (OutputRemoved) backendEvent()  {}
func (ModeChanged) backendEvent()    {}
func (FrameDone) backendEvent()      {}
func (Input) backendEvent()          {}
func (SessionPaused) backendEvent()  {}
func (SessionResumed) backendEvent() {}
func (Closed) backendEvent()         {}

// Backend is a source of outputs and input.
type Backend interface {
	Name() string

	// Start begins discovering outputs and devices. Backends stop
	// when ctx is canceled or when they are closed.
	Start(ctx context.Context) error

	Events() <-chan Event

	// Present queues img to be shown on out. It returns once img has
	// been copied or submitted, and completion is reported later as a
	// FrameDone event. At most one frame per output may be in flight.
	Present(out *Output, img *shmimage.ARGB8888) error

	Close() error
}

// VTSwitcher is implemented by backends that run on a virtual
// terminal.
type VTSwitcher interface {
	SwitchVT(vt int) error
}

// ErrBusy is returned by Present when a frame is already in flight.
var ErrBusy = errors.New("frame already in flight")

// ErrPaused is returned by Present while the session is inactive.
var ErrPaused = errors.New("session paused")

// ErrUnknownOutput is returned by Present for outputs that the backend
// doesn't have.
var ErrUnknownOutput = errors.New("unknown output")

// Options are the settings that backends are created with. Backends
// ignore the ones that don't apply to them.
type Options struct {
	// Outputs is the number of outputs to create for backends that
	// make their own.
	Outputs int

	// Size is the size of created outputs.
	Size image.Point

	// Session provides device access to hardware backends.
	Session session.Session

	// Pointer returns the configuration of the named pointer device.
	Pointer func(name string) pointer.Config
}

// PointerConfig returns the configuration for the named device.
func (opts Options) PointerConfig(name string) pointer.Config {
	if opts.Pointer == nil {
		return pointer.Config{}
	}
	return opts.Pointer(name)
}

// OutputCount returns the number of outputs to create, which is at
// least one.
func (opts Options) OutputCount() int {
	return max(opts.Outputs, 1)
}

// OutputSize returns the size of created outputs, defaulting to
// 1280x720.
func (opts Options) OutputSize() image.Point {
	if opts.Size.X <= 0 || opts.Size.Y <= 0 {
		return image.Pt(1280, 720)
	}
	return opts.Size
}

type Factory func(Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Available returns the names of the registered backends, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknown is returned by New for an unregistered backend.
var ErrUnknown = errors.New("unknown backend")

// New creates the named backend.
func New(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}

	b, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create %v backend: %w", name, err)
	}
	return b, nil
}

// Copy copies src into the top-left corner of a dst with the given
// stride, converting to xrgb8888 if opaque is true. It is for backends
// that present into memory-mapped buffers.
func Copy(dst []byte, stride int, src *shmimage.ARGB8888, opaque bool) {
	size := src.Rect.Size()
	row := size.X * 4
	for y := 0; y < size.Y; y++ {
		d := dst[y*stride:]
		if len(d) < row {
			return
		}
		s := src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):]
		copy(d[:row], s[:row])
		if !opaque {
			continue
		}
		for x := 0; x < row; x += 4 {
			bin.Put(d[x:], bin.Get[uint32](d[x:])|0xFF000000)
		}
	}
}
