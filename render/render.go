// Package render defines how the compositor turns a stack of surfaces
// into a frame, independently of how the pixels are actually produced.
//
// A Renderer is chosen once at startup. Realizations register
// themselves by name, usually from an init function, and are created
// through New.
package render

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"deedles.dev/wlc/internal/region"
	"deedles.dev/wlc/shm/shmimage"
)

// Source is pixel content that can be drawn, such as a client buffer.
// Renderers never modify a source.
type Source interface {
	// Key identifies the source for caching. It is unique among
	// live sources.
	Key() uint64

	// Serial changes whenever the content behind the source might
	// have changed.
	Serial() uint64

	// Size is the size of the content in pixels.
	Size() image.Point

	// Read calls f with a view of the content. The view is only valid
	// until f returns. If the underlying memory faults while it is
	// being read, Read returns an error wrapping shm.ErrFault.
	Read(f func(img shmimage.Image)) error
}

// Node is one element of a scene. If Source is nil, the node is a
// solid rectangle of Color.
type Node struct {
	Source    Source
	Color     shmimage.ARGB8888Color
	Dst       image.Rectangle
	Transform Transform
	Alpha     float64
}

// Scene is everything that should be drawn to a target for one frame.
type Scene struct {
	// Background fills everything not covered by a node.
	Background shmimage.ARGB8888Color

	// Nodes are ordered from bottom to top.
	Nodes []Node

	// Damage is the part of the target that needs to be redrawn. An
	// empty damage region means the whole target.
	Damage region.Region
}

// Target is a renderer's framebuffer for one output.
type Target interface {
	Size() image.Point

	// Image returns the most recently composited frame. It must not be
	// modified and is only valid until the next call to Composite.
	Image() *shmimage.ARGB8888
}

// Renderer composites scenes into targets.
type Renderer interface {
	Name() string

	NewTarget(size image.Point) (Target, error)

	// Composite draws scene into target. Nodes whose sources fault
	// are skipped and reported through a *FaultError after the rest
	// of the scene has been drawn.
	Composite(target Target, scene *Scene) error

	// Forget drops anything cached about the source with the given
	// key. It is called when the source is destroyed.
	Forget(key uint64)

	Close() error
}

// FaultError reports sources that could not be read while compositing.
type FaultError struct {
	Sources []Source
	Err     error
}

func (err *FaultError) Error() string {
	return fmt.Sprintf("read %v sources: %v", len(err.Sources), err.Err)
}

func (err *FaultError) Unwrap() error {
	return err.Err
}

// Factory creates a renderer.
type Factory func() (Renderer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a renderer available under name. A later
// registration with the same name replaces the earlier one.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Available returns the names of the registered renderers, sorted.
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

// ErrUnknown is returned by New for an unregistered renderer.
var ErrUnknown = errors.New("unknown renderer")

const (
	Software = "software"
	Accel    = "accel"
)

// New creates the named renderer. An empty name selects the
// accelerated renderer. If WLC_SOFTWARE is set to a non-empty value
// other than 0, the software renderer is always used. If any renderer
// other than the software one can't be created, the software renderer
// is used instead and the original error is returned alongside it.
func New(name string) (Renderer, error) {
	if name == "" {
		name = Accel
	}
	if v := os.Getenv("WLC_SOFTWARE"); v != "" && v != "0" {
		name = Software
	}

	r, err := create(name)
	if err == nil || name == Software {
		return r, err
	}

	fallback, ferr := create(Software)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, err
}

func create(name string) (Renderer, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}

	r, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create %v renderer: %w", name, err)
	}
	return r, nil
}

// Clip returns the rectangles of a target of the given size that a
// scene's damage covers.
func Clip(size image.Point, damage region.Region) []image.Rectangle {
	bounds := image.Rectangle{Max: size}
	if damage.Empty() {
		return []image.Rectangle{bounds}
	}
	return damage.Intersect(bounds).Rects()
}
