// Package headless implements a backend without any real outputs or
// input devices. Frames are kept in memory and input is injected by
// calling methods on the backend, which makes it useful for testing.
package headless

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/session"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

func init() {
	backend.Register("headless", func(opts backend.Options) (backend.Backend, error) {
		return New(opts), nil
	})
}

// Refresh is the refresh rate of created outputs, in mHz.
const Refresh = 60000

type output struct {
	out     *backend.Output
	frame   *shmimage.ARGB8888
	count   int
	pending bool
	timer   *time.Timer
}

// Backend is a headless backend. Its methods may be called from any
// goroutine.
type Backend struct {
	opts    backend.Options
	events  chan backend.Event
	session *session.Fake
	logger  *logrus.Entry

	m       sync.Mutex
	outputs []*output
	manual  bool
	next    int
	devices int
	done    chan struct{}
	stop    sync.Once
}

func New(opts backend.Options) *Backend {
	return &Backend{
		opts:    opts,
		events:  make(chan backend.Event, 256),
		session: session.NewFake(),
		logger:  log.For("headless"),
		done:    make(chan struct{}),
	}
}

func (b *Backend) Name() string {
	return "headless"
}

// SetManual turns off automatic frame completion. Frames then only
// complete when Complete is called.
func (b *Backend) SetManual(manual bool) {
	b.m.Lock()
	defer b.m.Unlock()
	b.manual = manual
}

// Start creates the configured number of outputs.
func (b *Backend) Start(ctx context.Context) error {
	for i := 0; i < b.opts.OutputCount(); i++ {
		b.AddOutput(b.opts.OutputSize())
	}

	go b.forward(ctx)
	return nil
}

func (b *Backend) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.session.Events():
			switch ev {
			case session.Disable:
				b.discard()
				b.send(backend.SessionPaused{})
			case session.Enable:
				b.send(backend.SessionResumed{})
			}
		}
	}
}

func (b *Backend) send(ev backend.Event) {
	select {
	case <-b.done:
	case b.events <- ev:
	}
}

func (b *Backend) Events() <-chan backend.Event {
	return b.events
}

// AddOutput creates a new output of the given size.
func (b *Backend) AddOutput(size image.Point) *backend.Output {
	b.m.Lock()
	b.next++
	out := &backend.Output{
		Name:         fmt.Sprintf("HEADLESS-%v", b.next),
		Description:  "Headless output",
		Make:         "wlc",
		Model:        "headless",
		Mode:         backend.Mode{Size: size, Refresh: Refresh},
		PhysicalSize: image.Point{},
	}
	b.outputs = append(b.outputs, &output{out: out})
	b.m.Unlock()

	b.logger.WithField("output", out).Debugln("output added")
	b.send(backend.OutputAdded{Output: out})
	return out
}

// RemoveOutput unplugs out.
func (b *Backend) RemoveOutput(out *backend.Output) {
	b.m.Lock()
	i := b.index(out)
	if i < 0 {
		b.m.Unlock()
		return
	}
	o := b.outputs[i]
	if o.timer != nil {
		o.timer.Stop()
	}
	b.outputs = slices.Delete(b.outputs, i, i+1)
	b.m.Unlock()

	b.send(backend.OutputRemoved{Output: out})
}

// Resize changes the mode of out.
func (b *Backend) Resize(out *backend.Output, size image.Point) {
	b.send(backend.ModeChanged{
		Output: out,
		Mode:   backend.Mode{Size: size, Refresh: Refresh},
	})
}

func (b *Backend) index(out *backend.Output) int {
	return slices.IndexFunc(b.outputs, func(o *output) bool { return o.out == out })
}

func (b *Backend) Outputs() []*backend.Output {
	b.m.Lock()
	defer b.m.Unlock()

	outs := make([]*backend.Output, 0, len(b.outputs))
	for _, o := range b.outputs {
		outs = append(outs, o.out)
	}
	return outs
}

// Present copies img and completes the frame after one refresh
// interval, unless manual completion is on.
func (b *Backend) Present(out *backend.Output, img *shmimage.ARGB8888) error {
	if !b.session.Active() {
		return backend.ErrPaused
	}

	b.m.Lock()
	defer b.m.Unlock()

	i := b.index(out)
	if i < 0 {
		return backend.ErrUnknownOutput
	}
	o := b.outputs[i]
	if o.pending {
		return backend.ErrBusy
	}

	frame := shmimage.NewARGB8888(img.Rect.Sub(img.Rect.Min))
	for y := 0; y < frame.Rect.Dy(); y++ {
		src := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		copy(frame.Pix[y*frame.Stride:(y+1)*frame.Stride], src)
	}
	o.frame = frame
	o.count++
	o.pending = true

	if !b.manual {
		interval := time.Second * 1000 / time.Duration(out.Mode.Refresh)
		o.timer = time.AfterFunc(interval, func() { b.Complete(out) })
	}
	return nil
}

// Complete finishes the frame in flight on out, if there is one, and
// reports whether there was.
func (b *Backend) Complete(out *backend.Output) bool {
	b.m.Lock()
	i := b.index(out)
	if i < 0 || !b.outputs[i].pending {
		b.m.Unlock()
		return false
	}
	b.outputs[i].pending = false
	b.m.Unlock()

	b.send(backend.FrameDone{Output: out})
	return true
}

// discard forgets every frame in flight, as losing the session does
// to a real display.
func (b *Backend) discard() {
	b.m.Lock()
	defer b.m.Unlock()

	for _, o := range b.outputs {
		if o.timer != nil {
			o.timer.Stop()
		}
		o.pending = false
	}
}

// Pending reports whether a frame is in flight on out.
func (b *Backend) Pending(out *backend.Output) bool {
	b.m.Lock()
	defer b.m.Unlock()

	i := b.index(out)
	return i >= 0 && b.outputs[i].pending
}

// Frame returns the last frame presented to out and the number of
// frames presented to it so far.
func (b *Backend) Frame(out *backend.Output) (*shmimage.ARGB8888, int) {
	b.m.Lock()
	defer b.m.Unlock()

	i := b.index(out)
	if i < 0 {
		return nil, 0
	}
	return b.outputs[i].frame, b.outputs[i].count
}

// AddDevice plugs in a virtual input device.
func (b *Backend) AddDevice(name string, caps input.Caps) *input.Device {
	b.m.Lock()
	b.devices++
	dev := &input.Device{
		ID:      b.devices,
		Name:    name,
		Caps:    caps,
		Pointer: b.opts.PointerConfig(name),
	}
	b.m.Unlock()

	b.Inject(input.DeviceAdded{Header: input.Header{Device: dev}})
	return dev
}

// Inject delivers an input event as if a device had produced it.
func (b *Backend) Inject(ev input.Event) {
	b.send(backend.Input{Event: ev})
}

// Pause simulates losing the session.
func (b *Backend) Pause() {
	b.session.Pause()
}

// Resume simulates regaining the session.
func (b *Backend) Resume() {
	b.session.Resume()
}

// SwitchVT simulates a VT switch. Switching to any VT other than 1
// pauses the session.
func (b *Backend) SwitchVT(vt int) error {
	return b.session.Switch(vt)
}

func (b *Backend) Close() error {
	b.stop.Do(func() {
		b.m.Lock()
		for _, o := range b.outputs {
			if o.timer != nil {
				o.timer.Stop()
			}
		}
		b.m.Unlock()

		close(b.done)
	})
	return b.session.Close()
}
