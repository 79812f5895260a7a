// Package nested implements a backend that runs as a client of another
// Wayland compositor. Each output is a window on the host.
package nested

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"os"
	"sync"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/client"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/pointer"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/wlc/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

func init() {
	backend.Register("nested", func(opts backend.Options) (backend.Backend, error) {
		d, err := client.Dial()
		if err != nil {
			return nil, err
		}
		return New(d, opts)
	})
}

// Refresh is the refresh rate reported for outputs. The host decides
// the real rate through its frame callbacks.
const Refresh = 60000

type output struct {
	out  *backend.Output
	win  *client.Window
	bufs [2]*client.ImageBuffer
	size image.Point

	added  bool
	closed bool

	// stalled is true if a frame was staged while both buffers were
	// still held by the host.
	stalled bool

	// staged and pending are shared with Present.
	staged  *shmimage.ARGB8888
	pending bool
}

// Backend presents outputs as windows of a host compositor. Every
// method other than Present and Events runs on the goroutine started
// by Start, which owns the host connection.
type Backend struct {
	opts    backend.Options
	display *client.Display
	events  chan backend.Event
	wake    chan *output
	done    chan struct{}
	stop    sync.Once
	logger  *logrus.Entry
	start   time.Time

	compositor *client.Object
	shm        *client.Object
	wm         *client.Object
	seat       *client.Object

	pointer  *client.Pointer
	keyboard *client.Keyboard
	mouse    *input.Device
	kbd      *input.Device
	focus    *output
	held     []uint32

	next int

	m       sync.Mutex
	outputs []*output
}

// New creates a backend that uses the host display d. It fails if the
// host lacks the globals that the backend needs.
func New(d *client.Display, opts backend.Options) (*Backend, error) {
	b := Backend{
		opts:    opts,
		display: d,
		events:  make(chan backend.Event, 256),
		wake:    make(chan *output, 16),
		done:    make(chan struct{}),
		logger:  log.For("nested"),
		start:   time.Now(),
	}

	reg, err := d.Registry()
	if err != nil {
		return nil, err
	}
	err = d.Roundtrip()
	if err != nil {
		return nil, fmt.Errorf("get host globals: %w", err)
	}

	b.compositor, err = reg.BindFirst("wl_compositor", 4)
	if err != nil {
		return nil, err
	}
	b.shm, err = reg.BindFirst("wl_shm", 1)
	if err != nil {
		return nil, err
	}
	b.wm, err = reg.BindFirst("xdg_wm_base", 5)
	if err != nil {
		return nil, err
	}

	if g, ok := reg.Find("wl_seat"); ok {
		b.seat, err = reg.Bind(g, 5)
		if err != nil {
			return nil, err
		}
		b.seat.On("capabilities", func(ev *client.Event) { b.capabilities(ev.Uint(0)) })
	}

	return &b, nil
}

func (b *Backend) Name() string {
	return "nested"
}

// Start opens a window for each configured output and starts handling
// host events.
func (b *Backend) Start(ctx context.Context) error {
	for i := 0; i < b.opts.OutputCount(); i++ {
		err := b.addOutput(b.opts.OutputSize())
		if err != nil {
			return err
		}
	}

	go b.run(ctx)
	return nil
}

func (b *Backend) run(ctx context.Context) {
	defer b.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case <-b.done:
			return

		case batch := <-b.display.Work():
			err := b.display.Process(batch)
			if err != nil {
				b.send(backend.Closed{Err: fmt.Errorf("host connection: %w", err)})
				return
			}

		case o := <-b.wake:
			b.commit(o)
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

func (b *Backend) addOutput(size image.Point) error {
	b.next++
	name := fmt.Sprintf("WL-%v", b.next)

	win, err := client.NewWindow(b.compositor, b.wm, "wlc - "+name)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	win.SetAppID("wlc")

	o := output{
		out: &backend.Output{
			Name:        name,
			Description: "Nested output " + name,
			Make:        "wlc",
			Model:       "nested",
			Mode:        backend.Mode{Size: size, Refresh: Refresh},
		},
		win:  win,
		size: size,
	}
	win.Configure = func(size image.Point, states []uint32) { b.configure(&o, size) }
	win.Close = func() { b.removeOutput(&o) }

	b.m.Lock()
	b.outputs = append(b.outputs, &o)
	b.m.Unlock()
	return nil
}

// configure is called when the host configures an output's window. The
// output is reported once the first configure arrives, so that frames
// are never presented before the window may show them.
func (b *Backend) configure(o *output, size image.Point) {
	if size.X <= 0 || size.Y <= 0 {
		size = o.size
	}

	err := b.ensureBuffers(o, size)
	if err != nil {
		b.logger.WithError(err).WithField("output", o.out.Name).Errorln("allocate buffers")
		b.removeOutput(o)
		return
	}

	if !o.added {
		o.added = true
		o.size = size
		o.out.Mode.Size = size
		b.logger.WithField("output", o.out).Infoln("output added")
		b.send(backend.OutputAdded{Output: o.out})
		return
	}

	if size != o.size {
		o.size = size
		b.send(backend.ModeChanged{
			Output: o.out,
			Mode:   backend.Mode{Size: size, Refresh: Refresh},
		})
	}
}

func (b *Backend) ensureBuffers(o *output, size image.Point) error {
	for i, buf := range o.bufs {
		if buf != nil {
			err := buf.Resize(size)
			if err != nil {
				return err
			}
			continue
		}

		buf, err := client.NewImageBuffer(b.shm, size)
		if err != nil {
			return err
		}
		buf.Release = func() {
			if o.stalled {
				o.stalled = false
				b.commit(o)
			}
		}
		o.bufs[i] = buf
	}
	return nil
}

func (b *Backend) removeOutput(o *output) {
	if o.closed {
		return
	}
	o.closed = true

	b.m.Lock()
	b.outputs = slices.DeleteFunc(b.outputs, func(other *output) bool { return other == o })
	left := len(b.outputs)
	b.m.Unlock()

	if b.focus == o {
		b.focus = nil
	}
	o.win.Destroy()
	for _, buf := range o.bufs {
		if buf != nil {
			buf.Destroy()
		}
	}

	if o.added {
		b.logger.WithField("output", o.out.Name).Infoln("output closed")
		b.send(backend.OutputRemoved{Output: o.out})
	}
	if left == 0 {
		b.send(backend.Closed{})
	}
}

// Present stages img and hands it to the host goroutine, which shows it
// in whichever of the output's buffers the host isn't using.
func (b *Backend) Present(out *backend.Output, img *shmimage.ARGB8888) error {
	b.m.Lock()
	i := slices.IndexFunc(b.outputs, func(o *output) bool { return o.out == out })
	if i < 0 {
		b.m.Unlock()
		return backend.ErrUnknownOutput
	}
	o := b.outputs[i]
	if o.pending {
		b.m.Unlock()
		return backend.ErrBusy
	}

	size := img.Rect.Size()
	if o.staged == nil || o.staged.Rect.Size() != size {
		o.staged = shmimage.NewARGB8888(image.Rectangle{Max: size})
	}
	backend.Copy(o.staged.Pix, o.staged.Stride, img, false)
	o.pending = true
	b.m.Unlock()

	select {
	case b.wake <- o:
		return nil
	case <-b.done:
		return net.ErrClosed
	}
}

// commit shows the staged frame of o.
func (b *Backend) commit(o *output) {
	if o.closed {
		return
	}

	i := slices.IndexFunc(o.bufs[:], func(buf *client.ImageBuffer) bool { return buf != nil && !buf.Busy() })
	if i < 0 {
		o.stalled = true
		return
	}
	buf := o.bufs[i]

	// A frame rendered before a resize was noticed is dropped, and the
	// buffer keeps its old contents.
	b.m.Lock()
	if o.staged != nil && o.staged.Rect.Size() == buf.Bounds().Size() {
		dst := buf.ARGB8888()
		backend.Copy(dst.Pix, dst.Stride, o.staged, true)
	}
	b.m.Unlock()

	err := o.win.Frame(func(uint32) { b.frameDone(o) })
	if err != nil {
		b.frameFailed(o, err)
		return
	}
	err = o.win.Present(buf.Buffer(), buf.Bounds())
	if err != nil {
		b.frameFailed(o, err)
		return
	}
	buf.MarkBusy()
}

func (b *Backend) frameDone(o *output) {
	b.m.Lock()
	o.pending = false
	b.m.Unlock()

	b.send(backend.FrameDone{Output: o.out})
}

func (b *Backend) frameFailed(o *output, err error) {
	b.m.Lock()
	o.pending = false
	b.m.Unlock()

	b.send(backend.FrameDone{Output: o.out, Err: err})
}

func (b *Backend) capabilities(caps uint32) {
	if caps&proto.WlSeatCapabilityPointer != 0 && b.pointer == nil {
		p, err := client.GetPointer(b.seat)
		if err != nil {
			b.logger.WithError(err).Errorln("get host pointer")
			return
		}
		b.pointer = p
		b.mouse = &input.Device{ID: 1, Name: "nested-pointer", Caps: input.CapPointer, Pointer: b.opts.PointerConfig("nested-pointer")}
		p.Enter = b.pointerEnter
		p.Leave = func(uint32, *client.Object) { b.focus = nil }
		p.Motion = b.pointerMotion
		p.Button = b.pointerButton
		p.Axis = b.pointerAxis
		b.input(input.DeviceAdded{Header: input.Header{Device: b.mouse}})
	}

	if caps&proto.WlSeatCapabilityKeyboard != 0 && b.keyboard == nil {
		kb, err := client.GetKeyboard(b.seat)
		if err != nil {
			b.logger.WithError(err).Errorln("get host keyboard")
			return
		}
		b.keyboard = kb
		b.kbd = &input.Device{ID: 2, Name: "nested-keyboard", Caps: input.CapKeyboard}
		kb.Keymap = func(format uint32, file *os.File, size uint32) { file.Close() }
		kb.Leave = b.keyboardLeave
		kb.Key = b.key
		b.input(input.DeviceAdded{Header: input.Header{Device: b.kbd}})
	}
}

func (b *Backend) input(ev input.Event) {
	b.send(backend.Input{Event: ev})
}

func (b *Backend) header(dev *input.Device, ms uint32) input.Header {
	return input.Header{Device: dev, Time: time.Duration(ms) * time.Millisecond}
}

func (b *Backend) now() uint32 {
	return uint32(time.Since(b.start).Milliseconds())
}

// outputFor returns the output whose window is the surface obj.
func (b *Backend) outputFor(obj *client.Object) *output {
	b.m.Lock()
	defer b.m.Unlock()

	for _, o := range b.outputs {
		if o.win.Surface() == obj {
			return o
		}
	}
	return nil
}

func (b *Backend) pointerEnter(serial uint32, surface *client.Object, x, y wire.Fixed) {
	b.focus = b.outputFor(surface)
	b.pointer.SetCursor(serial, nil, 0, 0)
	b.pointerMotion(b.now(), x, y)
}

func (b *Backend) pointerMotion(ms uint32, x, y wire.Fixed) {
	o := b.focus
	if o == nil || o.size.X == 0 || o.size.Y == 0 {
		return
	}
	b.input(input.PointerMotionAbsolute{
		Header: b.header(b.mouse, ms),
		Output: o.out.Name,
		X:      x.Float() / float64(o.size.X),
		Y:      y.Float() / float64(o.size.Y),
	})
}

func (b *Backend) pointerButton(serial, ms, button uint32, pressed bool) {
	b.input(input.PointerButton{
		Header:  b.header(b.mouse, ms),
		Button:  pointer.Button(button),
		Pressed: pressed,
	})
}

func (b *Backend) pointerAxis(ms, axis uint32, value wire.Fixed) {
	a := input.AxisVertical
	if axis == proto.WlPointerAxisHorizontalScroll {
		a = input.AxisHorizontal
	}
	b.input(input.PointerAxis{
		Header: b.header(b.mouse, ms),
		Axis:   a,
		Source: input.AxisSourceContinuous,
		Value:  value.Float(),
	})
}

func (b *Backend) key(serial, ms, key uint32, pressed bool) {
	if pressed {
		b.held = append(b.held, key)
	} else {
		i := slices.Index(b.held, key)
		if i < 0 {
			return
		}
		b.held = slices.Delete(b.held, i, i+1)
	}

	b.input(input.Key{
		Header:  b.header(b.kbd, ms),
		Key:     key,
		Pressed: pressed,
	})
}

// keyboardLeave releases every held key, since their releases will go
// to some other host window.
func (b *Backend) keyboardLeave(serial uint32, surface *client.Object) {
	ms := b.now()
	for len(b.held) > 0 {
		b.key(serial, ms, b.held[len(b.held)-1], false)
	}
}

// Close disconnects from the host.
func (b *Backend) Close() error {
	var err error
	b.stop.Do(func() {
		close(b.done)
		err = b.display.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
