// Package drm implements a backend that drives displays directly
// through the kernel's mode setting interface and reads input from
// evdev devices. Frames are copied into dumb buffers and shown with
// page flips.
package drm

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/internal/set"
	"deedles.dev/wlc/session"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

func init() {
	backend.Register("drm", func(opts backend.Options) (backend.Backend, error) {
		return New(opts)
	})
}

// rescanInterval is how often connectors and input devices are checked
// for hotplug.
const rescanInterval = 2 * time.Second

// DeviceEnv names the environment variable that picks the card to use
// instead of the first usable one.
const DeviceEnv = "WLC_DRM_DEVICE"

type output struct {
	out       *backend.Output
	connector uint32
	crtc      uint32
	mode      modeInfo
	saved     modeCrtc

	bufs  [2]*dumb
	front int

	// pending is true while a page flip is in flight.
	pending bool

	// modeset is true until the CRTC has been set up to show one of
	// the output's buffers, which has to be done again after the
	// session comes back.
	modeset bool
}

type evdev struct {
	dev  *input.Evdev
	file *os.File
}

// Backend is a DRM backend. Present must only be called from the
// event loop, but SwitchVT and Close may be called from anywhere.
type Backend struct {
	opts        backend.Options
	session     session.Session
	ownsSession bool
	card        *card
	events      chan backend.Event
	input       chan input.Event
	logger      *logrus.Entry

	m       sync.Mutex
	outputs []*output
	paused  bool
	devices map[string]*evdev
	nextDev int

	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
	wg     sync.WaitGroup
}

// New opens a card through opts.Session. If there is no session, a VT
// session is started on the current terminal.
func New(opts backend.Options) (*Backend, error) {
	sess := opts.Session
	owns := false
	if sess == nil {
		vt, err := session.OpenVT()
		if err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		sess, owns = vt, true
	}

	logger := log.For("drm")
	c, err := openCard(sess, logger)
	if err != nil {
		if owns {
			sess.Close()
		}
		return nil, err
	}
	logger = logger.WithField("card", c.file.Name())

	return &Backend{
		opts:        opts,
		session:     sess,
		ownsSession: owns,
		card:        c,
		events:      make(chan backend.Event, 256),
		input:       make(chan input.Event, 256),
		logger:      logger,
		devices:     make(map[string]*evdev),
		done:        make(chan struct{}),
	}, nil
}

// cardPaths returns the DRM primary nodes in the order that they are
// tried.
func cardPaths() ([]string, error) {
	if path := os.Getenv(DeviceEnv); path != "" {
		return []string{path}, nil
	}

	paths, err := filepath.Glob("/dev/dri/card*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// openCard opens the first card that supports dumb buffers and has
// connectors.
func openCard(sess session.Session, logger *logrus.Entry) (*card, error) {
	paths, err := cardPaths()
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		file, err := sess.Open(path)
		if err != nil {
			logger.WithError(err).WithField("card", path).Debugln("open card")
			continue
		}
		c, err := newCard(file)
		if err != nil {
			sess.Release(file)
			file.Close()
			continue
		}

		dumb, err := c.cap(capDumbBuffer)
		if err != nil || dumb == 0 {
			logger.WithField("card", path).Debugln("no dumb buffer support")
			sess.Release(file)
			file.Close()
			continue
		}
		res, err := c.resources()
		if err != nil || len(res.connectors) == 0 || len(res.crtcs) == 0 {
			logger.WithField("card", path).Debugln("no display outputs")
			sess.Release(file)
			file.Close()
			continue
		}

		return c, nil
	}
	return nil, errors.New("no usable DRM card")
}

func (b *Backend) Name() string {
	return "drm"
}

func (b *Backend) Events() <-chan backend.Event {
	return b.events
}

// Start adds the connected outputs and input devices and starts
// watching for changes.
func (b *Backend) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	err := b.scanOutputs()
	if err != nil {
		return err
	}
	b.scanDevices(ctx)

	b.wg.Add(2)
	go b.readCard()
	go b.run(ctx)
	return nil
}

func (b *Backend) send(ev backend.Event) {
	select {
	case <-b.done:
	case b.events <- ev:
	}
}

func (b *Backend) run(ctx context.Context) {
	defer b.wg.Done()

	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return

		case ev := <-b.input:
			b.send(backend.Input{Event: ev})

		case ev := <-b.session.Events():
			switch ev {
			case session.Disable:
				b.pause()
			case session.Enable:
				b.resume(ctx)
			}

		case <-rescan.C:
			if !b.session.Active() {
				continue
			}
			err := b.scanOutputs()
			if err != nil {
				b.logger.WithError(err).Warnln("rescan outputs")
			}
			b.scanDevices(ctx)
		}
	}
}

func (b *Backend) pause() {
	b.m.Lock()
	b.paused = true
	for _, o := range b.outputs {
		o.pending = false
	}
	b.m.Unlock()

	b.logger.Infoln("session paused")
	b.send(backend.SessionPaused{})
}

func (b *Backend) resume(ctx context.Context) {
	b.m.Lock()
	b.paused = false
	for _, o := range b.outputs {
		o.modeset = true
	}
	b.m.Unlock()

	err := b.scanOutputs()
	if err != nil {
		b.logger.WithError(err).Warnln("rescan outputs")
	}
	b.scanDevices(ctx)

	b.logger.Infoln("session resumed")
	b.send(backend.SessionResumed{})
}

// readCard turns page flip events into frame completions until the
// card is closed.
func (b *Backend) readCard() {
	defer b.wg.Done()

	buf := make([]byte, 1024)
	for {
		n, err := b.card.file.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				b.logger.WithError(err).Errorln("read card")
				b.send(backend.Closed{Err: err})
			}
			return
		}

		for _, f := range parseEvents(buf[:n]) {
			b.flipped(f.crtc)
		}
	}
}

func (b *Backend) flipped(crtc uint32) {
	b.m.Lock()
	i := slices.IndexFunc(b.outputs, func(o *output) bool { return o.crtc == crtc })
	if i < 0 || !b.outputs[i].pending {
		b.m.Unlock()
		return
	}
	o := b.outputs[i]
	o.pending = false
	b.m.Unlock()

	b.send(backend.FrameDone{Output: o.out})
}

// pickMode returns the preferred mode, or the first one if none is
// marked as preferred.
func pickMode(modes []modeInfo) (modeInfo, bool) {
	if len(modes) == 0 {
		return modeInfo{}, false
	}
	for _, m := range modes {
		if m.typ&modeTypePreferred != 0 {
			return m, true
		}
	}
	return modes[0], true
}

// pickCrtc finds a CRTC that can drive conn. The one that the
// connector's current encoder is using is preferred so that the
// initial mode set doesn't need to move things around.
func pickCrtc(conn connector, encoders map[uint32]getEncoder, crtcs []uint32, used func(uint32) bool) (uint32, bool) {
	if enc, ok := encoders[conn.encoder]; ok && enc.crtcID != 0 && !used(enc.crtcID) {
		return enc.crtcID, true
	}

	for _, id := range conn.encoders {
		enc, ok := encoders[id]
		if !ok {
			continue
		}
		for i, crtc := range crtcs {
			if enc.possibleCrtcs&(1<<i) != 0 && !used(crtc) {
				return crtc, true
			}
		}
	}
	return 0, false
}

// scanOutputs reconciles the outputs with the card's connectors.
func (b *Backend) scanOutputs() error {
	res, err := b.card.resources()
	if err != nil {
		return err
	}

	encoders := make(map[uint32]getEncoder, len(res.encoders))
	for _, id := range res.encoders {
		enc, err := b.card.encoder(id)
		if err != nil {
			b.logger.WithError(err).Debugln("get encoder")
			continue
		}
		encoders[id] = enc
	}

	connected := set.New[uint32]()
	for _, id := range res.connectors {
		conn, err := b.card.connector(id)
		if err != nil {
			b.logger.WithError(err).Warnln("get connector")
			continue
		}
		if !conn.connected || len(conn.modes) == 0 {
			continue
		}
		connected.Add(id)

		b.m.Lock()
		known := slices.ContainsFunc(b.outputs, func(o *output) bool { return o.connector == id })
		b.m.Unlock()
		if known {
			continue
		}

		b.addOutput(conn, encoders, res.crtcs)
	}

	b.m.Lock()
	var removed []*output
	b.outputs = slices.DeleteFunc(b.outputs, func(o *output) bool {
		if connected.Has(o.connector) {
			return false
		}
		removed = append(removed, o)
		return true
	})
	b.m.Unlock()

	for _, o := range removed {
		b.logger.WithField("output", o.out).Infoln("output disconnected")
		b.destroyOutput(o)
		b.send(backend.OutputRemoved{Output: o.out})
	}
	return nil
}

func (b *Backend) addOutput(conn connector, encoders map[uint32]getEncoder, crtcs []uint32) {
	logger := b.logger.WithField("connector", conn.name)

	mode, _ := pickMode(conn.modes)
	b.m.Lock()
	crtc, ok := pickCrtc(conn, encoders, crtcs, func(id uint32) bool {
		return slices.ContainsFunc(b.outputs, func(o *output) bool { return o.crtc == id })
	})
	b.m.Unlock()
	if !ok {
		logger.Warnln("no free CRTC")
		return
	}

	saved, err := b.card.crtc(crtc)
	if err != nil {
		logger.WithError(err).Warnln("save CRTC state")
	}

	o := output{
		out: &backend.Output{
			Name:        conn.name,
			Description: fmt.Sprintf("%v connector %v", conn.name, conn.id),
			Make:        "Unknown",
			Model:       "Unknown",
			Mode: backend.Mode{
				Size:    image.Pt(int(mode.hdisplay), int(mode.vdisplay)),
				Refresh: mode.refresh(),
			},
			PhysicalSize: image.Pt(int(conn.mmWidth), int(conn.mmHeight)),
		},
		connector: conn.id,
		crtc:      crtc,
		mode:      mode,
		saved:     saved,
		modeset:   true,
	}
	for i := range o.bufs {
		o.bufs[i], err = b.card.createDumb(int(mode.hdisplay), int(mode.vdisplay))
		if err != nil {
			logger.WithError(err).Errorln("allocate scanout buffer")
			b.destroyOutput(&o)
			return
		}
	}

	b.m.Lock()
	b.outputs = append(b.outputs, &o)
	b.m.Unlock()

	logger.WithField("mode", o.out.Mode).Infoln("output connected")
	b.send(backend.OutputAdded{Output: o.out})
}

// destroyOutput frees the output's buffers and gives its CRTC back to
// whatever was using it before.
func (b *Backend) destroyOutput(o *output) {
	if o.saved.crtcID != 0 && b.session.Active() {
		err := b.card.restoreCrtc(o.saved, o.connector)
		if err != nil {
			b.logger.WithError(err).Debugln("restore CRTC")
		}
	}
	for i, buf := range o.bufs {
		if buf != nil {
			b.card.destroyDumb(buf)
			o.bufs[i] = nil
		}
	}
}

// Present copies img into the output's back buffer and flips to it.
func (b *Backend) Present(out *backend.Output, img *shmimage.ARGB8888) error {
	b.m.Lock()
	defer b.m.Unlock()

	if b.paused || !b.session.Active() {
		return backend.ErrPaused
	}
	i := slices.IndexFunc(b.outputs, func(o *output) bool { return o.out == out })
	if i < 0 {
		return backend.ErrUnknownOutput
	}
	o := b.outputs[i]
	if o.pending {
		return backend.ErrBusy
	}

	back := o.bufs[1-o.front]
	backend.Copy(back.data, back.pitch, img, true)

	if o.modeset {
		err := b.card.setCrtc(o.crtc, back.fb, o.connector, &o.mode)
		if err != nil {
			return err
		}
		o.modeset = false
		o.front = 1 - o.front

		// Mode sets complete synchronously, but the event must not be
		// sent from the loop's own goroutine.
		go b.send(backend.FrameDone{Output: out})
		return nil
	}

	err := b.card.pageFlip(o.crtc, back.fb)
	if err != nil {
		return fmt.Errorf("page flip on %v: %w", out.Name, err)
	}
	o.pending = true
	o.front = 1 - o.front
	return nil
}

// scanDevices opens input devices that aren't open yet.
func (b *Backend) scanDevices(ctx context.Context) {
	if !b.session.Active() {
		return
	}

	paths, err := input.Scan("/dev/input")
	if err != nil {
		b.logger.WithError(err).Warnln("scan input devices")
		return
	}

	for _, path := range paths {
		b.m.Lock()
		_, open := b.devices[path]
		b.m.Unlock()
		if open {
			continue
		}

		file, err := b.session.Open(path)
		if err != nil {
			b.logger.WithError(err).WithField("path", path).Debugln("open input device")
			continue
		}

		b.m.Lock()
		b.nextDev++
		id := b.nextDev
		b.m.Unlock()

		dev, err := input.OpenEvdev(file, id, func(name string) input.Device {
			return input.Device{Pointer: b.opts.PointerConfig(name)}
		})
		if err != nil {
			b.session.Release(file)
			if !errors.Is(err, input.ErrUnsupported) {
				b.logger.WithError(err).WithField("path", path).Debugln("probe input device")
			}
			continue
		}

		b.m.Lock()
		b.devices[path] = &evdev{dev: dev, file: file}
		b.m.Unlock()

		b.logger.WithField("device", dev.Device()).Infoln("input device added")
		b.send(backend.Input{Event: input.DeviceAdded{Header: input.Header{Device: dev.Device()}}})

		b.wg.Add(1)
		go b.readDevice(ctx, path, dev)
	}
}

// readDevice forwards a device's events until it goes away, which
// includes being revoked when the session is paused.
func (b *Backend) readDevice(ctx context.Context, path string, dev *input.Evdev) {
	defer b.wg.Done()

	err := dev.Run(ctx, b.input)
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.WithError(err).WithField("device", dev.Device()).Warnln("read input device")
	}

	b.m.Lock()
	ev, ok := b.devices[path]
	if ok && ev.dev == dev {
		delete(b.devices, path)
		b.session.Release(ev.file)
	}
	b.m.Unlock()

	dev.Close()
	b.send(backend.Input{Event: input.DeviceRemoved{Header: input.Header{Device: dev.Device()}}})
}

// SwitchVT asks the session to switch to another virtual terminal.
func (b *Backend) SwitchVT(vt int) error {
	return b.session.Switch(vt)
}

// Close restores the CRTCs, frees the outputs and devices and, if the
// backend started its own session, ends it.
func (b *Backend) Close() error {
	var err error
	b.stop.Do(func() {
		close(b.done)
		if b.cancel != nil {
			b.cancel()
		}

		b.m.Lock()
		outputs := b.outputs
		b.outputs = nil
		devices := b.devices
		b.devices = make(map[string]*evdev)
		b.m.Unlock()

		for _, o := range outputs {
			b.destroyOutput(o)
		}
		for _, dev := range devices {
			dev.dev.Close()
		}

		b.session.Release(b.card.file)
		err = b.card.file.Close()
		b.wg.Wait()

		if b.ownsSession {
			serr := b.session.Close()
			if err == nil {
				err = serr
			}
		}
	})
	return err
}
