package compositor

import (
	"context"
	"image"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/backend/headless"
	"deedles.dev/wlc/config"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/pointer"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/render/software"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/wlc/wire"
	"golang.org/x/sys/unix"
)

const testSize = 256

var (
	green = shmimage.NewARGB8888Color(0, 0xFF, 0, 0xFF)
	blue  = shmimage.NewARGB8888Color(0, 0, 0xFF, 0xFF)
)

type event struct {
	p      *peer
	sender uint32
	iface  string
	name   string
	args   wire.Args
}

// harness runs a compositor on a manual headless backend. The test
// goroutine acts as the event loop.
type harness struct {
	t      *testing.T
	srv    *server.Server
	b      *headless.Backend
	comp   *Compositor
	events chan event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := server.New()
	r := software.New()
	b := headless.New(backend.Options{Size: image.Pt(testSize, testSize)})
	b.SetManual(true)
	err := b.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	h := harness{
		t:      t,
		srv:    srv,
		b:      b,
		comp:   New(srv, r, b, config.Default()),
		events: make(chan event, 4096),
	}
	t.Cleanup(func() {
		h.comp.Close()
		srv.Close()
		b.Close()
		r.Close()
	})

	h.until(func() bool { return len(h.comp.Outputs()) == 1 })
	h.complete(h.out())
	return &h
}

// until runs the loop until cond is true.
func (h *harness) until(cond func() bool) {
	h.t.Helper()

	timeout := time.After(5 * time.Second)
	for !cond() {
		select {
		case batch := <-h.srv.Work():
			h.srv.Process(batch)
		case ev := <-h.b.Events():
			h.comp.HandleEvent(ev)
		case ev := <-h.events:
			ev.p.got = append(ev.p.got, ev)
			continue
		case <-timeout:
			h.t.Fatal("timed out")
		}
		h.comp.Repaint()
		h.srv.Flush()
	}
}

// drain handles every backend event that has already been sent.
func (h *harness) drain() {
	h.t.Helper()
	h.until(func() bool { return len(h.b.Events()) == 0 })
}

func (h *harness) out() *backend.Output {
	h.t.Helper()

	outs := h.b.Outputs()
	if len(outs) == 0 {
		h.t.Fatal("no outputs")
	}
	return outs[0]
}

// complete finishes the frame in flight on out.
func (h *harness) complete(out *backend.Output) {
	h.t.Helper()

	if !h.b.Complete(out) {
		h.t.Fatalf("no frame in flight on %v", out.Name)
	}
	h.drain()
}

// pixel returns a pixel of the last frame presented on the first
// output.
func (h *harness) pixel(x, y int) shmimage.ARGB8888Color {
	h.t.Helper()

	img, _ := h.b.Frame(h.out())
	if img == nil {
		h.t.Fatal("nothing presented")
	}
	return img.ARGB8888At(x, y)
}

func (h *harness) frames() int {
	_, n := h.b.Frame(h.out())
	return n
}

// peer is a client connected over a socketpair.
type peer struct {
	h      *harness
	t      *testing.T
	client *server.Client
	conn   *wire.Conn
	closed chan struct{}

	m      sync.Mutex
	ifaces map[uint32]string
	nextID uint32

	got      []event
	seen     int
	registry uint32
}

func (h *harness) newPeer() *peer {
	t := h.t
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	open := func(fd int) *wire.Conn {
		f := os.NewFile(uintptr(fd), "socketpair")
		defer f.Close()
		c, err := net.FileConn(f)
		if err != nil {
			t.Fatal(err)
		}
		return wire.NewConn(c.(*net.UnixConn))
	}

	p := peer{
		h:      h,
		t:      t,
		conn:   open(fds[0]),
		closed: make(chan struct{}),
		ifaces: map[uint32]string{1: "wl_display"},
		nextID: 2,
	}
	p.client = h.srv.AddClient(open(fds[1]))
	t.Cleanup(func() { p.conn.Close() })
	go p.read()

	p.registry = p.newID("wl_registry")
	p.send(1, "get_registry", p.registry)
	p.roundtrip()
	return &p
}

func (p *peer) read() {
	defer close(p.closed)
	for {
		msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		p.m.Lock()
		name, ok := p.ifaces[msg.Sender()]
		p.m.Unlock()
		if !ok {
			p.t.Errorf("event from unknown object %v", msg.Sender())
			return
		}
		iface, _ := protocol.Core().Interface(name)
		op := &iface.Events[msg.Op()]
		args, err := msg.Decode(op)
		if err != nil {
			p.t.Errorf("decode %v.%v: %v", name, op.Name, err)
			return
		}
		p.h.events <- event{p: p, sender: msg.Sender(), iface: name, name: op.Name, args: args}
	}
}

func (p *peer) newID(iface string) uint32 {
	p.m.Lock()
	defer p.m.Unlock()

	id := p.nextID
	p.nextID++
	p.ifaces[id] = iface
	return id
}

func (p *peer) send(id uint32, method string, args ...any) {
	p.t.Helper()

	p.m.Lock()
	name := p.ifaces[id]
	p.m.Unlock()

	iface, _ := protocol.Core().Interface(name)
	for op := range iface.Requests {
		if iface.Requests[op].Name != method {
			continue
		}
		msg, err := wire.Encode(id, uint16(op), &iface.Requests[op], args...)
		if err != nil {
			p.t.Fatal(err)
		}
		err = p.conn.Write(msg)
		if err != nil {
			p.t.Fatal(err)
		}
		return
	}
	p.t.Fatalf("no request %v.%v", iface.Name, method)
}

// wait runs the loop until an event that hasn't been waited for yet
// matches.
func (p *peer) wait(match func(ev event) bool) event {
	p.t.Helper()

	var found event
	p.h.until(func() bool {
		for i := p.seen; i < len(p.got); i++ {
			if match(p.got[i]) {
				found = p.got[i]
				p.seen = i + 1
				return true
			}
		}
		return false
	})
	return found
}

// find returns every event so far that matches.
func (p *peer) find(match func(ev event) bool) []event {
	var r []event
	for _, ev := range p.got {
		if match(ev) {
			r = append(r, ev)
		}
	}
	return r
}

func is(sender uint32, name string) func(event) bool {
	return func(ev event) bool {
		return ev.sender == sender && ev.name == name
	}
}

func (p *peer) roundtrip() {
	p.t.Helper()

	cb := p.newID("wl_callback")
	p.send(1, "sync", cb)
	p.wait(is(cb, "done"))
}

func (p *peer) expectError() uint32 {
	p.t.Helper()
	return p.wait(is(1, "error")).args.Uint(1)
}

// bind binds the most recently announced global with the interface.
func (p *peer) bind(iface string, version uint32) uint32 {
	p.t.Helper()

	removed := make(map[uint32]bool)
	for _, ev := range p.find(is(p.registry, "global_remove")) {
		removed[ev.args.Uint(0)] = true
	}
	globals := p.find(is(p.registry, "global"))
	for i := len(globals) - 1; i >= 0; i-- {
		g := globals[i]
		if g.args.String(1) != iface || removed[g.args.Uint(0)] {
			continue
		}
		id := p.newID(iface)
		p.send(p.registry, "bind", g.args.Uint(0), wire.NewID{Interface: iface, Version: version, ID: id})
		return id
	}
	p.t.Fatalf("no %v global", iface)
	return 0
}

type window struct {
	p        *peer
	size     image.Point
	comp     uint32
	shm      uint32
	surface  uint32
	xdg      uint32
	toplevel uint32
}

// newXDGSurface creates a toplevel and commits it without
// acknowledging its configure.
func (p *peer) newXDGSurface(size image.Point) *window {
	p.t.Helper()

	w := window{
		p:    p,
		size: size,
		comp: p.bind("wl_compositor", CompositorVersion),
		shm:  p.bind("wl_shm", ShmVersion),
	}
	wm := p.bind("xdg_wm_base", WMBaseVersion)

	w.surface = p.newID("wl_surface")
	p.send(w.comp, "create_surface", w.surface)
	w.xdg = p.newID("xdg_surface")
	p.send(wm, "get_xdg_surface", w.xdg, w.surface)
	w.toplevel = p.newID("xdg_toplevel")
	p.send(w.xdg, "get_toplevel", w.toplevel)
	p.send(w.surface, "commit")
	return &w
}

func (p *peer) newWindow(size image.Point) *window {
	p.t.Helper()

	w := p.newXDGSurface(size)
	ev := p.wait(is(w.xdg, "configure"))
	p.send(w.xdg, "ack_configure", ev.args.Uint(0))
	return w
}

// buffer creates a buffer of the window's size filled with c.
func (w *window) buffer(c shmimage.ARGB8888Color) uint32 {
	p := w.p
	p.t.Helper()

	img := shmimage.NewARGB8888(image.Rectangle{Max: w.size})
	for y := 0; y < w.size.Y; y++ {
		for x := 0; x < w.size.X; x++ {
			img.SetARGB8888(x, y, c)
		}
	}

	file, err := shm.Create("test-buffer", int64(len(img.Pix)))
	if err != nil {
		p.t.Fatal(err)
	}
	defer file.Close()
	_, err = file.WriteAt(img.Pix, 0)
	if err != nil {
		p.t.Fatal(err)
	}

	pool := p.newID("wl_shm_pool")
	p.send(w.shm, "create_pool", pool, file, int32(len(img.Pix)))
	buf := p.newID("wl_buffer")
	p.send(pool, "create_buffer", buf, int32(0), int32(w.size.X), int32(w.size.Y), int32(img.Stride), uint32(proto.WlShmFormatArgb8888))
	p.send(pool, "destroy")
	return buf
}

// show attaches buf and commits it along with a frame callback, which
// it returns.
func (w *window) show(buf uint32) uint32 {
	p := w.p
	p.t.Helper()

	p.send(w.surface, "attach", buf, int32(0), int32(0))
	p.send(w.surface, "damage_buffer", int32(0), int32(0), int32(w.size.X), int32(w.size.Y))
	cb := p.newID("wl_callback")
	p.send(w.surface, "frame", cb)
	p.send(w.surface, "commit")
	return cb
}

func TestFirstFrame(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))

	first := w.buffer(green)
	cb := w.show(first)
	p.roundtrip()

	if !h.b.Pending(h.out()) {
		t.Fatal("window commit did not present a frame")
	}
	if c := h.pixel(52, 52); c != green {
		t.Errorf("window pixel = %#x, want %#x", c, green)
	}
	if c := h.pixel(18, 60); c != focusedBorder {
		t.Errorf("border pixel = %#x, want %#x", c, focusedBorder)
	}
	if c := h.pixel(200, 200); c != config.Default().Background() {
		t.Errorf("background pixel = %#x", c)
	}
	if len(p.find(is(cb, "done"))) != 0 {
		t.Fatal("frame callback fired before the frame completed")
	}

	// The first buffer is replaced while the frame that shows it is
	// still in flight, so it is only released once that frame is done.
	second := w.buffer(blue)
	cb2 := w.show(second)
	p.roundtrip()
	if len(p.find(is(first, "release"))) != 0 {
		t.Fatal("buffer released while still on screen")
	}

	h.complete(h.out())
	p.wait(is(cb, "done"))
	p.wait(is(first, "release"))

	p.roundtrip()
	h.complete(h.out())
	p.wait(is(cb2, "done"))
	if c := h.pixel(52, 52); c != blue {
		t.Errorf("window pixel after second commit = %#x, want %#x", c, blue)
	}

	p.roundtrip()
	if n := len(p.find(is(first, "release"))); n != 1 {
		t.Errorf("first buffer released %v times", n)
	}
	if n := len(p.find(is(second, "release"))); n != 0 {
		t.Errorf("attached buffer released %v times", n)
	}
}

func TestStacking(t *testing.T) {
	h := newHarness(t)
	p1 := h.newPeer()
	p2 := h.newPeer()

	w1 := p1.newWindow(image.Pt(64, 64))
	w1.show(w1.buffer(green))
	p1.roundtrip()
	h.complete(h.out())

	w2 := p2.newWindow(image.Pt(64, 64))
	cb := w2.show(w2.buffer(blue))
	p2.roundtrip()
	h.complete(h.out())
	p2.wait(is(cb, "done"))

	views := h.comp.Toplevels()
	if len(views) != 2 {
		t.Fatalf("got %v toplevels", len(views))
	}
	if views[0].Activated() || !views[1].Activated() {
		t.Errorf("activation = %v, %v", views[0].Activated(), views[1].Activated())
	}
	if pos := views[1].Pos(); pos != views[0].Pos().Add(cascade) {
		t.Errorf("second window at %v, first at %v", pos, views[0].Pos())
	}

	if c := h.pixel(80, 80); c != blue {
		t.Errorf("overlap pixel = %#x, want top window", c)
	}
	if c := h.pixel(40, 40); c == green || c == config.Default().Background() {
		t.Errorf("unfocused window pixel = %#x, want it dimmed", c)
	}
}

func TestOutputRemoved(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))
	cb := w.show(w.buffer(green))
	p.roundtrip()

	out := h.out()
	if !h.b.Pending(out) {
		t.Fatal("no frame in flight")
	}
	h.b.RemoveOutput(out)
	h.drain()
	p.wait(is(p.registry, "global_remove"))
	if len(h.comp.Outputs()) != 0 {
		t.Fatal("output still present")
	}

	// Nothing shows the window, so its callbacks are held.
	p.send(w.surface, "damage_buffer", int32(0), int32(0), int32(1), int32(1))
	cb2 := p.newID("wl_callback")
	p.send(w.surface, "frame", cb2)
	p.send(w.surface, "commit")
	p.roundtrip()
	if len(p.find(is(cb, "done"))) != 0 || len(p.find(is(cb2, "done"))) != 0 {
		t.Fatal("frame callback fired without an output")
	}

	out = h.b.AddOutput(image.Pt(testSize, testSize))
	h.drain()
	if !h.b.Pending(out) {
		t.Fatal("new output did not get a frame")
	}
	h.complete(out)
	p.wait(is(cb, "done"))
	p.wait(is(cb2, "done"))

	if !h.comp.visible(h.comp.Toplevels()[0].window()) {
		t.Error("window was not moved onto the new output")
	}
}

func TestDebugger(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()

	mgr := p.bind("ewc_debug_v1", DebugVersion)
	dbg := p.newID("ewc_debugger_v1")
	p.send(mgr, "get_debugger", dbg, uint32(proto.EwcDebugV1InterestMessages|proto.EwcDebugV1InterestFrameStat))
	p.roundtrip()
	if !h.comp.Debugging() {
		t.Fatal("compositor doesn't know about the debugger")
	}

	h.comp.Debug("hello")
	h.srv.Flush()
	if msg := p.wait(is(dbg, "massage")).args.String(0); msg != "hello" {
		t.Errorf("message = %q", msg)
	}

	// Time spent waiting for the display isn't rendering time.
	const wait = 250 * time.Millisecond
	w := p.newWindow(image.Pt(16, 16))
	w.show(w.buffer(green))
	p.roundtrip()
	time.Sleep(wait)
	h.complete(h.out())
	stat := time.Duration(p.wait(is(dbg, "frame_stat")).args.Uint(0))
	if stat <= 0 || stat >= wait {
		t.Errorf("frame_stat = %v", stat)
	}

	p.send(dbg, "destroy")
	p.roundtrip()
	if h.comp.Debugging() {
		t.Error("destroyed debugger still subscribed")
	}
}

func TestSessionPause(t *testing.T) {
	h := newHarness(t)
	kb := h.b.AddDevice("keyboard", input.CapKeyboard)
	press := func(key uint32, pressed bool) {
		h.b.Inject(input.Key{Header: input.Header{Device: kb}, Key: key, Pressed: pressed})
	}

	press(input.KeyLeftCtrl, true)
	press(input.KeyLeftAlt, true)
	press(input.KeyF1+1, true)
	h.until(h.comp.Paused)
	if c := h.comp.Seat().Caps(); c != input.CapKeyboard {
		t.Errorf("seat caps = %v", c)
	}

	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))
	cb := w.show(w.buffer(green))
	p.roundtrip()
	if h.b.Pending(h.out()) {
		t.Fatal("presented while paused")
	}

	h.b.SwitchVT(1)
	h.until(func() bool { return !h.comp.Paused() && h.b.Pending(h.out()) })
	h.complete(h.out())
	p.wait(is(cb, "done"))
	if c := h.pixel(52, 52); c != green {
		t.Errorf("window pixel after resume = %#x", c)
	}
}

func TestPauseWithFrameInFlight(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))

	buf := w.buffer(green)
	cb := w.show(buf)
	p.roundtrip()
	if !h.b.Pending(h.out()) {
		t.Fatal("window commit did not present a frame")
	}
	presented := h.frames()

	// The frame in flight is lost along with the session.
	h.b.Pause()
	h.until(h.comp.Paused)
	if len(p.find(is(cb, "done"))) != 0 {
		t.Fatal("frame callback fired for a discarded frame")
	}

	h.b.Resume()
	h.until(func() bool { return !h.comp.Paused() && h.b.Pending(h.out()) })
	if n := h.frames(); n != presented+1 {
		t.Fatalf("presented %v frames after resume, want 1", n-presented)
	}
	h.complete(h.out())
	p.wait(is(cb, "done"))
	if c := h.pixel(52, 52); c != green {
		t.Errorf("window pixel after resume = %#x", c)
	}
	if n := len(p.find(is(buf, "release"))); n != 0 {
		t.Errorf("attached buffer released %v times", n)
	}
}

func TestRolelessSurfaceNotDrawn(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := window{
		p:    p,
		size: image.Pt(64, 64),
		comp: p.bind("wl_compositor", CompositorVersion),
		shm:  p.bind("wl_shm", ShmVersion),
	}
	w.surface = p.newID("wl_surface")
	p.send(w.comp, "create_surface", w.surface)

	before := h.frames()
	cb := w.show(w.buffer(green))
	p.roundtrip()
	if h.frames() != before+1 {
		t.Fatal("frame callback did not schedule a frame")
	}
	if c := h.pixel(52, 52); c != config.Default().Background() {
		t.Errorf("surface without a role was drawn: %#x", c)
	}

	h.complete(h.out())
	p.wait(is(cb, "done"))
}

func TestUnconfiguredBuffer(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newXDGSurface(image.Pt(8, 8))
	p.send(w.surface, "attach", w.buffer(green), int32(0), int32(0))
	p.send(w.surface, "commit")
	if code := p.expectError(); code != proto.XdgSurfaceErrorUnconfiguredBuffer {
		t.Fatalf("error code = %v", code)
	}
	<-p.closed
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))
	w.show(w.buffer(green))
	p.roundtrip()
	h.complete(h.out())

	p.conn.Close()
	h.until(func() bool {
		return len(h.comp.Toplevels()) == 0 && h.b.Pending(h.out())
	})
	if len(h.srv.Clients()) != 0 {
		t.Errorf("%v clients left", len(h.srv.Clients()))
	}
	if c := h.pixel(52, 52); c != config.Default().Background() {
		t.Errorf("window of disconnected client still drawn: %#x", c)
	}
	h.complete(h.out())
	if len(h.comp.waiting) != 0 {
		t.Errorf("%v surfaces still waiting for frames", len(h.comp.waiting))
	}
}

func TestDestroyedBuffer(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	w := p.newWindow(image.Pt(64, 64))
	buf := w.buffer(green)
	w.show(buf)
	p.roundtrip()
	h.complete(h.out())

	// The contents of a destroyed buffer stay on screen until
	// something else is attached.
	p.send(buf, "destroy")
	p.send(w.surface, "damage_buffer", int32(0), int32(0), int32(64), int32(64))
	cb := p.newID("wl_callback")
	p.send(w.surface, "frame", cb)
	p.send(w.surface, "commit")
	p.roundtrip()
	h.complete(h.out())
	p.wait(is(cb, "done"))
	if c := h.pixel(52, 52); c != green {
		t.Errorf("window pixel = %#x", c)
	}

	p.send(w.surface, "attach", uint32(0), int32(0), int32(0))
	p.send(w.surface, "commit")
	p.roundtrip()
	if p.client.Closed() {
		t.Fatal("client was disconnected")
	}
	if len(h.comp.Toplevels()) != 0 {
		t.Error("null buffer did not unmap the window")
	}
	if n := len(p.find(is(buf, "release"))); n != 0 {
		t.Errorf("destroyed buffer got %v release events", n)
	}
}

func TestPointerFocus(t *testing.T) {
	h := newHarness(t)
	p := h.newPeer()
	seat := p.bind("wl_seat", SeatVersion)
	p.wait(is(seat, "capabilities"))

	mouse := h.b.AddDevice("mouse", input.CapPointer)
	caps := p.wait(is(seat, "capabilities"))
	if caps.args.Uint(0)&proto.WlSeatCapabilityPointer == 0 {
		t.Fatalf("capabilities = %v", caps.args.Uint(0))
	}
	ptr := p.newID("wl_pointer")
	p.send(seat, "get_pointer", ptr)

	w := p.newWindow(image.Pt(64, 64))
	w.show(w.buffer(green))
	p.roundtrip()

	hdr := input.Header{Device: mouse}
	h.b.Inject(input.PointerMotionAbsolute{Header: hdr, X: 0.25, Y: 0.25})
	enter := p.wait(is(ptr, "enter"))
	if s := enter.args.Object(1); uint32(s) != w.surface {
		t.Errorf("entered %v, want %v", s, w.surface)
	}
	x, y := enter.args.Fixed(2).Int(), enter.args.Fixed(3).Int()
	if x != 44 || y != 44 {
		t.Errorf("entered at %v,%v", x, y)
	}
	if h.comp.Seat().PointerFocus() != h.comp.Toplevels()[0].Surface() {
		t.Error("seat has the wrong pointer focus")
	}

	h.b.Inject(input.PointerButton{Header: hdr, Button: pointer.ButtonLeft, Pressed: true})
	ev := p.wait(is(ptr, "button"))
	if b := ev.args.Uint(2); b != uint32(pointer.ButtonLeft) {
		t.Errorf("button = %#x", b)
	}
	if s := ev.args.Uint(3); s != proto.WlPointerButtonStatePressed {
		t.Errorf("button state = %v", s)
	}

	h.b.Inject(input.PointerMotionAbsolute{Header: hdr, X: 0.9, Y: 0.9})
	h.b.Inject(input.PointerButton{Header: hdr, Button: pointer.ButtonLeft, Pressed: false})
	p.wait(is(ptr, "leave"))
	if h.comp.Seat().PointerFocus() != nil {
		t.Error("pointer focus kept after leaving the window")
	}
}
