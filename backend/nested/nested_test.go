package nested

import (
	"context"
	"errors"
	"image"
	"math"
	"net"
	"os"
	"testing"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/backend/headless"
	"deedles.dev/wlc/client"
	"deedles.dev/wlc/compositor"
	"deedles.dev/wlc/config"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/loop"
	"deedles.dev/wlc/render/software"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/wlc/wire"
	"golang.org/x/sys/unix"
)

// host is a compositor running on a headless backend for the nested
// backend to connect to.
type host struct {
	srv  *server.Server
	b    *headless.Backend
	loop *loop.Loop
	errc chan error
}

// startHost starts a host compositor and returns a display connected
// to it.
func startHost(t *testing.T) (*host, *client.Display) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

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

	b := headless.New(backend.Options{Size: image.Pt(128, 128)})
	err = b.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New()
	r := software.New()
	comp := compositor.New(srv, r, b, config.Default())
	srv.AddClient(open(fds[1]))

	h := host{
		srv:  srv,
		b:    b,
		loop: loop.New(srv, comp, b, nil),
		errc: make(chan error, 1),
	}
	go func() { h.errc <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		h.stop()
		comp.Close()
		b.Close()
		r.Close()
	})

	return &h, client.Connect(open(fds[0]))
}

// stop stops the host and disconnects its clients.
func (h *host) stop() {
	h.loop.Quit()
	if h.errc != nil {
		<-h.errc
		h.errc = nil
	}
	h.srv.Close()
}

func next(t *testing.T, b *Backend) backend.Event {
	t.Helper()

	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// nextOf returns the next event of type T, skipping any others.
func nextOf[T backend.Event](t *testing.T, b *Backend) T {
	t.Helper()

	for {
		ev, ok := next(t, b).(T)
		if ok {
			return ev
		}
	}
}

func newNested(t *testing.T, d *client.Display) *Backend {
	t.Helper()

	b, err := New(d, backend.Options{Outputs: 1, Size: image.Pt(32, 32)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	err = b.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestPresent(t *testing.T) {
	h, d := startHost(t)
	b := newNested(t, d)

	added := nextOf[backend.OutputAdded](t, b)
	if size := added.Output.Mode.Size; size != image.Pt(32, 32) {
		t.Fatalf("output size = %v", size)
	}

	green := shmimage.NewARGB8888Color(0, 0xFF, 0, 0xFF)
	img := shmimage.NewARGB8888(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetARGB8888(x, y, green)
		}
	}

	err := b.Present(added.Output, img)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Present(added.Output, img); !errors.Is(err, backend.ErrBusy) {
		t.Fatalf("second present = %v, want ErrBusy", err)
	}

	done := nextOf[backend.FrameDone](t, b)
	if done.Output != added.Output || done.Err != nil {
		t.Fatalf("frame done = %+v", done)
	}

	// The window is the first one on the host, so it is placed just
	// inside the host output's corner.
	frame, _ := h.b.Frame(h.b.Outputs()[0])
	if c := frame.ARGB8888At(36, 36); c != green {
		t.Errorf("host pixel = %#x, want %#x", c, green)
	}
}

func TestPointer(t *testing.T) {
	h, d := startHost(t)
	b := newNested(t, d)
	added := nextOf[backend.OutputAdded](t, b)

	// The window has to be on screen for the host to send it input.
	err := b.Present(added.Output, shmimage.NewARGB8888(image.Rect(0, 0, 32, 32)))
	if err != nil {
		t.Fatal(err)
	}
	nextOf[backend.FrameDone](t, b)

	mouse := h.b.AddDevice("mouse", input.CapPointer)
	h.b.Inject(input.PointerMotionAbsolute{Header: input.Header{Device: mouse}, X: 0.25, Y: 0.25})

	for {
		ev := nextOf[backend.Input](t, b)
		motion, ok := ev.Event.(input.PointerMotionAbsolute)
		if !ok {
			continue
		}
		if motion.Output != added.Output.Name {
			t.Errorf("motion on %q, want %q", motion.Output, added.Output.Name)
		}
		// The host pointer is at 32,32 and the window at 20,20.
		if math.Abs(motion.X-12.0/32) > 1e-3 || math.Abs(motion.Y-12.0/32) > 1e-3 {
			t.Errorf("motion to %v,%v", motion.X, motion.Y)
		}
		return
	}
}

func TestHostGone(t *testing.T) {
	h, d := startHost(t)
	b := newNested(t, d)
	nextOf[backend.OutputAdded](t, b)

	h.stop()
	closed := nextOf[backend.Closed](t, b)
	if closed.Err == nil {
		t.Fatal("closed without an error")
	}
}
