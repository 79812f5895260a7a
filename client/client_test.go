package client

import (
	"errors"
	"image"
	"image/color"
	"net"
	"os"
	"testing"
	"time"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/wlc/wire"
	"golang.org/x/sys/unix"
)

// connect serves one end of a socket pair with srv and returns a
// Display for the other. The server is run on a separate goroutine
// until the test ends.
func connect(t *testing.T, srv *server.Server) *Display {
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

	work := make(chan func())
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case f := <-work:
				f()
			case batch := <-srv.Work():
				srv.Process(batch)
				srv.Flush()
			}
		}
	}()

	sc := open(fds[1])
	work <- func() { srv.AddClient(sc) }

	d := Connect(open(fds[0]))
	t.Cleanup(func() {
		d.Close()
		work <- func() { srv.Close() }
		close(done)
	})
	return d
}

func TestRegistry(t *testing.T) {
	srv := server.New()
	srv.AddGlobal("wl_compositor", 6, nil, nil)
	srv.AddGlobal("wl_shm", 1, nil, func(obj *server.Object) error {
		obj.Send(proto.WlShmEvFormat, uint32(proto.WlShmFormatArgb8888))
		return nil
	})

	d := connect(t, srv)
	reg, err := d.Registry()
	if err != nil {
		t.Fatal(err)
	}
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}

	globals := reg.Globals()
	if len(globals) != 2 || globals[0].Interface != "wl_compositor" || globals[1].Interface != "wl_shm" {
		t.Fatalf("globals = %+v", globals)
	}

	shm, err := reg.BindFirst("wl_shm", 1)
	if err != nil {
		t.Fatal(err)
	}
	var formats []uint32
	shm.On("format", func(ev *Event) { formats = append(formats, ev.Uint(0)) })
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}
	if len(formats) != 1 || formats[0] != proto.WlShmFormatArgb8888 {
		t.Fatalf("formats = %v", formats)
	}

	_, err = reg.BindFirst("xdg_wm_base", 1)
	if err == nil {
		t.Fatal("bound a missing global")
	}
}

func TestProtocolError(t *testing.T) {
	srv := server.New()
	impl := server.NewImpl("wl_compositor", server.Handlers{
		"create_region": func(r *server.Request) error {
			return r.Errorf(7, "no regions here")
		},
	})
	srv.AddGlobal("wl_compositor", 6, impl, nil)

	d := connect(t, srv)
	var reported *Error
	d.Error = func(err *Error) { reported = err }

	reg, _ := d.Registry()
	d.Roundtrip()
	comp, err := reg.BindFirst("wl_compositor", 6)
	if err != nil {
		t.Fatal(err)
	}
	comp.Request("create_region", d.NewObject("wl_region", 6))

	err = d.Roundtrip()
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("roundtrip error = %v", err)
	}
	if perr.Code != 7 || perr.ObjectID != comp.ID() || perr.Interface != "wl_compositor" {
		t.Fatalf("error = %+v", perr)
	}
	if reported != perr {
		t.Fatal("Error callback not called")
	}
}

func TestDeleteID(t *testing.T) {
	srv := server.New()
	impl := server.NewImpl("wl_compositor", server.Handlers{
		"create_region": func(r *server.Request) error {
			r.NewObject(0, nil)
			return nil
		},
	})
	srv.AddGlobal("wl_compositor", 6, impl, nil)

	d := connect(t, srv)
	reg, _ := d.Registry()
	d.Roundtrip()
	comp, _ := reg.BindFirst("wl_compositor", 6)

	region := d.NewObject("wl_region", 1)
	comp.Request("create_region", region)
	err := region.Destroy()
	if err != nil {
		t.Fatal(err)
	}
	if !region.Destroyed() {
		t.Fatal("not marked as destroyed")
	}

	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get(region.ID()); ok {
		t.Fatal("region ID not released by delete_id")
	}
}

func TestSync(t *testing.T) {
	d := connect(t, server.New())

	var got []uint32
	for i := 0; i < 3; i++ {
		d.Sync(func(serial uint32) { got = append(got, serial) })
	}

	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case batch := <-d.Work():
			err := d.Process(batch)
			if err != nil {
				t.Fatal(err)
			}
		case <-timeout:
			t.Fatalf("got %v callbacks", len(got))
		}
	}
}

func TestUnhandledEvent(t *testing.T) {
	srv := server.New()
	srv.AddGlobal("wl_output", 4, nil, func(obj *server.Object) error {
		obj.Send(proto.WlOutputEvName, "TEST-1")
		obj.Send(proto.WlOutputEvDone)
		return nil
	})

	d := connect(t, srv)
	reg, _ := d.Registry()
	d.Roundtrip()

	out, err := reg.BindFirst("wl_output", 4)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}

	// Events for a partly handled object still reach their handlers.
	out, err = reg.Bind(reg.Globals()[0], 4)
	if err != nil {
		t.Fatal(err)
	}
	var name string
	out.On("name", func(ev *Event) { name = ev.String(0) })
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}
	if name != "TEST-1" {
		t.Fatalf("name = %q", name)
	}
}

func TestImageBufferViews(t *testing.T) {
	b := &ImageBuffer{
		size: image.Pt(4, 2),
		mmap: make(shm.Mmap, 4*4*2),
	}

	b.Image().Set(3, 1, color.RGBA{R: 0xFF, A: 0xFF})
	want := shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF)
	if got := b.ARGB8888().ARGB8888At(3, 1); got != want {
		t.Fatalf("pixel = %#08x, want %#08x", uint32(got), uint32(want))
	}
	if got := b.ARGB8888().ARGB8888At(0, 0); got != 0 {
		t.Fatalf("untouched pixel = %#08x", uint32(got))
	}
}
