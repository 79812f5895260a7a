package loop

import (
	"context"
	"errors"
	"image"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/backend/headless"
	"deedles.dev/wlc/client"
	"deedles.dev/wlc/compositor"
	"deedles.dev/wlc/config"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render/software"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/wlc/wire"
	"golang.org/x/sys/unix"
)

type env struct {
	srv  *server.Server
	comp *compositor.Compositor
	loop *Loop
	errc chan error
}

func start(t *testing.T, srv *server.Server, b backend.Backend, hook *log.Hook) *env {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	err := b.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	r := software.New()
	comp := compositor.New(srv, r, b, config.Default())
	e := env{
		srv:  srv,
		comp: comp,
		loop: New(srv, comp, b, hook),
		errc: make(chan error, 1),
	}
	t.Cleanup(func() {
		e.loop.Quit()
		<-e.errc
		comp.Close()
		srv.Close()
		b.Close()
		r.Close()
	})

	go func() { e.errc <- e.loop.Run(ctx) }()
	return &e
}

// connect adds a client to srv. It must be called before the loop
// touches the server's client list, or from the loop itself.
func connect(t *testing.T, srv *server.Server) *client.Display {
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

	srv.AddClient(open(fds[1]))
	d := client.Connect(open(fds[0]))
	t.Cleanup(func() { d.Close() })
	return d
}

// stub is a backend whose events are sent by the test.
type stub struct {
	events chan backend.Event
}

func (s *stub) Name() string                                      { return "stub" }
func (s *stub) Start(context.Context) error                       { return nil }
func (s *stub) Events() <-chan backend.Event                      { return s.events }
func (s *stub) Present(*backend.Output, *shmimage.ARGB8888) error { return nil }
func (s *stub) Close() error                                      { return nil }

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()

	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestStop(t *testing.T) {
	t.Run("Quit", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		b := &stub{events: make(chan backend.Event)}
		srv := server.New()
		defer srv.Close()
		l := New(srv, compositor.New(srv, software.New(), b, nil), b, nil)

		errc := make(chan error, 1)
		go func() { errc <- l.Run(ctx) }()
		l.Quit()
		l.Quit()
		if err := wait(t, errc); err != nil {
			t.Fatalf("Run() = %v", err)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		b := &stub{events: make(chan backend.Event)}
		srv := server.New()
		defer srv.Close()
		l := New(srv, compositor.New(srv, software.New(), b, nil), b, nil)

		errc := make(chan error, 1)
		go func() { errc <- l.Run(ctx) }()
		cancel()
		if err := wait(t, errc); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v", err)
		}
	})
}

func TestBackendClosed(t *testing.T) {
	failure := errors.New("host went away")
	tests := []struct {
		name string
		send func(chan backend.Event)
		want error
	}{
		{"WithError", func(c chan backend.Event) { c <- backend.Closed{Err: failure} }, failure},
		{"WithoutError", func(c chan backend.Event) { c <- backend.Closed{} }, ErrBackendClosed},
		{"ChannelClosed", func(c chan backend.Event) { close(c) }, ErrBackendClosed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := &stub{events: make(chan backend.Event, 1)}
			srv := server.New()
			defer srv.Close()
			l := New(srv, compositor.New(srv, software.New(), b, nil), b, nil)

			errc := make(chan error, 1)
			go func() { errc <- l.Run(context.Background()) }()
			test.send(b.events)
			if err := wait(t, errc); !errors.Is(err, test.want) {
				t.Fatalf("Run() = %v, want %v", err, test.want)
			}
		})
	}
}

func TestServesClients(t *testing.T) {
	b := headless.New(backend.Options{Size: image.Pt(64, 64)})
	srv := server.New()

	// The client is added before the loop starts so that the server's
	// client list is only touched by one goroutine at a time.
	d := connect(t, srv)
	start(t, srv, b, nil)

	reg, err := d.Registry()
	if err != nil {
		t.Fatal(err)
	}

	// The output may be added in the same pass as the first roundtrip
	// is answered, but not later.
	for i := 0; i < 2; i++ {
		err = d.Roundtrip()
		if err != nil {
			t.Fatal(err)
		}
	}

	for _, iface := range []string{"wl_compositor", "wl_shm", "xdg_wm_base", "wl_seat", "wl_output"} {
		if _, ok := reg.Find(iface); !ok {
			t.Errorf("no %v global", iface)
		}
	}
}

func TestDebugMessages(t *testing.T) {
	hook := log.NewHook(16)
	b := headless.New(backend.Options{Size: image.Pt(64, 64)})
	srv := server.New()
	d := connect(t, srv)
	start(t, srv, b, hook)

	reg, err := d.Registry()
	if err != nil {
		t.Fatal(err)
	}
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := reg.BindFirst("ewc_debug_v1", 1)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 64)
	dbg := d.NewObject("ewc_debugger_v1", 1)
	dbg.On("massage", func(ev *client.Event) {
		select {
		case got <- ev.String(0):
		default:
		}
	})
	err = mgr.Request("get_debugger", dbg, uint32(proto.EwcDebugV1InterestMessages))
	if err != nil {
		t.Fatal(err)
	}
	err = d.Roundtrip()
	if err != nil {
		t.Fatal(err)
	}

	log.For("test").Infoln("ping")
	timeout := time.After(5 * time.Second)
	for {
		select {
		case batch := <-d.Work():
			err := d.Process(batch)
			if err != nil {
				t.Fatal(err)
			}
		case msg := <-got:
			if strings.Contains(msg, "test: ping") {
				return
			}
		case <-timeout:
			t.Fatal("log message never reached the debugger")
		}
	}
}
