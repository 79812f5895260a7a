package server

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
	"golang.org/x/sys/unix"
)

type event struct {
	sender uint32
	iface  string
	name   string
	args   wire.Args
}

type peer struct {
	t      *testing.T
	server *Server
	client *Client
	conn   *wire.Conn
	events chan event
	ifaces map[uint32]string
	nextID uint32
	closed chan struct{}
}

func newPeer(t *testing.T, server *Server) *peer {
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
		t:      t,
		server: server,
		conn:   open(fds[0]),
		events: make(chan event, 4096),
		ifaces: map[uint32]string{1: "wl_display"},
		nextID: 2,
		closed: make(chan struct{}),
	}
	p.client = server.AddClient(open(fds[1]))
	t.Cleanup(func() { p.conn.Close() })

	go p.read()
	return &p
}

func (p *peer) read() {
	defer close(p.closed)
	for {
		msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		name, ok := p.ifaces[msg.Sender()]
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
		p.events <- event{sender: msg.Sender(), iface: name, name: op.Name, args: args}
	}
}

func (p *peer) newID(iface string) uint32 {
	id := p.nextID
	p.nextID++
	p.ifaces[id] = iface
	return id
}

func (p *peer) send(id uint32, method string, args ...any) {
	p.t.Helper()

	iface, _ := protocol.Core().Interface(p.ifaces[id])
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

// pump runs the server until the events that were received satisfy
// done, or fails the test after a timeout.
func (p *peer) pump(done func(ev event) bool) []event {
	p.t.Helper()

	var got []event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case batch := <-p.server.Work():
			p.server.Process(batch)
			p.server.Flush()
		case ev := <-p.events:
			got = append(got, ev)
			if done(ev) {
				return got
			}
		case <-timeout:
			p.t.Fatalf("timed out; got %v events", len(got))
		}
	}
}

// roundtrip sends a sync and pumps until it completes.
func (p *peer) roundtrip() []event {
	p.t.Helper()

	cb := p.newID("wl_callback")
	p.send(1, "sync", cb)
	return p.pump(func(ev event) bool {
		return ev.sender == cb && ev.name == "done"
	})
}

// expectError pumps until the server sends a protocol error and
// returns its code.
func (p *peer) expectError() uint32 {
	p.t.Helper()

	evs := p.pump(func(ev event) bool {
		return ev.sender == 1 && ev.name == "error"
	})
	return evs[len(evs)-1].args.Uint(1)
}

func find(evs []event, name string) []event {
	var r []event
	for _, ev := range evs {
		if ev.name == name {
			r = append(r, ev)
		}
	}
	return r
}

// from returns the events in evs that were sent by the object id.
func from(evs []event, id uint32) []event {
	var r []event
	for _, ev := range evs {
		if ev.sender == id {
			r = append(r, ev)
		}
	}
	return r
}

func testServer(t *testing.T) *Server {
	server := New()
	t.Cleanup(func() { server.Close() })
	return server
}

func TestRegistry(t *testing.T) {
	server := testServer(t)
	server.AddGlobal("wl_compositor", 6, nil, nil)
	shm := server.AddGlobal("wl_shm", 1, nil, nil)

	p := newPeer(t, server)
	reg := p.newID("wl_registry")
	p.send(1, "get_registry", reg)
	globals := find(p.roundtrip(), "global")
	if len(globals) != 2 {
		t.Fatalf("got %v globals, want 2", len(globals))
	}
	if iface := globals[0].args.String(1); iface != "wl_compositor" {
		t.Errorf("first global = %q", iface)
	}
	if v := globals[0].args.Uint(2); v != 6 {
		t.Errorf("wl_compositor version = %v", v)
	}

	shm.Remove()
	removed := find(p.roundtrip(), "global_remove")
	if len(removed) != 1 || removed[0].args.Uint(0) != shm.Name() {
		t.Fatalf("global_remove events = %v", removed)
	}

	// Binding a removed global still works, but the object is inert.
	p.send(reg, "bind", shm.Name(), wire.NewID{Interface: "wl_shm", Version: 1, ID: p.newID("wl_shm")})
	p.roundtrip()
	if p.client.Closed() {
		t.Fatal("binding a removed global disconnected the client")
	}
}

func TestBindErrors(t *testing.T) {
	tests := []struct {
		name    string
		global  uint32
		iface   string
		version uint32
	}{
		{"UnknownName", 99, "wl_compositor", 1},
		{"WrongInterface", 1, "wl_shm", 1},
		{"VersionTooHigh", 1, "wl_compositor", 7},
		{"VersionZero", 1, "wl_compositor", 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := testServer(t)
			server.AddGlobal("wl_compositor", 6, nil, nil)

			p := newPeer(t, server)
			reg := p.newID("wl_registry")
			p.send(1, "get_registry", reg)
			p.send(reg, "bind", test.global, wire.NewID{Interface: test.iface, Version: test.version, ID: p.newID(test.iface)})
			if code := p.expectError(); code != proto.WlDisplayErrorInvalidObject {
				t.Fatalf("error code = %v", code)
			}
			<-p.closed
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		run  func(p *peer)
	}{
		{
			name: "UnknownObject",
			code: proto.WlDisplayErrorInvalidObject,
			run: func(p *peer) {
				p.ifaces[50] = "wl_registry"
				p.send(50, "bind", uint32(1), wire.NewID{Interface: "wl_compositor", Version: 1, ID: 51})
			},
		},
		{
			name: "InvalidOpcode",
			code: proto.WlDisplayErrorInvalidMethod,
			run: func(p *peer) {
				msg := wire.NewMessage(1, 9)
				p.conn.Write(msg)
			},
		},
		{
			name: "DuplicateID",
			code: proto.WlDisplayErrorInvalidObject,
			run: func(p *peer) {
				p.send(1, "get_registry", uint32(2))
				p.send(1, "get_registry", uint32(2))
			},
		},
		{
			name: "ServerRangeID",
			code: proto.WlDisplayErrorInvalidObject,
			run: func(p *peer) {
				p.send(1, "get_registry", uint32(wire.ServerIDStart))
			},
		},
		{
			name: "TruncatedArgs",
			code: proto.WlDisplayErrorInvalidMethod,
			run: func(p *peer) {
				msg := wire.NewMessage(1, proto.WlDisplayReqSync)
				p.conn.Write(msg)
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := testServer(t)
			p := newPeer(t, server)
			test.run(p)
			if code := p.expectError(); code != test.code {
				t.Fatalf("error code = %v, want %v", code, test.code)
			}
			<-p.closed
		})
	}
}

func regionGlobal(server *Server, destroyed *int) {
	region := NewImpl("wl_region", Handlers{
		"add": func(r *Request) error {
			if r.Int(2) < 0 {
				return errors.New("negative width")
			}
			return nil
		},
	})
	server.AddGlobal("wl_compositor", 6, NewImpl("wl_compositor", Handlers{
		"create_region": func(r *Request) error {
			obj := r.NewObject(0, region)
			obj.OnDestroy(func() { *destroyed++ })
			return nil
		},
	}), nil)
}

func bindFirst(p *peer, iface string, version uint32) uint32 {
	reg := p.newID("wl_registry")
	p.send(1, "get_registry", reg)
	globals := find(p.roundtrip(), "global")
	for _, g := range globals {
		if g.args.String(1) == iface {
			id := p.newID(iface)
			p.send(reg, "bind", g.args.Uint(0), wire.NewID{Interface: iface, Version: version, ID: id})
			return id
		}
	}
	p.t.Fatalf("no %v global", iface)
	return 0
}

func TestDestroy(t *testing.T) {
	server := testServer(t)
	var destroyed int
	regionGlobal(server, &destroyed)

	p := newPeer(t, server)
	comp := bindFirst(p, "wl_compositor", 6)
	region := p.newID("wl_region")
	p.send(comp, "create_region", region)
	p.send(region, "destroy")

	deleted := find(p.roundtrip(), "delete_id")
	found := false
	for _, ev := range deleted {
		if ev.args.Uint(0) == region {
			found = true
		}
	}
	if !found {
		t.Fatalf("no delete_id for %v", region)
	}
	if destroyed != 1 {
		t.Fatalf("destroy hook ran %v times", destroyed)
	}

	// Using the destroyed ID is an error.
	p.send(region, "add", int32(0), int32(0), int32(1), int32(1))
	if code := p.expectError(); code != proto.WlDisplayErrorInvalidObject {
		t.Fatalf("error code = %v", code)
	}
}

func TestImplementationError(t *testing.T) {
	server := testServer(t)
	var destroyed int
	regionGlobal(server, &destroyed)

	p := newPeer(t, server)
	comp := bindFirst(p, "wl_compositor", 6)
	region := p.newID("wl_region")
	p.send(comp, "create_region", region)
	p.send(region, "add", int32(0), int32(0), int32(-1), int32(1))
	if code := p.expectError(); code != proto.WlDisplayErrorImplementation {
		t.Fatalf("error code = %v", code)
	}
	<-p.closed
}

func TestDisconnectDestroysObjects(t *testing.T) {
	server := testServer(t)
	var destroyed int
	regionGlobal(server, &destroyed)

	p := newPeer(t, server)
	var clientDone bool
	p.client.OnDestroy(func() { clientDone = true })

	comp := bindFirst(p, "wl_compositor", 6)
	for i := 0; i < 3; i++ {
		p.send(comp, "create_region", p.newID("wl_region"))
	}
	p.roundtrip()
	p.conn.Close()

	timeout := time.After(5 * time.Second)
	for !clientDone {
		select {
		case batch := <-server.Work():
			server.Process(batch)
		case <-timeout:
			t.Fatal("client was never destroyed")
		}
	}

	if destroyed != 3 {
		t.Fatalf("%v regions destroyed, want 3", destroyed)
	}
	if n := p.client.Objects(); n != 0 {
		t.Fatalf("%v objects left", n)
	}
	if len(server.Clients()) != 0 {
		t.Fatal("client still registered")
	}
}

func TestEnumValidation(t *testing.T) {
	server := testServer(t)
	var format uint32
	pool := NewImpl("wl_shm_pool", Handlers{
		"create_buffer": func(r *Request) error {
			format = r.Uint(5)
			r.NewObject(0, nil)
			return nil
		},
	})
	server.AddGlobal("wl_shm", 1, NewImpl("wl_shm", Handlers{
		"create_pool": func(r *Request) error {
			r.NewObject(0, pool)
			return nil
		},
	}), nil)

	p := newPeer(t, server)
	shm := bindFirst(p, "wl_shm", 1)

	fd, err := unix.MemfdCreate("pool", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	file := os.NewFile(uintptr(fd), "pool")
	defer file.Close()
	file.Truncate(4096)

	poolID := p.newID("wl_shm_pool")
	p.send(shm, "create_pool", poolID, file, int32(4096))
	p.send(poolID, "create_buffer", p.newID("wl_buffer"), int32(0), int32(16), int32(16), int32(64), uint32(proto.WlShmFormatXrgb8888))
	p.roundtrip()
	if format != proto.WlShmFormatXrgb8888 {
		t.Fatalf("format = %v", format)
	}

	p.send(poolID, "create_buffer", p.newID("wl_buffer"), int32(0), int32(16), int32(16), int32(64), uint32(0x12345))
	if code := p.expectError(); code != proto.WlDisplayErrorInvalidMethod {
		t.Fatalf("error code = %v", code)
	}
}

func TestEventVersion(t *testing.T) {
	server := testServer(t)
	server.AddGlobal("wl_output", 4, nil, func(obj *Object) error {
		obj.Send(proto.WlOutputEvScale, int32(1))
		obj.Send(proto.WlOutputEvDone)
		return nil
	})

	for _, version := range []uint32{1, 2} {
		p := newPeer(t, server)
		out := bindFirst(p, "wl_output", version)
		evs := from(p.roundtrip(), out)

		want := 0
		if version >= 2 {
			want = 1
		}
		if n := len(find(evs, "scale")); n != want {
			t.Errorf("version %v: got %v scale events, want %v", version, n, want)
		}
		if n := len(find(evs, "done")); n != want {
			t.Errorf("version %v: got %v done events, want %v", version, n, want)
		}
	}
}

func TestQueueOverflow(t *testing.T) {
	server := testServer(t)
	server.AddGlobal("wl_output", 4, nil, func(obj *Object) error {
		for i := 0; i < MaxQueued+1; i++ {
			obj.Send(proto.WlOutputEvDone)
		}
		return nil
	})

	p := newPeer(t, server)
	reg := p.newID("wl_registry")
	p.send(1, "get_registry", reg)
	p.send(reg, "bind", uint32(1), wire.NewID{Interface: "wl_output", Version: 4, ID: p.newID("wl_output")})

	timeout := time.After(5 * time.Second)
	for !p.client.Closed() {
		select {
		case batch := <-server.Work():
			server.Process(batch)
			server.Flush()
		case <-p.events:
		case <-timeout:
			t.Fatal("client was not disconnected")
		}
	}
}

func TestServerObject(t *testing.T) {
	server := testServer(t)
	p := newPeer(t, server)

	a := p.client.NewServerObject("wl_buffer", 1, nil)
	b := p.client.NewServerObject("wl_buffer", 1, nil)
	if a.ID() != wire.ServerIDStart || b.ID() != wire.ServerIDStart+1 {
		t.Fatalf("server IDs = %#x, %#x", a.ID(), b.ID())
	}
	if a.Interface() != "wl_buffer" || a.String() != "wl_buffer@4278190080" {
		t.Fatalf("object = %v", a)
	}
}
