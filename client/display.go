// Package client implements the client side of the Wayland protocol.
//
// Objects are dynamic: requests are sent and events are handled by
// name, using the same interface descriptions as the server. A
// Display's methods, and those of its objects, must only be called
// from a single goroutine, the same one that calls Process.
package client

import (
	"errors"
	"fmt"
	"net"

	"deedles.dev/wlc/internal/cq"
	"deedles.dev/wlc/internal/debug"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/internal/objstore"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
	"github.com/sirupsen/logrus"
)

// Display is a connection to a compositor.
type Display struct {
	conn      *wire.Conn
	protocols *protocol.Set
	objects   *objstore.Store[*Object]
	display   *Object
	registry  *Registry
	queue     *cq.Queue[func() error]
	err       error
	logger    *logrus.Entry

	// Error, if not nil, is called when the compositor reports a
	// protocol error, right before the connection is closed.
	Error func(err *Error)
}

// Dial connects to the compositor named by the environment.
func Dial() (*Display, error) {
	c, err := wire.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial display: %w", err)
	}
	return Connect(c), nil
}

// Connect starts using an already established connection.
func Connect(conn *wire.Conn) *Display {
	d := Display{
		conn:      conn,
		protocols: protocol.Core(),
		objects:   objstore.New[*Object](2),
		queue:     cq.New[func() error](),
		logger:    log.For("client"),
	}
	iface, _ := d.protocols.Interface("wl_display")
	d.display = &Object{display: &d, id: 1, iface: iface, version: 1}
	d.objects.Add(1, d.display)

	d.display.On("error", d.handleError)
	d.display.On("delete_id", func(ev *Event) {
		id := ev.Uint(0)
		obj, ok := d.objects.Delete(id)
		if ok {
			obj.destroyed = true
		}
	})

	go d.read()
	return &d
}

func (d *Display) read() {
	for {
		msg, err := d.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.queue.Push(func() error { return fmt.Errorf("read: %w", err) })
			}
			return
		}

		ok := d.queue.Push(func() error { return d.dispatch(msg) })
		if !ok {
			return
		}
	}
}

// Error is a protocol error reported by the compositor. It is fatal to
// the connection.
type Error struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

func (err *Error) Error() string {
	return fmt.Sprintf("protocol error %v on %v@%v: %v", err.Code, err.Interface, err.ObjectID, err.Message)
}

func (d *Display) handleError(ev *Event) {
	id := uint32(ev.args.Object(0))
	perr := Error{
		ObjectID: id,
		Code:     ev.Uint(1),
		Message:  ev.String(2),
	}
	if obj, ok := d.objects.Get(id); ok {
		perr.Interface = obj.iface.Name
	}

	if d.Error != nil {
		d.Error(&perr)
	}
	d.fail(&perr)
}

func (d *Display) fail(err error) {
	if d.err != nil {
		return
	}
	d.err = err
	d.conn.Close()
	d.queue.Stop()
}

// Err returns the error that broke the connection, if any.
func (d *Display) Err() error {
	return d.err
}

// Protocols returns the interface descriptions in use.
func (d *Display) Protocols() *protocol.Set {
	return d.protocols
}

// Object returns the wl_display object itself.
func (d *Display) Object() *Object {
	return d.display
}

// Get returns the live object with the given ID.
func (d *Display) Get(id uint32) (*Object, bool) {
	return d.objects.Get(id)
}

// NewObject allocates a client-side object. It does not exist on the
// compositor's side until it is passed as the new_id argument of a
// request.
func (d *Display) NewObject(iface string, version uint32) *Object {
	desc, ok := d.protocols.Interface(iface)
	if !ok {
		panic("unknown interface " + iface)
	}

	obj := Object{
		display: d,
		iface:   desc,
		version: version,
	}
	obj.id = d.objects.Alloc(&obj)
	return &obj
}

// Work returns a channel that yields batches of received messages,
// which should be passed to Process.
func (d *Display) Work() <-chan []func() error {
	return d.queue.Get()
}

// Process dispatches a batch of messages received from Work. It
// returns the error that broke the connection, if any.
func (d *Display) Process(batch []func() error) error {
	for _, f := range batch {
		if d.err != nil {
			break
		}
		err := f()
		if err != nil {
			d.fail(err)
		}
	}
	return d.err
}

func (d *Display) dispatch(msg *wire.MessageBuffer) error {
	obj, ok := d.objects.Get(msg.Sender())
	if !ok {
		return fmt.Errorf("event from unknown object %v", msg.Sender())
	}

	if int(msg.Op()) >= len(obj.iface.Events) {
		return wire.UnknownOpError{Interface: obj.iface.Name, Type: "event", Op: msg.Op()}
	}
	op := &obj.iface.Events[msg.Op()]

	args, err := msg.Decode(op)
	if err != nil {
		return fmt.Errorf("decode %v.%v: %w", obj, op.Name, err)
	}
	defer args.Close()

	if debug.Enabled() {
		debug.Printf("%v", wire.FormatMessage(obj.iface.Name, obj.id, op.Name, args))
	}

	ev := Event{
		Object: obj,
		Name:   op.Name,
		args:   args,
	}
	for i, arg := range op.Args {
		if arg.Kind() != protocol.KindNewID {
			continue
		}
		child, err := d.serverObject(arg.Interface, args.NewID(i).ID, obj.version)
		if err != nil {
			return err
		}
		ev.created = append(ev.created, child)
	}

	if obj.destroyed {
		return nil
	}
	if int(msg.Op()) >= len(obj.handlers) {
		return nil
	}
	if h := obj.handlers[msg.Op()]; h != nil {
		h(&ev)
	}
	return nil
}

func (d *Display) serverObject(iface string, id, version uint32) (*Object, error) {
	desc, ok := d.protocols.Interface(iface)
	if !ok {
		return nil, fmt.Errorf("unknown interface %q", iface)
	}

	obj := Object{
		display: d,
		id:      id,
		iface:   desc,
		version: version,
	}
	d.objects.Add(id, &obj)
	return &obj, nil
}

// Sync calls f once the compositor has processed every request sent
// so far.
func (d *Display) Sync(f func(serial uint32)) error {
	cb := d.NewObject("wl_callback", 1)
	cb.On("done", func(ev *Event) { f(ev.Uint(0)) })
	return d.display.Send(proto.WlDisplayReqSync, cb)
}

// Roundtrip blocks until the compositor has processed every request
// sent so far and all of the events that it sent in response have been
// dispatched.
func (d *Display) Roundtrip() error {
	done := false
	err := d.Sync(func(uint32) { done = true })
	if err != nil {
		return err
	}

	for !done {
		if d.err != nil {
			return d.err
		}
		select {
		case batch := <-d.queue.Get():
			d.Process(batch)
		case <-d.queue.Done():
			if d.err == nil {
				return net.ErrClosed
			}
		}
	}
	return d.err
}

// Registry returns the display's registry, creating it the first time.
func (d *Display) Registry() (*Registry, error) {
	if d.registry != nil {
		return d.registry, nil
	}

	reg := newRegistry(d)
	err := d.display.Send(proto.WlDisplayReqGetRegistry, reg.obj)
	if err != nil {
		return nil, err
	}
	d.registry = reg
	return reg, nil
}

func (d *Display) Close() error {
	d.queue.Stop()
	return d.conn.Close()
}

// Version returns the version of the interface that the display
// supports, or 0 if it doesn't know the interface.
func (d *Display) Version(iface string) uint32 {
	desc, ok := d.protocols.Interface(iface)
	if !ok {
		return 0
	}
	return uint32(desc.Version)
}
