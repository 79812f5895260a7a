package client

import (
	"fmt"
	"os"

	"deedles.dev/wlc/internal/debug"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
)

// Object is a protocol object.
type Object struct {
	display   *Display
	id        uint32
	iface     *protocol.Interface
	version   uint32
	handlers  []func(*Event)
	destroyed bool

	// Data is available for use by the application.
	Data any
}

func (obj *Object) ID() uint32 {
	return obj.id
}

func (obj *Object) Interface() string {
	return obj.iface.Name
}

func (obj *Object) Version() uint32 {
	return obj.version
}

func (obj *Object) Display() *Display {
	return obj.display
}

func (obj *Object) String() string {
	return fmt.Sprintf("%v@%v", obj.iface.Name, obj.id)
}

// On sets the handler for the named event, replacing any previous one.
// It panics if the interface has no such event.
func (obj *Object) On(event string, f func(*Event)) *Object {
	for op := range obj.iface.Events {
		if obj.iface.Events[op].Name != event {
			continue
		}
		if obj.handlers == nil {
			obj.handlers = make([]func(*Event), len(obj.iface.Events))
		}
		obj.handlers[op] = f
		return obj
	}
	panic(fmt.Sprintf("%v has no event %q", obj.iface.Name, event))
}

// Request sends the named request. Arguments are as for Send.
func (obj *Object) Request(name string, args ...any) error {
	for op := range obj.iface.Requests {
		if obj.iface.Requests[op].Name == name {
			return obj.Send(uint16(op), args...)
		}
	}
	panic(fmt.Sprintf("%v has no request %q", obj.iface.Name, name))
}

// Send sends a request by opcode. Arguments are converted as by
// wire.Encode, and an *Object is also accepted for object and new_id
// arguments. If the request is a destructor, the object is marked as
// destroyed and its handlers are no longer called.
func (obj *Object) Send(op uint16, args ...any) error {
	if obj.destroyed {
		return fmt.Errorf("%v: request to destroyed object", obj)
	}
	if err := obj.display.err; err != nil {
		return err
	}
	if int(op) >= len(obj.iface.Requests) {
		panic(fmt.Sprintf("%v has no request %v", obj.iface.Name, op))
	}
	req := &obj.iface.Requests[op]

	for i, arg := range args {
		switch arg := arg.(type) {
		case *Object:
			if arg == nil {
				args[i] = nil
				continue
			}
			args[i] = wire.ObjectID(arg.id)
			if i < len(req.Args) && req.Args[i].Kind() == protocol.KindNewID {
				args[i] = arg.id
			}
		case *os.File:
			if arg == nil {
				args[i] = nil
			}
		}
	}

	msg, err := wire.Encode(obj.id, op, req, args...)
	if err != nil {
		return fmt.Errorf("encode %v.%v: %w", obj, req.Name, err)
	}
	msg.Interface = obj.iface.Name
	if debug.Enabled() {
		debug.Printf(" -> %v", msg)
	}

	err = obj.display.conn.Write(msg)
	if err != nil {
		obj.display.fail(err)
		return fmt.Errorf("write %v.%v: %w", obj, req.Name, err)
	}

	if req.IsDestructor() {
		obj.destroyed = true
		obj.handlers = nil
	}
	return nil
}

// Destroy sends the object's destructor, which is the destructor
// request named destroy or, failing that, release. Objects without one
// are only forgotten locally.
func (obj *Object) Destroy() error {
	if obj.destroyed {
		return nil
	}

	for _, name := range []string{"destroy", "release"} {
		for op, req := range obj.iface.Requests {
			if req.Name == name && req.IsDestructor() && req.MinVersion() <= obj.version {
				return obj.Send(uint16(op))
			}
		}
	}

	obj.destroyed = true
	obj.handlers = nil
	if obj.id >= wire.ServerIDStart {
		obj.display.objects.Delete(obj.id)
	}
	return nil
}

func (obj *Object) Destroyed() bool {
	return obj.destroyed
}

// Event is a received event.
type Event struct {
	Object *Object
	Name   string

	args    wire.Args
	created []*Object
}

func (ev *Event) Int(i int) int32 {
	return ev.args.Int(i)
}

func (ev *Event) Uint(i int) uint32 {
	return ev.args.Uint(i)
}

func (ev *Event) Fixed(i int) wire.Fixed {
	return ev.args.Fixed(i)
}

func (ev *Event) String(i int) string {
	return ev.args.String(i)
}

func (ev *Event) Array(i int) []byte {
	return ev.args.Array(i)
}

// File takes ownership of the file in argument i.
func (ev *Event) File(i int) *os.File {
	return ev.args.File(i)
}

// Ref returns the object that argument i refers to, or nil if it is
// null or unknown.
func (ev *Event) Ref(i int) *Object {
	id := uint32(ev.args.Object(i))
	if id == 0 {
		return nil
	}
	obj, _ := ev.Object.display.objects.Get(id)
	return obj
}

// New returns the objects created by the event's new_id arguments, in
// order.
func (ev *Event) New() []*Object {
	return ev.created
}
