package server

import (
	"fmt"
	"os"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
)

// Object is a protocol object owned by a client.
type Object struct {
	client  *Client
	id      uint32
	iface   *protocol.Interface
	version uint32
	impl    *Impl

	destroyed bool
	hooks     []func()

	// Data is the compositor state that the object represents.
	Data any
}

func (obj *Object) Client() *Client {
	return obj.client
}

func (obj *Object) ID() uint32 {
	return obj.id
}

// Interface returns the name of the object's interface.
func (obj *Object) Interface() string {
	return obj.iface.Name
}

func (obj *Object) Version() uint32 {
	return obj.version
}

func (obj *Object) Destroyed() bool {
	return obj.destroyed
}

func (obj *Object) String() string {
	return fmt.Sprintf("%v@%v", obj.iface.Name, obj.id)
}

// OnDestroy registers f to be called when the object is destroyed for
// any reason, including its client disconnecting. Hooks run in reverse
// order of registration.
func (obj *Object) OnDestroy(f func()) {
	obj.hooks = append(obj.hooks, f)
}

// Destroy destroys the object, running its destroy hooks and telling
// the client that the ID may be reused if the client allocated it.
func (obj *Object) Destroy() {
	obj.destroy(true)
}

func (obj *Object) destroy(notify bool) {
	if obj.destroyed {
		return
	}
	obj.destroyed = true
	obj.client.objects.Delete(obj.id)

	for i := len(obj.hooks) - 1; i >= 0; i-- {
		obj.hooks[i]()
	}
	obj.hooks = nil

	if notify && obj.id < wire.ServerIDStart {
		obj.client.display.Send(proto.WlDisplayEvDeleteId, obj.id)
	}
}

// Send emits an event. Arguments are converted as by wire.Encode, and
// additionally an *Object is accepted for object and new_id arguments.
// Events that are newer than the object's version are silently
// skipped, as is anything sent to a destroyed object. If the event is
// a destructor, the object is destroyed after sending it.
func (obj *Object) Send(op uint16, args ...any) {
	if obj.destroyed || obj.client.closed || obj.client.dying {
		return
	}
	if int(op) >= len(obj.iface.Events) {
		panic(fmt.Sprintf("%v has no event %v", obj.iface.Name, op))
	}

	ev := &obj.iface.Events[op]
	if ev.MinVersion() > obj.version {
		return
	}

	for i, arg := range args {
		switch arg := arg.(type) {
		case *Object:
			if arg == nil {
				args[i] = nil
				continue
			}
			args[i] = wire.ObjectID(arg.id)
			if i < len(ev.Args) && ev.Args[i].Kind() == protocol.KindNewID {
				args[i] = arg.id
			}
		case *os.File:
			if arg == nil {
				args[i] = nil
			}
		}
	}

	msg, err := wire.Encode(obj.id, op, ev, args...)
	if err != nil {
		obj.client.logger.WithError(err).Errorf("encode %v.%v", obj, ev.Name)
		return
	}
	msg.Interface = obj.iface.Name
	obj.client.send(msg)

	if ev.IsDestructor() {
		obj.Destroy()
	}
}

// Errorf returns a protocol error about obj. Returning it from a
// request handler disconnects the client.
func (obj *Object) Errorf(code uint32, format string, args ...any) error {
	return &ProtocolError{
		Object: obj,
		Code:   code,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// PostError sends a protocol error about obj immediately and
// disconnects its client. It is for errors detected outside of request
// handlers.
func (obj *Object) PostError(code uint32, format string, args ...any) {
	obj.client.PostError(obj, code, fmt.Sprintf(format, args...))
}

// ProtocolError is a fatal error caused by a client.
type ProtocolError struct {
	Object *Object
	Code   uint32
	Msg    string
}

func (err *ProtocolError) Error() string {
	obj := "<nil>"
	if err.Object != nil {
		obj = err.Object.String()
	}
	return fmt.Sprintf("protocol error %v on %v: %v", err.Code, obj, err.Msg)
}
