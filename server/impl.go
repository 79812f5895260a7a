package server

import (
	"fmt"
	"os"

	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
)

// RequestFunc handles a request. Returning an error disconnects the
// client, with the error sent as a protocol error if it is a
// *ProtocolError and as wl_display.implementation otherwise.
type RequestFunc func(*Request) error

// Handlers maps request names to the functions that handle them.
type Handlers map[string]RequestFunc

// Impl is the request table of an interface, indexed by opcode. It is
// resolved once and then shared by every object of the interface.
type Impl struct {
	iface    *protocol.Interface
	requests []RequestFunc
}

// NewImpl resolves handlers against the named interface. It panics if
// the interface or any of the requests do not exist.
//
// Destructor requests do not need a handler. Objects are destroyed
// after a destructor's handler, if any, returns successfully.
func NewImpl(iface string, handlers Handlers) *Impl {
	desc, ok := protocol.Core().Interface(iface)
	if !ok {
		panic("unknown interface " + iface)
	}

	impl := Impl{
		iface:    desc,
		requests: make([]RequestFunc, len(desc.Requests)),
	}
	for name, h := range handlers {
		found := false
		for op := range desc.Requests {
			if desc.Requests[op].Name == name {
				impl.requests[op] = h
				found = true
				break
			}
		}
		if !found {
			panic(fmt.Sprintf("%v has no request %q", iface, name))
		}
	}

	return &impl
}

// Interface returns the name of the interface that impl implements.
func (impl *Impl) Interface() string {
	return impl.iface.Name
}

func inertImpl(iface *protocol.Interface) *Impl {
	return &Impl{
		iface:    iface,
		requests: make([]RequestFunc, len(iface.Requests)),
	}
}

// Request is a decoded request that has passed validation: object
// arguments refer to live objects of the right interface, new IDs are
// free, and enum arguments are in range.
type Request struct {
	Object *Object
	Op     *protocol.Op
	Opcode uint16

	args    wire.Args
	objects []*Object
}

func (r *Request) Client() *Client {
	return r.Object.client
}

func (r *Request) Server() *Server {
	return r.Object.client.server
}

func (r *Request) Int(i int) int32 {
	return r.args.Int(i)
}

func (r *Request) Uint(i int) uint32 {
	return r.args.Uint(i)
}

func (r *Request) Fixed(i int) wire.Fixed {
	return r.args.Fixed(i)
}

func (r *Request) String(i int) string {
	return r.args.String(i)
}

func (r *Request) Array(i int) []byte {
	return r.args.Array(i)
}

// File takes ownership of the file in argument i. Files that are not
// taken are closed once the handler returns.
func (r *Request) File(i int) *os.File {
	return r.args.File(i)
}

// Ref returns the object referred to by argument i, or nil if the
// argument is null.
func (r *Request) Ref(i int) *Object {
	return r.objects[i]
}

// NewID returns the raw new_id argument i.
func (r *Request) NewID(i int) wire.NewID {
	return r.args.NewID(i)
}

// NewObject creates the object requested by the typed new_id argument
// i. It has the same version as the object that the request was sent
// to.
func (r *Request) NewObject(i int, impl *Impl) *Object {
	arg := r.Op.Args[i]
	iface := r.Server().Interface(arg.Interface)
	return r.Object.client.newObject(r.args.NewID(i).ID, iface, r.Object.version, impl)
}

// Errorf returns a protocol error about the object that the request
// was sent to.
func (r *Request) Errorf(code uint32, format string, args ...any) error {
	return r.Object.Errorf(code, format, args...)
}
