package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"

	"deedles.dev/wlc/internal/debug"
	"deedles.dev/wlc/internal/objstore"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	// MaxPending is the most messages that may be read from a client
	// but not yet dispatched. The reader stops reading once it is hit.
	MaxPending = 64

	// MaxQueued is the most events that may be waiting to be written
	// to a client. A client that falls further behind is disconnected.
	MaxQueued = 1024
)

// Client is a connection to a single client.
type Client struct {
	server  *Server
	id      int
	conn    *wire.Conn
	objects *objstore.Store[*Object]
	display *Object
	creds   *unix.Ucred

	budget  chan struct{}
	done    chan struct{}
	out     chan []*wire.MessageBuilder
	pending []*wire.MessageBuilder
	queued  atomic.Int64

	closed bool
	dying  bool
	hooks  []func()
	logger *logrus.Entry

	// Data is available for use by the compositor.
	Data any
}

func newClient(server *Server, id int, conn *wire.Conn) *Client {
	c := Client{
		server:  server,
		id:      id,
		conn:    conn,
		objects: objstore.New[*Object](wire.ServerIDStart),
		budget:  make(chan struct{}, MaxPending),
		done:    make(chan struct{}),
		out:     make(chan []*wire.MessageBuilder, MaxQueued),
		logger:  server.logger.WithField("client", id),
	}

	creds, err := conn.Credentials()
	if err == nil {
		c.creds = creds
		c.logger = c.logger.WithField("pid", creds.Pid)
	}
	c.logger.WithFields(logrus.Fields{
		"uid": c.UID(),
		"gid": c.GID(),
	}).Infoln("client connected")

	c.display = c.newObject(1, server.Interface("wl_display"), 1, displayImpl)
	return &c
}

// ID is a number unique to this client within its server.
func (c *Client) ID() int {
	return c.id
}

func (c *Client) Server() *Server {
	return c.server
}

// Display returns the client's wl_display object.
func (c *Client) Display() *Object {
	return c.display
}

// PID returns the process ID of the client, or 0 if it isn't known.
func (c *Client) PID() int {
	if c.creds == nil {
		return 0
	}
	return int(c.creds.Pid)
}

func (c *Client) UID() int {
	if c.creds == nil {
		return -1
	}
	return int(c.creds.Uid)
}

func (c *Client) GID() int {
	if c.creds == nil {
		return -1
	}
	return int(c.creds.Gid)
}

// Closed returns true if the client has been destroyed.
func (c *Client) Closed() bool {
	return c.closed
}

// Logger returns a log entry tagged with the client.
func (c *Client) Logger() *logrus.Entry {
	return c.logger
}

// Get returns the object with the given ID.
func (c *Client) Get(id uint32) (*Object, bool) {
	return c.objects.Get(id)
}

// Objects returns the number of live objects.
func (c *Client) Objects() int {
	return c.objects.Len()
}

// OnDestroy registers f to be called when the client is destroyed,
// after all of its objects have been.
func (c *Client) OnDestroy(f func()) {
	c.hooks = append(c.hooks, f)
}

func (c *Client) newObject(id uint32, iface *protocol.Interface, version uint32, impl *Impl) *Object {
	if impl == nil {
		impl = inertImpl(iface)
	}
	if impl.iface != iface {
		panic(fmt.Sprintf("implementation of %v used for %v", impl.iface.Name, iface.Name))
	}

	obj := Object{
		client:  c,
		id:      id,
		iface:   iface,
		version: version,
		impl:    impl,
	}
	c.objects.Add(id, &obj)
	return &obj
}

// NewServerObject creates an object with a server-allocated ID.
func (c *Client) NewServerObject(iface string, version uint32, impl *Impl) *Object {
	obj := Object{
		client:  c,
		iface:   c.server.Interface(iface),
		version: version,
		impl:    impl,
	}
	if obj.impl == nil {
		obj.impl = inertImpl(obj.iface)
	}
	obj.id = c.objects.Alloc(&obj)
	return &obj
}

func (c *Client) read() {
	for {
		select {
		case <-c.done:
			return
		case c.budget <- struct{}{}:
		}

		msg, err := c.conn.ReadMessage()
		if err != nil {
			c.server.queue.Push(func() error {
				<-c.budget
				c.readError(err)
				return nil
			})
			return
		}

		ok := c.server.queue.Push(func() error {
			defer func() { <-c.budget }()
			c.dispatch(msg)
			return nil
		})
		if !ok {
			return
		}
	}
}

func (c *Client) readError(err error) {
	if c.closed {
		return
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, syscall.ECONNRESET):
		c.logger.Infoln("client disconnected")
	default:
		c.logger.WithError(err).Warnln("read failed")
	}
	c.Destroy()
}

func (c *Client) write() {
	defer c.conn.Close()

	for batch := range c.out {
		err := c.conn.Write(batch...)
		c.queued.Add(-int64(len(batch)))
		if err != nil {
			c.logger.WithError(err).Debugln("write failed")
			for batch := range c.out {
				for _, msg := range batch {
					msg.Close()
				}
			}
			return
		}
	}
}

func (c *Client) send(msg *wire.MessageBuilder) {
	if c.closed || (c.dying && msg.Sender() != 1) {
		msg.Close()
		return
	}

	if debug.Enabled() {
		debug.Event(c.id, msg.String())
	}
	c.pending = append(c.pending, msg)
}

// Flush hands all events sent since the last flush to the client's
// writer. If that would put the client too far behind, it is
// disconnected instead.
func (c *Client) Flush() {
	if c.closed || len(c.pending) == 0 {
		return
	}

	n := int64(len(c.pending))
	if c.queued.Load()+n > MaxQueued {
		c.logger.Warnln("client is not reading events")
		c.Destroy()
		return
	}

	c.queued.Add(n)
	c.out <- c.pending
	c.pending = nil
}

// Destroy disconnects the client. Every object it owns is destroyed,
// newest first, without sending delete_id events, and then the
// client's own destroy hooks are run. Events that were already sent,
// such as a protocol error, are still written before the connection is
// closed.
func (c *Client) Destroy() {
	if c.closed || c.dying {
		return
	}
	c.dying = true

	for _, id := range c.objects.IDs() {
		obj, ok := c.objects.Get(id)
		if ok {
			obj.destroy(false)
		}
	}

	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i]()
	}

	c.server.removeClient(c)

	if len(c.pending) > 0 && c.queued.Load()+int64(len(c.pending)) <= MaxQueued {
		c.queued.Add(int64(len(c.pending)))
		c.out <- c.pending
	} else {
		for _, msg := range c.pending {
			msg.Close()
		}
	}
	c.pending = nil

	c.closed = true
	close(c.done)
	close(c.out)
	c.conn.CloseRead()

	c.logger.Debugln("client destroyed")
}

// PostError sends a protocol error about obj and then disconnects the
// client.
func (c *Client) PostError(obj *Object, code uint32, msg string) {
	if c.closed || c.dying {
		return
	}
	if obj == nil {
		obj = c.display
	}

	c.logger.WithFields(logrus.Fields{
		"object": obj.String(),
		"code":   code,
	}).Warnf("protocol error: %v", msg)

	c.display.Send(proto.WlDisplayEvError, obj.ID(), code, msg)
	c.Destroy()
}

func (c *Client) fail(err error) {
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		perr = &ProtocolError{
			Object: c.display,
			Code:   proto.WlDisplayErrorImplementation,
			Msg:    err.Error(),
		}
	}
	c.PostError(perr.Object, perr.Code, perr.Msg)
}

func (c *Client) dispatch(msg *wire.MessageBuffer) {
	if c.closed {
		return
	}

	err := c.handle(msg)
	if err != nil {
		c.fail(err)
	}
}

func (c *Client) handle(msg *wire.MessageBuffer) error {
	obj, ok := c.objects.Get(msg.Sender())
	if !ok {
		return c.display.Errorf(proto.WlDisplayErrorInvalidObject, "invalid object %v", msg.Sender())
	}

	if int(msg.Op()) >= len(obj.iface.Requests) {
		return c.display.Errorf(proto.WlDisplayErrorInvalidMethod, "invalid method %v, object %v", msg.Op(), obj)
	}
	op := &obj.iface.Requests[msg.Op()]
	if op.MinVersion() > obj.version {
		return c.display.Errorf(proto.WlDisplayErrorInvalidMethod, "method %v.%v requires version %v, object %v has version %v", obj.iface.Name, op.Name, op.MinVersion(), obj, obj.version)
	}

	args, err := msg.Decode(op)
	if err != nil {
		return c.display.Errorf(proto.WlDisplayErrorInvalidMethod, "invalid arguments for %v.%v: %v", obj, op.Name, err)
	}
	defer args.Close()

	if debug.Enabled() {
		debug.Request(c.id, wire.FormatMessage(obj.iface.Name, obj.id, op.Name, args))
	}

	req := Request{
		Object:  obj,
		Op:      op,
		Opcode:  msg.Op(),
		args:    args,
		objects: make([]*Object, len(args)),
	}
	for i, arg := range op.Args {
		err := c.checkArg(&req, i, arg)
		if err != nil {
			return err
		}
	}

	handler := obj.impl.requests[msg.Op()]
	if handler != nil {
		err := handler(&req)
		if err != nil {
			return err
		}
	} else if !op.IsDestructor() {
		c.logger.WithField("object", obj.String()).Debugf("unimplemented request %v", op.Name)
	}

	if op.IsDestructor() {
		obj.Destroy()
	}
	return nil
}

func (c *Client) checkArg(req *Request, i int, arg protocol.Arg) error {
	switch arg.Kind() {
	case protocol.KindObject:
		id := uint32(req.args.Object(i))
		if id == 0 {
			return nil
		}
		ref, ok := c.objects.Get(id)
		if !ok {
			return c.display.Errorf(proto.WlDisplayErrorInvalidObject, "unknown object %v in argument %q of %v.%v", id, arg.Name, req.Object, req.Op.Name)
		}
		if arg.Interface != "" && ref.iface.Name != arg.Interface {
			return c.display.Errorf(proto.WlDisplayErrorInvalidObject, "object %v in argument %q of %v.%v is not a %v", ref, arg.Name, req.Object, req.Op.Name, arg.Interface)
		}
		req.objects[i] = ref

	case protocol.KindNewID:
		id := req.args.NewID(i).ID
		if id >= wire.ServerIDStart {
			return c.display.Errorf(proto.WlDisplayErrorInvalidObject, "new id %v is in the server range", id)
		}
		if c.objects.Has(id) {
			return c.display.Errorf(proto.WlDisplayErrorInvalidObject, "new id %v is already in use", id)
		}

	case protocol.KindInt, protocol.KindUint:
		if arg.Enum == "" {
			return nil
		}
		enum, ok := c.server.protocols.Enum(req.Object.iface, arg.Enum)
		if !ok {
			return nil
		}

		var v uint32
		if arg.Kind() == protocol.KindInt {
			v = uint32(req.args.Int(i))
		} else {
			v = req.args.Uint(i)
		}
		if !enum.Valid(v, req.Object.version) {
			return c.display.Errorf(proto.WlDisplayErrorInvalidMethod, "invalid %v value %v in argument %q of %v.%v", arg.Enum, v, arg.Name, req.Object, req.Op.Name)
		}
	}

	return nil
}
