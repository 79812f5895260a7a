// Package server implements the server side of the Wayland protocol:
// client connections, per-client object tables, globals, and request
// dispatch.
//
// Everything except the socket reading and writing goroutines runs on
// whichever goroutine calls Process, which should be the compositor's
// event loop. Request handlers, object methods, and Client methods are
// not safe to call from anywhere else.
package server

import (
	"errors"
	"net"
	"sync"

	"deedles.dev/wlc/internal/cq"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/protocol"
	"deedles.dev/wlc/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

type Server struct {
	protocols *protocol.Set
	lis       *wire.Listener
	queue     *cq.Queue[func() error]
	close     sync.Once

	clients    []*Client
	nextClient int
	globals    []*Global
	removed    map[uint32]*Global
	nextGlobal uint32
	registries []*Object
	serial     uint32

	clientHooks []func(*Client)
	logger      *logrus.Entry
}

// New creates a server that is not yet listening for connections.
// Clients can be added manually with AddClient.
func New() *Server {
	return &Server{
		protocols:  protocol.Core(),
		queue:      cq.New[func() error](),
		removed:    make(map[uint32]*Global),
		nextGlobal: 1,
		logger:     log.For("server"),
	}
}

// Listen creates a server listening on the named socket in the runtime
// directory. If name is empty, a free one is chosen.
func Listen(name string) (*Server, error) {
	lis, err := wire.Listen(name)
	if err != nil {
		return nil, err
	}

	server := New()
	server.Serve(lis)
	return server, nil
}

// Serve starts accepting clients from lis. The server takes ownership
// of lis.
func (server *Server) Serve(lis *wire.Listener) {
	server.lis = lis
	go server.listen()
}

func (server *Server) listen() {
	for {
		c, err := server.lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			ok := server.queue.Push(func() error { return err })
			if !ok {
				return
			}
			continue
		}

		ok := server.queue.Push(func() error { server.AddClient(c); return nil })
		if !ok {
			c.Close()
			return
		}
	}
}

// Socket returns the name of the socket that the server is listening
// on, suitable for WAYLAND_DISPLAY, or "" if it isn't listening.
func (server *Server) Socket() string {
	if server.lis == nil {
		return ""
	}
	return server.lis.Name()
}

// Protocols returns the interface descriptions that the server uses.
func (server *Server) Protocols() *protocol.Set {
	return server.protocols
}

// Work returns a channel that yields batches of pending work, such as
// received messages and new connections. Each batch should be passed
// to Process.
func (server *Server) Work() <-chan []func() error {
	return server.queue.Get()
}

// Process runs a batch of work received from Work.
func (server *Server) Process(batch []func() error) {
	for _, err := range cq.Flush(batch) {
		server.logger.WithError(err).Errorln("server error")
	}
}

// Flush hands every client's outgoing events to its writer.
func (server *Server) Flush() {
	for _, c := range slices.Clone(server.clients) {
		c.Flush()
	}
}

// Close disconnects every client and stops listening.
func (server *Server) Close() error {
	var err error
	server.close.Do(func() {
		for _, c := range slices.Clone(server.clients) {
			c.Destroy()
		}
		if server.lis != nil {
			err = server.lis.Close()
		}
		server.queue.Stop()
	})
	return err
}

// AddClient starts serving a connection. It is usually called by the
// server itself for every accepted connection, but may also be used
// to serve a connection that was created some other way, such as one
// half of a socket pair.
func (server *Server) AddClient(conn *wire.Conn) *Client {
	server.nextClient++
	c := newClient(server, server.nextClient, conn)
	server.clients = append(server.clients, c)

	for _, hook := range server.clientHooks {
		hook(c)
	}

	go c.read()
	go c.write()
	return c
}

func (server *Server) removeClient(c *Client) {
	i := slices.Index(server.clients, c)
	if i >= 0 {
		server.clients = slices.Delete(server.clients, i, i+1)
	}
}

// OnClient registers f to be called for every new client.
func (server *Server) OnClient(f func(*Client)) {
	server.clientHooks = append(server.clientHooks, f)
}

// Clients returns the connected clients in connection order.
func (server *Server) Clients() []*Client {
	return slices.Clone(server.clients)
}

// NextSerial returns a new event serial.
func (server *Server) NextSerial() uint32 {
	server.serial++
	return server.serial
}

// Serial returns the most recent event serial.
func (server *Server) Serial() uint32 {
	return server.serial
}

// Interface looks up an interface description by name. It panics if
// the interface does not exist.
func (server *Server) Interface(name string) *protocol.Interface {
	iface, ok := server.protocols.Interface(name)
	if !ok {
		panic("unknown interface " + name)
	}
	return iface
}
