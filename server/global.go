package server

import (
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/protocol"
	"golang.org/x/exp/slices"
)

// BindFunc is called when a client binds a global. obj has already
// been created with the global's implementation and the version that
// the client asked for.
type BindFunc func(obj *Object) error

// Global is a singleton object advertised through wl_registry.
type Global struct {
	server  *Server
	name    uint32
	iface   *protocol.Interface
	version uint32
	impl    *Impl
	bind    BindFunc
	removed bool
}

// AddGlobal advertises a new global to every existing and future
// registry. bind may be nil.
func (server *Server) AddGlobal(iface string, version uint32, impl *Impl, bind BindFunc) *Global {
	g := Global{
		server:  server,
		name:    server.nextGlobal,
		iface:   server.Interface(iface),
		version: version,
		impl:    impl,
		bind:    bind,
	}
	server.nextGlobal++
	server.globals = append(server.globals, &g)

	for _, reg := range server.registries {
		g.announce(reg)
	}

	return &g
}

// Globals returns the live globals in the order they were added.
func (server *Server) Globals() []*Global {
	return slices.Clone(server.globals)
}

func (g *Global) Name() uint32 {
	return g.name
}

func (g *Global) Interface() string {
	return g.iface.Name
}

func (g *Global) Version() uint32 {
	return g.version
}

func (g *Global) announce(reg *Object) {
	reg.Send(proto.WlRegistryEvGlobal, g.name, g.iface.Name, g.version)
}

// Remove withdraws the global. Clients that bind it before they see
// the removal get an object that ignores every request.
func (g *Global) Remove() {
	if g.removed {
		return
	}
	g.removed = true

	server := g.server
	i := slices.Index(server.globals, g)
	if i >= 0 {
		server.globals = slices.Delete(server.globals, i, i+1)
	}
	server.removed[g.name] = g

	for _, reg := range server.registries {
		reg.Send(proto.WlRegistryEvGlobalRemove, g.name)
	}
}

func (server *Server) global(name uint32) (*Global, bool) {
	for _, g := range server.globals {
		if g.name == name {
			return g, true
		}
	}
	g, ok := server.removed[name]
	return g, ok
}
