package client

import (
	"fmt"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/wire"
	"golang.org/x/exp/slices"
)

// Global is a global advertised by the compositor.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry tracks the compositor's globals.
type Registry struct {
	obj     *Object
	globals []Global

	// Add and Remove, if set, are called as globals come and go.
	Add    func(Global)
	Remove func(Global)
}

func newRegistry(d *Display) *Registry {
	reg := Registry{obj: d.NewObject("wl_registry", 1)}
	reg.obj.On("global", func(ev *Event) {
		g := Global{
			Name:      ev.Uint(0),
			Interface: ev.String(1),
			Version:   ev.Uint(2),
		}
		reg.globals = append(reg.globals, g)
		if reg.Add != nil {
			reg.Add(g)
		}
	})
	reg.obj.On("global_remove", func(ev *Event) {
		name := ev.Uint(0)
		i := slices.IndexFunc(reg.globals, func(g Global) bool { return g.Name == name })
		if i < 0 {
			return
		}
		g := reg.globals[i]
		reg.globals = slices.Delete(reg.globals, i, i+1)
		if reg.Remove != nil {
			reg.Remove(g)
		}
	})
	return &reg
}

// Globals returns the globals that are currently advertised.
func (reg *Registry) Globals() []Global {
	return slices.Clone(reg.globals)
}

// Find returns the first global with the given interface.
func (reg *Registry) Find(iface string) (Global, bool) {
	i := slices.IndexFunc(reg.globals, func(g Global) bool { return g.Interface == iface })
	if i < 0 {
		return Global{}, false
	}
	return reg.globals[i], true
}

// Bind binds g at the lower of version and the version that the
// compositor advertises.
func (reg *Registry) Bind(g Global, version uint32) (*Object, error) {
	version = min(version, g.Version)
	obj := reg.obj.display.NewObject(g.Interface, version)
	err := reg.obj.Send(proto.WlRegistryReqBind, g.Name, wire.NewID{
		Interface: g.Interface,
		Version:   version,
		ID:        obj.id,
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// BindFirst binds the first global with the given interface.
func (reg *Registry) BindFirst(iface string, version uint32) (*Object, error) {
	g, ok := reg.Find(iface)
	if !ok {
		return nil, fmt.Errorf("compositor has no %v", iface)
	}
	return reg.Bind(g, version)
}
