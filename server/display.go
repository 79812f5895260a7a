package server

import (
	"deedles.dev/wlc/proto"
	"golang.org/x/exp/slices"
)

var displayImpl = NewImpl("wl_display", Handlers{
	"sync": func(r *Request) error {
		cb := r.NewObject(0, nil)
		cb.Send(proto.WlCallbackEvDone, r.Server().Serial())
		return nil
	},

	"get_registry": func(r *Request) error {
		server := r.Server()
		reg := r.NewObject(0, registryImpl)
		server.registries = append(server.registries, reg)
		reg.OnDestroy(func() {
			i := slices.Index(server.registries, reg)
			if i >= 0 {
				server.registries = slices.Delete(server.registries, i, i+1)
			}
		})

		for _, g := range server.globals {
			g.announce(reg)
		}
		return nil
	},
})

var registryImpl = NewImpl("wl_registry", Handlers{
	"bind": func(r *Request) error {
		name := r.Uint(0)
		id := r.NewID(1)

		g, ok := r.Server().global(name)
		if !ok {
			return r.Errorf(proto.WlDisplayErrorInvalidObject, "invalid global %v", name)
		}
		if id.Interface != g.iface.Name {
			return r.Errorf(proto.WlDisplayErrorInvalidObject, "invalid interface for global %v: have %v, wanted %v", name, id.Interface, g.iface.Name)
		}
		if id.Version == 0 || id.Version > g.version {
			return r.Errorf(proto.WlDisplayErrorInvalidObject, "invalid version for global %v (%v): have %v, wanted 1 to %v", name, g.iface.Name, id.Version, g.version)
		}

		if g.removed {
			r.Client().newObject(id.ID, g.iface, id.Version, nil)
			return nil
		}

		obj := r.Client().newObject(id.ID, g.iface, id.Version, g.impl)
		if g.bind == nil {
			return nil
		}
		return g.bind(obj)
	},
})
