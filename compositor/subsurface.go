package compositor

import (
	"image"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

// Subsurface is a wl_subsurface. Its position and its place in its
// parent's stack change when the parent is committed. While it is
// synchronized, its own commits are cached until then, too.
type Subsurface struct {
	obj     *server.Object
	surface *Surface
	parent  *Surface

	pos        image.Point
	pendingPos image.Point
	moved      bool
	sync       bool
	cached     *surfaceState
}

var subcompositorImpl = server.NewImpl("wl_subcompositor", server.Handlers{
	"get_subsurface": func(r *server.Request) error {
		s := surface(r.Ref(1))
		parent := surface(r.Ref(2))

		if s == parent {
			return r.Errorf(proto.WlSubcompositorErrorBadParent, "surface cannot be its own parent")
		}
		for p := parent; p != nil && p.sub != nil; p = p.sub.parent {
			if p.sub.parent == s {
				return r.Errorf(proto.WlSubcompositorErrorBadParent, "parent is a descendant of the surface")
			}
		}

		sub := Subsurface{
			surface: s,
			parent:  parent,
			sync:    true,
		}
		if !s.setRole(&sub) {
			return r.Errorf(proto.WlSubcompositorErrorBadSurface, "surface already has role %v", s.roleName)
		}
		s.sub = &sub

		sub.obj = r.NewObject(0, subsurfaceImpl)
		sub.obj.Data = &sub
		sub.obj.OnDestroy(sub.destroy)

		parent.pendingOrder = append(parent.stack(), s)
		return nil
	},
})

var subsurfaceImpl = server.NewImpl("wl_subsurface", server.Handlers{
	"set_position": func(r *server.Request) error {
		sub := r.Object.Data.(*Subsurface)
		sub.pendingPos = image.Pt(int(r.Int(0)), int(r.Int(1)))
		sub.moved = true
		return nil
	},

	"place_above": func(r *server.Request) error {
		sub := r.Object.Data.(*Subsurface)
		return sub.place(r, surface(r.Ref(0)), 1)
	},

	"place_below": func(r *server.Request) error {
		sub := r.Object.Data.(*Subsurface)
		return sub.place(r, surface(r.Ref(0)), 0)
	},

	"set_sync": func(r *server.Request) error {
		sub := r.Object.Data.(*Subsurface)
		sub.sync = true
		return nil
	},

	"set_desync": func(r *server.Request) error {
		sub := r.Object.Data.(*Subsurface)
		sub.sync = false
		if sub.synchronized() || sub.cached == nil || sub.surface == nil {
			return nil
		}

		cached := sub.cached
		sub.cached = nil
		return sub.surface.apply(cached)
	},
})

// stack returns a copy of the pending stacking order of s.
func (s *Surface) stack() []*Surface {
	if s.pendingOrder != nil {
		return slices.Clone(s.pendingOrder)
	}
	return slices.Clone(s.order)
}

// place moves sub next to sibling in its parent's pending stack. Above
// is 1 to place it above and 0 to place it below.
func (sub *Subsurface) place(r *server.Request, sibling *Surface, above int) error {
	parent := sub.parent
	if parent == nil || sub.surface == nil {
		return nil
	}
	if sibling == sub.surface || (sibling != parent && (sibling.sub == nil || sibling.sub.parent != parent)) {
		return r.Errorf(proto.WlSubsurfaceErrorBadSurface, "%v is not a sibling or the parent", sibling.obj)
	}

	order := parent.stack()
	order = slices.DeleteFunc(order, func(s *Surface) bool { return s == sub.surface })
	i := slices.Index(order, sibling)
	if i < 0 {
		// The sibling hasn't been added to the parent's pending
		// stack.
		return r.Errorf(proto.WlSubsurfaceErrorBadSurface, "%v is not in the stack", sibling.obj)
	}
	parent.pendingOrder = slices.Insert(order, i+above, sub.surface)
	return nil
}

// synchronized returns true if the subsurface or any of its ancestors
// is in synchronized mode.
func (sub *Subsurface) synchronized() bool {
	for sub != nil {
		if sub.sync {
			return true
		}
		if sub.parent == nil {
			return false
		}
		sub = sub.parent.sub
	}
	return false
}

func (sub *Subsurface) cache(st *surfaceState) {
	if sub.cached == nil {
		sub.cached = new(surfaceState)
	}
	sub.cached.merge(st)
}

func (sub *Subsurface) name() string {
	return "wl_subsurface"
}

func (sub *Subsurface) check(st *surfaceState) error {
	return nil
}

func (sub *Subsurface) commit() error {
	return nil
}

func (sub *Subsurface) origin() (image.Point, bool) {
	if sub.parent == nil || sub.parent.buffer == nil {
		return image.Point{}, false
	}
	origin, ok := sub.parent.origin()
	if !ok {
		return image.Point{}, false
	}
	return origin.Add(sub.pos), true
}

// detach removes the subsurface from its parent's stacks.
func (sub *Subsurface) detach() {
	parent := sub.parent
	if parent == nil {
		return
	}
	sub.parent = nil

	remove := func(s *Surface) bool { return s == sub.surface }
	parent.order = slices.DeleteFunc(parent.order, remove)
	if parent.pendingOrder != nil {
		parent.pendingOrder = slices.DeleteFunc(parent.pendingOrder, remove)
	}
}

func (sub *Subsurface) surfaceDestroyed() {
	sub.detach()
	if sub.cached != nil {
		sub.cached.drop()
		sub.cached = nil
	}
	sub.surface = nil
}

func (sub *Subsurface) parentDestroyed() {
	if r, ok := sub.surface.extent(); ok {
		sub.surface.comp.damage(r)
	}
	sub.parent = nil
}

func (sub *Subsurface) destroy() {
	s := sub.surface
	if s == nil {
		return
	}
	if r, ok := s.extent(); ok {
		s.comp.damage(r)
	}

	sub.detach()
	if sub.cached != nil {
		sub.cached.drop()
		sub.cached = nil
	}
	s.role = nil
	s.sub = nil
	sub.surface = nil
}
