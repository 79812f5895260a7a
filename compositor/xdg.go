package compositor

import (
	"image"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

type wmBase struct {
	obj      *server.Object
	surfaces []*XDGSurface
}

func bindWMBase(obj *server.Object) error {
	obj.Data = &wmBase{obj: obj}
	return nil
}

var wmBaseImpl = server.NewImpl("xdg_wm_base", server.Handlers{
	"destroy": func(r *server.Request) error {
		wm := r.Object.Data.(*wmBase)
		if len(wm.surfaces) > 0 {
			return r.Errorf(proto.XdgWmBaseErrorDefunctSurfaces, "%v xdg_surfaces still exist", len(wm.surfaces))
		}
		return nil
	},

	"create_positioner": func(r *server.Request) error {
		obj := r.NewObject(0, positionerImpl)
		obj.Data = new(positioner)
		return nil
	},

	"get_xdg_surface": func(r *server.Request) error {
		wm := r.Object.Data.(*wmBase)
		s := surface(r.Ref(1))

		xs := XDGSurface{
			comp:    compositorOf(r),
			wm:      wm,
			surface: s,
		}
		if !s.setRole(&xs) {
			return r.Errorf(proto.XdgWmBaseErrorRole, "surface already has role %v", s.roleName)
		}
		if s.buffer != nil || (s.pending.mask&maskBuffer != 0 && s.pending.buffer != nil) {
			s.role = nil
			return r.Errorf(proto.XdgWmBaseErrorInvalidSurfaceState, "surface already has a buffer")
		}
		s.xdg = &xs

		xs.obj = r.NewObject(0, xdgSurfaceImpl)
		xs.obj.Data = &xs
		xs.obj.OnDestroy(xs.destroy)
		wm.surfaces = append(wm.surfaces, &xs)
		return nil
	},
})

// XDGSurface is an xdg_surface. It is the part of a toplevel or a
// popup that deals with configuration and window geometry.
type XDGSurface struct {
	comp    *Compositor
	obj     *server.Object
	wm      *wmBase
	surface *Surface

	toplevel *Toplevel
	popup    *Popup

	geometry        image.Rectangle
	pendingGeometry image.Rectangle
	geometrySet     bool
	pendingSet      bool

	// configures are the serials of configure events that haven't
	// been acknowledged yet, oldest first.
	configures []uint32
	initial    bool
	configured bool
	mapped     bool
}

var xdgSurfaceImpl = server.NewImpl("xdg_surface", server.Handlers{
	"destroy": func(r *server.Request) error {
		xs := r.Object.Data.(*XDGSurface)
		if xs.toplevel != nil || xs.popup != nil {
			return r.Errorf(proto.XdgSurfaceErrorDefunctRoleObject, "xdg_surface destroyed before its role object")
		}
		return nil
	},

	"get_toplevel": func(r *server.Request) error {
		xs := r.Object.Data.(*XDGSurface)
		if xs.toplevel != nil || xs.popup != nil {
			return r.Errorf(proto.XdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
		}
		if xs.surface == nil {
			return r.Errorf(proto.XdgSurfaceErrorDefunctRoleObject, "surface was destroyed")
		}

		tl := Toplevel{xdg: xs}
		tl.obj = r.NewObject(0, toplevelImpl)
		tl.obj.Data = &tl
		tl.obj.OnDestroy(tl.destroy)
		xs.toplevel = &tl
		return nil
	},

	"get_popup": func(r *server.Request) error {
		xs := r.Object.Data.(*XDGSurface)
		if xs.toplevel != nil || xs.popup != nil {
			return r.Errorf(proto.XdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
		}
		if xs.surface == nil {
			return r.Errorf(proto.XdgSurfaceErrorDefunctRoleObject, "surface was destroyed")
		}

		parentObj := r.Ref(1)
		if parentObj == nil {
			return xs.wm.obj.Errorf(proto.XdgWmBaseErrorInvalidPopupParent, "popups without a parent are not supported")
		}
		parent := parentObj.Data.(*XDGSurface)
		if parent == xs || (parent.toplevel == nil && parent.popup == nil) {
			return xs.wm.obj.Errorf(proto.XdgWmBaseErrorInvalidPopupParent, "invalid popup parent %v", parentObj)
		}

		pos := r.Ref(2).Data.(*positioner)
		if !pos.complete() {
			return xs.wm.obj.Errorf(proto.XdgWmBaseErrorInvalidPositioner, "positioner is incomplete")
		}

		p := Popup{
			xdg:        xs,
			parent:     parent,
			positioner: *pos,
		}
		p.obj = r.NewObject(0, popupImpl)
		p.obj.Data = &p
		p.obj.OnDestroy(p.destroy)
		xs.popup = &p
		return nil
	},

	"set_window_geometry": func(r *server.Request) error {
		xs := r.Object.Data.(*XDGSurface)
		geom := requestRect(r, 0)
		if geom.Empty() {
			return r.Errorf(proto.XdgSurfaceErrorInvalidSize, "invalid window geometry %vx%v", r.Int(2), r.Int(3))
		}
		xs.pendingGeometry = geom
		xs.pendingSet = true
		return nil
	},

	"ack_configure": func(r *server.Request) error {
		xs := r.Object.Data.(*XDGSurface)
		serial := r.Uint(0)
		i := slices.Index(xs.configures, serial)
		if i < 0 {
			return r.Errorf(proto.XdgSurfaceErrorInvalidSerial, "invalid configure serial %v", serial)
		}
		xs.configures = slices.Delete(xs.configures, 0, i+1)
		xs.configured = true
		return nil
	},
})

// Surface returns the wl_surface that the xdg_surface was created for.
func (xs *XDGSurface) Surface() *Surface {
	return xs.surface
}

// Geometry returns the window geometry in surface coordinates.
func (xs *XDGSurface) Geometry() image.Rectangle {
	return xs.geometry
}

// Mapped returns true if the surface is part of the scene.
func (xs *XDGSurface) Mapped() bool {
	return xs.mapped
}

func (xs *XDGSurface) sendConfigure() {
	serial := xs.comp.server.NextSerial()
	xs.configures = append(xs.configures, serial)
	xs.obj.Send(proto.XdgSurfaceEvConfigure, serial)
}

func (xs *XDGSurface) name() string {
	return "xdg_surface"
}

func (xs *XDGSurface) check(st *surfaceState) error {
	if xs.toplevel == nil && xs.popup == nil {
		return xs.obj.Errorf(proto.XdgSurfaceErrorNotConstructed, "xdg_surface has no role object")
	}
	if st.mask&maskBuffer != 0 && st.buffer != nil && !xs.configured {
		return xs.obj.Errorf(proto.XdgSurfaceErrorUnconfiguredBuffer, "buffer committed before the first configure was acknowledged")
	}
	return nil
}

func (xs *XDGSurface) commit() error {
	s := xs.surface
	bounds := s.localExtent()
	switch {
	case xs.pendingSet:
		xs.geometry = xs.pendingGeometry.Intersect(bounds)
		if xs.geometry.Empty() {
			xs.geometry = xs.pendingGeometry
		}
		xs.geometrySet = true
		xs.pendingSet = false
	case !xs.geometrySet:
		xs.geometry = bounds
	}

	if xs.popup != nil && xs.popup.done {
		return nil
	}

	if !xs.initial {
		xs.initial = true
		if xs.toplevel != nil {
			xs.toplevel.configureInitial()
		} else {
			xs.popup.configure()
		}
		return nil
	}

	switch {
	case s.buffer != nil && !xs.mapped:
		xs.mapped = true
		if xs.toplevel != nil {
			xs.toplevel.mapped()
		} else {
			xs.popup.mapped()
		}

	case s.buffer == nil && xs.mapped:
		xs.unmap()

	case xs.mapped && xs.toplevel != nil:
		xs.toplevel.committed()
	}
	return nil
}

// unmap takes the surface out of the scene and resets it to the state
// that it was in before its first commit.
func (xs *XDGSurface) unmap() {
	wasMapped := xs.mapped
	if wasMapped {
		// Children are positioned relative to xs, so they have to go
		// while it can still be found.
		xs.dismissChildren()
		if s := xs.surface; s != nil {
			if r, ok := s.extent(); ok {
				xs.comp.damage(r)
			}
		}
	}

	xs.mapped = false
	xs.initial = false
	xs.configured = false
	xs.configures = nil
	xs.geometrySet = false

	if !wasMapped {
		return
	}
	if xs.surface != nil {
		xs.surface.dropTreeFrames()
	}
	if xs.toplevel != nil {
		xs.toplevel.unmapped()
	}
	if xs.popup != nil {
		xs.popup.unmapped()
	}
	xs.comp.seat.surfaceUnmapped(xs.surface)
	xs.comp.focusChanged()
}

// dismissChildren dismisses the popups whose parent is xs.
func (xs *XDGSurface) dismissChildren() {
	for _, p := range slices.Clone(xs.comp.popups) {
		if p.parent == xs {
			p.dismiss()
		}
	}
}

func (xs *XDGSurface) origin() (image.Point, bool) {
	if !xs.mapped {
		return image.Point{}, false
	}
	switch {
	case xs.toplevel != nil:
		return xs.toplevel.pos.Sub(xs.geometry.Min), true
	case xs.popup != nil:
		return xs.popup.origin()
	}
	return image.Point{}, false
}

// windowPos returns the position of the window geometry in global
// coordinates.
func (xs *XDGSurface) windowPos() (image.Point, bool) {
	origin, ok := xs.origin()
	if !ok {
		return image.Point{}, false
	}
	return origin.Add(xs.geometry.Min), true
}

func (xs *XDGSurface) surfaceDestroyed() {
	xs.unmap()
	xs.surface = nil
}

func (xs *XDGSurface) destroy() {
	xs.unmap()
	if s := xs.surface; s != nil {
		s.role = nil
		s.xdg = nil
	}
	xs.wm.surfaces = slices.DeleteFunc(xs.wm.surfaces, func(o *XDGSurface) bool { return o == xs })
}

// localExtent returns the area covered by s and its visible
// subsurfaces relative to s.
func (s *Surface) localExtent() image.Rectangle {
	var r image.Rectangle
	s.walk(image.Point{}, func(s *Surface, origin image.Point) {
		r = r.Union(image.Rectangle{Min: origin, Max: origin.Add(s.size)})
	})
	return r
}

// positioner is an xdg_positioner. Constraint adjustment is accepted
// but not applied, so popups may extend past the edges of outputs.
type positioner struct {
	size       image.Point
	anchorRect image.Rectangle
	anchorSet  bool
	anchor     uint32
	gravity    uint32
	offset     image.Point
	adjustment uint32
	reactive   bool
}

var positionerImpl = server.NewImpl("xdg_positioner", server.Handlers{
	"set_size": func(r *server.Request) error {
		p := r.Object.Data.(*positioner)
		w, h := r.Int(0), r.Int(1)
		if w <= 0 || h <= 0 {
			return r.Errorf(proto.XdgPositionerErrorInvalidInput, "invalid size %vx%v", w, h)
		}
		p.size = image.Pt(int(w), int(h))
		return nil
	},

	"set_anchor_rect": func(r *server.Request) error {
		p := r.Object.Data.(*positioner)
		x, y, w, h := int(r.Int(0)), int(r.Int(1)), int(r.Int(2)), int(r.Int(3))
		if w < 0 || h < 0 {
			return r.Errorf(proto.XdgPositionerErrorInvalidInput, "invalid anchor rect size %vx%v", w, h)
		}
		p.anchorRect = image.Rect(x, y, x+w, y+h)
		p.anchorSet = true
		return nil
	},

	"set_anchor": func(r *server.Request) error {
		r.Object.Data.(*positioner).anchor = r.Uint(0)
		return nil
	},

	"set_gravity": func(r *server.Request) error {
		r.Object.Data.(*positioner).gravity = r.Uint(0)
		return nil
	},

	"set_constraint_adjustment": func(r *server.Request) error {
		r.Object.Data.(*positioner).adjustment = r.Uint(0)
		return nil
	},

	"set_offset": func(r *server.Request) error {
		r.Object.Data.(*positioner).offset = image.Pt(int(r.Int(0)), int(r.Int(1)))
		return nil
	},

	"set_reactive": func(r *server.Request) error {
		r.Object.Data.(*positioner).reactive = true
		return nil
	},

	// The parent's size and configure serial only matter for
	// reactive repositioning against constraints, which isn't done.
	"set_parent_size":      func(r *server.Request) error { return nil },
	"set_parent_configure": func(r *server.Request) error { return nil },
})

func (p *positioner) complete() bool {
	return p.size != (image.Point{}) && p.anchorSet
}

// position returns the popup's position relative to its parent's
// window geometry.
func (p *positioner) position() image.Point {
	a := p.anchorRect
	var x, y int
	switch p.anchor {
	case proto.XdgPositionerAnchorTop:
		x, y = a.Min.X+a.Dx()/2, a.Min.Y
	case proto.XdgPositionerAnchorBottom:
		x, y = a.Min.X+a.Dx()/2, a.Max.Y
	case proto.XdgPositionerAnchorLeft:
		x, y = a.Min.X, a.Min.Y+a.Dy()/2
	case proto.XdgPositionerAnchorRight:
		x, y = a.Max.X, a.Min.Y+a.Dy()/2
	case proto.XdgPositionerAnchorTopLeft:
		x, y = a.Min.X, a.Min.Y
	case proto.XdgPositionerAnchorBottomLeft:
		x, y = a.Min.X, a.Max.Y
	case proto.XdgPositionerAnchorTopRight:
		x, y = a.Max.X, a.Min.Y
	case proto.XdgPositionerAnchorBottomRight:
		x, y = a.Max.X, a.Max.Y
	default:
		x, y = a.Min.X+a.Dx()/2, a.Min.Y+a.Dy()/2
	}

	w, h := p.size.X, p.size.Y
	switch p.gravity {
	case proto.XdgPositionerGravityTop:
		x, y = x-w/2, y-h
	case proto.XdgPositionerGravityBottom:
		x = x - w/2
	case proto.XdgPositionerGravityLeft:
		x, y = x-w, y-h/2
	case proto.XdgPositionerGravityRight:
		y = y - h/2
	case proto.XdgPositionerGravityTopLeft:
		x, y = x-w, y-h
	case proto.XdgPositionerGravityBottomLeft:
		x = x - w
	case proto.XdgPositionerGravityTopRight:
		y = y - h
	case proto.XdgPositionerGravityBottomRight:
	default:
		x, y = x-w/2, y-h/2
	}

	return image.Pt(x, y).Add(p.offset)
}
