package compositor

import (
	"image"

	"deedles.dev/wlc/internal/region"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

// role is what a surface is used for. A surface gets at most one role
// in its lifetime, although the object that implements the role may be
// destroyed and recreated.
type role interface {
	// name is the name of the role, for error messages.
	name() string

	// check is called before pending state is applied.
	check(st *surfaceState) error

	// commit is called after state has been applied to the surface.
	commit() error

	// origin returns the position of the surface in global coordinates
	// and whether the surface is part of the scene at all.
	origin() (image.Point, bool)

	// surfaceDestroyed is called if the surface is destroyed while the
	// role object still exists, such as when its client disconnects.
	surfaceDestroyed()
}

// mover is implemented by roles that move when a buffer is attached
// with an offset.
type mover interface {
	move(d image.Point)
}

// Bits of surfaceState.mask.
const (
	maskBuffer = 1 << iota
	maskOffset
	maskOpaque
	maskInput
	maskTransform
	maskScale
)

// surfaceState is double-buffered surface state.
type surfaceState struct {
	mask      uint32
	buffer    *Buffer
	offset    image.Point
	damage    region.Region
	bufDamage region.Region
	opaque    region.Region
	input     region.Region
	transform render.Transform
	scale     int32
	frames    []*server.Object
}

// merge adds newer state on top of st.
func (st *surfaceState) merge(src *surfaceState) {
	if src.mask&maskBuffer != 0 {
		st.buffer = src.buffer
	}
	if src.mask&maskOffset != 0 {
		st.offset = st.offset.Add(src.offset)
	}
	if src.mask&maskOpaque != 0 {
		st.opaque = src.opaque
	}
	if src.mask&maskInput != 0 {
		st.input = src.input
	}
	if src.mask&maskTransform != 0 {
		st.transform = src.transform
	}
	if src.mask&maskScale != 0 {
		st.scale = src.scale
	}
	st.damage.Union(src.damage)
	st.bufDamage.Union(src.bufDamage)
	st.frames = append(st.frames, src.frames...)
	st.mask |= src.mask
}

// drop discards the state's frame callbacks without firing them.
func (st *surfaceState) drop() {
	for _, cb := range st.frames {
		cb.Destroy()
	}
	st.frames = nil
}

// Surface is a wl_surface.
type Surface struct {
	comp *Compositor
	obj  *server.Object

	pending surfaceState

	buffer    *Buffer
	transform render.Transform
	scale     int32
	opaque    region.Region
	input     region.Region
	size      image.Point
	frames    []*server.Object

	roleName string
	role     role
	sub      *Subsurface
	xdg      *XDGSurface

	// order is the stacking order of the surface and its subsurfaces,
	// bottom first. The surface itself is in the list.
	order        []*Surface
	pendingOrder []*Surface

	outputs []*Output
}

var compositorImpl = server.NewImpl("wl_compositor", server.Handlers{
	"create_surface": func(r *server.Request) error {
		c := compositorOf(r)
		obj := r.NewObject(0, surfaceImpl)
		s := Surface{
			comp:  c,
			obj:   obj,
			scale: 1,
			input: region.Infinite(),
		}
		s.order = []*Surface{&s}
		obj.Data = &s
		obj.OnDestroy(s.destroy)

		obj.Send(proto.WlSurfaceEvPreferredBufferScale, int32(1))
		obj.Send(proto.WlSurfaceEvPreferredBufferTransform, uint32(proto.WlOutputTransformNormal))
		return nil
	},

	"create_region": func(r *server.Request) error {
		obj := r.NewObject(0, regionImpl)
		obj.Data = new(region.Region)
		return nil
	},
})

var regionImpl = server.NewImpl("wl_region", server.Handlers{
	"add": func(r *server.Request) error {
		reg := r.Object.Data.(*region.Region)
		reg.Add(requestRect(r, 0))
		return nil
	},
	"subtract": func(r *server.Request) error {
		reg := r.Object.Data.(*region.Region)
		reg.Subtract(requestRect(r, 0))
		return nil
	},
})

// requestRect reads a rectangle from the x, y, width, and height
// arguments starting at i. Rectangles with a negative size are empty.
func requestRect(r *server.Request, i int) image.Rectangle {
	x, y, w, h := int(r.Int(i)), int(r.Int(i+1)), int(r.Int(i+2)), int(r.Int(i+3))
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(x, y, x+w, y+h)
}

func regionArg(r *server.Request, i int) (region.Region, bool) {
	obj := r.Ref(i)
	if obj == nil {
		return region.Region{}, false
	}
	return obj.Data.(*region.Region).Clone(), true
}

var surfaceImpl = server.NewImpl("wl_surface", server.Handlers{
	"destroy": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		if s.xdg != nil && !s.xdg.obj.Destroyed() {
			return r.Errorf(proto.WlSurfaceErrorDefunctRoleObject, "surface destroyed before its xdg_surface")
		}
		return nil
	},

	"attach": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		x, y := r.Int(1), r.Int(2)
		if r.Object.Version() >= 5 && (x != 0 || y != 0) {
			return r.Errorf(proto.WlSurfaceErrorInvalidOffset, "attach offset must be zero, use wl_surface.offset instead")
		}

		s.pending.mask |= maskBuffer
		s.pending.buffer = buffer(r.Ref(0))
		if x != 0 || y != 0 {
			s.pending.mask |= maskOffset
			s.pending.offset = s.pending.offset.Add(image.Pt(int(x), int(y)))
		}
		return nil
	},

	"damage": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		s.pending.damage.Add(requestRect(r, 0))
		return nil
	},

	"damage_buffer": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		s.pending.bufDamage.Add(requestRect(r, 0))
		return nil
	},

	"frame": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		cb := r.NewObject(0, nil)
		s.pending.frames = append(s.pending.frames, cb)
		return nil
	},

	"set_opaque_region": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		s.pending.mask |= maskOpaque
		s.pending.opaque, _ = regionArg(r, 0)
		return nil
	},

	"set_input_region": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		reg, ok := regionArg(r, 0)
		if !ok {
			reg = region.Infinite()
		}
		s.pending.mask |= maskInput
		s.pending.input = reg
		return nil
	},

	"commit": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		return s.commit()
	},

	"set_buffer_transform": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		t := render.Transform(r.Int(0))
		if !t.Valid() {
			return r.Errorf(proto.WlSurfaceErrorInvalidTransform, "invalid transform %v", r.Int(0))
		}
		s.pending.mask |= maskTransform
		s.pending.transform = t
		return nil
	},

	"set_buffer_scale": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		scale := r.Int(0)
		if scale < 1 {
			return r.Errorf(proto.WlSurfaceErrorInvalidScale, "invalid scale %v", scale)
		}
		s.pending.mask |= maskScale
		s.pending.scale = scale
		return nil
	},

	"offset": func(r *server.Request) error {
		s := r.Object.Data.(*Surface)
		s.pending.mask |= maskOffset
		s.pending.offset = s.pending.offset.Add(image.Pt(int(r.Int(0)), int(r.Int(1))))
		return nil
	},
})

// surface returns the Surface behind obj, or nil.
func surface(obj *server.Object) *Surface {
	if obj == nil {
		return nil
	}
	s, _ := obj.Data.(*Surface)
	return s
}

func (s *Surface) Object() *server.Object {
	return s.obj
}

// Buffer returns the surface's current buffer, or nil.
func (s *Surface) Buffer() *Buffer {
	return s.buffer
}

// Size returns the size of the surface in surface coordinates.
func (s *Surface) Size() image.Point {
	return s.size
}

// Role returns the name of the surface's role, or "" if it has none.
func (s *Surface) Role() string {
	return s.roleName
}

// setRole gives s a role. It fails if s already has a different role
// or if a role object for it already exists.
func (s *Surface) setRole(r role) bool {
	if s.role != nil || (s.roleName != "" && s.roleName != r.name()) {
		return false
	}
	s.roleName = r.name()
	s.role = r
	return true
}

func (s *Surface) commit() error {
	err := s.check(&s.pending)
	if err != nil {
		return err
	}

	pending := s.pending
	s.pending = surfaceState{}

	if s.sub != nil {
		if s.sub.synchronized() {
			s.sub.cache(&pending)
			return nil
		}
		if s.sub.cached != nil {
			cached := s.sub.cached
			s.sub.cached = nil
			cached.merge(&pending)
			pending = *cached
		}
	}

	return s.apply(&pending)
}

func (s *Surface) check(st *surfaceState) error {
	if st.mask&maskBuffer != 0 && st.buffer != nil {
		if st.buffer.Destroyed() {
			st.buffer = nil
		} else {
			err := st.buffer.storage.check(st.buffer)
			if err != nil {
				return err
			}
		}
	}

	buf, scale := s.buffer, s.scale
	if st.mask&maskBuffer != 0 {
		buf = st.buffer
	}
	if st.mask&maskScale != 0 {
		scale = st.scale
	}
	if buf != nil && s.obj.Version() >= 6 {
		size := buf.Size()
		if size.X%int(scale) != 0 || size.Y%int(scale) != 0 {
			return s.obj.Errorf(proto.WlSurfaceErrorInvalidSize, "buffer size %v is not a multiple of scale %v", size, scale)
		}
	}

	if s.role != nil {
		return s.role.check(st)
	}
	return nil
}

// apply makes st the current state of the surface and then applies
// the state that its synchronized subsurfaces have cached.
func (s *Surface) apply(st *surfaceState) error {
	c := s.comp
	before, wasMapped := s.extent()
	oldSize := s.size
	oldTransform, oldScale := s.transform, s.scale

	if st.mask&maskBuffer != 0 {
		b := st.buffer
		if b != nil && b.Destroyed() {
			b = nil
		}
		if b != nil {
			b.lock()
			b.use()
		}
		if s.buffer != nil {
			s.buffer.unlock()
		}
		s.buffer = b
	}
	if st.mask&maskTransform != 0 {
		s.transform = st.transform
	}
	if st.mask&maskScale != 0 {
		s.scale = st.scale
	}
	if st.mask&maskOpaque != 0 {
		s.opaque = st.opaque
	}
	if st.mask&maskInput != 0 {
		s.input = st.input
	}
	s.size = s.surfaceSize()

	if st.mask&maskOffset != 0 && st.offset != (image.Point{}) {
		if m, ok := s.role.(mover); ok {
			m.move(st.offset)
		}
	}

	damage := st.damage
	if !st.bufDamage.Empty() {
		damage.Union(s.bufferDamage(st.bufDamage))
	}
	full := s.size != oldSize || s.transform != oldTransform || s.scale != oldScale

	if len(st.frames) > 0 {
		s.frames = append(s.frames, st.frames...)
		c.wait(s)
	}

	restacked := false
	if s.pendingOrder != nil {
		s.order = s.pendingOrder
		s.pendingOrder = nil
		restacked = true
	}
	for _, child := range slices.Clone(s.order) {
		if child == s {
			continue
		}
		sub := child.sub
		if sub.moved {
			sub.pos = sub.pendingPos
			sub.moved = false
			restacked = true
		}
		if sub.cached != nil {
			cached := sub.cached
			sub.cached = nil
			err := child.apply(cached)
			if err != nil {
				return err
			}
		}
	}

	if s.role != nil {
		err := s.role.commit()
		if err != nil {
			return err
		}
	}

	after, mapped := s.extent()
	switch {
	case wasMapped && mapped && before == after && !restacked && !full:
		origin, _ := s.origin()
		for _, r := range damage.Intersect(image.Rectangle{Max: s.size}).Rects() {
			c.damage(r.Add(origin))
		}
	default:
		if wasMapped {
			c.damage(before)
		}
		if mapped {
			c.damage(after)
		}
	}

	if len(s.frames) > 0 {
		s.scheduleFrames()
	}
	return nil
}

// scheduleFrames makes sure that the surface's frame callbacks will be
// fired by an upcoming frame. Surfaces that are in the scene are
// waiting for a frame on an output that shows them. Other surfaces
// are done with the next frame on any output. Surfaces that are in the
// scene but not on any output wait until they are.
func (s *Surface) scheduleFrames() {
	r, ok := s.rect()
	if ok {
		s.comp.schedule(r)
		return
	}
	s.comp.scheduleAll()
}

func (s *Surface) surfaceSize() image.Point {
	if s.buffer == nil {
		return image.Point{}
	}
	return s.transform.Size(s.buffer.Size()).Div(int(s.scale))
}

// bufferDamage converts damage in buffer coordinates to surface
// coordinates. Damage to a transformed buffer damages the whole
// surface.
func (s *Surface) bufferDamage(damage region.Region) region.Region {
	if s.transform != render.TransformNormal {
		return region.Rect(image.Rectangle{Max: s.size})
	}

	scale := int(s.scale)
	var out region.Region
	for _, r := range damage.Rects() {
		out.Add(image.Rect(
			r.Min.X/scale,
			r.Min.Y/scale,
			(r.Max.X+scale-1)/scale,
			(r.Max.Y+scale-1)/scale,
		))
	}
	return out
}

// origin returns the surface's position in global coordinates and
// whether it is part of the scene.
func (s *Surface) origin() (image.Point, bool) {
	if s.role == nil {
		return image.Point{}, false
	}
	return s.role.origin()
}

// rect returns the surface's content in global coordinates and whether
// it is visible, meaning that it is in the scene and has a buffer.
func (s *Surface) rect() (image.Rectangle, bool) {
	origin, ok := s.origin()
	if !ok || s.buffer == nil {
		return image.Rectangle{}, false
	}
	return image.Rectangle{Min: origin, Max: origin.Add(s.size)}, true
}

// extent returns the area covered by the surface and its visible
// subsurfaces in global coordinates.
func (s *Surface) extent() (image.Rectangle, bool) {
	origin, ok := s.origin()
	if !ok || s.buffer == nil {
		return image.Rectangle{}, false
	}

	var r image.Rectangle
	s.walk(origin, func(s *Surface, origin image.Point) {
		r = r.Union(image.Rectangle{Min: origin, Max: origin.Add(s.size)})
	})
	return r, true
}

// walk calls f for s and every visible subsurface below it, from the
// bottom of the stack to the top. origin is where s is.
func (s *Surface) walk(origin image.Point, f func(s *Surface, origin image.Point)) {
	for _, child := range s.order {
		if child == s {
			if s.buffer != nil {
				f(s, origin)
			}
			continue
		}
		if child.buffer != nil {
			child.walk(origin.Add(child.sub.pos), f)
		}
	}
}

// at returns the topmost surface of the tree rooted at s whose input
// region contains p, along with p relative to that surface.
func (s *Surface) at(origin, p image.Point) (*Surface, image.Point, bool) {
	for i := len(s.order) - 1; i >= 0; i-- {
		child := s.order[i]
		if child != s {
			if child.buffer == nil {
				continue
			}
			found, local, ok := child.at(origin.Add(child.sub.pos), p)
			if ok {
				return found, local, true
			}
			continue
		}

		if s.buffer == nil {
			continue
		}
		local := p.Sub(origin)
		if local.In(image.Rectangle{Max: s.size}) && s.input.Contains(local) {
			return s, local, true
		}
	}
	return nil, image.Point{}, false
}

// takeFrames removes and returns the surface's waiting frame
// callbacks.
func (s *Surface) takeFrames() []*server.Object {
	frames := s.frames
	s.frames = nil
	s.comp.unwait(s)
	return frames
}

// dropFrames discards the surface's waiting frame callbacks without
// firing them, as happens when the surface is unmapped.
func (s *Surface) dropFrames() {
	for _, cb := range s.takeFrames() {
		cb.Destroy()
	}
}

// dropTreeFrames drops the frame callbacks of s and its subsurfaces.
func (s *Surface) dropTreeFrames() {
	for _, child := range s.order {
		if child == s {
			s.dropFrames()
			continue
		}
		child.dropTreeFrames()
	}
}

func (s *Surface) enter(o *Output) {
	if slices.Contains(s.outputs, o) {
		return
	}
	s.outputs = append(s.outputs, o)
	for _, obj := range o.objectsFor(s.obj.Client()) {
		s.obj.Send(proto.WlSurfaceEvEnter, obj)
	}
}

func (s *Surface) leave(o *Output) {
	i := slices.Index(s.outputs, o)
	if i < 0 {
		return
	}
	s.outputs = slices.Delete(s.outputs, i, i+1)
	for _, obj := range o.objectsFor(s.obj.Client()) {
		s.obj.Send(proto.WlSurfaceEvLeave, obj)
	}
}

func (s *Surface) destroy() {
	c := s.comp

	if r, ok := s.extent(); ok {
		c.damage(r)
	}

	if s.role != nil {
		s.role.surfaceDestroyed()
	}

	s.pending.drop()
	s.dropFrames()
	if s.buffer != nil {
		s.buffer.unlock()
		s.buffer = nil
	}

	for _, child := range s.order {
		if child != s {
			child.sub.parentDestroyed()
		}
	}
	s.order = nil
	s.pendingOrder = nil

	for _, o := range s.outputs {
		o.forget(s)
	}
	s.outputs = nil

	c.seat.surfaceDestroyed(s)
}
