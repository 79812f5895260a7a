package compositor

import (
	"image"

	"deedles.dev/wlc/cursor"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
)

// cursorShapes are the names of the shapes of wp_cursor_shape_device_v1,
// in order, along with the names that older themes use for them.
var cursorShapes = [...][]string{
	{"default", "left_ptr"},
	{"context-menu"},
	{"help", "question_arrow"},
	{"pointer", "hand2"},
	{"progress", "left_ptr_watch"},
	{"wait", "watch"},
	{"cell", "plus"},
	{"crosshair", "cross"},
	{"text", "xterm"},
	{"vertical-text"},
	{"alias", "dnd-link"},
	{"copy", "dnd-copy"},
	{"move", "fleur"},
	{"no-drop", "dnd-none"},
	{"not-allowed", "crossed_circle"},
	{"grab", "hand1"},
	{"grabbing", "fleur"},
	{"e-resize", "right_side"},
	{"n-resize", "top_side"},
	{"ne-resize", "top_right_corner"},
	{"nw-resize", "top_left_corner"},
	{"s-resize", "bottom_side"},
	{"se-resize", "bottom_right_corner"},
	{"sw-resize", "bottom_left_corner"},
	{"w-resize", "left_side"},
	{"ew-resize", "sb_h_double_arrow"},
	{"ns-resize", "sb_v_double_arrow"},
	{"nesw-resize", "fd_double_arrow"},
	{"nwse-resize", "bd_double_arrow"},
	{"col-resize", "sb_h_double_arrow"},
	{"row-resize", "sb_v_double_arrow"},
	{"all-scroll", "fleur"},
	{"zoom-in"},
	{"zoom-out"},
}

// cursorState is what the pointer looks like. At most one of surface
// and image is set. If neither is, the cursor is hidden.
type cursorState struct {
	surface *cursorRole
	image   *cursor.Image
	sources map[*shmimage.ARGB8888]*render.ImageSource
}

// cursorRole is the role of a surface set with wl_pointer.set_cursor.
type cursorRole struct {
	seat    *Seat
	surface *Surface
	hotspot image.Point
}

var pointerImpl = server.NewImpl("wl_pointer", server.Handlers{
	"set_cursor": func(r *server.Request) error {
		seat := compositorOf(r).seat
		if f := seat.pointerFocus; f == nil || f.obj.Client() != r.Client() {
			return nil
		}

		s := surface(r.Ref(1))
		if s == nil {
			seat.setCursor(cursorState{})
			return nil
		}

		cr, ok := s.role.(*cursorRole)
		if !ok {
			cr = &cursorRole{seat: seat, surface: s}
			if !s.setRole(cr) {
				return r.Errorf(proto.WlPointerErrorRole, "surface already has role %v", s.roleName)
			}
		}
		hotspot := image.Pt(int(r.Int(2)), int(r.Int(3)))
		if seat.cursor.surface == cr && cr.hotspot == hotspot {
			return nil
		}

		seat.damageCursor()
		cr.hotspot = hotspot
		seat.setCursor(cursorState{surface: cr})
		return nil
	},
})

var cursorShapeImpl = server.NewImpl("wp_cursor_shape_manager_v1", server.Handlers{
	"get_pointer": func(r *server.Request) error {
		obj := r.NewObject(0, cursorShapeDeviceImpl)
		obj.Data = r.Ref(1)
		return nil
	},
})

var cursorShapeDeviceImpl = server.NewImpl("wp_cursor_shape_device_v1", server.Handlers{
	"set_shape": func(r *server.Request) error {
		shape := r.Uint(1)
		if shape < proto.WpCursorShapeDeviceV1ShapeDefault || int(shape) > len(cursorShapes) {
			return r.Errorf(proto.WpCursorShapeDeviceV1ErrorInvalidShape, "invalid shape %v", shape)
		}

		ptr := r.Object.Data.(*server.Object)
		seat := compositorOf(r).seat
		if ptr.Destroyed() {
			return nil
		}
		if f := seat.pointerFocus; f == nil || f.obj.Client() != r.Client() {
			return nil
		}

		seat.setShape(cursorShapes[shape-1]...)
		return nil
	},
})

func (cr *cursorRole) name() string {
	return "cursor"
}

func (cr *cursorRole) check(st *surfaceState) error {
	return nil
}

func (cr *cursorRole) commit() error {
	return nil
}

func (cr *cursorRole) origin() (image.Point, bool) {
	if cr.seat.cursor.surface != cr {
		return image.Point{}, false
	}
	return cr.seat.point().Sub(cr.hotspot), true
}

// move moves the hotspot so that the cursor stays where it is on the
// screen while the surface moves.
func (cr *cursorRole) move(d image.Point) {
	cr.hotspot = cr.hotspot.Sub(d)
}

func (cr *cursorRole) surfaceDestroyed() {}

// setCursor changes the cursor. The surface of a new cursor state
// must already have its hotspot set.
func (seat *Seat) setCursor(st cursorState) {
	seat.damageCursor()
	seat.cursor.surface = st.surface
	seat.cursor.image = st.image
	seat.damageCursor()

	if cr := st.surface; cr != nil && len(cr.surface.frames) > 0 {
		cr.surface.scheduleFrames()
	}
}

// setShape shows the first of the named cursors that the theme has.
func (seat *Seat) setShape(names ...string) {
	cur := seat.comp.theme.Cursor(names...)
	if len(cur.Frames) == 0 {
		cur = cursor.Fallback()
	}
	seat.setCursor(cursorState{image: cur.Frames[0]})
}

func (seat *Seat) defaultCursor() {
	seat.setShape(cursorShapes[0]...)
}

// cursorRect returns the area covered by the cursor.
func (seat *Seat) cursorRect() image.Rectangle {
	switch {
	case seat.cursor.surface != nil:
		r, _ := seat.cursor.surface.surface.extent()
		return r

	case seat.cursor.image != nil:
		img := seat.cursor.image
		origin := seat.point().Sub(image.Pt(img.XHot, img.YHot))
		return image.Rectangle{Min: origin, Max: origin.Add(img.Image.Rect.Size())}

	default:
		return image.Rectangle{}
	}
}

func (seat *Seat) damageCursor() {
	seat.comp.damage(seat.cursorRect())
}

// drawCursor adds the cursor to the top of a scene.
func (seat *Seat) drawCursor(b *sceneBuilder) {
	switch {
	case seat.cursor.surface != nil:
		s := seat.cursor.surface.surface
		origin, ok := s.origin()
		if ok {
			b.tree(s, origin, 1)
		}

	case seat.cursor.image != nil:
		img := seat.cursor.image
		src, ok := seat.cursor.sources[img.Image]
		if !ok {
			src = render.NewImageSource(img.Image)
			seat.cursor.sources[img.Image] = src
		}
		b.source(src, seat.point().Sub(image.Pt(img.XHot, img.YHot)))
	}
}
