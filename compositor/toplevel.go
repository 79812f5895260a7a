package compositor

import (
	"image"

	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

// Border is the width of the frame drawn around toplevels.
const Border = 2

// cascade is how far each new toplevel is placed from the previous
// one.
var cascade = image.Pt(50, 50)

// Toplevel is an xdg_toplevel, an application window.
type Toplevel struct {
	obj *server.Object
	xdg *XDGSurface

	title  string
	appID  string
	parent *Toplevel
	min    image.Point
	max    image.Point

	// pos is where the window geometry is in global coordinates.
	pos image.Point

	// size is the size that the window was last configured with. Zero
	// lets the client choose.
	size       image.Point
	maximized  bool
	fullscreen bool
	restore    image.Rectangle
	activated  bool
	resizing   bool
	resizeFrom image.Rectangle
	resizeEdge uint32
}

var toplevelImpl = server.NewImpl("xdg_toplevel", server.Handlers{
	"set_parent": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		obj := r.Ref(0)
		if obj == nil {
			tl.parent = nil
			return nil
		}

		parent := obj.Data.(*Toplevel)
		for p := parent; p != nil; p = p.parent {
			if p == tl {
				return r.Errorf(proto.XdgToplevelErrorInvalidParent, "parent would create a loop")
			}
		}
		tl.parent = parent
		return nil
	},

	"set_title": func(r *server.Request) error {
		r.Object.Data.(*Toplevel).title = r.String(0)
		return nil
	},

	"set_app_id": func(r *server.Request) error {
		r.Object.Data.(*Toplevel).appID = r.String(0)
		return nil
	},

	"show_window_menu": func(r *server.Request) error {
		r.Client().Logger().Debugln("window menus are not supported")
		return nil
	},

	"move": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		tl.xdg.comp.seat.startMove(tl, r.Uint(1))
		return nil
	},

	"resize": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		edges := r.Uint(2)
		if edges == proto.XdgToplevelResizeEdgeNone {
			return r.Errorf(proto.XdgToplevelErrorInvalidResizeEdge, "invalid resize edge %v", edges)
		}
		tl.xdg.comp.seat.startResize(tl, r.Uint(1), edges)
		return nil
	},

	"set_max_size": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		w, h := r.Int(0), r.Int(1)
		if w < 0 || h < 0 {
			return r.Errorf(proto.XdgToplevelErrorInvalidSize, "invalid max size %vx%v", w, h)
		}
		tl.max = image.Pt(int(w), int(h))
		return nil
	},

	"set_min_size": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		w, h := r.Int(0), r.Int(1)
		if w < 0 || h < 0 {
			return r.Errorf(proto.XdgToplevelErrorInvalidSize, "invalid min size %vx%v", w, h)
		}
		tl.min = image.Pt(int(w), int(h))
		return nil
	},

	"set_maximized": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		tl.setMaximized(true)
		return nil
	},

	"unset_maximized": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		tl.setMaximized(false)
		return nil
	},

	"set_fullscreen": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		var out *Output
		if obj := r.Ref(0); obj != nil {
			out, _ = obj.Data.(*Output)
		}
		tl.setFullscreen(true, out)
		return nil
	},

	"unset_fullscreen": func(r *server.Request) error {
		tl := r.Object.Data.(*Toplevel)
		tl.setFullscreen(false, nil)
		return nil
	},

	"set_minimized": func(r *server.Request) error {
		r.Client().Logger().Debugln("minimizing is not supported")
		return nil
	},
})

func (tl *Toplevel) Title() string {
	return tl.title
}

func (tl *Toplevel) AppID() string {
	return tl.appID
}

// Pos returns the position of the window in global coordinates.
func (tl *Toplevel) Pos() image.Point {
	return tl.pos
}

func (tl *Toplevel) Surface() *Surface {
	return tl.xdg.surface
}

// Activated returns true if the toplevel has keyboard focus.
func (tl *Toplevel) Activated() bool {
	return tl.activated
}

// window returns the window geometry in global coordinates.
func (tl *Toplevel) window() image.Rectangle {
	return image.Rectangle{Min: tl.pos, Max: tl.pos.Add(tl.xdg.geometry.Size())}
}

// bounds returns everything that the toplevel draws, including its
// frame but not its popups.
func (tl *Toplevel) bounds() image.Rectangle {
	r := tl.window().Inset(-Border)
	if s := tl.xdg.surface; s != nil {
		if ext, ok := s.extent(); ok {
			r = r.Union(ext)
		}
	}
	return r
}

func (tl *Toplevel) states() []byte {
	var states []byte
	if tl.maximized {
		states = bin.Append(states, uint32(proto.XdgToplevelStateMaximized))
	}
	if tl.fullscreen {
		states = bin.Append(states, uint32(proto.XdgToplevelStateFullscreen))
	}
	if tl.resizing {
		states = bin.Append(states, uint32(proto.XdgToplevelStateResizing))
	}
	if tl.activated {
		states = bin.Append(states, uint32(proto.XdgToplevelStateActivated))
	}
	return states
}

func (tl *Toplevel) configure() {
	if !tl.xdg.initial {
		return
	}
	tl.obj.Send(proto.XdgToplevelEvConfigure, int32(tl.size.X), int32(tl.size.Y), tl.states())
	tl.xdg.sendConfigure()
}

// configureInitial sends the configure that answers a toplevel's
// first commit.
func (tl *Toplevel) configureInitial() {
	c := tl.xdg.comp
	if o := c.placementOutput(); o != nil {
		size := o.Size()
		tl.obj.Send(proto.XdgToplevelEvConfigureBounds, int32(size.X), int32(size.Y))
	}

	var caps []byte
	caps = bin.Append(caps, uint32(proto.XdgToplevelWmCapabilitiesMaximize))
	caps = bin.Append(caps, uint32(proto.XdgToplevelWmCapabilitiesFullscreen))
	tl.obj.Send(proto.XdgToplevelEvWmCapabilities, caps)

	tl.configure()
}

func (tl *Toplevel) mapped() {
	c := tl.xdg.comp
	tl.pos = c.placement()
	c.views = append(c.views, tl)
	c.damage(tl.bounds())
	c.focusChanged()
}

// committed is called for every commit while the toplevel is mapped.
func (tl *Toplevel) committed() {
	if !tl.resizing {
		return
	}

	// Keep the edges opposite the ones being dragged in place.
	size := tl.xdg.geometry.Size()
	old := tl.bounds()
	if tl.resizeEdge&proto.XdgToplevelResizeEdgeLeft != 0 {
		tl.pos.X = tl.resizeFrom.Max.X - size.X
	}
	if tl.resizeEdge&proto.XdgToplevelResizeEdgeTop != 0 {
		tl.pos.Y = tl.resizeFrom.Max.Y - size.Y
	}
	if tl.bounds() != old {
		c := tl.xdg.comp
		c.damage(old)
		c.damage(tl.bounds())
	}
}

func (tl *Toplevel) unmapped() {
	c := tl.xdg.comp
	i := slices.Index(c.views, tl)
	if i < 0 {
		return
	}
	c.damage(tl.bounds())
	c.views = slices.Delete(c.views, i, i+1)
	tl.activated = false
	tl.resizing = false
}

func (tl *Toplevel) move(d image.Point) {
	tl.moveTo(tl.pos.Add(d))
}

// moveTo moves the window geometry to p.
func (tl *Toplevel) moveTo(p image.Point) {
	if p == tl.pos {
		return
	}

	c := tl.xdg.comp
	old := tl.bounds()
	tl.pos = p
	if tl.xdg.mapped {
		c.damage(old)
		c.damage(tl.bounds())
	}
}

// request asks the client to resize the window. The size is limited
// by the client's minimum and maximum sizes.
func (tl *Toplevel) request(size image.Point) {
	size = image.Pt(max(size.X, 1), max(size.Y, 1))
	if tl.min.X > 0 {
		size.X = max(size.X, tl.min.X)
	}
	if tl.min.Y > 0 {
		size.Y = max(size.Y, tl.min.Y)
	}
	if tl.max.X > 0 {
		size.X = min(size.X, tl.max.X)
	}
	if tl.max.Y > 0 {
		size.Y = min(size.Y, tl.max.Y)
	}
	tl.size = size
	tl.configure()
}

func (tl *Toplevel) setActivated(activated bool) {
	if tl.activated == activated {
		return
	}
	tl.activated = activated
	tl.configure()

	// The frame changes color.
	if tl.xdg.mapped {
		tl.xdg.comp.damage(tl.bounds())
	}
}

func (tl *Toplevel) setMaximized(maximized bool) {
	if tl.maximized == maximized {
		tl.configure()
		return
	}
	was := tl.filling()
	tl.maximized = maximized
	tl.refill(tl.xdg.comp.outputAt(tl.pos), was)
}

func (tl *Toplevel) setFullscreen(fullscreen bool, out *Output) {
	if tl.fullscreen == fullscreen {
		tl.configure()
		return
	}
	if out == nil {
		out = tl.xdg.comp.outputAt(tl.pos)
	}
	was := tl.filling()
	tl.fullscreen = fullscreen
	tl.refill(out, was)
}

// filling returns true if the toplevel is supposed to cover an entire
// output.
func (tl *Toplevel) filling() bool {
	return tl.maximized || tl.fullscreen
}

// refill makes the toplevel cover out, or puts it back where it was
// before it started covering one. The frame is left off the screen.
func (tl *Toplevel) refill(out *Output, was bool) {
	defer tl.configure()

	if !tl.filling() {
		if was {
			tl.size = tl.restore.Size()
			tl.moveTo(tl.restore.Min)
		}
		return
	}

	if out == nil {
		out = tl.xdg.comp.placementOutput()
	}
	if out == nil {
		return
	}
	if !was {
		tl.restore = tl.window()
	}
	tl.size = out.Size()
	tl.moveTo(out.Bounds().Min)
}

// Close asks the client to close the window.
func (tl *Toplevel) Close() {
	tl.obj.Send(proto.XdgToplevelEvClose)
}

func (tl *Toplevel) destroy() {
	c := tl.xdg.comp
	c.seat.toplevelDestroyed(tl)
	for _, other := range c.views {
		if other.parent == tl {
			other.parent = tl.parent
		}
	}

	tl.xdg.unmap()
	tl.xdg.toplevel = nil
}

// placement picks a position for a newly mapped toplevel. Each one is
// cascaded from the previous one on the same output.
func (c *Compositor) placement() image.Point {
	o := c.placementOutput()
	if o == nil {
		return cascade
	}

	bounds := o.Bounds()
	pos := bounds.Min.Add(image.Pt(20, 20))
	if prev := c.top(); prev != nil && prev.pos.In(bounds) {
		pos = prev.pos.Add(cascade)
	}
	if !pos.Add(cascade).In(bounds) {
		pos = bounds.Min.Add(image.Pt(20, 20))
	}
	return pos
}

// placementOutput returns the output that new windows should go on,
// which is the one showing the focused window, or the first one.
func (c *Compositor) placementOutput() *Output {
	if top := c.top(); top != nil {
		if o := c.outputAt(top.pos); o != nil {
			return o
		}
	}
	if len(c.outputs) == 0 {
		return nil
	}
	return c.outputs[0]
}

// outputAt returns the output containing p, or nil.
func (c *Compositor) outputAt(p image.Point) *Output {
	for _, o := range c.outputs {
		if p.In(o.Bounds()) {
			return o
		}
	}
	return nil
}
