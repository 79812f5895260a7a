package compositor

import (
	"errors"
	"image"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/internal/region"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
	"golang.org/x/exp/slices"
)

var (
	focusedBorder   = shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF)
	unfocusedBorder = shmimage.NewARGB8888Color(41, 41, 41, 204)
)

// unfocusedAlpha is the opacity of windows without keyboard focus.
const unfocusedAlpha = 0.8

// Output is a place in the global coordinate space that is shown on a
// backend output. Outputs are laid out left to right in the order that
// they were added.
type Output struct {
	comp    *Compositor
	backend *backend.Output
	mode    backend.Mode
	pos     image.Point
	global  *server.Global
	objects []*server.Object
	target  render.Target

	// damaged is the part of the output that needs to be redrawn, in
	// output coordinates.
	damaged   region.Region
	scheduled bool
	frame     *frameRecord

	// surfaces are the surfaces that have entered the output.
	surfaces []*Surface
}

// frameRecord is everything held for a frame that is being presented.
type frameRecord struct {
	// render is how long composition and submission took.
	render    time.Duration
	buffers   []*Buffer
	callbacks []frameCallback
}

type frameCallback struct {
	surface *Surface
	cb      *server.Object
}

var outputImpl = server.NewImpl("wl_output", server.Handlers{})

// Name returns the name of the backend output.
func (o *Output) Name() string {
	return o.backend.Name
}

// Backend returns the backend output that o is shown on.
func (o *Output) Backend() *backend.Output {
	return o.backend
}

func (o *Output) Mode() backend.Mode {
	return o.mode
}

func (o *Output) Size() image.Point {
	return o.mode.Size
}

// Bounds returns the area of the global coordinate space that the
// output shows.
func (o *Output) Bounds() image.Rectangle {
	return image.Rectangle{Min: o.pos, Max: o.pos.Add(o.mode.Size)}
}

// damage marks r, in global coordinates, as needing to be redrawn.
func (o *Output) damage(r image.Rectangle) {
	r = r.Intersect(o.Bounds())
	if r.Empty() {
		return
	}
	o.damaged.Add(r.Sub(o.pos))
}

func (o *Output) damageAll() {
	o.damaged = region.Rect(image.Rectangle{Max: o.mode.Size})
}

// needsFrame returns true if the output has something to draw and isn't
// waiting for a frame to complete.
func (o *Output) needsFrame() bool {
	if o.frame != nil || o.target == nil {
		return false
	}
	return o.scheduled || !o.damaged.Empty()
}

// objectsFor returns the wl_output objects that client has bound for o.
func (o *Output) objectsFor(client *server.Client) []*server.Object {
	var objects []*server.Object
	for _, obj := range o.objects {
		if obj.Client() == client {
			objects = append(objects, obj)
		}
	}
	return objects
}

func (o *Output) bind(obj *server.Object) error {
	obj.Data = o
	o.objects = append(o.objects, obj)
	obj.OnDestroy(func() {
		o.objects = slices.DeleteFunc(o.objects, func(other *server.Object) bool { return other == obj })
	})

	o.sendInfo(obj)
	obj.Send(proto.WlOutputEvScale, int32(1))
	obj.Send(proto.WlOutputEvName, o.backend.Name)
	obj.Send(proto.WlOutputEvDescription, o.description())
	obj.Send(proto.WlOutputEvDone)

	for _, s := range o.surfaces {
		if s.obj.Client() == obj.Client() {
			s.obj.Send(proto.WlSurfaceEvEnter, obj)
		}
	}
	return nil
}

func (o *Output) description() string {
	if o.backend.Description != "" {
		return o.backend.Description
	}
	return o.backend.Name
}

// sendInfo sends the geometry and mode events.
func (o *Output) sendInfo(obj *server.Object) {
	obj.Send(proto.WlOutputEvGeometry,
		int32(o.pos.X),
		int32(o.pos.Y),
		int32(o.backend.PhysicalSize.X),
		int32(o.backend.PhysicalSize.Y),
		int32(proto.WlOutputSubpixelUnknown),
		o.backend.Make,
		o.backend.Model,
		int32(proto.WlOutputTransformNormal),
	)
	obj.Send(proto.WlOutputEvMode,
		uint32(proto.WlOutputModeCurrent|proto.WlOutputModePreferred),
		int32(o.mode.Size.X),
		int32(o.mode.Size.Y),
		int32(o.mode.Refresh),
	)
}

// announce resends the output's geometry and mode to every client.
func (o *Output) announce() {
	for _, obj := range o.objects {
		o.sendInfo(obj)
		obj.Send(proto.WlOutputEvDone)
	}
}

func (o *Output) setMode(mode backend.Mode) {
	c := o.comp
	if mode == o.mode {
		return
	}
	o.mode = mode

	target, err := c.renderer.NewTarget(mode.Size)
	if err != nil {
		c.logger.WithError(err).WithField("output", o.Name()).Errorln("create render target")
	}
	o.target = target

	c.layout()
	o.announce()
	c.logger.WithField("output", o.Name()).Infof("mode changed to %v", mode)
}

// forget removes every reference that o holds to s.
func (o *Output) forget(s *Surface) {
	o.surfaces = slices.DeleteFunc(o.surfaces, func(other *Surface) bool { return other == s })
	if o.frame == nil {
		return
	}
	for i := range o.frame.callbacks {
		if o.frame.callbacks[i].surface == s {
			o.frame.callbacks[i].surface = nil
		}
	}
}

// repaint composites a frame and presents it.
func (o *Output) repaint() error {
	c := o.comp
	start := time.Now()

	b := sceneBuilder{
		o:      o,
		bounds: o.Bounds(),
		scene: render.Scene{
			Background: c.background,
			Damage:     o.damaged.Clone(),
		},
	}
	b.build()

	buffers := make([]*Buffer, 0, len(b.drawn))
	for _, s := range b.drawn {
		s.buffer.lock()
		buffers = append(buffers, s.buffer)
	}
	unlock := func() {
		for _, buf := range buffers {
			buf.unlock()
		}
	}

	err := c.renderer.Composite(o.target, &b.scene)
	if err != nil {
		var fault *render.FaultError
		if !errors.As(err, &fault) {
			unlock()
			return err
		}
		for _, src := range fault.Sources {
			if buf, ok := src.(*Buffer); ok {
				buf.fault()
			}
		}

		// Faulting clients are gone, along with their surfaces.
		b.drawn = slices.DeleteFunc(b.drawn, func(s *Surface) bool { return s.obj.Destroyed() })
	}

	err = c.backend.Present(o.backend, o.target.Image())
	if err != nil {
		unlock()
		return err
	}

	rec := frameRecord{render: time.Since(start), buffers: buffers}
	for _, s := range slices.Clone(c.waiting) {
		if !slices.Contains(b.drawn, s) {
			// Surfaces that are in the scene wait for an output that
			// shows them. Everything else is done with any frame.
			if _, visible := s.rect(); visible {
				continue
			}
		}
		for _, cb := range s.takeFrames() {
			rec.callbacks = append(rec.callbacks, frameCallback{surface: s, cb: cb})
		}
	}
	o.frame = &rec

	o.damaged.Clear()
	o.scheduled = false
	o.updateSurfaces(b.drawn)
	return nil
}

// updateSurfaces sends enter and leave events so that the surfaces that
// have entered o are exactly the ones in drawn.
func (o *Output) updateSurfaces(drawn []*Surface) {
	for _, s := range slices.Clone(o.surfaces) {
		if !slices.Contains(drawn, s) {
			s.leave(o)
		}
	}

	o.surfaces = o.surfaces[:0]
	for _, s := range drawn {
		if slices.Contains(o.surfaces, s) {
			continue
		}
		s.enter(o)
		o.surfaces = append(o.surfaces, s)
	}
}

// frameDone fires the callbacks of the frame in flight and releases
// its buffers.
func (o *Output) frameDone() {
	rec := o.frame
	if rec == nil {
		return
	}
	o.frame = nil

	c := o.comp
	now := c.now()
	for _, fc := range rec.callbacks {
		fc.cb.Send(proto.WlCallbackEvDone, now)
	}
	for _, buf := range rec.buffers {
		buf.unlock()
	}
	c.frameStat(rec.render)
}

// drop gives the callbacks of the frame in flight back to their
// surfaces and releases its buffers without completing it.
func (o *Output) drop() {
	rec := o.frame
	if rec == nil {
		return
	}
	o.frame = nil

	c := o.comp
	for i := len(rec.callbacks) - 1; i >= 0; i-- {
		fc := rec.callbacks[i]
		if fc.surface == nil || fc.cb.Destroyed() {
			continue
		}
		fc.surface.frames = append([]*server.Object{fc.cb}, fc.surface.frames...)
		c.wait(fc.surface)
	}
	for _, buf := range rec.buffers {
		buf.unlock()
	}
}

// output returns the Output shown on bo, or nil.
func (c *Compositor) output(bo *backend.Output) *Output {
	for _, o := range c.outputs {
		if o.backend == bo {
			return o
		}
	}
	return nil
}

func (c *Compositor) addOutput(bo *backend.Output) {
	if c.output(bo) != nil {
		return
	}

	o := Output{
		comp:    c,
		backend: bo,
		mode:    bo.Mode,
	}
	target, err := c.renderer.NewTarget(bo.Mode.Size)
	if err != nil {
		c.logger.WithError(err).WithField("output", bo.Name).Errorln("create render target")
	}
	o.target = target

	hidden := c.hiddenToplevels()
	c.outputs = append(c.outputs, &o)
	c.layout()
	o.global = c.server.AddGlobal("wl_output", OutputVersion, outputImpl, o.bind)

	for _, tl := range hidden {
		tl.moveTo(c.placement())
	}
	c.seat.outputsChanged()

	c.logger.WithField("output", bo.Name).Infof("output added: %v", bo.Mode)
}

func (c *Compositor) removeOutput(bo *backend.Output) {
	o := c.output(bo)
	if o == nil {
		return
	}

	o.drop()
	for _, s := range slices.Clone(o.surfaces) {
		s.leave(o)
	}
	o.surfaces = nil
	o.global.Remove()
	o.target = nil

	c.outputs = slices.DeleteFunc(c.outputs, func(other *Output) bool { return other == o })
	c.layout()
	c.seat.outputsChanged()

	c.logger.WithField("output", bo.Name).Infoln("output removed")
}

// layout places the outputs left to right and redraws all of them.
func (c *Compositor) layout() {
	var x int
	for _, o := range c.outputs {
		p := image.Pt(x, 0)
		if o.pos != p {
			o.pos = p
			o.announce()
		}
		x += o.mode.Size.X
		o.damageAll()
	}
}

// hiddenToplevels returns the mapped toplevels that aren't on any
// output.
func (c *Compositor) hiddenToplevels() []*Toplevel {
	var hidden []*Toplevel
	for _, tl := range c.views {
		if !c.visible(tl.window()) {
			hidden = append(hidden, tl)
		}
	}
	return hidden
}

// visible returns true if any part of r is on an output.
func (c *Compositor) visible(r image.Rectangle) bool {
	for _, o := range c.outputs {
		if r.Overlaps(o.Bounds()) {
			return true
		}
	}
	return false
}

// sceneBuilder collects the scene for one output.
type sceneBuilder struct {
	o      *Output
	bounds image.Rectangle
	scene  render.Scene

	// drawn are the surfaces with nodes in the scene.
	drawn []*Surface
}

func (b *sceneBuilder) build() {
	c := b.o.comp
	top := c.top()
	for _, tl := range c.views {
		origin, ok := tl.xdg.origin()
		if !ok {
			continue
		}

		frame := unfocusedBorder
		alpha := unfocusedAlpha
		if tl == top {
			frame = focusedBorder
			alpha = 1
		}
		w := tl.window()
		b.rect(image.Rect(w.Min.X-Border, w.Min.Y-Border, w.Min.X, w.Max.Y+Border), frame)
		b.rect(image.Rect(w.Max.X, w.Min.Y-Border, w.Max.X+Border, w.Max.Y+Border), frame)
		b.rect(image.Rect(w.Min.X, w.Min.Y-Border, w.Max.X, w.Min.Y), frame)
		b.rect(image.Rect(w.Min.X, w.Max.Y, w.Max.X, w.Max.Y+Border), frame)

		b.tree(tl.xdg.surface, origin, alpha)
	}

	for _, p := range c.popups {
		origin, ok := p.xdg.origin()
		if !ok {
			continue
		}
		b.tree(p.xdg.surface, origin, 1)
	}

	c.seat.drawCursor(b)
}

func (b *sceneBuilder) rect(r image.Rectangle, color shmimage.ARGB8888Color) {
	if !r.Overlaps(b.bounds) {
		return
	}
	b.scene.Nodes = append(b.scene.Nodes, render.Node{
		Color: color,
		Dst:   r.Sub(b.bounds.Min),
		Alpha: 1,
	})
}

// tree adds s and its subsurfaces, with s at origin.
func (b *sceneBuilder) tree(s *Surface, origin image.Point, alpha float64) {
	s.walk(origin, func(s *Surface, origin image.Point) {
		r := image.Rectangle{Min: origin, Max: origin.Add(s.size)}
		if r.Empty() || !r.Overlaps(b.bounds) {
			return
		}
		b.scene.Nodes = append(b.scene.Nodes, render.Node{
			Source:    s.buffer,
			Dst:       r.Sub(b.bounds.Min),
			Transform: s.transform,
			Alpha:     alpha,
		})
		if !slices.Contains(b.drawn, s) {
			b.drawn = append(b.drawn, s)
		}
	})
}

// source adds a node for src with its top-left corner at p.
func (b *sceneBuilder) source(src render.Source, p image.Point) {
	r := image.Rectangle{Min: p, Max: p.Add(src.Size())}
	if !r.Overlaps(b.bounds) {
		return
	}
	b.scene.Nodes = append(b.scene.Nodes, render.Node{
		Source: src,
		Dst:    r.Sub(b.bounds.Min),
		Alpha:  1,
	})
}
