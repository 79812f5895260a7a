package compositor

import (
	"fmt"
	"image"
	"math"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/input"
	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/pointer"
	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
	"golang.org/x/exp/slices"
)

// SeatName is the name that the only seat is advertised with.
const SeatName = "seat0"

// Seat is the compositor's wl_seat. Every input device is part of it.
type Seat struct {
	comp   *Compositor
	global *server.Global
	logger *logrus.Entry

	seats     []*server.Object
	pointers  []*server.Object
	keyboards []*server.Object
	touches   []*server.Object

	devices []*input.Device
	caps    input.Caps

	// x and y are the position of the pointer in global coordinates.
	x, y         float64
	buttons      []pointer.Button
	pointerFocus *Surface
	grab         *grab

	kb            input.Keyboard
	keymap        string
	swallowed     []uint32
	keyboardFocus *Surface

	touchPoints  map[int32]touchPoint
	touchClients []*server.Client

	cursor cursorState
}

// grab is an interactive move or resize of a toplevel.
type grab struct {
	tl     *Toplevel
	resize bool
	edges  uint32
	x, y   float64
	window image.Rectangle
}

type touchPoint struct {
	surface *Surface
	origin  image.Point
}

func newSeat(c *Compositor) *Seat {
	seat := Seat{
		comp:        c,
		logger:      c.logger.WithField("seat", SeatName),
		keymap:      input.Keymap(c.config.XKBLayout, c.config.XKBOptions),
		touchPoints: make(map[int32]touchPoint),
		cursor: cursorState{
			sources: make(map[*shmimage.ARGB8888]*render.ImageSource),
		},
	}
	seat.global = c.server.AddGlobal("wl_seat", SeatVersion, seatImpl, seat.bind)
	seat.defaultCursor()
	return &seat
}

var seatImpl = server.NewImpl("wl_seat", server.Handlers{
	"get_pointer": func(r *server.Request) error {
		seat := compositorOf(r).seat
		obj := r.NewObject(0, pointerImpl)
		obj.Data = seat
		seat.pointers = append(seat.pointers, obj)
		obj.OnDestroy(func() { seat.pointers = removeObject(seat.pointers, obj) })

		if s := seat.pointerFocus; s != nil && s.obj.Client() == r.Client() {
			x, y := seat.local(s)
			obj.Send(proto.WlPointerEvEnter, seat.comp.server.NextSerial(), s.obj, x, y)
			obj.Send(proto.WlPointerEvFrame)
		}
		return nil
	},

	"get_keyboard": func(r *server.Request) error {
		seat := compositorOf(r).seat
		obj := r.NewObject(0, keyboardImpl)
		obj.Data = seat
		seat.keyboards = append(seat.keyboards, obj)
		obj.OnDestroy(func() { seat.keyboards = removeObject(seat.keyboards, obj) })

		err := seat.sendKeymap(obj)
		if err != nil {
			seat.logger.WithError(err).Errorln("send keymap")
		}
		obj.Send(proto.WlKeyboardEvRepeatInfo, seat.comp.config.RepeatRate, seat.comp.config.RepeatDelay)

		if s := seat.keyboardFocus; s != nil && s.obj.Client() == r.Client() {
			seat.sendKeyboardEnter(obj, s)
		}
		return nil
	},

	"get_touch": func(r *server.Request) error {
		seat := compositorOf(r).seat
		obj := r.NewObject(0, touchImpl)
		obj.Data = seat
		seat.touches = append(seat.touches, obj)
		obj.OnDestroy(func() { seat.touches = removeObject(seat.touches, obj) })
		return nil
	},
})

var keyboardImpl = server.NewImpl("wl_keyboard", server.Handlers{})

var touchImpl = server.NewImpl("wl_touch", server.Handlers{})

func removeObject(objects []*server.Object, obj *server.Object) []*server.Object {
	return slices.DeleteFunc(objects, func(other *server.Object) bool { return other == obj })
}

// objectsFor returns the objects in objects that belong to client.
func objectsFor(objects []*server.Object, client *server.Client) []*server.Object {
	return sliceutils.Filter(objects, func(obj *server.Object) bool { return obj.Client() == client })
}

func (seat *Seat) bind(obj *server.Object) error {
	seat.seats = append(seat.seats, obj)
	obj.OnDestroy(func() { seat.seats = removeObject(seat.seats, obj) })

	obj.Send(proto.WlSeatEvCapabilities, seat.capabilities())
	obj.Send(proto.WlSeatEvName, SeatName)
	return nil
}

// Pos returns the position of the pointer in global coordinates.
func (seat *Seat) Pos() (x, y float64) {
	return seat.x, seat.y
}

// PointerFocus returns the surface that has pointer focus, or nil.
func (seat *Seat) PointerFocus() *Surface {
	return seat.pointerFocus
}

// KeyboardFocus returns the surface that has keyboard focus, or nil.
func (seat *Seat) KeyboardFocus() *Surface {
	return seat.keyboardFocus
}

func (seat *Seat) Caps() input.Caps {
	return seat.caps
}

func (seat *Seat) capabilities() uint32 {
	var caps uint32
	if seat.caps&input.CapPointer != 0 {
		caps |= proto.WlSeatCapabilityPointer
	}
	if seat.caps&input.CapKeyboard != 0 {
		caps |= proto.WlSeatCapabilityKeyboard
	}
	if seat.caps&input.CapTouch != 0 {
		caps |= proto.WlSeatCapabilityTouch
	}
	return caps
}

func (seat *Seat) updateCaps() {
	var caps input.Caps
	for _, dev := range seat.devices {
		caps |= dev.Caps
	}
	if caps == seat.caps {
		return
	}
	seat.caps = caps

	for _, obj := range seat.seats {
		obj.Send(proto.WlSeatEvCapabilities, seat.capabilities())
	}
}

func (seat *Seat) sendKeymap(obj *server.Object) error {
	size := len(seat.keymap) + 1
	file, err := shm.Create("wlc-keymap", int64(size))
	if err != nil {
		return fmt.Errorf("create keymap file: %w", err)
	}
	defer file.Close()

	_, err = file.WriteAt([]byte(seat.keymap), 0)
	if err != nil {
		return fmt.Errorf("write keymap: %w", err)
	}
	err = shm.Seal(file)
	if err != nil {
		seat.logger.WithError(err).Debugln("seal keymap")
	}

	obj.Send(proto.WlKeyboardEvKeymap, uint32(proto.WlKeyboardKeymapFormatXkbV1), file, uint32(size))
	return nil
}

// handle delivers an input event to the clients that should get it.
func (seat *Seat) handle(ev input.Event) {
	switch ev := ev.(type) {
	case input.DeviceAdded:
		seat.logger.WithField("device", ev.Device).Infoln("device added")
		seat.devices = append(seat.devices, ev.Device)
		seat.updateCaps()

	case input.DeviceRemoved:
		seat.logger.WithField("device", ev.Device).Infoln("device removed")
		seat.devices = slices.DeleteFunc(seat.devices, func(dev *input.Device) bool { return dev == ev.Device })
		seat.updateCaps()

	case input.PointerMotion:
		dx, dy := ev.DX, ev.DY
		if ev.Device != nil {
			dx, dy = ev.Device.Pointer.Accelerate(dx, dy)
		}
		seat.motion(ev.Millis(), seat.x+dx, seat.y+dy)

	case input.PointerMotionAbsolute:
		o := seat.comp.outputNamed(ev.Output)
		if o == nil {
			return
		}
		b := o.Bounds()
		seat.motion(ev.Millis(), float64(b.Min.X)+ev.X*float64(b.Dx()), float64(b.Min.Y)+ev.Y*float64(b.Dy()))

	case input.PointerButton:
		seat.button(ev)

	case input.PointerAxis:
		seat.axis(ev)

	case input.Key:
		seat.key(ev)

	case input.TouchDown:
		seat.touchDown(ev)

	case input.TouchMotion:
		seat.touchMotion(ev)

	case input.TouchUp:
		seat.touchUp(ev)

	case input.TouchFrame:
		for _, client := range seat.touchClients {
			for _, obj := range objectsFor(seat.touches, client) {
				obj.Send(proto.WlTouchEvFrame)
			}
		}
		seat.touchClients = seat.touchClients[:0]
	}
}

// outputNamed returns the named output, or the first one if name is
// empty.
func (c *Compositor) outputNamed(name string) *Output {
	if len(c.outputs) == 0 {
		return nil
	}
	if name == "" {
		return c.outputs[0]
	}
	for _, o := range c.outputs {
		if o.Name() == name {
			return o
		}
	}
	return nil
}

// outputsChanged keeps the pointer on an output after the layout has
// changed.
func (seat *Seat) outputsChanged() {
	bounds := seat.comp.bounds()
	if bounds.Empty() {
		return
	}
	if image.Pt(int(seat.x), int(seat.y)).In(bounds) {
		return
	}

	center := seat.comp.outputs[0].Bounds()
	seat.warp(float64(center.Min.X+center.Dx()/2), float64(center.Min.Y+center.Dy()/2))
}

// point returns the pointer position rounded down to a pixel.
func (seat *Seat) point() image.Point {
	return image.Pt(int(math.Floor(seat.x)), int(math.Floor(seat.y)))
}

// warp moves the pointer without sending any events.
func (seat *Seat) warp(x, y float64) {
	bounds := seat.comp.bounds()
	if !bounds.Empty() {
		x = max(float64(bounds.Min.X), min(x, float64(bounds.Max.X)-1))
		y = max(float64(bounds.Min.Y), min(y, float64(bounds.Max.Y)-1))
	}

	seat.damageCursor()
	seat.x, seat.y = x, y
	seat.damageCursor()
}

func (seat *Seat) motion(time uint32, x, y float64) {
	seat.warp(x, y)

	if seat.grab != nil {
		seat.grabMotion()
		return
	}
	seat.updatePointerFocus()

	s := seat.pointerFocus
	if s == nil {
		return
	}
	lx, ly := seat.local(s)
	for _, obj := range objectsFor(seat.pointers, s.obj.Client()) {
		obj.Send(proto.WlPointerEvMotion, time, lx, ly)
		obj.Send(proto.WlPointerEvFrame)
	}
}

// local returns the pointer position relative to s.
func (seat *Seat) local(s *Surface) (float64, float64) {
	origin, _ := s.origin()
	return seat.x - float64(origin.X), seat.y - float64(origin.Y)
}

// surfaceAt returns the topmost surface whose input region contains p.
// Popups are above every toplevel.
func (c *Compositor) surfaceAt(p image.Point) *Surface {
	for i := len(c.popups) - 1; i >= 0; i-- {
		xs := c.popups[i].xdg
		origin, ok := xs.origin()
		if !ok {
			continue
		}
		if s, _, ok := xs.surface.at(origin, p); ok {
			return s
		}
	}

	for i := len(c.views) - 1; i >= 0; i-- {
		xs := c.views[i].xdg
		origin, ok := xs.origin()
		if !ok {
			continue
		}
		if s, _, ok := xs.surface.at(origin, p); ok {
			return s
		}
	}
	return nil
}

// updatePointerFocus gives pointer focus to the surface under the
// pointer. While buttons are held, focus stays where the first one was
// pressed.
func (seat *Seat) updatePointerFocus() {
	if seat.pointerFocus != nil && len(seat.buttons) > 0 {
		return
	}
	seat.setPointerFocus(seat.comp.surfaceAt(seat.point()))
}

func (seat *Seat) setPointerFocus(s *Surface) {
	old := seat.pointerFocus
	if s == old {
		return
	}
	seat.pointerFocus = s

	if old != nil {
		serial := seat.comp.server.NextSerial()
		for _, obj := range objectsFor(seat.pointers, old.obj.Client()) {
			obj.Send(proto.WlPointerEvLeave, serial, old.obj)
			obj.Send(proto.WlPointerEvFrame)
		}
	}

	// Clients set their own cursor after they get focus.
	seat.defaultCursor()

	if s == nil {
		return
	}
	serial := seat.comp.server.NextSerial()
	x, y := seat.local(s)
	for _, obj := range objectsFor(seat.pointers, s.obj.Client()) {
		obj.Send(proto.WlPointerEvEnter, serial, s.obj, x, y)
		obj.Send(proto.WlPointerEvFrame)
	}
}

func (seat *Seat) button(ev input.PointerButton) {
	c := seat.comp
	held := slices.Contains(seat.buttons, ev.Button)
	if ev.Pressed == held {
		return
	}

	if !ev.Pressed {
		seat.buttons = slices.DeleteFunc(seat.buttons, func(b pointer.Button) bool { return b == ev.Button })
		if seat.grab != nil {
			if len(seat.buttons) == 0 {
				seat.endGrab()
			}
			return
		}
		seat.sendButton(ev)
		if len(seat.buttons) == 0 {
			seat.updatePointerFocus()
		}
		return
	}

	if len(seat.buttons) == 0 {
		seat.updatePointerFocus()
		s := seat.pointerFocus

		var client *server.Client
		if s != nil {
			client = s.obj.Client()
		}
		c.dismissGrabs(client)

		var tl *Toplevel
		if s != nil {
			tl = s.toplevel()
		}
		if tl != nil {
			c.raise(tl)
			if seat.kb.Depressed()&input.ModAlt != 0 {
				switch ev.Button {
				case pointer.ButtonLeft:
					seat.buttons = append(seat.buttons, ev.Button)
					seat.beginGrab(tl, false, 0)
					return
				case pointer.ButtonRight:
					seat.buttons = append(seat.buttons, ev.Button)
					seat.beginGrab(tl, true, proto.XdgToplevelResizeEdgeBottomRight)
					return
				}
			}
		}
	}

	seat.buttons = append(seat.buttons, ev.Button)
	if seat.grab == nil {
		seat.sendButton(ev)
	}
}

func (seat *Seat) sendButton(ev input.PointerButton) {
	s := seat.pointerFocus
	if s == nil {
		return
	}

	state := uint32(proto.WlPointerButtonStateReleased)
	if ev.Pressed {
		state = proto.WlPointerButtonStatePressed
	}
	serial := seat.comp.server.NextSerial()
	for _, obj := range objectsFor(seat.pointers, s.obj.Client()) {
		obj.Send(proto.WlPointerEvButton, serial, ev.Millis(), uint32(ev.Button), state)
		obj.Send(proto.WlPointerEvFrame)
	}
}

func (seat *Seat) axis(ev input.PointerAxis) {
	s := seat.pointerFocus
	if s == nil || seat.grab != nil {
		return
	}

	v := ev.Value
	discrete := ev.Discrete
	if ev.Device != nil {
		v = ev.Device.Pointer.Scroll(v)
		if ev.Device.Pointer.Natural() {
			discrete = -discrete
		}
	}

	axis := uint32(proto.WlPointerAxisVerticalScroll)
	if ev.Axis == input.AxisHorizontal {
		axis = proto.WlPointerAxisHorizontalScroll
	}

	var source uint32
	switch ev.Source {
	case input.AxisSourceWheel:
		source = proto.WlPointerAxisSourceWheel
	case input.AxisSourceFinger:
		source = proto.WlPointerAxisSourceFinger
	case input.AxisSourceContinuous:
		source = proto.WlPointerAxisSourceContinuous
	}

	for _, obj := range objectsFor(seat.pointers, s.obj.Client()) {
		obj.Send(proto.WlPointerEvAxisSource, source)
		if discrete != 0 {
			obj.Send(proto.WlPointerEvAxisDiscrete, axis, discrete)
		}
		if v == 0 {
			obj.Send(proto.WlPointerEvAxisStop, ev.Millis(), axis)
		} else {
			obj.Send(proto.WlPointerEvAxis, ev.Millis(), axis, v)
		}
		obj.Send(proto.WlPointerEvFrame)
	}
}

// startMove starts an interactive move that a client asked for. It is
// only honored while a button is held on one of the client's surfaces.
func (seat *Seat) startMove(tl *Toplevel, serial uint32) {
	if !seat.canGrab(tl) {
		return
	}
	seat.beginGrab(tl, false, 0)
}

func (seat *Seat) startResize(tl *Toplevel, serial uint32, edges uint32) {
	if !seat.canGrab(tl) {
		return
	}
	seat.beginGrab(tl, true, edges)
}

func (seat *Seat) canGrab(tl *Toplevel) bool {
	if seat.grab != nil || len(seat.buttons) == 0 || !tl.xdg.mapped {
		return false
	}
	s := seat.pointerFocus
	return s != nil && s.obj.Client() == tl.obj.Client()
}

func (seat *Seat) beginGrab(tl *Toplevel, resize bool, edges uint32) {
	seat.grab = &grab{
		tl:     tl,
		resize: resize,
		edges:  edges,
		x:      seat.x,
		y:      seat.y,
		window: tl.window(),
	}
	seat.setPointerFocus(nil)

	if resize {
		tl.resizing = true
		tl.resizeEdge = edges
		tl.resizeFrom = tl.window()
		tl.configure()
	}
}

func (seat *Seat) grabMotion() {
	g := seat.grab
	d := image.Pt(int(seat.x-g.x), int(seat.y-g.y))
	if !g.resize {
		g.tl.moveTo(g.window.Min.Add(d))
		return
	}

	size := g.window.Size()
	if g.edges&proto.XdgToplevelResizeEdgeRight != 0 {
		size.X += d.X
	}
	if g.edges&proto.XdgToplevelResizeEdgeLeft != 0 {
		size.X -= d.X
	}
	if g.edges&proto.XdgToplevelResizeEdgeBottom != 0 {
		size.Y += d.Y
	}
	if g.edges&proto.XdgToplevelResizeEdgeTop != 0 {
		size.Y -= d.Y
	}
	if size != g.tl.size {
		g.tl.request(size)
	}
}

func (seat *Seat) endGrab() {
	g := seat.grab
	if g == nil {
		return
	}
	seat.grab = nil

	if g.resize {
		g.tl.resizing = false
		g.tl.configure()
	}
	seat.updatePointerFocus()
}

// cancelGrab ends any grab and forgets every held button, as happens
// when the session is paused.
func (seat *Seat) cancelGrab() {
	seat.buttons = nil
	seat.endGrab()
}

func (seat *Seat) toplevelDestroyed(tl *Toplevel) {
	if seat.grab != nil && seat.grab.tl == tl {
		seat.grab = nil
	}
}

func (seat *Seat) key(ev input.Key) {
	c := seat.comp
	changed := seat.kb.Update(ev.Key, ev.Pressed)

	if ev.Pressed {
		if seat.binding(ev.Key) {
			seat.swallowed = append(seat.swallowed, ev.Key)
			return
		}
	} else {
		i := slices.Index(seat.swallowed, ev.Key)
		if i >= 0 {
			seat.swallowed = slices.Delete(seat.swallowed, i, i+1)
			return
		}
	}

	s := seat.keyboardFocus
	if s == nil {
		return
	}

	state := uint32(proto.WlKeyboardKeyStateReleased)
	if ev.Pressed {
		state = proto.WlKeyboardKeyStatePressed
	}
	serial := c.server.NextSerial()
	for _, obj := range objectsFor(seat.keyboards, s.obj.Client()) {
		obj.Send(proto.WlKeyboardEvKey, serial, ev.Millis(), ev.Key, state)
	}
	if changed {
		seat.sendModifiers(objectsFor(seat.keyboards, s.obj.Client()))
	}
}

// binding runs the compositor binding for key, if there is one, and
// reports whether there was.
func (seat *Seat) binding(key uint32) bool {
	c := seat.comp
	mods := seat.kb.Depressed()

	switch {
	case mods&input.ModLogo != 0 && key == input.KeyEsc:
		seat.logger.Infoln("quit requested")
		c.Quit()
		return true

	case mods&input.ModLogo != 0 && key == input.KeyEnter:
		if c.config.Terminal == "" {
			return false
		}
		c.Spawn(c.config.Terminal)
		return true

	case mods&input.ModControl != 0 && mods&input.ModAlt != 0 && input.FKey(key) != 0:
		vt, ok := c.backend.(backend.VTSwitcher)
		if !ok {
			return false
		}
		err := vt.SwitchVT(input.FKey(key))
		if err != nil {
			seat.logger.WithError(err).Errorf("switch to VT %v", input.FKey(key))
		}
		return true
	}

	return false
}

// pressed returns the held keys that clients know about.
func (seat *Seat) pressed() []byte {
	var keys []byte
	for _, key := range seat.kb.Pressed() {
		if !slices.Contains(seat.swallowed, key) {
			keys = bin.Append(keys, key)
		}
	}
	return keys
}

func (seat *Seat) sendModifiers(objects []*server.Object) {
	if len(objects) == 0 {
		return
	}
	serial := seat.comp.server.NextSerial()
	for _, obj := range objects {
		obj.Send(proto.WlKeyboardEvModifiers, serial, uint32(seat.kb.Depressed()), uint32(0), uint32(seat.kb.Locked()), uint32(0))
	}
}

func (seat *Seat) sendKeyboardEnter(obj *server.Object, s *Surface) {
	obj.Send(proto.WlKeyboardEvEnter, seat.comp.server.NextSerial(), s.obj, seat.pressed())
	seat.sendModifiers([]*server.Object{obj})
}

// setKeyboardFocus moves keyboard focus to s, which may be nil.
func (seat *Seat) setKeyboardFocus(s *Surface) {
	old := seat.keyboardFocus
	if s == old {
		return
	}
	seat.keyboardFocus = s

	if old != nil {
		serial := seat.comp.server.NextSerial()
		for _, obj := range objectsFor(seat.keyboards, old.obj.Client()) {
			obj.Send(proto.WlKeyboardEvLeave, serial, old.obj)
		}
	}
	if s != nil {
		for _, obj := range objectsFor(seat.keyboards, s.obj.Client()) {
			seat.sendKeyboardEnter(obj, s)
		}
	}
}

func (seat *Seat) touchPos(name string, x, y float64) (image.Point, bool) {
	o := seat.comp.outputNamed(name)
	if o == nil {
		return image.Point{}, false
	}
	b := o.Bounds()
	return image.Pt(b.Min.X+int(x*float64(b.Dx())), b.Min.Y+int(y*float64(b.Dy()))), true
}

func (seat *Seat) touched(client *server.Client) {
	if !slices.Contains(seat.touchClients, client) {
		seat.touchClients = append(seat.touchClients, client)
	}
}

func (seat *Seat) touchDown(ev input.TouchDown) {
	p, ok := seat.touchPos(ev.Output, ev.X, ev.Y)
	if !ok {
		return
	}
	s := seat.comp.surfaceAt(p)
	if s == nil {
		return
	}
	origin, _ := s.origin()
	seat.touchPoints[ev.Slot] = touchPoint{surface: s, origin: origin}

	client := s.obj.Client()
	seat.touched(client)
	serial := seat.comp.server.NextSerial()
	local := p.Sub(origin)
	for _, obj := range objectsFor(seat.touches, client) {
		obj.Send(proto.WlTouchEvDown, serial, ev.Millis(), s.obj, ev.Slot, float64(local.X), float64(local.Y))
	}
}

func (seat *Seat) touchMotion(ev input.TouchMotion) {
	tp, ok := seat.touchPoints[ev.Slot]
	if !ok {
		return
	}
	p, ok := seat.touchPos(ev.Output, ev.X, ev.Y)
	if !ok {
		return
	}

	client := tp.surface.obj.Client()
	seat.touched(client)
	local := p.Sub(tp.origin)
	for _, obj := range objectsFor(seat.touches, client) {
		obj.Send(proto.WlTouchEvMotion, ev.Millis(), ev.Slot, float64(local.X), float64(local.Y))
	}
}

func (seat *Seat) touchUp(ev input.TouchUp) {
	tp, ok := seat.touchPoints[ev.Slot]
	if !ok {
		return
	}
	delete(seat.touchPoints, ev.Slot)

	client := tp.surface.obj.Client()
	seat.touched(client)
	serial := seat.comp.server.NextSerial()
	for _, obj := range objectsFor(seat.touches, client) {
		obj.Send(proto.WlTouchEvUp, serial, ev.Millis(), ev.Slot)
	}
}

// surfaceDestroyed drops every reference that the seat has to s.
func (seat *Seat) surfaceDestroyed(s *Surface) {
	if seat.keyboardFocus == s {
		seat.keyboardFocus = nil
	}
	for slot, tp := range seat.touchPoints {
		if tp.surface == s {
			delete(seat.touchPoints, slot)
		}
	}
	if cr := seat.cursor.surface; cr != nil && cr.surface == s {
		seat.cursor.surface = nil
		seat.defaultCursor()
	}
	if seat.pointerFocus == s {
		seat.pointerFocus = nil
		seat.buttons = nil
		seat.updatePointerFocus()
	}
}

// surfaceUnmapped moves focus away from s and its subsurfaces.
func (seat *Seat) surfaceUnmapped(s *Surface) {
	if s == nil {
		return
	}
	for slot, tp := range seat.touchPoints {
		if tp.surface.root() == s {
			delete(seat.touchPoints, slot)
		}
	}
	if f := seat.pointerFocus; f != nil && f.root() == s {
		seat.buttons = nil
		seat.setPointerFocus(nil)
		seat.updatePointerFocus()
	}
}

// root returns the surface at the top of the subsurface tree that s is
// part of.
func (s *Surface) root() *Surface {
	for s.sub != nil && s.sub.parent != nil {
		s = s.sub.parent
	}
	return s
}

// toplevel returns the toplevel that s is part of, following popups to
// their parents, or nil.
func (s *Surface) toplevel() *Toplevel {
	xs := s.root().xdg
	for xs != nil {
		if xs.toplevel != nil {
			return xs.toplevel
		}
		if xs.popup == nil {
			return nil
		}
		xs = xs.popup.parent
	}
	return nil
}
