package input

import (
	"math"
	"time"

	"deedles.dev/wlc/pointer"
	"golang.org/x/exp/slices"
)

// Kind is the kind of an evdev device, which determines how its events
// are interpreted.
type Kind int

const (
	KindOther Kind = iota
	KindKeyboard
	KindMouse
	KindTouchpad
	KindTouchscreen
	KindTablet
)

func (k Kind) Caps() Caps {
	switch k {
	case KindKeyboard:
		return CapKeyboard
	case KindMouse, KindTouchpad, KindTablet:
		return CapPointer
	case KindTouchscreen:
		return CapTouch
	default:
		return 0
	}
}

func (k Kind) absolute() bool {
	return k == KindTouchpad || k == KindTouchscreen || k == KindTablet
}

const (
	// wheelStep is the scroll distance of one wheel click.
	wheelStep = 15

	// touchpadWidth is how far the pointer moves for a swipe across
	// the whole width of a touchpad.
	touchpadWidth = 1200

	tapTime   = 180 * time.Millisecond
	tapTravel = 8
)

type touchpad struct {
	down, up    bool
	touching    bool
	tools       [4]bool
	hasLast     bool
	lastX       int32
	lastY       int32
	lastFingers int
	maxFingers  int
	start       time.Duration
	travel      float64
}

func (p *touchpad) fingers() int {
	for i := len(p.tools) - 1; i > 0; i-- {
		if p.tools[i] {
			return i
		}
	}
	return 1
}

type touchSlot struct {
	x, y     int32
	down, up bool
	moved    bool
	active   bool
}

// Decoder turns raw evdev events from a single device into input
// events. Events are buffered until the end of each evdev frame.
type Decoder struct {
	dev  *Device
	kind Kind

	rangeX, rangeY AbsInfo

	pending []Event

	dx, dy        float64
	wheel, hwheel int32

	x, y  int32
	moved bool

	pad touchpad

	mt    bool
	slot  int32
	slots map[int32]*touchSlot
}

func NewDecoder(dev *Device, kind Kind) *Decoder {
	return &Decoder{
		dev:   dev,
		kind:  kind,
		slots: make(map[int32]*touchSlot),
	}
}

// SetRange sets the ranges of the absolute axes of the device.
func (d *Decoder) SetRange(x, y AbsInfo) {
	d.rangeX = x
	d.rangeY = y
}

// Decode processes one raw event, returning the input events of a
// frame when it ends.
func (d *Decoder) Decode(ev RawEvent) []Event {
	h := Header{Device: d.dev, Time: ev.time()}

	switch ev.Type {
	case evSyn:
		switch ev.Code {
		case synReport:
			return d.frame(h)
		case synDropped:
			d.reset()
		}

	case evKey:
		d.key(h, ev)

	case evRel:
		switch ev.Code {
		case relX:
			d.dx += float64(ev.Value)
		case relY:
			d.dy += float64(ev.Value)
		case relWheel:
			d.wheel += ev.Value
		case relHWheel:
			d.hwheel += ev.Value
		}

	case evAbs:
		d.abs(ev)
	}

	return nil
}

func (d *Decoder) key(h Header, ev RawEvent) {
	if ev.Value == 2 {
		return
	}
	pressed := ev.Value != 0

	switch d.kind {
	case KindTouchpad:
		switch ev.Code {
		case btnTouch:
			if pressed {
				d.pad.down = true
			} else {
				d.pad.up = true
			}
			return
		case btnToolFinger:
			d.pad.tools[1] = pressed
			return
		case btnToolDouble:
			d.pad.tools[2] = pressed
			return
		case btnToolTriple:
			d.pad.tools[3] = pressed
			return
		}

	case KindTouchscreen:
		if ev.Code == btnTouch && !d.mt {
			s := d.touch(0)
			if pressed {
				s.down = true
			} else {
				s.up = true
			}
		}
		return
	}

	switch {
	case ev.Code < btnMisc:
		d.pending = append(d.pending, &Key{Header: h, Key: uint32(ev.Code), Pressed: pressed})
	case ev.Code >= btnLeft && ev.Code < btnLeft+8:
		d.pending = append(d.pending, &PointerButton{Header: h, Button: pointer.Button(ev.Code), Pressed: pressed})
	}
}

func (d *Decoder) touch(slot int32) *touchSlot {
	s, ok := d.slots[slot]
	if !ok {
		s = &touchSlot{}
		d.slots[slot] = s
	}
	return s
}

func (d *Decoder) abs(ev RawEvent) {
	switch ev.Code {
	case absX:
		d.x = ev.Value
		d.moved = true
		if d.kind == KindTouchscreen && !d.mt {
			s := d.touch(0)
			s.x = ev.Value
			s.moved = true
		}
	case absY:
		d.y = ev.Value
		d.moved = true
		if d.kind == KindTouchscreen && !d.mt {
			s := d.touch(0)
			s.y = ev.Value
			s.moved = true
		}

	case absMTSlot:
		d.mt = true
		d.slot = ev.Value
	case absMTTrackingID:
		d.mt = true
		s := d.touch(d.slot)
		if ev.Value < 0 {
			s.up = true
		} else {
			s.down = true
		}
	case absMTPositionX:
		d.mt = true
		s := d.touch(d.slot)
		s.x = ev.Value
		s.moved = true
	case absMTPositionY:
		d.mt = true
		s := d.touch(d.slot)
		s.y = ev.Value
		s.moved = true
	}
}

func normalize(v int32, info AbsInfo) float64 {
	if info.Max <= info.Min {
		return 0
	}
	return max(0, min(float64(v-info.Min)/float64(info.Max-info.Min), 1))
}

func (d *Decoder) frame(h Header) []Event {
	var out []Event
	config := d.dev.Pointer

	switch d.kind {
	case KindMouse:
		if d.dx != 0 || d.dy != 0 {
			dx, dy := config.Accelerate(d.dx, d.dy)
			out = append(out, &PointerMotion{Header: h, DX: dx, DY: dy})
		}
		if d.wheel != 0 {
			out = append(out, &PointerAxis{
				Header:   h,
				Axis:     AxisVertical,
				Source:   AxisSourceWheel,
				Value:    config.Scroll(float64(-d.wheel * wheelStep)),
				Discrete: int32(config.Scroll(float64(-d.wheel))),
			})
		}
		if d.hwheel != 0 {
			out = append(out, &PointerAxis{
				Header:   h,
				Axis:     AxisHorizontal,
				Source:   AxisSourceWheel,
				Value:    config.Scroll(float64(d.hwheel * wheelStep)),
				Discrete: int32(config.Scroll(float64(d.hwheel))),
			})
		}

	case KindTablet:
		if d.moved {
			out = append(out, &PointerMotionAbsolute{
				Header: h,
				X:      normalize(d.x, d.rangeX),
				Y:      normalize(d.y, d.rangeY),
			})
		}

	case KindTouchpad:
		out = d.touchpadFrame(h, out)

	case KindTouchscreen:
		out = d.touchFrame(h, out)
	}

	out = append(out, d.pending...)
	d.reset()
	return out
}

func (d *Decoder) touchpadFrame(h Header, out []Event) []Event {
	p := &d.pad
	config := d.dev.Pointer

	scale := 1.0
	if w := d.rangeX.Max - d.rangeX.Min; w > 0 {
		scale = touchpadWidth / float64(w)
	}

	fingers := p.fingers()
	if p.down && !p.touching {
		p.touching = true
		p.hasLast = false
		p.start = h.Time
		p.travel = 0
		p.maxFingers = fingers
	}

	if p.touching {
		p.maxFingers = max(p.maxFingers, fingers)
		if d.moved {
			if p.hasLast && fingers == p.lastFingers {
				dx := float64(d.x-p.lastX) * scale
				dy := float64(d.y-p.lastY) * scale
				p.travel += math.Hypot(dx, dy)

				if fingers >= 2 {
					if dy != 0 {
						out = append(out, &PointerAxis{Header: h, Axis: AxisVertical, Source: AxisSourceFinger, Value: config.Scroll(dy)})
					}
					if dx != 0 {
						out = append(out, &PointerAxis{Header: h, Axis: AxisHorizontal, Source: AxisSourceFinger, Value: config.Scroll(dx)})
					}
				} else if dx != 0 || dy != 0 {
					dx, dy = config.Accelerate(dx, dy)
					out = append(out, &PointerMotion{Header: h, DX: dx, DY: dy})
				}
			}
			p.lastX, p.lastY = d.x, d.y
			p.hasLast = true
			p.lastFingers = fingers
		}
	}

	if p.up && p.touching {
		p.touching = false
		if config.Tap() && h.Time-p.start < tapTime && p.travel < tapTravel {
			button := pointer.ButtonLeft
			switch p.maxFingers {
			case 2:
				button = pointer.ButtonRight
			case 3:
				button = pointer.ButtonMiddle
			}
			out = append(out,
				&PointerButton{Header: h, Button: button, Pressed: true},
				&PointerButton{Header: h, Button: button, Pressed: false},
			)
		}
	}

	return out
}

func (d *Decoder) touchFrame(h Header, out []Event) []Event {
	ids := make([]int32, 0, len(d.slots))
	for id := range d.slots {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	n := len(out)
	for _, id := range ids {
		s := d.slots[id]
		x, y := normalize(s.x, d.rangeX), normalize(s.y, d.rangeY)
		switch {
		case s.down && !s.active:
			s.active = true
			out = append(out, &TouchDown{Header: h, Slot: id, X: x, Y: y})
		case s.moved && s.active:
			out = append(out, &TouchMotion{Header: h, Slot: id, X: x, Y: y})
		}
		if s.up && s.active {
			s.active = false
			out = append(out, &TouchUp{Header: h, Slot: id})
		}
		s.down, s.up, s.moved = false, false, false
	}

	if len(out) > n {
		out = append(out, &TouchFrame{Header: h})
	}
	return out
}

func (d *Decoder) reset() {
	d.pending = nil
	d.dx, d.dy = 0, 0
	d.wheel, d.hwheel = 0, 0
	d.moved = false
	d.pad.down, d.pad.up = false, false
}
