package client

import (
	"deedles.dev/wlc/wire"
)

// Pointer is a wl_pointer with callbacks for its events.
type Pointer struct {
	Enter        func(serial uint32, surface *Object, x, y wire.Fixed)
	Leave        func(serial uint32, surface *Object)
	Motion       func(time uint32, x, y wire.Fixed)
	Button       func(serial, time, button uint32, pressed bool)
	Axis         func(time, axis uint32, value wire.Fixed)
	Frame        func()
	AxisSource   func(source uint32)
	AxisStop     func(time, axis uint32)
	AxisDiscrete func(axis uint32, discrete int32)

	obj *Object
}

// GetPointer gets the pointer of seat.
func GetPointer(seat *Object) (*Pointer, error) {
	obj := seat.display.NewObject("wl_pointer", seat.version)
	err := seat.Request("get_pointer", obj)
	if err != nil {
		return nil, err
	}

	p := Pointer{obj: obj}
	obj.Data = &p
	obj.On("enter", func(ev *Event) {
		if p.Enter != nil {
			p.Enter(ev.Uint(0), ev.Ref(1), ev.Fixed(2), ev.Fixed(3))
		}
	})
	obj.On("leave", func(ev *Event) {
		if p.Leave != nil {
			p.Leave(ev.Uint(0), ev.Ref(1))
		}
	})
	obj.On("motion", func(ev *Event) {
		if p.Motion != nil {
			p.Motion(ev.Uint(0), ev.Fixed(1), ev.Fixed(2))
		}
	})
	obj.On("button", func(ev *Event) {
		if p.Button != nil {
			p.Button(ev.Uint(0), ev.Uint(1), ev.Uint(2), ev.Uint(3) != 0)
		}
	})
	obj.On("axis", func(ev *Event) {
		if p.Axis != nil {
			p.Axis(ev.Uint(0), ev.Uint(1), ev.Fixed(2))
		}
	})
	obj.On("frame", func(ev *Event) {
		if p.Frame != nil {
			p.Frame()
		}
	})
	obj.On("axis_source", func(ev *Event) {
		if p.AxisSource != nil {
			p.AxisSource(ev.Uint(0))
		}
	})
	obj.On("axis_stop", func(ev *Event) {
		if p.AxisStop != nil {
			p.AxisStop(ev.Uint(0), ev.Uint(1))
		}
	})
	obj.On("axis_discrete", func(ev *Event) {
		if p.AxisDiscrete != nil {
			p.AxisDiscrete(ev.Uint(0), ev.Int(1))
		}
	})

	return &p, nil
}

func (p *Pointer) Object() *Object {
	return p.obj
}

// SetCursor sets the cursor image. A nil surface hides the cursor.
func (p *Pointer) SetCursor(serial uint32, surface *Object, hotX, hotY int32) error {
	return p.obj.Request("set_cursor", serial, surface, hotX, hotY)
}

func (p *Pointer) Release() error {
	return p.obj.Destroy()
}
