package client

import (
	"deedles.dev/wlc/proto"
)

// Output is a wl_output with callbacks for its events.
type Output struct {
	Geometry    func(x, y, physicalWidth, physicalHeight, subpixel int32, make, model string, transform int32)
	Mode        func(flags uint32, width, height, refresh int32)
	Done        func()
	Scale       func(factor int32)
	Name        func(name string)
	Description func(desc string)

	obj *Object
}

// BindOutput binds the output global g.
func BindOutput(reg *Registry, g Global) (*Output, error) {
	obj, err := reg.Bind(g, 4)
	if err != nil {
		return nil, err
	}

	out := Output{obj: obj}
	obj.Data = &out
	obj.On("geometry", func(ev *Event) {
		if out.Geometry != nil {
			out.Geometry(ev.Int(0), ev.Int(1), ev.Int(2), ev.Int(3), ev.Int(4), ev.String(5), ev.String(6), ev.Int(7))
		}
	})
	obj.On("mode", func(ev *Event) {
		if out.Mode != nil {
			out.Mode(ev.Uint(0), ev.Int(1), ev.Int(2), ev.Int(3))
		}
	})
	obj.On("done", func(ev *Event) {
		if out.Done != nil {
			out.Done()
		}
	})
	obj.On("scale", func(ev *Event) {
		if out.Scale != nil {
			out.Scale(ev.Int(0))
		}
	})
	obj.On("name", func(ev *Event) {
		if out.Name != nil {
			out.Name(ev.String(0))
		}
	})
	obj.On("description", func(ev *Event) {
		if out.Description != nil {
			out.Description(ev.String(0))
		}
	})

	return &out, nil
}

func (out *Output) Object() *Object {
	return out.obj
}

func (out *Output) Release() error {
	if out.obj.version < 3 {
		return out.obj.Destroy()
	}
	return out.obj.Send(proto.WlOutputReqRelease)
}
