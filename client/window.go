package client

import (
	"fmt"
	"image"

	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/proto"
)

// Window is a surface with the xdg_toplevel role.
type Window struct {
	// Configure is called when the compositor asks the window to take
	// on a new size and state. A zero dimension means that the window
	// may pick that dimension itself. The configure has already been
	// acknowledged, so the next commit applies it.
	Configure func(size image.Point, states []uint32)

	// Close is called when the user asks the window to close.
	Close func()

	surface  *Object
	xdg      *Object
	toplevel *Object

	size   image.Point
	states []uint32
}

// NewWindow creates a toplevel. wm is an xdg_wm_base, which is set up
// to answer pings. The window has no content until Present is called
// after the first Configure.
func NewWindow(compositor, wm *Object, title string) (*Window, error) {
	d := compositor.display
	wm.On("ping", func(ev *Event) { wm.Request("pong", ev.Uint(0)) })

	w := Window{
		surface:  d.NewObject("wl_surface", compositor.version),
		xdg:      d.NewObject("xdg_surface", wm.version),
		toplevel: d.NewObject("xdg_toplevel", wm.version),
	}
	w.surface.Data = &w

	err := compositor.Request("create_surface", w.surface)
	if err != nil {
		return nil, err
	}
	err = wm.Request("get_xdg_surface", w.xdg, w.surface)
	if err != nil {
		return nil, err
	}
	err = w.xdg.Request("get_toplevel", w.toplevel)
	if err != nil {
		return nil, err
	}

	w.toplevel.On("configure", func(ev *Event) {
		w.size = image.Pt(int(ev.Int(0)), int(ev.Int(1)))
		w.states = w.states[:0]
		data := ev.Array(2)
		for i := 0; i+4 <= len(data); i += 4 {
			w.states = append(w.states, bin.Get[uint32](data[i:]))
		}
	})
	w.toplevel.On("close", func(*Event) {
		if w.Close != nil {
			w.Close()
		}
	})
	w.xdg.On("configure", func(ev *Event) {
		err := w.xdg.Request("ack_configure", ev.Uint(0))
		if err != nil {
			return
		}
		if w.Configure != nil {
			w.Configure(w.size, w.states)
		}
	})

	err = w.toplevel.Request("set_title", title)
	if err != nil {
		return nil, err
	}
	err = w.surface.Request("commit")
	if err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}
	return &w, nil
}

// Surface returns the window's wl_surface.
func (w *Window) Surface() *Object {
	return w.surface
}

// Toplevel returns the window's xdg_toplevel, for requests that Window
// doesn't wrap, such as move.
func (w *Window) Toplevel() *Object {
	return w.toplevel
}

func (w *Window) SetAppID(id string) error {
	return w.toplevel.Request("set_app_id", id)
}

// Frame requests a callback for when it's a good time to draw the next
// frame. It takes effect with the next Present.
func (w *Window) Frame(f func(time uint32)) error {
	cb := w.surface.display.NewObject("wl_callback", 1)
	cb.On("done", func(ev *Event) { f(ev.Uint(0)) })
	return w.surface.Send(proto.WlSurfaceReqFrame, cb)
}

// Present attaches buf, damages the part of it that changed and
// commits.
func (w *Window) Present(buf *Object, damage image.Rectangle) error {
	err := w.surface.Send(proto.WlSurfaceReqAttach, buf, int32(0), int32(0))
	if err != nil {
		return err
	}
	if !damage.Empty() {
		err = w.surface.Send(proto.WlSurfaceReqDamageBuffer, int32(damage.Min.X), int32(damage.Min.Y), int32(damage.Dx()), int32(damage.Dy()))
		if err != nil {
			return err
		}
	}
	return w.surface.Send(proto.WlSurfaceReqCommit)
}

// Destroy destroys the window's objects, role first.
func (w *Window) Destroy() {
	w.toplevel.Destroy()
	w.xdg.Destroy()
	w.surface.Destroy()
}
