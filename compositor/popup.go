package compositor

import (
	"image"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

// Popup is an xdg_popup, such as a menu. It is positioned relative to
// the window geometry of its parent.
type Popup struct {
	obj        *server.Object
	xdg        *XDGSurface
	parent     *XDGSurface
	positioner positioner

	// pos is the popup's position relative to its parent's window
	// geometry.
	pos  image.Point
	grab bool
	done bool
}

var popupImpl = server.NewImpl("xdg_popup", server.Handlers{
	"destroy": func(r *server.Request) error {
		p := r.Object.Data.(*Popup)
		for _, child := range p.xdg.comp.popups {
			if child.parent == p.xdg {
				return p.xdg.wm.obj.Errorf(proto.XdgWmBaseErrorNotTheTopmostPopup, "popup destroyed while it has child popups")
			}
		}
		return nil
	},

	"grab": func(r *server.Request) error {
		p := r.Object.Data.(*Popup)
		if p.xdg.mapped {
			return r.Errorf(proto.XdgPopupErrorInvalidGrab, "grab requested after the popup was mapped")
		}
		p.grab = true
		return nil
	},

	"reposition": func(r *server.Request) error {
		p := r.Object.Data.(*Popup)
		pos := r.Ref(0).Data.(*positioner)
		if !pos.complete() {
			return p.xdg.wm.obj.Errorf(proto.XdgWmBaseErrorInvalidPositioner, "positioner is incomplete")
		}
		p.positioner = *pos
		if !p.xdg.initial || p.done {
			return nil
		}

		p.obj.Send(proto.XdgPopupEvRepositioned, r.Uint(1))
		p.configure()
		return nil
	},
})

func (p *Popup) Surface() *Surface {
	return p.xdg.surface
}

// Parent returns the xdg_surface that the popup belongs to.
func (p *Popup) Parent() *XDGSurface {
	return p.parent
}

func (p *Popup) configure() {
	p.pos = p.positioner.position()
	size := p.positioner.size
	p.obj.Send(proto.XdgPopupEvConfigure, int32(p.pos.X), int32(p.pos.Y), int32(size.X), int32(size.Y))
	p.xdg.sendConfigure()
}

func (p *Popup) mapped() {
	c := p.xdg.comp
	if !p.parent.mapped {
		// The parent went away before the popup was ever shown.
		p.dismiss()
		return
	}

	c.popups = append(c.popups, p)
	if r, ok := p.xdg.surface.extent(); ok {
		c.damage(r)
	}
	if p.grab {
		c.focusChanged()
	}
}

func (p *Popup) unmapped() {
	c := p.xdg.comp
	i := slices.Index(c.popups, p)
	if i < 0 {
		return
	}
	c.popups = slices.Delete(c.popups, i, i+1)
}

func (p *Popup) origin() (image.Point, bool) {
	parent, ok := p.parent.windowPos()
	if !ok {
		return image.Point{}, false
	}
	return parent.Add(p.pos).Sub(p.xdg.geometry.Min), true
}

// dismiss tells the client that the popup has been closed and takes it
// out of the scene. The client is expected to destroy it.
func (p *Popup) dismiss() {
	if p.done {
		return
	}
	p.done = true
	p.obj.Send(proto.XdgPopupEvPopupDone)
	p.xdg.unmap()
}

func (p *Popup) destroy() {
	p.xdg.unmap()
	p.xdg.popup = nil
}

// dismissGrabs dismisses every grabbing popup that doesn't belong to
// client.
func (c *Compositor) dismissGrabs(client *server.Client) {
	for {
		i := slices.IndexFunc(c.popups, func(p *Popup) bool {
			return p.grab && p.obj.Client() != client
		})
		if i < 0 {
			return
		}
		c.popups[i].dismiss()
	}
}
