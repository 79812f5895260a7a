// Package compositor implements the surface and buffer graph and every
// global that the compositor advertises to clients. It turns client
// state into render scenes and hands the results to a backend.
//
// Like the server, a Compositor is owned by the event loop goroutine.
// None of its methods are safe to call from anywhere else.
package compositor

import (
	"errors"
	"image"
	"time"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/config"
	"deedles.dev/wlc/cursor"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Versions of the globals that the compositor advertises.
const (
	CompositorVersion    = 6
	SubcompositorVersion = 1
	ShmVersion           = 1
	DmabufVersion        = 3
	SinglePixelVersion   = 1
	OutputVersion        = 4
	SeatVersion          = 7
	WMBaseVersion        = 5
	CursorShapeVersion   = 1
	DebugVersion         = 1
)

type Compositor struct {
	server   *server.Server
	renderer render.Renderer
	backend  backend.Backend
	config   *config.Config
	theme    *cursor.Theme
	logger   *logrus.Entry
	start    time.Time

	background shmimage.ARGB8888Color

	outputs   []*Output
	views     []*Toplevel
	popups    []*Popup
	waiting   []*Surface
	seat      *Seat
	debuggers []*debugger
	paused    bool

	// Quit is called when the user asks the compositor to exit.
	Quit func()

	// Spawn is called to start a program, such as the terminal.
	Spawn func(cmd string)
}

// New creates a compositor and registers its globals with srv. Outputs
// are added as the backend reports them through HandleEvent.
func New(srv *server.Server, r render.Renderer, b backend.Backend, cfg *config.Config) *Compositor {
	if cfg == nil {
		cfg = config.Default()
	}

	c := Compositor{
		server:     srv,
		renderer:   r,
		backend:    b,
		config:     cfg,
		theme:      cursor.LoadTheme(cfg.CursorTheme, cfg.CursorSize),
		logger:     log.For("compositor"),
		start:      time.Now(),
		background: cfg.Background(),
		Quit:       func() {},
		Spawn:      func(string) {},
	}

	srv.OnClient(func(client *server.Client) { client.Data = &c })
	for _, client := range srv.Clients() {
		client.Data = &c
	}

	srv.AddGlobal("wl_compositor", CompositorVersion, compositorImpl, nil)
	srv.AddGlobal("wl_subcompositor", SubcompositorVersion, subcompositorImpl, nil)
	srv.AddGlobal("wl_shm", ShmVersion, shmImpl, bindShm)
	srv.AddGlobal("zwp_linux_dmabuf_v1", DmabufVersion, dmabufImpl, bindDmabuf)
	srv.AddGlobal("wp_single_pixel_buffer_manager_v1", SinglePixelVersion, singlePixelImpl, nil)
	srv.AddGlobal("xdg_wm_base", WMBaseVersion, wmBaseImpl, bindWMBase)
	srv.AddGlobal("wp_cursor_shape_manager_v1", CursorShapeVersion, cursorShapeImpl, nil)
	srv.AddGlobal("ewc_debug_v1", DebugVersion, debugImpl, nil)
	c.seat = newSeat(&c)

	return &c
}

// compositorOf returns the compositor that a request was sent to.
func compositorOf(r *server.Request) *Compositor {
	return r.Client().Data.(*Compositor)
}

// Outputs returns the outputs in the order that they were added.
func (c *Compositor) Outputs() []*Output {
	return slices.Clone(c.outputs)
}

// Toplevels returns the mapped toplevels from the bottom of the stack
// to the top.
func (c *Compositor) Toplevels() []*Toplevel {
	return slices.Clone(c.views)
}

func (c *Compositor) Seat() *Seat {
	return c.seat
}

// Paused returns true while the session is inactive.
func (c *Compositor) Paused() bool {
	return c.paused
}

func (c *Compositor) now() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// HandleEvent applies something that happened to the backend.
func (c *Compositor) HandleEvent(ev backend.Event) {
	switch ev := ev.(type) {
	case backend.OutputAdded:
		c.addOutput(ev.Output)

	case backend.OutputRemoved:
		c.removeOutput(ev.Output)

	case backend.ModeChanged:
		o := c.output(ev.Output)
		if o == nil {
			return
		}
		o.setMode(ev.Mode)

	case backend.FrameDone:
		o := c.output(ev.Output)
		if o == nil {
			return
		}
		if ev.Err != nil {
			c.logger.WithError(ev.Err).WithField("output", o.Name()).Warnln("frame failed")
		}
		o.frameDone()

	case backend.Input:
		if c.paused {
			return
		}
		c.seat.handle(ev.Event)

	case backend.SessionPaused:
		c.logger.Infoln("session paused")
		c.paused = true
		c.seat.cancelGrab()
		for _, o := range c.outputs {
			o.drop()
		}

	case backend.SessionResumed:
		c.logger.Infoln("session resumed")
		c.paused = false
		for _, o := range c.outputs {
			o.damageAll()
		}

	case backend.Closed:
		if ev.Err != nil {
			c.logger.WithError(ev.Err).Errorln("backend closed")
		}
	}
}

// Repaint composites and presents a frame on every output that needs
// one and isn't already waiting for one, in the order that the outputs
// were added.
func (c *Compositor) Repaint() {
	if c.paused {
		return
	}

	for _, o := range slices.Clone(c.outputs) {
		if !o.needsFrame() {
			continue
		}
		err := o.repaint()
		switch {
		case err == nil:
		case errors.Is(err, backend.ErrBusy), errors.Is(err, backend.ErrPaused):
			c.logger.WithError(err).WithField("output", o.Name()).Debugln("present deferred")
		default:
			c.logger.WithError(err).WithField("output", o.Name()).Errorln("repaint failed")
		}
	}
}

// Close disconnects the compositor from the renderer's caches. It
// doesn't close the server, renderer, or backend.
func (c *Compositor) Close() error {
	for _, o := range c.outputs {
		o.drop()
	}
	c.outputs = nil
	return nil
}

// bounds returns the smallest rectangle containing every output.
func (c *Compositor) bounds() image.Rectangle {
	var r image.Rectangle
	for _, o := range c.outputs {
		r = r.Union(o.Bounds())
	}
	return r
}

// damage marks r, in global coordinates, as needing a redraw on every
// output it touches.
func (c *Compositor) damage(r image.Rectangle) {
	if r.Empty() {
		return
	}
	for _, o := range c.outputs {
		o.damage(r)
	}
}

// schedule makes every output that shows r draw a new frame even if
// nothing on it changed.
func (c *Compositor) schedule(r image.Rectangle) {
	for _, o := range c.outputs {
		if r.Overlaps(o.Bounds()) {
			o.scheduled = true
		}
	}
}

func (c *Compositor) scheduleAll() {
	for _, o := range c.outputs {
		o.scheduled = true
	}
}

// wait adds s to the surfaces with frame callbacks waiting for a frame.
func (c *Compositor) wait(s *Surface) {
	if !slices.Contains(c.waiting, s) {
		c.waiting = append(c.waiting, s)
	}
}

func (c *Compositor) unwait(s *Surface) {
	c.waiting = slices.DeleteFunc(c.waiting, func(w *Surface) bool { return w == s })
}

// top returns the toplevel at the top of the stack, which is the one
// with keyboard focus unless a popup has grabbed it.
func (c *Compositor) top() *Toplevel {
	if len(c.views) == 0 {
		return nil
	}
	return c.views[len(c.views)-1]
}

// raise moves tl to the top of the stack.
func (c *Compositor) raise(tl *Toplevel) {
	i := slices.Index(c.views, tl)
	if i < 0 || i == len(c.views)-1 {
		return
	}

	prev := c.top()
	c.views = slices.Delete(c.views, i, i+1)
	c.views = append(c.views, tl)

	c.damage(tl.bounds())
	if prev != nil {
		c.damage(prev.bounds())
	}
	c.focusChanged()
}

// focusChanged updates keyboard focus and window activation after the
// stack or the popups have changed.
func (c *Compositor) focusChanged() {
	top := c.top()
	for _, tl := range c.views {
		tl.setActivated(tl == top)
	}

	if p := c.grabbingPopup(); p != nil {
		c.seat.setKeyboardFocus(p.xdg.surface)
		return
	}
	if top != nil {
		c.seat.setKeyboardFocus(top.xdg.surface)
		return
	}
	c.seat.setKeyboardFocus(nil)
}

func (c *Compositor) grabbingPopup() *Popup {
	for i := len(c.popups) - 1; i >= 0; i-- {
		if c.popups[i].grab {
			return c.popups[i]
		}
	}
	return nil
}
