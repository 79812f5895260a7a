package compositor

import (
	"time"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"golang.org/x/exp/slices"
)

// debugger is an ewc_debugger_v1 subscription.
type debugger struct {
	obj      *server.Object
	interest uint32
}

var debugImpl = server.NewImpl("ewc_debug_v1", server.Handlers{
	"get_debugger": func(r *server.Request) error {
		c := compositorOf(r)
		d := debugger{
			obj:      r.NewObject(0, debuggerImpl),
			interest: r.Uint(1),
		}
		d.obj.Data = &d
		c.debuggers = append(c.debuggers, &d)
		d.obj.OnDestroy(func() {
			c.debuggers = slices.DeleteFunc(c.debuggers, func(other *debugger) bool { return other == &d })
		})
		return nil
	},
})

var debuggerImpl = server.NewImpl("ewc_debugger_v1", server.Handlers{})

// Debug sends msg to every debugger that is interested in messages.
func (c *Compositor) Debug(msg string) {
	for _, d := range c.debuggers {
		if d.interest&proto.EwcDebugV1InterestMessages != 0 {
			d.obj.Send(proto.EwcDebuggerV1EvMassage, msg)
		}
	}
}

// Debugging returns true if any debugger wants messages.
func (c *Compositor) Debugging() bool {
	return slices.ContainsFunc(c.debuggers, func(d *debugger) bool {
		return d.interest&proto.EwcDebugV1InterestMessages != 0
	})
}

func (c *Compositor) frameStat(d time.Duration) {
	for _, dbg := range c.debuggers {
		if dbg.interest&proto.EwcDebugV1InterestFrameStat != 0 {
			dbg.obj.Send(proto.EwcDebuggerV1EvFrameStat, uint32(min(d.Nanoseconds(), int64(^uint32(0)))))
		}
	}
}
