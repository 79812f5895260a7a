// wldbg prints the debug stream of a running wlc: its log and how long
// each frame took to composite.
//
//	wldbg [-frames] [-messages] [-every interval]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deedles.dev/wlc/client"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/proto"
)

// frameStats accumulates frame times between reports.
type frameStats struct {
	count      int
	total, max time.Duration
}

func (s *frameStats) add(d time.Duration) {
	s.count++
	s.total += d
	s.max = max(s.max, d)
}

func (s *frameStats) String() string {
	if s.count == 0 {
		return "no frames"
	}
	return fmt.Sprintf("%v frames, avg %v, max %v", s.count, s.total/time.Duration(s.count), s.max)
}

type options struct {
	frames   bool
	messages bool
	every    time.Duration
}

func (opts options) interest() uint32 {
	var interest uint32
	if opts.frames {
		interest |= proto.EwcDebugV1InterestFrameStat
	}
	if opts.messages {
		interest |= proto.EwcDebugV1InterestMessages
	}
	return interest
}

func run(ctx context.Context, opts options) error {
	d, err := client.Dial()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer d.Close()

	reg, err := d.Registry()
	if err != nil {
		return err
	}
	err = d.Roundtrip()
	if err != nil {
		return err
	}

	mgr, err := reg.BindFirst("ewc_debug_v1", 1)
	if err != nil {
		return fmt.Errorf("compositor has no debug interface: %w", err)
	}

	var stats frameStats
	dbg := d.NewObject("ewc_debugger_v1", 1)
	dbg.On("frame_stat", func(ev *client.Event) {
		t := time.Duration(ev.Uint(0))
		if opts.every <= 0 {
			fmt.Printf("frame: %v\n", t)
			return
		}
		stats.add(t)
	})
	dbg.On("massage", func(ev *client.Event) {
		fmt.Println(ev.String(0))
	})
	err = mgr.Request("get_debugger", dbg, opts.interest())
	if err != nil {
		return err
	}

	var report <-chan time.Time
	if opts.frames && opts.every > 0 {
		tick := time.NewTicker(opts.every)
		defer tick.Stop()
		report = tick.C
	}

	for {
		select {
		case <-ctx.Done():
			dbg.Destroy()
			mgr.Request("destroy")
			return d.Roundtrip()

		case batch := <-d.Work():
			err := d.Process(batch)
			if err != nil {
				return err
			}

		case <-report:
			fmt.Printf("frames: %v\n", &stats)
			stats = frameStats{}
		}
	}
}

func main() {
	var opts options
	flag.BoolVar(&opts.frames, "frames", true, "print frame times")
	flag.BoolVar(&opts.messages, "messages", true, "print log messages")
	flag.DurationVar(&opts.every, "every", 0, "summarize frame times over this interval instead of printing each one")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.For("wldbg").WithError(err).Errorln("stopped")
		cancel()
		os.Exit(1)
	}
}
