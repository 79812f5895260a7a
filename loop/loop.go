// Package loop runs the compositor. A single goroutine, the one that
// calls Run, owns the server, the compositor and everything that they
// hold. Every other goroutine only delivers work to it over channels.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"deedles.dev/wlc/backend"
	"deedles.dev/wlc/compositor"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/server"
	"github.com/sirupsen/logrus"
)

// ErrBackendClosed is returned by Run when the backend stops without
// reporting why.
var ErrBackendClosed = errors.New("backend closed")

// maxDrain is the most queued items of one kind that are handled in a
// single pass before repainting.
const maxDrain = 64

type Loop struct {
	server  *server.Server
	comp    *compositor.Compositor
	backend backend.Backend
	logger  *logrus.Entry

	messages <-chan string
	pending  []string

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a loop. If hook is not nil, log entries that it collects
// are forwarded to debuggers.
func New(srv *server.Server, comp *compositor.Compositor, b backend.Backend, hook *log.Hook) *Loop {
	l := Loop{
		server:  srv,
		comp:    comp,
		backend: b,
		logger:  log.For("loop"),
		quit:    make(chan struct{}),
	}
	if hook != nil {
		l.messages = hook.Messages()
	}
	return &l
}

// Quit makes Run return. It may be called from any goroutine.
func (l *Loop) Quit() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Run handles work until ctx is canceled, Quit is called, or the
// backend stops. It returns nil after Quit.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.quit:
			return nil

		case batch := <-l.server.Work():
			l.server.Process(batch)

		case ev, ok := <-l.backend.Events():
			err := l.handle(ev, ok)
			if err != nil {
				return err
			}

		case msg := <-l.messages:
			l.pending = append(l.pending, msg)
		}

		err := l.drain()
		if err != nil {
			return err
		}
		l.flush()
	}
}

// drain handles whatever else is already queued, client requests
// first, so that one wake up leads to only one repaint.
func (l *Loop) drain() error {
	for i := 0; i < maxDrain; i++ {
		select {
		case batch := <-l.server.Work():
			l.server.Process(batch)
			continue
		default:
		}
		break
	}

	for i := 0; i < maxDrain; i++ {
		select {
		case ev, ok := <-l.backend.Events():
			err := l.handle(ev, ok)
			if err != nil {
				return err
			}
			continue
		default:
		}
		break
	}

	for i := 0; i < maxDrain; i++ {
		select {
		case msg := <-l.messages:
			l.pending = append(l.pending, msg)
			continue
		default:
		}
		break
	}

	return nil
}

func (l *Loop) handle(ev backend.Event, ok bool) error {
	if !ok {
		return ErrBackendClosed
	}

	l.comp.HandleEvent(ev)
	if closed, ok := ev.(backend.Closed); ok {
		if closed.Err != nil {
			return fmt.Errorf("backend %v: %w", l.backend.Name(), closed.Err)
		}
		return ErrBackendClosed
	}
	return nil
}

// flush repaints and then sends everything that was queued for
// clients during the pass.
func (l *Loop) flush() {
	l.comp.Repaint()

	if len(l.pending) > 0 {
		if l.comp.Debugging() {
			for _, msg := range l.pending {
				l.comp.Debug(msg)
			}
		}
		l.pending = l.pending[:0]
	}

	l.server.Flush()
}
