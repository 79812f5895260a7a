// wlc is a Wayland compositor.
//
//	wlc [flags] [-- command [args...]]
//
// The command, if given, is started once clients can connect.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"deedles.dev/wlc/backend"
	_ "deedles.dev/wlc/backend/drm"
	_ "deedles.dev/wlc/backend/headless"
	_ "deedles.dev/wlc/backend/nested"
	"deedles.dev/wlc/compositor"
	"deedles.dev/wlc/config"
	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/loop"
	"deedles.dev/wlc/render"
	_ "deedles.dev/wlc/render/accel"
	_ "deedles.dev/wlc/render/software"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/wire"
	"github.com/sirupsen/logrus"
)

type options struct {
	backend  string
	renderer string
	config   string
	socket   string
	outputs  int
}

// defaultBackend runs nested inside another Wayland session and on the
// hardware otherwise.
func defaultBackend() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "nested"
	}
	return "drm"
}

func spawn(logger *logrus.Entry, name string, args ...string) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	logger = logger.WithField("cmd", strings.Join(cmd.Args, " "))
	err := cmd.Start()
	if err != nil {
		logger.WithError(err).Errorln("start command")
		return
	}
	logger.WithField("pid", cmd.Process.Pid).Infoln("started command")

	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.WithError(err).Warnln("command exited")
			return
		}
		logger.Debugln("command exited")
	}()
}

func run(ctx context.Context, opts options, args []string) error {
	logger := log.For("main")

	cfg, err := config.Load(opts.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rname := opts.renderer
	if rname == "" {
		rname = cfg.Renderer
	}
	r, err := render.New(rname)
	if err != nil {
		return err
	}
	defer r.Close()

	// The nested backend connects to the host here, so this has to
	// happen before WAYLAND_DISPLAY is pointed at our own socket.
	b, err := backend.New(opts.backend, backend.Options{
		Outputs: opts.outputs,
		Pointer: cfg.PointerConfig,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	lis, err := wire.Listen(opts.socket)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := server.New()
	srv.Serve(lis)
	defer srv.Close()
	os.Setenv("WAYLAND_DISPLAY", srv.Socket())
	os.Unsetenv("WAYLAND_SOCKET")

	hook := log.NewHook(256)
	comp := compositor.New(srv, r, b, cfg)
	defer comp.Close()

	l := loop.New(srv, comp, b, hook)
	comp.Quit = l.Quit
	comp.Spawn = func(cmd string) { spawn(logger, "/bin/sh", "-c", cmd) }

	err = b.Start(ctx)
	if err != nil {
		return fmt.Errorf("start %v backend: %w", b.Name(), err)
	}

	logger.WithFields(logrus.Fields{
		"socket":   srv.Socket(),
		"backend":  b.Name(),
		"renderer": r.Name(),
	}).Infoln("compositor started")

	if len(args) > 0 {
		spawn(logger, args[0], args[1:]...)
	}

	return l.Run(ctx)
}

func main() {
	var opts options
	flag.StringVar(&opts.backend, "backend", defaultBackend(), fmt.Sprintf("backend to use, one of %v", strings.Join(backend.Available(), ", ")))
	flag.StringVar(&opts.renderer, "renderer", "", fmt.Sprintf("renderer to use, one of %v (default from the config file)", strings.Join(render.Available(), ", ")))
	flag.StringVar(&opts.config, "config", "", "configuration file (default "+config.File+" in the XDG config directories)")
	flag.StringVar(&opts.socket, "socket", "", "socket name in XDG_RUNTIME_DIR (default first free wayland-N)")
	flag.IntVar(&opts.outputs, "outputs", 1, "number of outputs for the nested and headless backends")
	level := flag.String("log-level", "", "log level: trace, debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %v [flags] [-- command [args...]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetLevel(*level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, opts, flag.Args())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.For("main").WithError(err).Errorln("compositor stopped")
		cancel()
		os.Exit(1)
	}
}
