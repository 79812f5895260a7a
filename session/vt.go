package session

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"deedles.dev/wlc/internal/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// From linux/kd.h, linux/vt.h and drm.h.
const (
	kdSetMode  = 0x4B3A
	kdText     = 0x00
	kdGraphics = 0x01
	kdGKBMode  = 0x4B44
	kdSKBMode  = 0x4B45
	kOff       = 0x04

	vtSetMode  = 0x5602
	vtRelDisp  = 0x5605
	vtActivate = 0x5606
	vtAuto     = 0x00
	vtProcess  = 0x01
	vtAckAcq   = 0x02

	ttyMajor = 4
	maxVT    = 63

	drmSetMaster  = 0x641e
	drmDropMaster = 0x641f
	drmMajor      = 226

	evdevRevoke = 0x40044591
	inputMajor  = 13
)

type vtMode struct {
	mode   int8
	waitv  int8
	relsig int16
	acqsig int16
	frsig  int16
}

type device struct {
	file  *os.File
	major uint32
}

// VT is a session that controls the virtual terminal that the
// compositor was started on directly, without a seat daemon. It needs
// enough privileges to become DRM master.
type VT struct {
	tty    *os.File
	vt     int
	kbmode int

	active atomic.Bool
	events chan Event
	sigs   chan os.Signal
	done   chan struct{}
	close  sync.Once

	m       sync.Mutex
	devices []device

	logger *logrus.Entry
}

// OpenVT takes control of the virtual terminal that stdin refers to.
func OpenVT() (*VT, error) {
	tty, vt, err := openTTY()
	if err != nil {
		return nil, err
	}
	fd := int(tty.Fd())

	kbmode, err := unix.IoctlGetInt(fd, kdGKBMode)
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("get keyboard mode: %w", err)
	}

	s := VT{
		tty:    tty,
		vt:     vt,
		kbmode: kbmode,
		events: make(chan Event, 4),
		sigs:   make(chan os.Signal, 4),
		done:   make(chan struct{}),
		logger: log.For("session").WithField("vt", vt),
	}

	err = s.setup()
	if err != nil {
		s.restore()
		tty.Close()
		return nil, err
	}
	s.active.Store(true)

	signal.Notify(s.sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	go s.run()

	s.logger.Infoln("session started")
	return &s, nil
}

func openTTY() (*os.File, int, error) {
	path := "/proc/self/fd/0"
	if n := os.Getenv("XDG_VTNR"); n != "" && !strings.ContainsAny(n, "/.") {
		path = "/dev/tty" + n
	}

	tty, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("open tty: %w", err)
	}

	var st unix.Stat_t
	err = unix.Fstat(int(tty.Fd()), &st)
	if err != nil {
		tty.Close()
		return nil, 0, fmt.Errorf("stat tty: %w", err)
	}
	vt := int(unix.Minor(st.Rdev))
	if st.Mode&unix.S_IFMT != unix.S_IFCHR || unix.Major(st.Rdev) != ttyMajor || vt < 1 || vt > maxVT {
		tty.Close()
		return nil, 0, ErrNotVT
	}

	return tty, vt, nil
}

func (s *VT) setup() error {
	fd := int(s.tty.Fd())

	err := unix.IoctlSetInt(fd, kdSKBMode, kOff)
	if err != nil {
		return fmt.Errorf("disable tty keyboard: %w", err)
	}
	err = unix.IoctlSetInt(fd, kdSetMode, kdGraphics)
	if err != nil {
		return fmt.Errorf("set graphics mode: %w", err)
	}

	mode := vtMode{
		mode:   vtProcess,
		relsig: int16(syscall.SIGUSR1),
		acqsig: int16(syscall.SIGUSR2),
	}
	err = ioctl(fd, vtSetMode, unsafe.Pointer(&mode))
	if err != nil {
		return fmt.Errorf("set vt mode: %w", err)
	}
	return nil
}

func (s *VT) restore() {
	fd := int(s.tty.Fd())

	mode := vtMode{mode: vtAuto}
	ioctl(fd, vtSetMode, unsafe.Pointer(&mode))
	unix.IoctlSetInt(fd, kdSetMode, kdText)
	unix.IoctlSetInt(fd, kdSKBMode, s.kbmode)
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// setInt is unix.IoctlSetInt for files that must stay non-blocking,
// which calling Fd would undo.
func setInt(file *os.File, req uint, v int) error {
	raw, err := file.SyscallConn()
	if err != nil {
		return err
	}
	var ierr error
	err = raw.Control(func(fd uintptr) {
		ierr = unix.IoctlSetInt(int(fd), req, v)
	})
	if err != nil {
		return err
	}
	return ierr
}

func (s *VT) run() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.sigs:
			switch sig {
			case syscall.SIGUSR1:
				s.disable()
			case syscall.SIGUSR2:
				s.enable()
			}
		}
	}
}

func (s *VT) disable() {
	if !s.active.Swap(false) {
		return
	}

	s.m.Lock()
	for _, dev := range s.devices {
		switch dev.major {
		case drmMajor:
			err := setInt(dev.file, drmDropMaster, 0)
			if err != nil {
				s.logger.WithError(err).Warnln("drop DRM master")
			}
		case inputMajor:
			err := setInt(dev.file, evdevRevoke, 0)
			if err != nil {
				s.logger.WithError(err).Debugln("revoke input device")
			}
		}
	}
	s.devices = slices.DeleteFunc(s.devices, func(dev device) bool { return dev.major == inputMajor })
	s.m.Unlock()

	err := unix.IoctlSetInt(int(s.tty.Fd()), vtRelDisp, 1)
	if err != nil {
		s.logger.WithError(err).Errorln("release vt")
	}

	s.logger.Infoln("session disabled")
	s.send(Disable)
}

func (s *VT) enable() {
	err := unix.IoctlSetInt(int(s.tty.Fd()), vtRelDisp, vtAckAcq)
	if err != nil {
		s.logger.WithError(err).Errorln("acquire vt")
	}

	s.m.Lock()
	for _, dev := range s.devices {
		if dev.major != drmMajor {
			continue
		}
		err := setInt(dev.file, drmSetMaster, 0)
		if err != nil {
			s.logger.WithError(err).Warnln("set DRM master")
		}
	}
	s.m.Unlock()

	s.active.Store(true)
	s.logger.Infoln("session enabled")
	s.send(Enable)
}

func (s *VT) send(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// Open opens a DRM or input device node.
func (s *VT) Open(path string) (*os.File, error) {
	if !s.Active() {
		return nil, ErrInactive
	}

	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %v: %w", path, err)
	}
	var major uint32
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		major = unix.Major(st.Rdev)
	}
	if major == drmMajor {
		err := setInt(file, drmSetMaster, 0)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Debugln("set DRM master")
		}
	}

	s.m.Lock()
	defer s.m.Unlock()
	s.devices = append(s.devices, device{file: file, major: major})

	return file, nil
}

func (s *VT) Release(file *os.File) {
	s.m.Lock()
	defer s.m.Unlock()

	s.devices = slices.DeleteFunc(s.devices, func(dev device) bool { return dev.file == file })
}

func (s *VT) Events() <-chan Event {
	return s.events
}

func (s *VT) Active() bool {
	return s.active.Load()
}

// Switch activates another virtual terminal. The switch itself happens
// asynchronously and is reported as a Disable event.
func (s *VT) Switch(vt int) error {
	if vt < 1 || vt > maxVT {
		return fmt.Errorf("invalid vt %v", vt)
	}
	if vt == s.vt {
		return nil
	}
	return unix.IoctlSetInt(int(s.tty.Fd()), vtActivate, vt)
}

// VT returns the number of the controlled virtual terminal.
func (s *VT) VT() int {
	return s.vt
}

// Close gives the terminal back to the kernel console.
func (s *VT) Close() error {
	var err error
	s.close.Do(func() {
		signal.Stop(s.sigs)
		close(s.done)
		s.restore()
		err = s.tty.Close()
	})
	return err
}
