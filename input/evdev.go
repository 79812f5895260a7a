package input

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types and codes from linux/input-event-codes.h.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport  = 0
	synDropped = 3

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	absX            = 0x00
	absY            = 0x01
	absMTSlot       = 0x2f
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39

	keyA            = 30
	btnMisc         = 0x100
	btnLeft         = 0x110
	btnRight        = 0x111
	btnToolFinger   = 0x145
	btnTouch        = 0x14a
	btnToolDouble   = 0x14d
	btnToolTriple   = 0x14e
	keyMax          = 0x2ff
	inputPropDirect = 0x01
)

// RawEvent is a struct input_event as read from an evdev device.
type RawEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

// RawEventSize is the size of a struct input_event on 64-bit systems.
const RawEventSize = 24

func parseRawEvent(buf []byte) RawEvent {
	return RawEvent{
		Sec:   int64(binary.NativeEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.NativeEndian.Uint64(buf[8:16])),
		Type:  binary.NativeEndian.Uint16(buf[16:18]),
		Code:  binary.NativeEndian.Uint16(buf[18:20]),
		Value: int32(binary.NativeEndian.Uint32(buf[20:24])),
	}
}

func (ev RawEvent) time() time.Duration {
	return time.Duration(ev.Sec)*time.Second + time.Duration(ev.Usec)*time.Microsecond
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'E'<<8 | nr
}

const iocRead = 2

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func evdevName(fd int) (string, error) {
	buf := make([]byte, 256)
	err := ioctl(fd, ioc(iocRead, 0x06, uintptr(len(buf))), unsafe.Pointer(&buf[0]))
	if err != nil {
		return "", fmt.Errorf("EVIOCGNAME: %w", err)
	}
	name, _, _ := strings.Cut(string(buf), "\x00")
	return name, nil
}

type bitset []byte

func (b bitset) has(bit int) bool {
	i := bit / 8
	return i < len(b) && b[i]&(1<<(bit%8)) != 0
}

func evdevBits(fd int, ev int) (bitset, error) {
	buf := make(bitset, keyMax/8+1)
	err := ioctl(fd, ioc(iocRead, 0x20+uintptr(ev), uintptr(len(buf))), unsafe.Pointer(&buf[0]))
	if err != nil {
		return nil, fmt.Errorf("EVIOCGBIT(%v): %w", ev, err)
	}
	return buf, nil
}

func evdevProps(fd int) (bitset, error) {
	buf := make(bitset, 4)
	err := ioctl(fd, ioc(iocRead, 0x09, uintptr(len(buf))), unsafe.Pointer(&buf[0]))
	if err != nil {
		return nil, fmt.Errorf("EVIOCGPROP: %w", err)
	}
	return buf, nil
}

// AbsInfo is the range of an absolute axis.
type AbsInfo struct {
	Value, Min, Max, Fuzz, Flat, Resolution int32
}

func evdevAbs(fd int, axis int) (AbsInfo, error) {
	var info AbsInfo
	err := ioctl(fd, ioc(iocRead, 0x40+uintptr(axis), unsafe.Sizeof(info)), unsafe.Pointer(&info))
	if err != nil {
		return info, fmt.Errorf("EVIOCGABS(%v): %w", axis, err)
	}
	return info, nil
}

// Probe determines what kind of device the evdev device open as fd is.
func Probe(fd int) (Kind, string, error) {
	name, err := evdevName(fd)
	if err != nil {
		return KindOther, "", err
	}

	types, err := evdevBits(fd, 0)
	if err != nil {
		return KindOther, name, err
	}
	keys, err := evdevBits(fd, evKey)
	if err != nil {
		return KindOther, name, err
	}

	switch {
	case types.has(evAbs):
		abs, err := evdevBits(fd, evAbs)
		if err != nil {
			return KindOther, name, err
		}
		if !abs.has(absX) || !abs.has(absY) {
			break
		}

		props, err := evdevProps(fd)
		if err != nil {
			return KindOther, name, err
		}
		switch {
		case props.has(inputPropDirect):
			return KindTouchscreen, name, nil
		case keys.has(btnToolFinger):
			return KindTouchpad, name, nil
		default:
			return KindTablet, name, nil
		}

	case types.has(evRel):
		rel, err := evdevBits(fd, evRel)
		if err != nil {
			return KindOther, name, err
		}
		if rel.has(relX) && rel.has(relY) {
			return KindMouse, name, nil
		}
	}

	if types.has(evKey) && keys.has(keyA) {
		return KindKeyboard, name, nil
	}
	return KindOther, name, nil
}

// Scan returns the evdev device nodes in dir, usually /dev/input, in
// numeric order.
func Scan(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := filepath.Base(paths[i]), filepath.Base(paths[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return paths, nil
}

// Evdev is an open evdev device.
type Evdev struct {
	file    *os.File
	dev     *Device
	decoder *Decoder
}

// OpenEvdev probes file and prepares to decode its events. It takes
// ownership of file, which should be non-blocking so that Close can
// interrupt Run. Devices that are neither pointers, keyboards, nor
// touchscreens are rejected with ErrUnsupported.
func OpenEvdev(file *os.File, id int, config func(name string) Device) (*Evdev, error) {
	raw, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, err
	}

	var (
		kind Kind
		name string
		x, y AbsInfo
	)
	cerr := raw.Control(func(fd uintptr) {
		kind, name, err = Probe(int(fd))
		if err != nil || !kind.absolute() {
			return
		}
		x, err = evdevAbs(int(fd), absX)
		if err != nil {
			return
		}
		y, err = evdevAbs(int(fd), absY)
	})
	if cerr != nil {
		err = cerr
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("probe %v: %w", file.Name(), err)
	}
	if kind == KindOther {
		file.Close()
		return nil, fmt.Errorf("%v (%v): %w", file.Name(), name, ErrUnsupported)
	}

	dev := config(name)
	dev.ID = id
	dev.Name = name
	dev.Caps = kind.Caps()

	d := NewDecoder(&dev, kind)
	if kind.absolute() {
		d.SetRange(x, y)
	}

	return &Evdev{
		file:    file,
		dev:     &dev,
		decoder: d,
	}, nil
}

// ErrUnsupported is returned for devices that produce no useful input.
var ErrUnsupported = errors.New("unsupported device")

func (e *Evdev) Device() *Device {
	return e.dev
}

// Run reads events and sends decoded events to out until the device is
// closed or removed or ctx is canceled.
func (e *Evdev) Run(ctx context.Context, out chan<- Event) error {
	buf := make([]byte, 64*RawEventSize)
	for {
		n, err := e.file.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, unix.ENODEV) {
				return nil
			}
			return fmt.Errorf("read %v: %w", e.dev.Name, err)
		}

		for i := 0; i+RawEventSize <= n; i += RawEventSize {
			for _, ev := range e.decoder.Decode(parseRawEvent(buf[i : i+RawEventSize])) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- ev:
				}
			}
		}
	}
}

func (e *Evdev) Close() error {
	return e.file.Close()
}
