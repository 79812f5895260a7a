package drm

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// From drm.h and drm_mode.h.
const (
	capDumbBuffer = 0x1

	modeConnected = 1

	modeTypePreferred = 1 << 3

	modeFlagInterlace = 1 << 4
	modeFlagDblScan   = 1 << 5

	modePageFlipEvent = 0x01

	eventFlipComplete = 0x02
)

func iowr(nr, size uintptr) uintptr {
	return 3<<30 | size<<16 | 'd'<<8 | nr
}

type getCap struct {
	capability uint64
	value      uint64
}

type cardRes struct {
	fbIDPtr        uint64
	crtcIDPtr      uint64
	connectorIDPtr uint64
	encoderIDPtr   uint64
	countFBs       uint32
	countCrtcs     uint32
	countConns     uint32
	countEncoders  uint32
	minWidth       uint32
	maxWidth       uint32
	minHeight      uint32
	maxHeight      uint32
}

// modeInfo is struct drm_mode_modeinfo.
type modeInfo struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

// refresh returns the refresh rate of the mode in mHz.
func (m *modeInfo) refresh() int {
	if m.htotal == 0 || m.vtotal == 0 {
		return int(m.vrefresh) * 1000
	}

	r := (int64(m.clock)*1000000/int64(m.htotal) + int64(m.vtotal)/2) / int64(m.vtotal)
	if m.flags&modeFlagInterlace != 0 {
		r *= 2
	}
	if m.flags&modeFlagDblScan != 0 {
		r /= 2
	}
	if m.vscan > 1 {
		r /= int64(m.vscan)
	}
	return int(r)
}

type modeCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             modeInfo
}

type getEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type getConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type fbCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type pageFlip struct {
	crtcID   uint32
	fbID     uint32
	flags    uint32
	reserved uint32
	userData uint64
}

type createDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type mapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type destroyDumb struct {
	handle uint32
}

var (
	ioctlGetCap       = iowr(0x0C, unsafe.Sizeof(getCap{}))
	ioctlGetResources = iowr(0xA0, unsafe.Sizeof(cardRes{}))
	ioctlGetCrtc      = iowr(0xA1, unsafe.Sizeof(modeCrtc{}))
	ioctlSetCrtc      = iowr(0xA2, unsafe.Sizeof(modeCrtc{}))
	ioctlGetEncoder   = iowr(0xA6, unsafe.Sizeof(getEncoder{}))
	ioctlGetConnector = iowr(0xA7, unsafe.Sizeof(getConnector{}))
	ioctlAddFB        = iowr(0xAE, unsafe.Sizeof(fbCmd{}))
	ioctlRmFB         = iowr(0xAF, unsafe.Sizeof(uint32(0)))
	ioctlPageFlip     = iowr(0xB0, unsafe.Sizeof(pageFlip{}))
	ioctlCreateDumb   = iowr(0xB2, unsafe.Sizeof(createDumb{}))
	ioctlMapDumb      = iowr(0xB3, unsafe.Sizeof(mapDumb{}))
	ioctlDestroyDumb  = iowr(0xB4, unsafe.Sizeof(destroyDumb{}))
)

var connectorTypeNames = []string{
	"Unknown", "VGA", "DVI-I", "DVI-D", "DVI-A", "Composite", "SVIDEO",
	"LVDS", "Component", "DIN", "DP", "HDMI-A", "HDMI-B", "TV", "eDP",
	"Virtual", "DSI", "DPI", "Writeback", "SPI", "USB",
}

// flipEventSize is the size of struct drm_event_vblank.
const flipEventSize = 32

// connectorName returns the usual name of a connector, such as
// HDMI-A-1.
func connectorName(typ, id uint32) string {
	name := "Unknown"
	if int(typ) < len(connectorTypeNames) {
		name = connectorTypeNames[typ]
	}
	return fmt.Sprintf("%v-%v", name, id)
}

// card is an open DRM device. Its file stays non-blocking so that
// closing it interrupts a pending read.
type card struct {
	file *os.File
	raw  syscall.RawConn
}

func newCard(file *os.File) (*card, error) {
	raw, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &card{file: file, raw: raw}, nil
}

// ioctl performs req. bufs are the arrays that arg points to through
// integer fields, which the garbage collector doesn't follow. Passing
// them keeps them alive and off the stack until the call returns.
func (c *card) ioctl(req uintptr, arg unsafe.Pointer, bufs ...any) error {
	var errno syscall.Errno
	err := c.raw.Control(func(fd uintptr) {
		defer runtime.KeepAlive(bufs)
		for {
			_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
			if errno != unix.EINTR {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

func (c *card) cap(capability uint64) (uint64, error) {
	arg := getCap{capability: capability}
	err := c.ioctl(ioctlGetCap, unsafe.Pointer(&arg))
	return arg.value, err
}

type resources struct {
	crtcs      []uint32
	connectors []uint32
	encoders   []uint32
}

func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// resources lists the card's CRTCs, connectors, and encoders. The
// counts can change between the two calls on hotplug, so it retries
// until they are stable.
func (c *card) resources() (resources, error) {
	for {
		var arg cardRes
		err := c.ioctl(ioctlGetResources, unsafe.Pointer(&arg))
		if err != nil {
			return resources{}, fmt.Errorf("get resources: %w", err)
		}

		res := resources{
			crtcs:      make([]uint32, arg.countCrtcs),
			connectors: make([]uint32, arg.countConns),
			encoders:   make([]uint32, arg.countEncoders),
		}
		fbs := make([]uint32, arg.countFBs)
		counts := arg
		arg.fbIDPtr = ptr(fbs)
		arg.crtcIDPtr = ptr(res.crtcs)
		arg.connectorIDPtr = ptr(res.connectors)
		arg.encoderIDPtr = ptr(res.encoders)
		err = c.ioctl(ioctlGetResources, unsafe.Pointer(&arg), fbs, res.crtcs, res.connectors, res.encoders)
		if err != nil {
			return resources{}, fmt.Errorf("get resources: %w", err)
		}
		if arg.countCrtcs > counts.countCrtcs || arg.countConns > counts.countConns || arg.countEncoders > counts.countEncoders || arg.countFBs > counts.countFBs {
			continue
		}

		res.crtcs = res.crtcs[:arg.countCrtcs]
		res.connectors = res.connectors[:arg.countConns]
		res.encoders = res.encoders[:arg.countEncoders]
		return res, nil
	}
}

type connector struct {
	id        uint32
	name      string
	connected bool
	encoder   uint32
	encoders  []uint32
	modes     []modeInfo

	// size is in millimeters.
	mmWidth, mmHeight uint32
}

func (c *card) connector(id uint32) (connector, error) {
	for {
		arg := getConnector{connectorID: id}
		err := c.ioctl(ioctlGetConnector, unsafe.Pointer(&arg))
		if err != nil {
			return connector{}, fmt.Errorf("get connector %v: %w", id, err)
		}

		modes := make([]modeInfo, arg.countModes)
		encoders := make([]uint32, arg.countEncoders)
		counts := arg
		arg.modesPtr = ptr(modes)
		arg.encodersPtr = ptr(encoders)
		arg.countProps = 0
		err = c.ioctl(ioctlGetConnector, unsafe.Pointer(&arg), modes, encoders)
		if err != nil {
			return connector{}, fmt.Errorf("get connector %v: %w", id, err)
		}
		if arg.countModes > counts.countModes || arg.countEncoders > counts.countEncoders {
			continue
		}

		return connector{
			id:        id,
			name:      connectorName(arg.connectorType, arg.connectorTypeID),
			connected: arg.connection == modeConnected,
			encoder:   arg.encoderID,
			encoders:  encoders[:arg.countEncoders],
			modes:     modes[:arg.countModes],
			mmWidth:   arg.mmWidth,
			mmHeight:  arg.mmHeight,
		}, nil
	}
}

func (c *card) encoder(id uint32) (getEncoder, error) {
	arg := getEncoder{encoderID: id}
	err := c.ioctl(ioctlGetEncoder, unsafe.Pointer(&arg))
	if err != nil {
		return arg, fmt.Errorf("get encoder %v: %w", id, err)
	}
	return arg, nil
}

func (c *card) crtc(id uint32) (modeCrtc, error) {
	arg := modeCrtc{crtcID: id}
	err := c.ioctl(ioctlGetCrtc, unsafe.Pointer(&arg))
	if err != nil {
		return arg, fmt.Errorf("get crtc %v: %w", id, err)
	}
	return arg, nil
}

// setCrtc shows fb on crtc through the given connector. A zero fb
// turns the CRTC off.
func (c *card) setCrtc(crtc, fb, conn uint32, mode *modeInfo) error {
	conns := []uint32{conn}
	arg := modeCrtc{
		crtcID: crtc,
		fbID:   fb,
	}
	if fb != 0 {
		arg.setConnectorsPtr = ptr(conns)
		arg.countConnectors = 1
		arg.modeValid = 1
		arg.mode = *mode
	}
	err := c.ioctl(ioctlSetCrtc, unsafe.Pointer(&arg), conns)
	if err != nil {
		return fmt.Errorf("set crtc %v: %w", crtc, err)
	}
	return nil
}

// restoreCrtc puts back a CRTC state saved with crtc.
func (c *card) restoreCrtc(saved modeCrtc, conn uint32) error {
	if saved.modeValid == 0 || saved.fbID == 0 {
		return c.setCrtc(saved.crtcID, 0, 0, nil)
	}

	conns := []uint32{conn}
	saved.setConnectorsPtr = ptr(conns)
	saved.countConnectors = 1
	err := c.ioctl(ioctlSetCrtc, unsafe.Pointer(&saved), conns)
	if err != nil {
		return fmt.Errorf("restore crtc %v: %w", saved.crtcID, err)
	}
	return nil
}

// pageFlip queues fb to be shown on crtc at the next vblank. The
// completion is read from the card as a flip event carrying crtc.
func (c *card) pageFlip(crtc, fb uint32) error {
	arg := pageFlip{
		crtcID:   crtc,
		fbID:     fb,
		flags:    modePageFlipEvent,
		userData: uint64(crtc),
	}
	return c.ioctl(ioctlPageFlip, unsafe.Pointer(&arg))
}

// dumb is a CPU-mapped scanout buffer with a framebuffer attached.
type dumb struct {
	handle uint32
	fb     uint32
	pitch  int
	data   []byte
}

func (c *card) createDumb(width, height int) (*dumb, error) {
	create := createDumb{
		width:  uint32(width),
		height: uint32(height),
		bpp:    32,
	}
	err := c.ioctl(ioctlCreateDumb, unsafe.Pointer(&create))
	if err != nil {
		return nil, fmt.Errorf("create dumb buffer: %w", err)
	}
	d := dumb{handle: create.handle, pitch: int(create.pitch)}

	cmd := fbCmd{
		width:  uint32(width),
		height: uint32(height),
		pitch:  create.pitch,
		bpp:    32,
		depth:  24,
		handle: create.handle,
	}
	err = c.ioctl(ioctlAddFB, unsafe.Pointer(&cmd))
	if err != nil {
		c.destroyDumb(&d)
		return nil, fmt.Errorf("add framebuffer: %w", err)
	}
	d.fb = cmd.fbID

	m := mapDumb{handle: create.handle}
	err = c.ioctl(ioctlMapDumb, unsafe.Pointer(&m))
	if err != nil {
		c.destroyDumb(&d)
		return nil, fmt.Errorf("map dumb buffer: %w", err)
	}

	var merr error
	err = c.raw.Control(func(fd uintptr) {
		d.data, merr = unix.Mmap(int(fd), int64(m.offset), int(create.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	})
	if err == nil {
		err = merr
	}
	if err != nil {
		c.destroyDumb(&d)
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}

	return &d, nil
}

func (c *card) destroyDumb(d *dumb) {
	if d.data != nil {
		unix.Munmap(d.data)
		d.data = nil
	}
	if d.fb != 0 {
		fb := d.fb
		c.ioctl(ioctlRmFB, unsafe.Pointer(&fb))
		d.fb = 0
	}
	arg := destroyDumb{handle: d.handle}
	c.ioctl(ioctlDestroyDumb, unsafe.Pointer(&arg))
}

// flip is a completed page flip read from the card.
type flip struct {
	crtc uint32
	time time.Duration
}

// parseEvents decodes the events in a read from the card. Events other
// than page flip completions are skipped.
func parseEvents(buf []byte) []flip {
	var flips []flip
	for len(buf) >= 8 {
		typ := binary.NativeEndian.Uint32(buf[0:4])
		length := int(binary.NativeEndian.Uint32(buf[4:8]))
		if length < 8 || length > len(buf) {
			break
		}

		if typ == eventFlipComplete && length >= flipEventSize {
			ev := buf[:length]
			sec := binary.NativeEndian.Uint32(ev[16:20])
			usec := binary.NativeEndian.Uint32(ev[20:24])
			flips = append(flips, flip{
				crtc: uint32(binary.NativeEndian.Uint64(ev[8:16])),
				time: time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond,
			})
		}
		buf = buf[length:]
	}
	return flips
}
