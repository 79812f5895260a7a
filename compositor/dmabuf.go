package compositor

import (
	"fmt"
	"image"
	"io"
	"os"
	"unsafe"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
	"golang.org/x/sys/unix"
)

// DRM fourcc codes of the formats that dmabufs may use.
const (
	FormatARGB8888 = 0x34325241 // AR24
	FormatXRGB8888 = 0x34325258 // XR24
)

// Format modifiers that imports accept.
const (
	ModifierLinear  = 0
	ModifierInvalid = 0x00ffffffffffffff
)

const maxPlanes = 4

var (
	dmabufFormats   = []uint32{FormatARGB8888, FormatXRGB8888}
	dmabufModifiers = []uint64{ModifierLinear, ModifierInvalid}
)

func bindDmabuf(obj *server.Object) error {
	for _, f := range dmabufFormats {
		obj.Send(proto.ZwpLinuxDmabufV1EvFormat, f)
		for _, m := range dmabufModifiers {
			obj.Send(proto.ZwpLinuxDmabufV1EvModifier, f, uint32(m>>32), uint32(m))
		}
	}
	return nil
}

var dmabufImpl = server.NewImpl("zwp_linux_dmabuf_v1", server.Handlers{
	"create_params": func(r *server.Request) error {
		obj := r.NewObject(0, paramsImpl)
		p := dmabufParams{obj: obj}
		obj.Data = &p
		obj.OnDestroy(p.close)
		return nil
	},
})

type dmabufPlane struct {
	file     *os.File
	offset   uint32
	stride   uint32
	modifier uint64
}

type dmabufParams struct {
	obj    *server.Object
	planes [maxPlanes]*dmabufPlane
	used   bool
}

func (p *dmabufParams) close() {
	for i, plane := range p.planes {
		if plane != nil {
			plane.file.Close()
			p.planes[i] = nil
		}
	}
}

var paramsImpl = server.NewImpl("zwp_linux_buffer_params_v1", server.Handlers{
	"add": func(r *server.Request) error {
		p := r.Object.Data.(*dmabufParams)
		file := r.File(0)
		idx := r.Uint(1)

		switch {
		case p.used:
			file.Close()
			return r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorAlreadyUsed, "params already used")
		case idx >= maxPlanes:
			file.Close()
			return r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorPlaneIdx, "plane index %v out of bounds", idx)
		case p.planes[idx] != nil:
			file.Close()
			return r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorPlaneSet, "plane %v already set", idx)
		}

		p.planes[idx] = &dmabufPlane{
			file:     file,
			offset:   r.Uint(2),
			stride:   r.Uint(3),
			modifier: uint64(r.Uint(4))<<32 | uint64(r.Uint(5)),
		}
		return nil
	},

	"create": func(r *server.Request) error {
		p := r.Object.Data.(*dmabufParams)
		st, size, err := p.create(r, int(r.Int(0)), int(r.Int(1)), r.Uint(2), r.Uint(3))
		if err != nil {
			return err
		}
		if st == nil {
			r.Object.Send(proto.ZwpLinuxBufferParamsV1EvFailed)
			return nil
		}

		obj := r.Client().NewServerObject("wl_buffer", 1, bufferImpl)
		newBuffer(compositorOf(r), obj, size, st)
		r.Object.Send(proto.ZwpLinuxBufferParamsV1EvCreated, obj)
		return nil
	},

	"create_immed": func(r *server.Request) error {
		p := r.Object.Data.(*dmabufParams)
		st, size, err := p.create(r, int(r.Int(1)), int(r.Int(2)), r.Uint(3), r.Uint(4))
		if err != nil {
			return err
		}
		if st == nil {
			return r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorInvalidWlBuffer, "import failed")
		}

		obj := r.NewObject(0, bufferImpl)
		newBuffer(compositorOf(r), obj, size, st)
		return nil
	},
})

// create validates the parameters and imports the buffer. It returns a
// protocol error for invalid parameters and a nil storage without an
// error if a valid buffer could not be imported.
func (p *dmabufParams) create(r *server.Request, width, height int, format, flags uint32) (*dmabufStorage, image.Point, error) {
	if p.used {
		return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorAlreadyUsed, "params already used")
	}
	p.used = true

	n := 0
	for n < maxPlanes && p.planes[n] != nil {
		n++
	}
	if n == 0 {
		return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorIncomplete, "no planes")
	}
	for i := n; i < maxPlanes; i++ {
		if p.planes[i] != nil {
			return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorIncomplete, "plane %v is missing", n)
		}
	}

	if !validDmabufFormat(format) {
		return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorInvalidFormat, "unsupported format %#x", format)
	}
	if n != 1 {
		return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorIncomplete, "format %#x has 1 plane, got %v", format, n)
	}
	if width < 1 || height < 1 {
		return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorInvalidDimensions, "invalid size %vx%v", width, height)
	}

	for i, plane := range p.planes[:n] {
		if i == 0 && int64(plane.stride) < int64(width)*4 {
			return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorOutOfBounds, "stride %v is too small for width %v", plane.stride, width)
		}

		size, err := plane.file.Seek(0, io.SeekEnd)
		if err != nil {
			// Some exporters can't seek. The mapping will fail instead.
			continue
		}
		end := int64(plane.offset) + int64(plane.stride)*int64(height)
		if end > size {
			return nil, image.Point{}, r.Errorf(proto.ZwpLinuxBufferParamsV1ErrorOutOfBounds, "plane %v needs %v bytes, but the dmabuf has %v", i, end, size)
		}
	}

	if flags != 0 {
		r.Client().Logger().WithField("flags", flags).Debugln("unsupported dmabuf flags")
		return nil, image.Point{}, nil
	}

	plane := p.planes[0]
	length := int(plane.offset) + int(plane.stride)*height
	data, err := shm.Map(plane.file, length, unix.PROT_READ)
	if err != nil {
		r.Client().Logger().WithError(err).Debugln("dmabuf import failed")
		return nil, image.Point{}, nil
	}

	st := dmabufStorage{
		file:   plane.file,
		data:   data,
		offset: int(plane.offset),
		stride: int(plane.stride),
		format: format,
	}
	p.planes[0] = nil
	p.close()

	return &st, image.Pt(width, height), nil
}

func validDmabufFormat(format uint32) bool {
	for _, f := range dmabufFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Flags for DMA_BUF_IOCTL_SYNC.
const (
	dmaBufSyncRead  = 1 << 0
	dmaBufSyncStart = 0 << 2
	dmaBufSyncEnd   = 1 << 2

	dmaBufIoctlSync = 0x40086200
)

type dmabufStorage struct {
	file   *os.File
	data   shm.Mmap
	offset int
	stride int
	format uint32
}

// sync brackets CPU access to the buffer. Errors are ignored because
// memfds and some exporters don't implement it.
func (s *dmabufStorage) sync(flags uint64) {
	arg := flags
	unix.Syscall(unix.SYS_IOCTL, s.file.Fd(), dmaBufIoctlSync, uintptr(unsafe.Pointer(&arg)))
}

func (s *dmabufStorage) read(size image.Point, f func(shmimage.Image)) error {
	end := s.offset + s.stride*size.Y
	if end > len(s.data) {
		return fmt.Errorf("%w: buffer extends past dmabuf", shm.ErrFault)
	}
	pix := []byte(s.data[s.offset:end:end])
	rect := image.Rectangle{Max: size}

	var img shmimage.Image
	switch s.format {
	case FormatXRGB8888:
		img = &shmimage.XRGB8888{Pix: pix, Stride: s.stride, Rect: rect}
	default:
		img = &shmimage.ARGB8888{Pix: pix, Stride: s.stride, Rect: rect}
	}

	s.sync(dmaBufSyncStart | dmaBufSyncRead)
	defer s.sync(dmaBufSyncEnd | dmaBufSyncRead)
	return shm.Guard(func() { f(img) })
}

func (s *dmabufStorage) check(b *Buffer) error {
	return nil
}

func (s *dmabufStorage) release() {
	s.data.Unmap()
	s.file.Close()
}
