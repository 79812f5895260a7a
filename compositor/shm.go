package compositor

import (
	"fmt"
	"image"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
)

// shmFormats are the wl_shm formats that buffers may use.
var shmFormats = []uint32{
	proto.WlShmFormatArgb8888,
	proto.WlShmFormatXrgb8888,
}

func bindShm(obj *server.Object) error {
	for _, f := range shmFormats {
		obj.Send(proto.WlShmEvFormat, f)
	}
	return nil
}

var shmImpl = server.NewImpl("wl_shm", server.Handlers{
	"create_pool": func(r *server.Request) error {
		file := r.File(1)
		size := r.Int(2)
		if size <= 0 {
			file.Close()
			return r.Errorf(proto.WlShmErrorInvalidStride, "invalid pool size %v", size)
		}

		pool, err := shm.NewPool(file, int(size))
		if err != nil {
			file.Close()
			return r.Errorf(proto.WlShmErrorInvalidFd, "create pool: %v", err)
		}

		obj := r.NewObject(0, poolImpl)
		obj.Data = pool
		obj.OnDestroy(pool.Unref)
		return nil
	},
})

var poolImpl = server.NewImpl("wl_shm_pool", server.Handlers{
	"create_buffer": func(r *server.Request) error {
		pool := r.Object.Data.(*shm.Pool)
		offset, width, height, stride := int(r.Int(1)), int(r.Int(2)), int(r.Int(3)), int(r.Int(4))
		format := r.Uint(5)

		if !validShmFormat(format) {
			return r.Errorf(proto.WlShmErrorInvalidFormat, "unsupported format %#x", format)
		}
		err := checkShmLayout(pool.Size(), offset, width, height, stride)
		if err != nil {
			return r.Errorf(proto.WlShmErrorInvalidStride, "%v", err)
		}

		pool.Ref()
		st := shmStorage{
			pool:   pool,
			offset: offset,
			stride: stride,
			format: format,
		}
		obj := r.NewObject(0, bufferImpl)
		newBuffer(compositorOf(r), obj, image.Pt(width, height), &st)
		return nil
	},

	"resize": func(r *server.Request) error {
		pool := r.Object.Data.(*shm.Pool)
		size := int(r.Int(0))
		if size < pool.Size() {
			return r.Errorf(proto.WlShmErrorInvalidStride, "pool cannot shrink from %v to %v", pool.Size(), size)
		}

		err := pool.Resize(size)
		if err != nil {
			return r.Errorf(proto.WlShmErrorInvalidFd, "resize pool: %v", err)
		}
		return nil
	},
})

func validShmFormat(format uint32) bool {
	for _, f := range shmFormats {
		if f == format {
			return true
		}
	}
	return false
}

// checkShmLayout checks that a buffer fits inside a pool of the given
// size.
func checkShmLayout(poolSize, offset, width, height, stride int) error {
	switch {
	case offset < 0:
		return fmt.Errorf("negative offset %v", offset)
	case width <= 0 || height <= 0:
		return fmt.Errorf("invalid size %vx%v", width, height)
	case stride < width*4:
		return fmt.Errorf("stride %v is too small for width %v", stride, width)
	case int64(offset)+int64(stride)*int64(height) > int64(poolSize):
		return fmt.Errorf("%vx%v buffer with stride %v at offset %v does not fit in pool of size %v", width, height, stride, offset, poolSize)
	}
	return nil
}

type shmStorage struct {
	pool   *shm.Pool
	offset int
	stride int
	format uint32
}

func (s *shmStorage) read(size image.Point, f func(shmimage.Image)) error {
	data := s.pool.Data()
	end := s.offset + s.stride*size.Y
	if end > len(data) {
		return fmt.Errorf("%w: buffer extends past pool", shm.ErrFault)
	}
	pix := data[s.offset:end:end]
	rect := image.Rectangle{Max: size}

	var img shmimage.Image
	switch s.format {
	case proto.WlShmFormatXrgb8888:
		img = &shmimage.XRGB8888{Pix: pix, Stride: s.stride, Rect: rect}
	default:
		img = &shmimage.ARGB8888{Pix: pix, Stride: s.stride, Rect: rect}
	}
	return shm.Guard(func() { f(img) })
}

func (s *shmStorage) check(b *Buffer) error {
	err := checkShmLayout(s.pool.Size(), s.offset, b.size.X, b.size.Y, s.stride)
	if err != nil {
		return b.obj.Errorf(proto.WlShmErrorInvalidStride, "%v", err)
	}
	return nil
}

func (s *shmStorage) release() {
	s.pool.Unref()
}
