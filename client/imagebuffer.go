package client

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
	"deedles.dev/ximage/format"
	"golang.org/x/sys/unix"
)

// ImageBuffer is a wl_buffer backed by a shared memory pool that
// belongs to it alone.
type ImageBuffer struct {
	size image.Point
	shm  *Object
	pool *Object
	buf  *Object
	file *os.File
	mmap shm.Mmap
	busy bool

	// Release, if set, is called when the compositor releases the
	// buffer.
	Release func()
}

// NewImageBuffer creates an argb8888 buffer of the given size using
// the wl_shm global object s.
func NewImageBuffer(s *Object, size image.Point) (buf *ImageBuffer, err error) {
	buf = &ImageBuffer{
		size: size,
		shm:  s,
	}
	defer func() {
		if err != nil {
			buf.Destroy()
		}
	}()

	file, err := shm.Create("wlc-buffer", int64(buf.Len()))
	if err != nil {
		return buf, fmt.Errorf("create shm file: %w", err)
	}
	buf.file = file

	mmap, err := shm.Map(file, buf.Len(), unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		return buf, fmt.Errorf("mmap shm file: %w", err)
	}
	buf.mmap = mmap

	buf.pool = s.display.NewObject("wl_shm_pool", 1)
	err = s.Send(proto.WlShmReqCreatePool, buf.pool, file, int32(buf.Len()))
	if err != nil {
		return buf, err
	}
	return buf, buf.createBuffer()
}

func (b *ImageBuffer) createBuffer() error {
	b.buf = b.shm.display.NewObject("wl_buffer", 1)
	b.buf.Data = b
	b.buf.On("release", func(*Event) {
		b.busy = false
		if b.Release != nil {
			b.Release()
		}
	})
	return b.pool.Send(proto.WlShmPoolReqCreateBuffer, b.buf, int32(0), int32(b.size.X), int32(b.size.Y), int32(b.Stride()), uint32(proto.WlShmFormatArgb8888))
}

func (b *ImageBuffer) Destroy() {
	if b.buf != nil {
		b.buf.Destroy()
	}
	if b.pool != nil {
		b.pool.Destroy()
	}
	if b.mmap != nil {
		b.mmap.Unmap()
	}
	if b.file != nil {
		b.file.Close()
	}
}

// Buffer returns the wl_buffer object.
func (b *ImageBuffer) Buffer() *Object {
	return b.buf
}

// Busy reports whether the buffer has been attached and committed
// and not yet released by the compositor. Call MarkBusy after
// committing it.
func (b *ImageBuffer) Busy() bool {
	return b.busy
}

func (b *ImageBuffer) MarkBusy() {
	b.busy = true
}

func (b *ImageBuffer) Stride() int {
	return b.size.X * 4
}

func (b *ImageBuffer) Len() int {
	return b.Stride() * b.size.Y
}

func (b *ImageBuffer) Bounds() image.Rectangle {
	return image.Rectangle{Max: b.size}
}

// Resize changes the size of the buffer, growing the pool if it is too
// small. The wl_buffer is replaced, so it must be attached again.
func (b *ImageBuffer) Resize(size image.Point) error {
	if size == b.size {
		return nil
	}

	old := b.Len()
	b.size = size
	if b.Len() > old {
		err := b.file.Truncate(int64(b.Len()))
		if err != nil {
			return fmt.Errorf("truncate: %w", err)
		}

		err = b.mmap.Unmap()
		if err != nil {
			return fmt.Errorf("unmap: %w", err)
		}
		b.mmap, err = shm.Map(b.file, b.Len(), unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return fmt.Errorf("mmap: %w", err)
		}

		err = b.pool.Send(proto.WlShmPoolReqResize, int32(b.Len()))
		if err != nil {
			return err
		}
	}

	b.buf.Destroy()
	b.busy = false
	return b.createBuffer()
}

// Image returns a view of the buffer's memory for drawing.
func (b *ImageBuffer) Image() draw.Image {
	return &format.Image{
		Format: format.ARGB8888,
		Rect:   b.Bounds(),
		Pix:    b.mmap[:b.Len()],
	}
}

// ARGB8888 returns a view of the buffer's memory in the compositor's
// own pixel format.
func (b *ImageBuffer) ARGB8888() *shmimage.ARGB8888 {
	return &shmimage.ARGB8888{
		Pix:    b.mmap[:b.Len()],
		Stride: b.Stride(),
		Rect:   b.Bounds(),
	}
}
