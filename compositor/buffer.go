package compositor

import (
	"image"

	"deedles.dev/wlc/proto"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
)

// storage is the memory behind a buffer.
type storage interface {
	// read calls f with a view of the buffer's pixels.
	read(size image.Point, f func(shmimage.Image)) error

	// check returns a protocol error if the buffer can no longer be
	// used, such as because its memory is now too small.
	check(b *Buffer) error

	// release frees the memory. It is called once, after the buffer's
	// object is gone and nothing is reading from it.
	release()
}

// Buffer is a wl_buffer. It is a render.Source for as long as it
// exists.
//
// A buffer is locked by the surface that it is the current content of
// and by every frame that it was drawn into. When the last lock goes
// away, the client is told that it may reuse the buffer. A buffer
// whose object is destroyed keeps its memory until it is unlocked.
type Buffer struct {
	comp    *Compositor
	obj     *server.Object
	key     uint64
	serial  uint64
	size    image.Point
	storage storage

	locks    int
	busy     bool
	released bool
}

var bufferImpl = server.NewImpl("wl_buffer", server.Handlers{})

func newBuffer(c *Compositor, obj *server.Object, size image.Point, st storage) *Buffer {
	b := Buffer{
		comp:    c,
		obj:     obj,
		key:     render.NewKey(),
		size:    size,
		storage: st,
	}
	obj.Data = &b
	obj.OnDestroy(func() {
		if b.locks == 0 {
			b.free()
		}
	})
	return &b
}

func (b *Buffer) Key() uint64 {
	return b.key
}

func (b *Buffer) Serial() uint64 {
	return b.serial
}

func (b *Buffer) Size() image.Point {
	return b.size
}

func (b *Buffer) Read(f func(shmimage.Image)) error {
	return b.storage.read(b.size, f)
}

// Destroyed returns true if the client has destroyed the buffer.
func (b *Buffer) Destroyed() bool {
	return b.obj.Destroyed()
}

// Busy returns true if the buffer has been committed and not yet
// released.
func (b *Buffer) Busy() bool {
	return b.busy
}

func (b *Buffer) lock() {
	b.locks++
}

func (b *Buffer) unlock() {
	b.locks--
	if b.locks > 0 {
		return
	}
	if b.busy {
		b.busy = false
		b.obj.Send(proto.WlBufferEvRelease)
	}
	if b.obj.Destroyed() {
		b.free()
	}
}

// use marks the buffer as committed content.
func (b *Buffer) use() {
	b.busy = true
	b.serial++
}

func (b *Buffer) free() {
	if b.released {
		return
	}
	b.released = true
	b.comp.renderer.Forget(b.key)
	b.storage.release()
}

// fault disconnects the buffer's client after its memory could not be
// read.
func (b *Buffer) fault() {
	b.obj.PostError(proto.WlShmErrorInvalidFd, "error accessing buffer memory")
}

// buffer returns the Buffer behind obj, or nil.
func buffer(obj *server.Object) *Buffer {
	if obj == nil {
		return nil
	}
	b, _ := obj.Data.(*Buffer)
	return b
}

// imageStorage is memory owned by the compositor, such as for single
// pixel buffers.
type imageStorage struct {
	img *shmimage.ARGB8888
}

func (s *imageStorage) read(size image.Point, f func(shmimage.Image)) error {
	f(s.img)
	return nil
}

func (s *imageStorage) check(b *Buffer) error {
	return nil
}

func (s *imageStorage) release() {}
