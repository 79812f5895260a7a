package render

import (
	"image"
	"sync/atomic"

	"deedles.dev/wlc/shm/shmimage"
)

var keys atomic.Uint64

// NewKey returns a source key that has never been returned before.
func NewKey() uint64 {
	return keys.Add(1)
}

// ImageSource is a Source backed by ordinary memory, such as a cursor
// image or a test pattern.
type ImageSource struct {
	key    uint64
	serial uint64
	img    shmimage.Image
}

func NewImageSource(img shmimage.Image) *ImageSource {
	return &ImageSource{key: NewKey(), img: img}
}

func (s *ImageSource) Key() uint64 {
	return s.key
}

func (s *ImageSource) Serial() uint64 {
	return s.serial
}

func (s *ImageSource) Size() image.Point {
	return s.img.Bounds().Size()
}

func (s *ImageSource) Read(f func(shmimage.Image)) error {
	f(s.img)
	return nil
}

// Set replaces the image.
func (s *ImageSource) Set(img shmimage.Image) {
	s.img = img
	s.serial++
}
