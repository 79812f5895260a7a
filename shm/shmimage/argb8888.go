// Package shmimage provides zero-copy image.Image views of pixel
// memory in the 32-bit shm formats.
package shmimage

import (
	"image"
	"image/color"
	"image/draw"

	"deedles.dev/wlc/internal/bin"
)

// ARGB8888 is an image backed by premultiplied argb8888 pixels in host
// byte order.
type ARGB8888 struct {
	// Pix holds the image's pixels. The pixel at (x, y) is the 32-bit
	// word at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*4].
	Pix []uint8
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

// NewARGB8888 returns a new ARGB8888 image with the given bounds.
func NewARGB8888(r image.Rectangle) *ARGB8888 {
	return &ARGB8888{
		Pix:    make([]uint8, r.Dx()*r.Dy()*4),
		Stride: 4 * r.Dx(),
		Rect:   r,
	}
}

func (p *ARGB8888) Bounds() image.Rectangle { return p.Rect }

func (p *ARGB8888) ColorModel() color.Model { return ARGB8888Model }

func (p *ARGB8888) At(x, y int) color.Color {
	return p.ARGB8888At(x, y)
}

func (p *ARGB8888) ARGB8888At(x, y int) ARGB8888Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return ARGB8888Color(0)
	}
	i := p.PixOffset(x, y)
	return bin.Get[ARGB8888Color](p.Pix[i : i+4 : i+4])
}

// PixOffset returns the index of the first element of Pix that corresponds to
// the pixel at (x, y).
func (p *ARGB8888) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
}

func (p *ARGB8888) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	bin.Put(p.Pix[i:i+4:i+4], ARGB8888Model.Convert(c).(ARGB8888Color))
}

func (p *ARGB8888) SetARGB8888(x, y int, c ARGB8888Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	bin.Put(p.Pix[i:i+4:i+4], c)
}

// SubImage returns an image representing the portion of the image p visible
// through r. The returned value shares pixels with the original image.
func (p *ARGB8888) SubImage(r image.Rectangle) draw.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &ARGB8888{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &ARGB8888{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

// Opaque scans the image to see whether it is fully opaque.
func (p *ARGB8888) Opaque() bool {
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		for x := p.Rect.Min.X; x < p.Rect.Max.X; x++ {
			if p.ARGB8888At(x, y).A() != 0xFF {
				return false
			}
		}
	}
	return true
}

// XRGB8888 is an image backed by xrgb8888 pixels. The unused byte is
// ignored on read and set to 0xFF on write.
type XRGB8888 struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func (p *XRGB8888) Bounds() image.Rectangle { return p.Rect }

func (p *XRGB8888) ColorModel() color.Model { return XRGB8888Model }

func (p *XRGB8888) At(x, y int) color.Color {
	return p.ARGB8888At(x, y)
}

func (p *XRGB8888) ARGB8888At(x, y int) ARGB8888Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return ARGB8888Color(0)
	}
	i := p.PixOffset(x, y)
	return bin.Get[ARGB8888Color](p.Pix[i : i+4 : i+4]).Opaque()
}

func (p *XRGB8888) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
}

func (p *XRGB8888) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	bin.Put(p.Pix[i:i+4:i+4], XRGB8888Model.Convert(c).(ARGB8888Color))
}

func (p *XRGB8888) SubImage(r image.Rectangle) draw.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &XRGB8888{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &XRGB8888{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

func (p *XRGB8888) Opaque() bool {
	return true
}

// Image is implemented by both ARGB8888 and XRGB8888.
type Image interface {
	draw.Image
	ARGB8888At(x, y int) ARGB8888Color
	PixOffset(x, y int) int
}
