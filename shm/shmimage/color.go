package shmimage

import "image/color"

// ARGB8888Color is a premultiplied color in the layout used by the
// argb8888 shm format: alpha in the high byte, blue in the low byte.
type ARGB8888Color uint32

func NewARGB8888Color(r, g, b, a uint8) ARGB8888Color {
	return ARGB8888Color((uint32(a) << 24) | (uint32(r) << 16) | (uint32(g) << 8) | uint32(b))
}

func (c ARGB8888Color) RGBA() (r, g, b, a uint32) {
	a = uint32(c.A()) * 0x101
	r = uint32(c.R()) * 0x101
	g = uint32(c.G()) * 0x101
	b = uint32(c.B()) * 0x101
	return
}

func (c ARGB8888Color) R() uint8 {
	return uint8((c & 0x00FF0000) >> 16)
}

func (c ARGB8888Color) G() uint8 {
	return uint8((c & 0x0000FF00) >> 8)
}

func (c ARGB8888Color) B() uint8 {
	return uint8(c & 0x000000FF)
}

func (c ARGB8888Color) A() uint8 {
	return uint8((c & 0xFF000000) >> 24)
}

// Opaque returns c with its alpha forced to 0xFF, which is how xrgb8888
// pixels are interpreted.
func (c ARGB8888Color) Opaque() ARGB8888Color {
	return c | 0xFF000000
}

var ARGB8888Model color.Model = color.ModelFunc(argb8888Model)

func argb8888Model(c color.Color) color.Color {
	switch c := c.(type) {
	case ARGB8888Color:
		return c
	case color.RGBA:
		return NewARGB8888Color(c.R, c.G, c.B, c.A)
	default:
		r, g, b, a := c.RGBA()
		return NewARGB8888Color(uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8))
	}
}

var XRGB8888Model color.Model = color.ModelFunc(xrgb8888Model)

func xrgb8888Model(c color.Color) color.Color {
	return argb8888Model(c).(ARGB8888Color).Opaque()
}
