package render

import (
	"image"

	"deedles.dev/wlc/shm/shmimage"
	"golang.org/x/image/draw"
)

// Transform is a buffer transform, with the same values as
// wl_output.transform. Bit 0 rotates by 90 degrees, bit 1 by 180, and
// bit 2 flips horizontally before rotating.
type Transform uint32

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// Valid returns true if t is one of the eight defined transforms.
func (t Transform) Valid() bool {
	return t <= TransformFlipped270
}

// Swaps returns true if t exchanges width and height.
func (t Transform) Swaps() bool {
	return t&1 != 0
}

// Size returns the size of a buffer of the given size after t is
// applied to it.
func (t Transform) Size(buf image.Point) image.Point {
	if t.Swaps() {
		return image.Pt(buf.Y, buf.X)
	}
	return buf
}

// Map returns the buffer pixel that shows up at p in a transformed
// image of size size.
func (t Transform) Map(p, size image.Point) image.Point {
	x, y := p.X, p.Y
	w, h := size.X-1, size.Y-1
	switch t {
	case TransformFlipped:
		return image.Pt(w-x, y)
	case Transform90:
		return image.Pt(h-y, x)
	case TransformFlipped90:
		return image.Pt(h-y, w-x)
	case Transform180:
		return image.Pt(w-x, h-y)
	case TransformFlipped180:
		return image.Pt(x, h-y)
	case Transform270:
		return image.Pt(y, w-x)
	case TransformFlipped270:
		return image.Pt(y, x)
	default:
		return p
	}
}

// Direct returns true if a node can be drawn straight from its
// source's pixels without preparing it first.
func Direct(n *Node) bool {
	return n.Transform == TransformNormal && n.Source.Size() == n.Dst.Size()
}

// Prepare returns a copy of src transformed by t and scaled to size.
// Scaling is bilinear.
func Prepare(src shmimage.Image, t Transform, size image.Point) *shmimage.ARGB8888 {
	bounds := src.Bounds()
	tsize := t.Size(bounds.Size())

	out := shmimage.NewARGB8888(image.Rectangle{Max: tsize})
	for y := 0; y < tsize.Y; y++ {
		for x := 0; x < tsize.X; x++ {
			p := t.Map(image.Pt(x, y), tsize).Add(bounds.Min)
			out.SetARGB8888(x, y, src.ARGB8888At(p.X, p.Y))
		}
	}
	if tsize == size {
		return out
	}

	scaled := shmimage.NewARGB8888(image.Rectangle{Max: size})
	draw.ApproxBiLinear.Scale(scaled, scaled.Rect, out, out.Rect, draw.Src, nil)
	return scaled
}

type prepared struct {
	serial    uint64
	transform Transform
	size      image.Point
	img       *shmimage.ARGB8888
}

// Cache keeps prepared copies of sources so that a transformed or
// scaled buffer is only prepared once per change of its content.
type Cache struct {
	entries map[uint64]prepared
}

// Get returns the prepared image for n, preparing it if the cached
// copy is missing or out of date.
func (c *Cache) Get(n *Node) (*shmimage.ARGB8888, error) {
	key, serial := n.Source.Key(), n.Source.Serial()
	size := n.Dst.Size()

	e, ok := c.entries[key]
	if ok && e.serial == serial && e.transform == n.Transform && e.size == size {
		return e.img, nil
	}

	var img *shmimage.ARGB8888
	err := n.Source.Read(func(src shmimage.Image) {
		img = Prepare(src, n.Transform, size)
	})
	if err != nil {
		return nil, err
	}

	if c.entries == nil {
		c.entries = make(map[uint64]prepared)
	}
	c.entries[key] = prepared{
		serial:    serial,
		transform: n.Transform,
		size:      size,
		img:       img,
	}
	return img, nil
}

// Forget drops the cached copy of the source with the given key.
func (c *Cache) Forget(key uint64) {
	delete(c.entries, key)
}
