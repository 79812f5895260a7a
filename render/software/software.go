// Package software implements a renderer that composites directly from
// client memory on the CPU.
//
// Buffers that are drawn untransformed at their natural size are read
// in place with no copy. Anything else is prepared once per content
// change and cached.
package software

import (
	"image"

	"deedles.dev/wlc/render"
	"deedles.dev/wlc/shm/shmimage"
)

func init() {
	render.Register(render.Software, func() (render.Renderer, error) {
		return New(), nil
	})
}

type Renderer struct {
	cache render.Cache
}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Name() string {
	return render.Software
}

// Target is a framebuffer in main memory.
type Target struct {
	img *shmimage.ARGB8888
}

func (r *Renderer) NewTarget(size image.Point) (render.Target, error) {
	return &Target{img: shmimage.NewARGB8888(image.Rectangle{Max: size})}, nil
}

func (t *Target) Size() image.Point {
	return t.img.Rect.Size()
}

func (t *Target) Image() *shmimage.ARGB8888 {
	return t.img
}

func (r *Renderer) Composite(target render.Target, scene *render.Scene) error {
	dst := target.(*Target).img
	clips := render.Clip(dst.Rect.Size(), scene.Damage)

	for _, clip := range clips {
		fill(dst, clip, scene.Background)
	}

	var ferr render.FaultError
	for i := range scene.Nodes {
		n := &scene.Nodes[i]
		alpha := alpha8(n.Alpha)
		if alpha == 0 {
			continue
		}

		if n.Source == nil {
			for _, clip := range clips {
				fillOver(dst, n.Dst.Intersect(clip), n.Color, alpha)
			}
			continue
		}

		err := r.draw(dst, n, clips, alpha)
		if err != nil {
			ferr.Sources = append(ferr.Sources, n.Source)
			ferr.Err = err
		}
	}

	if len(ferr.Sources) > 0 {
		return &ferr
	}
	return nil
}

func (r *Renderer) draw(dst *shmimage.ARGB8888, n *render.Node, clips []image.Rectangle, alpha uint32) error {
	if render.Direct(n) {
		return n.Source.Read(func(src shmimage.Image) {
			for _, clip := range clips {
				over(dst, n.Dst.Intersect(clip), src, src.Bounds().Min.Sub(n.Dst.Min), alpha)
			}
		})
	}

	img, err := r.cache.Get(n)
	if err != nil {
		return err
	}
	for _, clip := range clips {
		over(dst, n.Dst.Intersect(clip), img, img.Rect.Min.Sub(n.Dst.Min), alpha)
	}
	return nil
}

func (r *Renderer) Forget(key uint64) {
	r.cache.Forget(key)
}

func (r *Renderer) Close() error {
	return nil
}

func alpha8(a float64) uint32 {
	switch {
	case a <= 0:
		return 0
	case a >= 1:
		return 255
	default:
		return uint32(a*255 + 0.5)
	}
}

func div255(v uint32) uint32 {
	return (v + 127) / 255
}

// blend composites premultiplied src over dst with an extra alpha
// factor.
func blend(src, dst shmimage.ARGB8888Color, alpha uint32) shmimage.ARGB8888Color {
	if alpha == 255 {
		if src.A() == 0xFF {
			return src
		}
		if src.A() == 0 {
			return dst
		}
	}

	sa := div255(uint32(src.A()) * alpha)
	inv := 255 - sa
	ch := func(s, d uint8) uint8 {
		return uint8(div255(uint32(s)*alpha) + div255(uint32(d)*inv))
	}
	return shmimage.ARGB8888Color(
		uint32(ch(src.A(), dst.A()))<<24 |
			uint32(ch(src.R(), dst.R()))<<16 |
			uint32(ch(src.G(), dst.G()))<<8 |
			uint32(ch(src.B(), dst.B())),
	)
}

func fill(dst *shmimage.ARGB8888, r image.Rectangle, c shmimage.ARGB8888Color) {
	r = r.Intersect(dst.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetARGB8888(x, y, c)
		}
	}
}

func fillOver(dst *shmimage.ARGB8888, r image.Rectangle, c shmimage.ARGB8888Color, alpha uint32) {
	r = r.Intersect(dst.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetARGB8888(x, y, blend(c, dst.ARGB8888At(x, y), alpha))
		}
	}
}

// over draws the part of src that lands in r, where a destination
// point p reads the source at p.Add(delta).
func over(dst *shmimage.ARGB8888, r image.Rectangle, src shmimage.Image, delta image.Point, alpha uint32) {
	r = r.Intersect(dst.Rect).Intersect(src.Bounds().Sub(delta))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			s := src.ARGB8888At(x+delta.X, y+delta.Y)
			dst.SetARGB8888(x, y, blend(s, dst.ARGB8888At(x, y), alpha))
		}
	}
}
