// Package accel implements a renderer on top of gg's pixmaps. It is
// only offered when gg finds a GPU accelerator.
//
// Client buffers are uploaded into textures once per change of their
// content. Textures are kept until the buffer is forgotten.
package accel

import (
	"errors"
	"fmt"
	"image"

	"deedles.dev/wlc/internal/log"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/shm/shmimage"
	"github.com/gogpu/gg"
	_ "github.com/gogpu/gg/gpu"
	"github.com/sirupsen/logrus"
)

func init() {
	render.Register(render.Accel, func() (render.Renderer, error) {
		return New()
	})
}

// ErrNoAccelerator is returned by New if no GPU could be initialized.
var ErrNoAccelerator = errors.New("no GPU accelerator available")

type texture struct {
	serial    uint64
	transform render.Transform
	size      image.Point
	buf       *gg.ImageBuf
}

type Renderer struct {
	textures map[uint64]*texture
	logger   *logrus.Entry
}

// New creates a renderer. It fails if gg has no accelerator, in which
// case the software renderer is a better choice.
func New() (*Renderer, error) {
	a := gg.Accelerator()
	if a == nil {
		return nil, ErrNoAccelerator
	}

	r := newRenderer()
	r.logger.WithField("accelerator", a.Name()).Infoln("using GPU accelerator")
	return r, nil
}

func newRenderer() *Renderer {
	return &Renderer{
		textures: make(map[uint64]*texture),
		logger:   log.For("accel"),
	}
}

func (r *Renderer) Name() string {
	return render.Accel
}

// Target is a gg pixmap. Pixmaps hold premultiplied RGBA.
type Target struct {
	pm  *gg.Pixmap
	img *shmimage.ARGB8888
}

func (r *Renderer) NewTarget(size image.Point) (render.Target, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid target size %v", size)
	}

	return &Target{
		pm:  gg.NewPixmap(size.X, size.Y),
		img: shmimage.NewARGB8888(image.Rectangle{Max: size}),
	}, nil
}

func (t *Target) Size() image.Point {
	return t.img.Rect.Size()
}

// Image reads the pixmap back into argb8888.
func (t *Target) Image() *shmimage.ARGB8888 {
	data := t.pm.Data()
	size := t.Size()
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			px := data[(y*size.X+x)*4:]
			t.img.SetARGB8888(x, y, shmimage.NewARGB8888Color(px[0], px[1], px[2], px[3]))
		}
	}
	return t.img
}

// Composite draws the scene into the target's pixmap. Everything in a
// scene is pixel aligned, so nodes are blended per pixel rather than
// rasterized as paths, which would anti-alias their edges.
func (r *Renderer) Composite(target render.Target, scene *render.Scene) error {
	t := target.(*Target)
	clips := render.Clip(t.Size(), scene.Damage)

	for _, clip := range clips {
		fillRect(t.pm, clip, scene.Background, 255)
	}

	var ferr render.FaultError
	for i := range scene.Nodes {
		n := &scene.Nodes[i]
		alpha := alpha8(n.Alpha)
		if alpha == 0 || n.Dst.Empty() {
			continue
		}

		if n.Source == nil {
			for _, clip := range clips {
				fillRect(t.pm, n.Dst.Intersect(clip), n.Color, alpha)
			}
			continue
		}

		tex, err := r.texture(n)
		if err != nil {
			ferr.Sources = append(ferr.Sources, n.Source)
			ferr.Err = err
			continue
		}
		for _, clip := range clips {
			drawTexture(t.pm, n.Dst.Intersect(clip), tex.buf, n.Dst.Min, alpha)
		}
	}
	t.pm.NotifyPixelsChanged()

	if len(ferr.Sources) > 0 {
		return &ferr
	}
	return nil
}

func (r *Renderer) texture(n *render.Node) (*texture, error) {
	key, serial := n.Source.Key(), n.Source.Serial()
	size := n.Dst.Size()

	tex, ok := r.textures[key]
	if ok && tex.serial == serial && tex.transform == n.Transform && tex.size == size {
		return tex, nil
	}

	buf, err := gg.NewImageBuf(size.X, size.Y, gg.FormatRGBAPremul)
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}

	err = n.Source.Read(func(src shmimage.Image) {
		if !render.Direct(n) {
			src = render.Prepare(src, n.Transform, size)
		}
		upload(buf, src)
	})
	if err != nil {
		return nil, err
	}

	tex = &texture{
		serial:    serial,
		transform: n.Transform,
		size:      size,
		buf:       buf,
	}
	r.textures[key] = tex
	return tex, nil
}

// upload copies src into buf, keeping it premultiplied.
func upload(buf *gg.ImageBuf, src shmimage.Image) {
	bounds := src.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := src.ARGB8888At(x, y)
			buf.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, c.R(), c.G(), c.B(), c.A())
		}
	}
}

// fillRect blends a solid color into the pixmap.
func fillRect(pm *gg.Pixmap, rect image.Rectangle, c shmimage.ARGB8888Color, alpha uint32) {
	if rect.Empty() {
		return
	}
	if alpha == 255 && c.A() == 0xFF {
		pm.FillRect(rect, c.R(), c.G(), c.B(), c.A())
		return
	}

	rect = rect.Intersect(image.Rect(0, 0, pm.Width(), pm.Height()))
	data := pm.Data()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			blendPixel(data[(y*pm.Width()+x)*4:], c, alpha)
		}
	}
}

// drawTexture blends the part of tex that lands on rect, with tex's
// origin placed at origin.
func drawTexture(pm *gg.Pixmap, rect image.Rectangle, tex *gg.ImageBuf, origin image.Point, alpha uint32) {
	w, h := tex.Bounds()
	rect = rect.
		Intersect(image.Rect(0, 0, pm.Width(), pm.Height())).
		Intersect(image.Rect(0, 0, w, h).Add(origin))
	if rect.Empty() {
		return
	}

	data := pm.Data()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			s := tex.PixelBytes(x-origin.X, y-origin.Y)
			c := shmimage.NewARGB8888Color(s[0], s[1], s[2], s[3])
			blendPixel(data[(y*pm.Width()+x)*4:], c, alpha)
		}
	}
}

// blendPixel composites premultiplied c over the premultiplied RGBA
// pixel px with an extra alpha factor.
func blendPixel(px []uint8, c shmimage.ARGB8888Color, alpha uint32) {
	if alpha == 255 {
		switch c.A() {
		case 0:
			return
		case 0xFF:
			px[0], px[1], px[2], px[3] = c.R(), c.G(), c.B(), c.A()
			return
		}
	}

	inv := 255 - div255(uint32(c.A())*alpha)
	ch := func(s, d uint8) uint8 {
		return uint8(div255(uint32(s)*alpha) + div255(uint32(d)*inv))
	}
	px[0] = ch(c.R(), px[0])
	px[1] = ch(c.G(), px[1])
	px[2] = ch(c.B(), px[2])
	px[3] = ch(c.A(), px[3])
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

func (r *Renderer) Forget(key uint64) {
	delete(r.textures, key)
}

func (r *Renderer) Close() error {
	clear(r.textures)
	return nil
}
