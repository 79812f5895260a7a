package accel

import (
	"image"
	"testing"

	"deedles.dev/wlc/render"
	"deedles.dev/wlc/render/software"
	"deedles.dev/wlc/shm/shmimage"
)

func pattern(size image.Point, alpha uint8) *render.ImageSource {
	img := shmimage.NewARGB8888(image.Rectangle{Max: size})
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			r := uint8(x * 255 / size.X)
			g := uint8(y * 255 / size.Y)
			img.SetARGB8888(x, y, premultiply(r, g, 0x40, alpha))
		}
	}
	return render.NewImageSource(img)
}

func premultiply(r, g, b, a uint8) shmimage.ARGB8888Color {
	mul := func(c uint8) uint8 { return uint8((uint32(c)*uint32(a) + 127) / 255) }
	return shmimage.NewARGB8888Color(mul(r), mul(g), mul(b), a)
}

func testScene() *render.Scene {
	return &render.Scene{
		Background: shmimage.NewARGB8888Color(0x33, 0x1A, 0x33, 0xFF),
		Nodes: []render.Node{
			{Source: pattern(image.Pt(16, 16), 0xFF), Dst: image.Rect(2, 2, 18, 18), Alpha: 1},
			{Source: pattern(image.Pt(12, 8), 0x80), Dst: image.Rect(10, 6, 22, 14), Alpha: 0.8},
			{Source: pattern(image.Pt(8, 4), 0xFF), Dst: image.Rect(20, 12, 24, 20), Transform: render.Transform90, Alpha: 1},
			{Color: shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF), Dst: image.Rect(24, 0, 32, 4), Alpha: 1},
			{Color: shmimage.NewARGB8888Color(0, 0x80, 0, 0x80), Dst: image.Rect(0, 18, 12, 24), Alpha: 0.5},
		},
	}
}

func composite(t *testing.T, r render.Renderer, target render.Target, scene *render.Scene) *shmimage.ARGB8888 {
	t.Helper()

	err := r.Composite(target, scene)
	if err != nil {
		t.Fatalf("%v: %v", r.Name(), err)
	}
	return target.Image()
}

func compare(t *testing.T, want, got *shmimage.ARGB8888) {
	t.Helper()

	size := want.Rect.Size()
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			a, b := want.ARGB8888At(x, y), got.ARGB8888At(x, y)
			if a != b {
				t.Fatalf("pixel (%v, %v): software %#08x, accel %#08x", x, y, uint32(a), uint32(b))
			}
		}
	}
}

// TestEquivalence checks that the accelerated and software renderers
// produce the same frame for the same scene.
func TestEquivalence(t *testing.T) {
	size := image.Pt(32, 24)
	scene := testScene()

	sw := software.New()
	st, err := sw.NewTarget(size)
	if err != nil {
		t.Fatal(err)
	}
	want := composite(t, sw, st, scene)

	hw := newRenderer()
	at, err := hw.NewTarget(size)
	if err != nil {
		t.Fatal(err)
	}
	compare(t, want, composite(t, hw, at, scene))
}

func TestRepeatedComposite(t *testing.T) {
	size := image.Pt(32, 24)
	scene := testScene()

	sw := software.New()
	st, err := sw.NewTarget(size)
	if err != nil {
		t.Fatal(err)
	}
	want := composite(t, sw, st, scene)

	hw := newRenderer()
	targets := make([]render.Target, 2)
	for i := range targets {
		targets[i], err = hw.NewTarget(size)
		if err != nil {
			t.Fatal(err)
		}
	}
	for pass := 0; pass < 3; pass++ {
		for _, target := range targets {
			compare(t, want, composite(t, hw, target, scene))
		}
	}
}

func TestFillEdges(t *testing.T) {
	hw := newRenderer()
	target, err := hw.NewTarget(image.Pt(8, 8))
	if err != nil {
		t.Fatal(err)
	}

	red := shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF)
	img := composite(t, hw, target, &render.Scene{
		Background: shmimage.NewARGB8888Color(0, 0, 0, 0xFF),
		Nodes:      []render.Node{{Color: red, Dst: image.Rect(2, 2, 6, 6), Alpha: 1}},
	})
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := shmimage.NewARGB8888Color(0, 0, 0, 0xFF)
			if image.Pt(x, y).In(image.Rect(2, 2, 6, 6)) {
				want = red
			}
			if got := img.ARGB8888At(x, y); got != want {
				t.Fatalf("pixel (%v, %v) = %#08x, want %#08x", x, y, uint32(got), uint32(want))
			}
		}
	}
}

func TestBlendPixel(t *testing.T) {
	px := []uint8{0, 0, 0xFF, 0xFF}
	blendPixel(px, shmimage.NewARGB8888Color(0, 0x80, 0, 0x80), 255)
	want := []uint8{0, 0x80, 0x7F, 0xFF}
	for i := range want {
		if px[i] != want[i] {
			t.Fatalf("got %v, want %v", px, want)
		}
	}

	px = []uint8{1, 2, 3, 4}
	blendPixel(px, shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF), 255)
	if px[0] != 0xFF || px[3] != 0xFF || px[1] != 0 {
		t.Fatalf("opaque source not copied: %v", px)
	}
}
