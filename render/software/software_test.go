package software

import (
	"errors"
	"image"
	"testing"

	"deedles.dev/wlc/internal/region"
	"deedles.dev/wlc/render"
	"deedles.dev/wlc/shm"
	"deedles.dev/wlc/shm/shmimage"
)

var (
	black = shmimage.NewARGB8888Color(0, 0, 0, 0xFF)
	red   = shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF)
	blue  = shmimage.NewARGB8888Color(0, 0, 0xFF, 0xFF)
)

func solid(size image.Point, c shmimage.ARGB8888Color) *render.ImageSource {
	img := shmimage.NewARGB8888(image.Rectangle{Max: size})
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			img.SetARGB8888(x, y, c)
		}
	}
	return render.NewImageSource(img)
}

type faultSource struct{ *render.ImageSource }

func (faultSource) Read(func(shmimage.Image)) error {
	return shm.ErrFault
}

func TestComposite(t *testing.T) {
	r := New()
	target, err := r.NewTarget(image.Pt(8, 8))
	if err != nil {
		t.Fatal(err)
	}

	scene := render.Scene{
		Background: black,
		Nodes: []render.Node{
			{Source: solid(image.Pt(4, 4), red), Dst: image.Rect(0, 0, 4, 4), Alpha: 1},
			{Source: solid(image.Pt(4, 4), blue), Dst: image.Rect(2, 2, 6, 6), Alpha: 0.5},
			{Color: red, Dst: image.Rect(6, 6, 8, 8), Alpha: 1},
		},
	}
	err = r.Composite(target, &scene)
	if err != nil {
		t.Fatal(err)
	}

	img := target.Image()
	tests := []struct {
		p image.Point
		c shmimage.ARGB8888Color
	}{
		{image.Pt(0, 0), red},
		{image.Pt(3, 3), shmimage.NewARGB8888Color(0x7F, 0, 0x80, 0xFF)},
		{image.Pt(5, 5), shmimage.NewARGB8888Color(0, 0, 0x80, 0xFF)},
		{image.Pt(7, 0), black},
		{image.Pt(7, 7), red},
	}
	for _, test := range tests {
		if c := img.ARGB8888At(test.p.X, test.p.Y); c != test.c {
			t.Errorf("pixel at %v is %#08x, expected %#08x", test.p, uint32(c), uint32(test.c))
		}
	}
}

func TestCompositeDamage(t *testing.T) {
	r := New()
	target, _ := r.NewTarget(image.Pt(4, 4))

	scene := render.Scene{Background: black}
	r.Composite(target, &scene)

	scene = render.Scene{
		Background: black,
		Nodes:      []render.Node{{Color: red, Dst: image.Rect(0, 0, 4, 4), Alpha: 1}},
		Damage:     region.Rect(image.Rect(0, 0, 2, 2)),
	}
	r.Composite(target, &scene)

	img := target.Image()
	if c := img.ARGB8888At(1, 1); c != red {
		t.Fatalf("damaged pixel is %#08x", uint32(c))
	}
	if c := img.ARGB8888At(3, 3); c != black {
		t.Fatalf("undamaged pixel is %#08x", uint32(c))
	}
}

func TestCompositeFault(t *testing.T) {
	r := New()
	target, _ := r.NewTarget(image.Pt(4, 4))

	bad := faultSource{solid(image.Pt(2, 2), blue)}
	scene := render.Scene{
		Background: black,
		Nodes: []render.Node{
			{Source: bad, Dst: image.Rect(0, 0, 2, 2), Alpha: 1},
			{Source: solid(image.Pt(2, 2), red), Dst: image.Rect(2, 2, 4, 4), Alpha: 1},
		},
	}
	err := r.Composite(target, &scene)

	var ferr *render.FaultError
	if !errors.As(err, &ferr) || !errors.Is(err, shm.ErrFault) {
		t.Fatalf("err = %v", err)
	}
	if len(ferr.Sources) != 1 || ferr.Sources[0] != render.Source(bad) {
		t.Fatalf("faulted sources = %v", ferr.Sources)
	}
	if c := target.Image().ARGB8888At(3, 3); c != red {
		t.Fatal("rest of the scene was not drawn")
	}
}

func TestBlend(t *testing.T) {
	tests := []struct {
		src, dst shmimage.ARGB8888Color
		alpha    uint32
		out      shmimage.ARGB8888Color
	}{
		{red, black, 255, red},
		{0, red, 255, red},
		{shmimage.NewARGB8888Color(0x80, 0, 0, 0x80), blue, 255, shmimage.NewARGB8888Color(0x80, 0, 0x7F, 0xFF)},
		{red, blue, 0, blue},
	}
	for _, test := range tests {
		out := blend(test.src, test.dst, test.alpha)
		if out != test.out {
			t.Errorf("blend(%#08x, %#08x, %v) = %#08x, expected %#08x", uint32(test.src), uint32(test.dst), test.alpha, uint32(out), uint32(test.out))
		}
	}
}
