package render_test

import (
	"errors"
	"image"
	"testing"

	"deedles.dev/wlc/render"
	_ "deedles.dev/wlc/render/software"
	"deedles.dev/wlc/shm/shmimage"
)

var (
	red   = shmimage.NewARGB8888Color(0xFF, 0, 0, 0xFF)
	green = shmimage.NewARGB8888Color(0, 0xFF, 0, 0xFF)
)

func TestTransform(t *testing.T) {
	// A 2x1 buffer: red on the left, green on the right.
	buf := shmimage.NewARGB8888(image.Rect(0, 0, 2, 1))
	buf.SetARGB8888(0, 0, red)
	buf.SetARGB8888(1, 0, green)

	tests := []struct {
		transform render.Transform
		size      image.Point
		first     shmimage.ARGB8888Color
	}{
		{render.TransformNormal, image.Pt(2, 1), red},
		{render.Transform90, image.Pt(1, 2), green},
		{render.Transform180, image.Pt(2, 1), green},
		{render.Transform270, image.Pt(1, 2), red},
		{render.TransformFlipped, image.Pt(2, 1), green},
		{render.TransformFlipped90, image.Pt(1, 2), green},
		{render.TransformFlipped180, image.Pt(2, 1), red},
		{render.TransformFlipped270, image.Pt(1, 2), red},
	}
	for _, test := range tests {
		size := test.transform.Size(buf.Rect.Size())
		if size != test.size {
			t.Errorf("transform %v: size %v, expected %v", test.transform, size, test.size)
			continue
		}

		img := render.Prepare(buf, test.transform, size)
		if c := img.ARGB8888At(0, 0); c != test.first {
			t.Errorf("transform %v: first pixel %#08x, expected %#08x", test.transform, uint32(c), uint32(test.first))
		}
	}
}

func TestPrepareScale(t *testing.T) {
	buf := shmimage.NewARGB8888(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			buf.SetARGB8888(x, y, red)
		}
	}

	img := render.Prepare(buf, render.TransformNormal, image.Pt(2, 2))
	if img.Rect.Size() != image.Pt(2, 2) {
		t.Fatalf("size %v", img.Rect.Size())
	}
	if c := img.ARGB8888At(1, 1); c != red {
		t.Fatalf("pixel %#08x", uint32(c))
	}
}

func TestCache(t *testing.T) {
	buf := shmimage.NewARGB8888(image.Rect(0, 0, 2, 1))
	src := render.NewImageSource(buf)
	n := render.Node{Source: src, Dst: image.Rect(0, 0, 1, 2), Transform: render.Transform90}

	var cache render.Cache
	a, err := cache.Get(&n)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := cache.Get(&n)
	if a != b {
		t.Fatal("unchanged source was prepared again")
	}

	src.Set(buf)
	c, _ := cache.Get(&n)
	if c == a {
		t.Fatal("changed source was not prepared again")
	}
}

func TestNew(t *testing.T) {
	t.Setenv("WLC_SOFTWARE", "1")
	r, err := render.New(render.Accel)
	if err != nil {
		t.Fatal(err)
	}
	if r.Name() != render.Software {
		t.Fatalf("got %q renderer", r.Name())
	}

	t.Setenv("WLC_SOFTWARE", "")
	r, err = render.New("nonexistent")
	if !errors.Is(err, render.ErrUnknown) {
		t.Fatalf("err = %v", err)
	}
	if r == nil || r.Name() != render.Software {
		t.Fatal("did not fall back to software")
	}
}
