package shmimage

import (
	"image"
	"image/color"
	"testing"
)

func TestARGB8888(t *testing.T) {
	img := NewARGB8888(image.Rect(0, 0, 4, 4))
	img.Set(1, 2, color.RGBA{R: 0x40, G: 0x20, B: 0x10, A: 0x80})

	c := img.ARGB8888At(1, 2)
	if c != NewARGB8888Color(0x40, 0x20, 0x10, 0x80) {
		t.Fatalf("pixel = %#08x", uint32(c))
	}

	r, g, b, a := c.RGBA()
	if r != 0x4040 || g != 0x2020 || b != 0x1010 || a != 0x8080 {
		t.Fatalf("RGBA = %x %x %x %x", r, g, b, a)
	}

	// Host byte order on little-endian machines puts blue first.
	i := img.PixOffset(1, 2)
	if img.Pix[i] != 0x10 && img.Pix[i+3] != 0x10 {
		t.Fatalf("unexpected layout %v", img.Pix[i:i+4])
	}

	sub := img.SubImage(image.Rect(1, 2, 3, 3)).(*ARGB8888)
	if sub.ARGB8888At(1, 2) != c {
		t.Fatal("subimage does not share pixels")
	}
	if img.Opaque() {
		t.Fatal("image with transparent pixels reported opaque")
	}
}

func TestXRGB8888(t *testing.T) {
	pix := make([]byte, 4*4)
	img := &XRGB8888{Pix: pix, Stride: 8, Rect: image.Rect(0, 0, 2, 2)}
	if a := img.ARGB8888At(0, 0).A(); a != 0xFF {
		t.Fatalf("alpha = %#x, want 0xff", a)
	}

	img.Set(1, 1, color.RGBA{R: 0xFF, A: 0xFF})
	if c := img.ARGB8888At(1, 1); c != NewARGB8888Color(0xFF, 0, 0, 0xFF) {
		t.Fatalf("pixel = %#08x", uint32(c))
	}
}
