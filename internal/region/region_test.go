package region

import (
	"image"
	"testing"
)

func TestAddOverlap(t *testing.T) {
	var reg Region
	reg.Add(image.Rect(0, 0, 10, 10))
	reg.Add(image.Rect(5, 5, 15, 15))

	if a := reg.Area(); a != 175 {
		t.Fatalf("area = %v, want 175", a)
	}
	if b := reg.Bounds(); b != image.Rect(0, 0, 15, 15) {
		t.Fatalf("bounds = %v", b)
	}
	if reg.Contains(image.Pt(12, 2)) {
		t.Fatal("contains point outside both rectangles")
	}
}

func TestSubtract(t *testing.T) {
	reg := Rect(image.Rect(0, 0, 10, 10))
	reg.Subtract(image.Rect(2, 2, 8, 8))

	if a := reg.Area(); a != 64 {
		t.Fatalf("area = %v, want 64", a)
	}
	if reg.Contains(image.Pt(5, 5)) {
		t.Fatal("hole still contained")
	}
	if !reg.Contains(image.Pt(1, 5)) {
		t.Fatal("edge not contained")
	}
}

func TestCovers(t *testing.T) {
	var reg Region
	reg.Add(image.Rect(0, 0, 5, 10))
	reg.Add(image.Rect(5, 0, 10, 10))

	if !reg.Covers(image.Rect(2, 2, 8, 8)) {
		t.Fatal("split region should cover")
	}
	if reg.Covers(image.Rect(2, 2, 12, 8)) {
		t.Fatal("region should not cover overhang")
	}
}

func TestIntersectTranslate(t *testing.T) {
	reg := Rect(image.Rect(0, 0, 10, 10)).Translate(image.Pt(5, 5))
	i := reg.Intersect(image.Rect(0, 0, 8, 8))
	if b := i.Bounds(); b != image.Rect(5, 5, 8, 8) {
		t.Fatalf("bounds = %v", b)
	}
}
