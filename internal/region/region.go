// Package region implements sets of pixels represented as lists of
// non-overlapping rectangles. It is used for damage tracking as well
// as for opaque and input regions.
package region

import (
	"image"
)

// Region is a set of non-overlapping, non-empty rectangles. The zero
// value is an empty region.
type Region struct {
	rects []image.Rectangle
}

// Infinite is a region large enough to cover any surface.
func Infinite() Region {
	return Rect(image.Rect(-1<<30, -1<<30, 1<<30, 1<<30))
}

// Rect returns a region covering r.
func Rect(r image.Rectangle) Region {
	var reg Region
	reg.Add(r)
	return reg
}

func (reg Region) Empty() bool {
	return len(reg.rects) == 0
}

// Rects returns the rectangles making up reg. The returned slice must
// not be modified.
func (reg Region) Rects() []image.Rectangle {
	return reg.rects
}

// Clone returns a copy of reg that does not share storage with it.
func (reg Region) Clone() Region {
	return Region{rects: append([]image.Rectangle(nil), reg.rects...)}
}

func (reg *Region) Clear() {
	reg.rects = reg.rects[:0]
}

// Add adds r to reg.
func (reg *Region) Add(r image.Rectangle) {
	if r.Empty() {
		return
	}

	pieces := []image.Rectangle{r}
	for _, existing := range reg.rects {
		pieces = subtractAll(pieces, existing)
		if len(pieces) == 0 {
			return
		}
	}
	reg.rects = append(reg.rects, pieces...)
}

// Union adds all of other to reg.
func (reg *Region) Union(other Region) {
	for _, r := range other.rects {
		reg.Add(r)
	}
}

// Subtract removes r from reg.
func (reg *Region) Subtract(r image.Rectangle) {
	if r.Empty() {
		return
	}
	reg.rects = subtractAll(reg.rects, r)
}

// Intersect returns the part of reg that lies inside r.
func (reg Region) Intersect(r image.Rectangle) Region {
	var out Region
	for _, existing := range reg.rects {
		i := existing.Intersect(r)
		if !i.Empty() {
			out.rects = append(out.rects, i)
		}
	}
	return out
}

// Translate returns reg moved by p.
func (reg Region) Translate(p image.Point) Region {
	out := Region{rects: make([]image.Rectangle, 0, len(reg.rects))}
	for _, r := range reg.rects {
		out.rects = append(out.rects, r.Add(p))
	}
	return out
}

// Contains returns true if p is in reg.
func (reg Region) Contains(p image.Point) bool {
	for _, r := range reg.rects {
		if p.In(r) {
			return true
		}
	}
	return false
}

// Covers returns true if every pixel of r is in reg.
func (reg Region) Covers(r image.Rectangle) bool {
	if r.Empty() {
		return true
	}
	pieces := []image.Rectangle{r}
	for _, existing := range reg.rects {
		pieces = subtractAll(pieces, existing)
		if len(pieces) == 0 {
			return true
		}
	}
	return false
}

// Bounds returns the smallest rectangle containing all of reg.
func (reg Region) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, r := range reg.rects {
		b = b.Union(r)
	}
	return b
}

// Area returns the number of pixels in reg.
func (reg Region) Area() int {
	var a int
	for _, r := range reg.rects {
		a += r.Dx() * r.Dy()
	}
	return a
}

func subtractAll(rects []image.Rectangle, cut image.Rectangle) []image.Rectangle {
	out := rects[:0:0]
	for _, r := range rects {
		out = append(out, subtract(r, cut)...)
	}
	return out
}

// subtract returns up to four rectangles covering r minus cut.
func subtract(r, cut image.Rectangle) []image.Rectangle {
	i := r.Intersect(cut)
	if i.Empty() {
		return []image.Rectangle{r}
	}

	out := make([]image.Rectangle, 0, 4)
	if i.Min.Y > r.Min.Y {
		out = append(out, image.Rect(r.Min.X, r.Min.Y, r.Max.X, i.Min.Y))
	}
	if i.Max.Y < r.Max.Y {
		out = append(out, image.Rect(r.Min.X, i.Max.Y, r.Max.X, r.Max.Y))
	}
	if i.Min.X > r.Min.X {
		out = append(out, image.Rect(r.Min.X, i.Min.Y, i.Min.X, i.Max.Y))
	}
	if i.Max.X < r.Max.X {
		out = append(out, image.Rect(i.Max.X, i.Min.Y, r.Max.X, i.Max.Y))
	}
	return out
}
