package set

import (
	"slices"
	"testing"
)

func TestSet(t *testing.T) {
	s := New(3, 1, 2)
	if !s.Has(1) || s.Has(4) {
		t.Fatalf("bad membership: %v", s)
	}

	s.Add(4)
	s.Delete(1)
	got := s.Slice()
	slices.Sort(got)
	if !slices.Equal(got, []int{2, 3, 4}) {
		t.Fatalf("got %v", got)
	}
}
