package objstore

import "testing"

func TestAlloc(t *testing.T) {
	s := New[string](0xff000000)
	a := s.Alloc("a")
	b := s.Alloc("b")
	if a != 0xff000000 || b != 0xff000001 {
		t.Fatalf("allocated %#x, %#x", a, b)
	}

	s.Add(0xff000002, "taken")
	c := s.Alloc("c")
	if c != 0xff000003 {
		t.Fatalf("allocated %#x over an existing ID", c)
	}
}

func TestIDs(t *testing.T) {
	s := New[int](1)
	for _, id := range []uint32{3, 1, 7, 2} {
		s.Add(id, int(id))
	}
	s.Delete(2)

	ids := s.IDs()
	want := []uint32{7, 3, 1}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}
