// Package objstore provides an ID-keyed object table.
package objstore

import (
	"golang.org/x/exp/slices"
)

type Store[T any] struct {
	objects map[uint32]T
	start   uint32
	nextID  uint32
}

// New returns a store that allocates IDs from start upwards.
func New[T any](start uint32) *Store[T] {
	return &Store[T]{
		objects: make(map[uint32]T),
		start:   start,
		nextID:  start,
	}
}

// Add stores v under id, replacing anything already there.
func (s *Store[T]) Add(id uint32, v T) {
	s.objects[id] = v
}

// Alloc stores v under the lowest unused ID at or after the allocation
// cursor and returns that ID.
func (s *Store[T]) Alloc(v T) uint32 {
	for {
		id := s.nextID
		s.nextID++
		if s.nextID == 0 {
			s.nextID = s.start
		}
		if _, ok := s.objects[id]; !ok {
			s.objects[id] = v
			return id
		}
	}
}

func (s *Store[T]) Get(id uint32) (T, bool) {
	v, ok := s.objects[id]
	return v, ok
}

func (s *Store[T]) Has(id uint32) bool {
	_, ok := s.objects[id]
	return ok
}

func (s *Store[T]) Delete(id uint32) (T, bool) {
	v, ok := s.objects[id]
	delete(s.objects, id)
	return v, ok
}

func (s *Store[T]) Len() int {
	return len(s.objects)
}

// IDs returns every ID in the store in descending order, which is the
// order that objects should be torn down in so that children created
// after their parents go first.
func (s *Store[T]) IDs() []uint32 {
	ids := make([]uint32, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uint32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})
	return ids
}
