package session

import (
	"os"
	"sync"
	"sync/atomic"
)

// Fake is a session that is controlled by calling its methods instead
// of by the kernel. Devices are opened directly.
type Fake struct {
	active atomic.Bool
	events chan Event

	m     sync.Mutex
	files []*os.File
	vt    int
}

// NewFake returns an active fake session on VT 1.
func NewFake() *Fake {
	s := Fake{
		events: make(chan Event, 16),
		vt:     1,
	}
	s.active.Store(true)
	return &s
}

func (s *Fake) Open(path string) (*os.File, error) {
	if !s.Active() {
		return nil, ErrInactive
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	s.m.Lock()
	defer s.m.Unlock()
	s.files = append(s.files, file)
	return file, nil
}

func (s *Fake) Release(file *os.File) {
	s.m.Lock()
	defer s.m.Unlock()

	for i, f := range s.files {
		if f == file {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return
		}
	}
}

func (s *Fake) Events() <-chan Event {
	return s.events
}

func (s *Fake) Active() bool {
	return s.active.Load()
}

// Pause disables the session as if the user had switched away.
func (s *Fake) Pause() {
	if s.active.Swap(false) {
		s.events <- Disable
	}
}

// Resume enables the session again.
func (s *Fake) Resume() {
	if !s.active.Swap(true) {
		s.events <- Enable
	}
}

// Switch pauses the session unless vt is the current one. Switching
// back to the session's own VT resumes it.
func (s *Fake) Switch(vt int) error {
	s.m.Lock()
	cur := s.vt
	s.m.Unlock()

	if vt == cur {
		s.Resume()
		return nil
	}
	s.Pause()
	return nil
}

func (s *Fake) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	for _, f := range s.files {
		f.Close()
	}
	s.files = nil
	return nil
}
