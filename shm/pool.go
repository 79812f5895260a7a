package shm

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Pool is a client's shared memory pool as seen by the compositor. It
// stays mapped until it has been released by its owner and by every
// buffer created from it.
type Pool struct {
	file *os.File
	data Mmap
	refs int
}

// NewPool maps size bytes of file read-only. The pool takes ownership
// of file.
func NewPool(file *os.File, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid pool size %v", size)
	}

	var st unix.Stat_t
	err := unix.Fstat(int(file.Fd()), &st)
	if err != nil {
		return nil, fmt.Errorf("stat pool: %w", err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFREG && st.Size < int64(size) {
		return nil, fmt.Errorf("pool size %v exceeds file size %v", size, st.Size)
	}

	data, err := Map(file, size, unix.PROT_READ)
	if err != nil {
		return nil, fmt.Errorf("map pool: %w", err)
	}

	return &Pool{
		file: file,
		data: data,
		refs: 1,
	}, nil
}

// Size returns the mapped size of the pool.
func (p *Pool) Size() int {
	return len(p.data)
}

// Data returns the pool's memory. It is only valid until the next call
// to Resize or the last call to Unref, and must only be read inside
// Guard.
func (p *Pool) Data() []byte {
	return p.data
}

// Resize grows the pool to size bytes. Pools can never shrink.
func (p *Pool) Resize(size int) error {
	if size < len(p.data) {
		return errors.New("pools cannot shrink")
	}
	if size == len(p.data) {
		return nil
	}

	data, err := Map(p.file, size, unix.PROT_READ)
	if err != nil {
		return fmt.Errorf("remap pool: %w", err)
	}

	p.data.Unmap()
	p.data = data
	return nil
}

func (p *Pool) Ref() {
	p.refs++
}

// Unref drops a reference, unmapping the pool when there are none
// left.
func (p *Pool) Unref() {
	p.refs--
	if p.refs > 0 {
		return
	}

	p.data.Unmap()
	p.data = nil
	p.file.Close()
}
