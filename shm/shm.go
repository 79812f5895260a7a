// Package shm provides helpers for dealing with shared memory, both
// for creating it on the client side and for mapping pools received
// by the compositor.
package shm

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// ErrFault is returned by Guard if the memory being accessed went
// away, usually because a client truncated the file backing a pool.
var ErrFault = errors.New("shared memory fault")

// Create creates an anonymous shared memory file of the given size.
func Create(name string, size int64) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), name)

	if size > 0 {
		err = file.Truncate(size)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	return file, nil
}

// Seal prevents file from shrinking or being written to again. It is
// used for read-only data handed to clients, such as keymaps.
func Seal(file *os.File) error {
	_, err := unix.FcntlInt(file.Fd(), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_WRITE|unix.F_SEAL_SEAL)
	return err
}

type Mmap []byte

// Map maps the first size bytes of file.
func Map(file *os.File, size int, prot int) (mmap Mmap, err error) {
	sc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}

	cerr := sc.Control(func(fd uintptr) {
		m, merr := unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
		mmap, err = Mmap(m), merr
	})
	if cerr != nil {
		return nil, cerr
	}

	return mmap, err
}

func (mmap Mmap) Unmap() error {
	if mmap == nil {
		return nil
	}
	return unix.Munmap(mmap)
}

// Guard runs f, converting a memory fault inside it into ErrFault
// instead of crashing the process. Any other panic is propagated.
func Guard(f func()) (err error) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fault, ok := r.(interface{ Addr() uintptr }); ok {
			err = fmt.Errorf("%w at %#x", ErrFault, fault.Addr())
			return
		}
		panic(r)
	}()

	f()
	return nil
}
