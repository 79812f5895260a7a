// Package bin contains utilities for dealing with native-endian binary
// representations of 32-bit values.
package bin

import (
	"io"
	"unsafe"
)

type Word interface {
	~int32 | ~uint32
}

func Bytes[T Word](v T) [4]byte {
	return *(*[4]byte)(unsafe.Pointer(&v))
}

func Value[T Word](data [4]byte) T {
	return *(*T)(unsafe.Pointer(&data))
}

func Read[T Word](r io.Reader) (T, error) {
	var data [4]byte
	_, err := io.ReadFull(r, data[:])
	if err != nil {
		return 0, err
	}

	return Value[T](data), nil
}

func Write[T Word](w io.Writer, v T) error {
	data := Bytes(v)
	n, err := w.Write(data[:])
	if (err == nil) && (n < len(data)) {
		return io.ErrShortWrite
	}
	return err
}

// Append appends the representation of v to buf.
func Append[T Word](buf []byte, v T) []byte {
	data := Bytes(v)
	return append(buf, data[:]...)
}

// Put writes the representation of v to the start of buf, which must
// be at least 4 bytes long.
func Put[T Word](buf []byte, v T) {
	data := Bytes(v)
	copy(buf, data[:])
}

// Get reads a value from the start of buf.
func Get[T Word](buf []byte) T {
	return Value[T]([4]byte(buf[:4]))
}
