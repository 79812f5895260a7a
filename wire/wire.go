// Package wire implements the Wayland wire protocol: message framing,
// argument encoding, and file descriptor passing over Unix sockets.
package wire

import (
	"deedles.dev/wlc/internal/bin"
)

const (
	// HeaderSize is the size of a message header in bytes.
	HeaderSize = 8

	// MaxMessageSize is the largest message, header included, that
	// either side will accept.
	MaxMessageSize = 4096

	// MaxFDs is the most file descriptors that can accompany a single
	// sendmsg call on Linux.
	MaxFDs = 253

	// ServerIDStart is the first object ID in the range allocated by
	// servers. IDs below it belong to the client.
	ServerIDStart = 0xff000000
)

// Header is the fixed-size start of every message. Both words are in
// host byte order.
type Header struct {
	Sender uint32
	Op     uint16
	Size   uint16
}

func (h Header) put(buf []byte) {
	bin.Put(buf[0:], h.Sender)
	bin.Put(buf[4:], uint32(h.Size)<<16|uint32(h.Op))
}

func parseHeader(buf []byte) Header {
	so := bin.Get[uint32](buf[4:])
	return Header{
		Sender: bin.Get[uint32](buf[0:]),
		Op:     uint16(so & 0xFFFF),
		Size:   uint16(so >> 16),
	}
}

// NewID is an untyped new_id argument, which carries the interface and
// version of the object being created along with its ID. Typed new_id
// arguments only fill in ID.
type NewID struct {
	Interface string
	Version   uint32
	ID        uint32
}

// ObjectID is the decoded form of an object argument. Zero is null.
type ObjectID uint32

func padding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}
