package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/protocol"
	"golang.org/x/sys/unix"
)

// MessageBuffer holds message data that has been read from the socket
// but not yet decoded.
type MessageBuffer struct {
	sender uint32
	op     uint16
	size   uint16
	data   bytes.Reader
	conn   *Conn
	err    error
	args   []any
}

// NewMessageBuffer wraps an already framed payload. File descriptors
// are claimed from c, which may be nil if the message carries none.
func NewMessageBuffer(sender uint32, op uint16, payload []byte, c *Conn) *MessageBuffer {
	msg := MessageBuffer{
		sender: sender,
		op:     op,
		size:   uint16(HeaderSize + len(payload)),
		conn:   c,
	}
	msg.data.Reset(payload)
	return &msg
}

// Sender is the object ID of the sender of the message.
func (r *MessageBuffer) Sender() uint32 {
	return r.sender
}

// Op is the opcode of the message.
func (r *MessageBuffer) Op() uint16 {
	return r.op
}

// Size is the total size of the message, including the 8 byte header.
func (r *MessageBuffer) Size() uint16 {
	return r.size
}

func (r *MessageBuffer) Err() error {
	if errors.Is(r.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return r.err
}

func (r *MessageBuffer) ReadInt() (v int32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[int32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadUint() (v uint32) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[uint32](&r.data)
	r.args = append(r.args, v)
	return v
}

func (r *MessageBuffer) ReadObject() ObjectID {
	return ObjectID(r.ReadUint())
}

func (r *MessageBuffer) ReadNewID() NewID {
	return NewID{
		Interface: r.ReadString(),
		Version:   r.ReadUint(),
		ID:        r.ReadUint(),
	}
}

func (r *MessageBuffer) ReadFixed() (v Fixed) {
	if r.err != nil {
		return
	}

	v, r.err = bin.Read[Fixed](&r.data)
	r.args = append(r.args, v)
	return v
}

// ReadString reads a string argument. A zero length, which is how a
// null string is encoded, is returned as "" with ok set to false.
func (r *MessageBuffer) ReadString() string {
	v, _ := r.readString()
	return v
}

func (r *MessageBuffer) readString() (v string, ok bool) {
	if r.err != nil {
		return "", false
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return "", false
	}
	if length == 0 {
		r.args = append(r.args, nil)
		return "", false
	}
	if int64(length) > int64(r.data.Len()) {
		r.err = io.ErrUnexpectedEOF
		return "", false
	}

	buf := make([]byte, length+padding(length))
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return "", false
	}
	if buf[length-1] != 0 {
		r.err = errors.New("string is not null-terminated")
		return "", false
	}
	if bytes.IndexByte(buf[:length-1], 0) >= 0 {
		r.err = errors.New("string contains embedded null")
		return "", false
	}

	v = string(buf[:length-1])
	r.args = append(r.args, v)
	return v, true
}

func (r *MessageBuffer) ReadArray() []byte {
	if r.err != nil {
		return nil
	}

	length, err := bin.Read[uint32](&r.data)
	if err != nil {
		r.err = err
		return nil
	}
	if int64(length) > int64(r.data.Len()) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}

	buf := make([]byte, length+padding(length))
	_, r.err = io.ReadFull(&r.data, buf)
	if r.err != nil {
		return nil
	}

	r.args = append(r.args, buf[:length])
	return buf[:length]
}

func (r *MessageBuffer) ReadFile() *os.File {
	if r.err != nil {
		return nil
	}

	if r.conn == nil {
		r.err = errors.New("no connection to read file descriptors from")
		return nil
	}
	fd, ok := r.conn.takeFD()
	if !ok {
		r.err = errors.New("no more file descriptors")
		return nil
	}

	f := os.NewFile(uintptr(fd), "")
	r.args = append(r.args, f)
	return f
}

// Decode reads every argument of op, in order, validating each one
// against its declared type. It returns an error if an argument is
// malformed, a non-nullable argument is null, or if bytes are left
// over afterwards. Files that were claimed before a failure are closed.
func (r *MessageBuffer) Decode(op *protocol.Op) (Args, error) {
	args := make(Args, 0, len(op.Args))
	fail := func(arg protocol.Arg, err error) (Args, error) {
		args.Close()
		return nil, &ArgError{Arg: arg.Name, Err: err}
	}

	for _, arg := range op.Args {
		switch arg.Kind() {
		case protocol.KindInt:
			args = append(args, r.ReadInt())

		case protocol.KindUint:
			args = append(args, r.ReadUint())

		case protocol.KindFixed:
			args = append(args, r.ReadFixed())

		case protocol.KindString:
			v, ok := r.readString()
			if r.err == nil && !ok && !arg.AllowNull {
				return fail(arg, errors.New("null string"))
			}
			args = append(args, v)

		case protocol.KindObject:
			v := r.ReadObject()
			if r.err == nil && v == 0 && !arg.AllowNull {
				return fail(arg, errors.New("null object"))
			}
			args = append(args, v)

		case protocol.KindNewID:
			var v NewID
			if arg.Interface == "" {
				v = r.ReadNewID()
			} else {
				v = NewID{Interface: arg.Interface, ID: r.ReadUint()}
			}
			if r.err == nil && v.ID == 0 {
				return fail(arg, errors.New("null new_id"))
			}
			args = append(args, v)

		case protocol.KindArray:
			args = append(args, r.ReadArray())

		case protocol.KindFD:
			args = append(args, r.ReadFile())

		default:
			return fail(arg, fmt.Errorf("unknown argument type %q", arg.Type))
		}

		if r.err != nil {
			return fail(arg, r.Err())
		}
	}

	if r.data.Len() != 0 {
		args.Close()
		return nil, fmt.Errorf("%v trailing bytes", r.data.Len())
	}

	return args, nil
}

// Args are the decoded arguments of a message. Accessors panic if the
// argument at the index is not of the expected type, which can only
// happen if they disagree with the signature that was decoded.
type Args []any

func (a Args) Int(i int) int32       { return a[i].(int32) }
func (a Args) Uint(i int) uint32     { return a[i].(uint32) }
func (a Args) Fixed(i int) Fixed     { return a[i].(Fixed) }
func (a Args) String(i int) string   { return a[i].(string) }
func (a Args) Object(i int) ObjectID { return a[i].(ObjectID) }
func (a Args) NewID(i int) NewID     { return a[i].(NewID) }
func (a Args) Array(i int) []byte    { return a[i].([]byte) }

// File returns the file at index i and gives up ownership of it: a
// later Close will not close it.
func (a Args) File(i int) *os.File {
	f := a[i].(*os.File)
	a[i] = (*os.File)(nil)
	return f
}

// Close closes any files that were never claimed with File.
func (a Args) Close() {
	for i, arg := range a {
		f, ok := arg.(*os.File)
		if ok && f != nil {
			f.Close()
			a[i] = (*os.File)(nil)
		}
	}
}

// dupFD duplicates fd with close-on-exec set.
func dupFD(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}
