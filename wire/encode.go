package wire

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/protocol"
	"golang.org/x/sys/unix"
)

// MessageBuilder is a message that is under construction.
type MessageBuilder struct {
	// Method is the name of the method being called. It is included
	// purely for debugging purposes.
	Method string

	// Interface is the interface of the sender. It is included purely
	// for debugging purposes.
	Interface string

	// Args is the original set of arguments from which this
	// MessageBuilder was generated. It is included purely for
	// debugging purposes.
	Args []any

	sender uint32
	op     uint16
	data   []byte
	fds    []int
	err    error
}

func NewMessage(sender uint32, op uint16) *MessageBuilder {
	return &MessageBuilder{
		sender: sender,
		op:     op,
		data:   make([]byte, HeaderSize, 32),
	}
}

func (mb *MessageBuilder) Sender() uint32 {
	return mb.sender
}

func (mb *MessageBuilder) Op() uint16 {
	return mb.op
}

// Err returns the first error encountered while building the message.
func (mb *MessageBuilder) Err() error {
	return mb.err
}

// FDs is the number of file descriptors attached to the message.
func (mb *MessageBuilder) FDs() int {
	return len(mb.fds)
}

func (mb *MessageBuilder) WriteInt(v int32) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteUint(v uint32) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteObject(v ObjectID) {
	mb.WriteUint(uint32(v))
}

func (mb *MessageBuilder) WriteNewID(v NewID) {
	mb.WriteString(v.Interface)
	mb.WriteUint(v.Version)
	mb.WriteUint(v.ID)
}

func (mb *MessageBuilder) WriteFixed(v Fixed) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, v)
}

func (mb *MessageBuilder) WriteString(v string) {
	if mb.err != nil {
		return
	}

	length := uint32(len(v) + 1)
	mb.data = bin.Append(mb.data, length)
	mb.data = append(mb.data, v...)
	mb.data = append(mb.data, 0)
	mb.pad(length)
}

// WriteNullString writes the encoding of a null string, which is a
// zero length and no data.
func (mb *MessageBuilder) WriteNullString() {
	mb.WriteUint(0)
}

func (mb *MessageBuilder) WriteArray(v []byte) {
	if mb.err != nil {
		return
	}

	mb.data = bin.Append(mb.data, uint32(len(v)))
	mb.data = append(mb.data, v...)
	mb.pad(uint32(len(v)))
}

func (mb *MessageBuilder) pad(length uint32) {
	for i := uint32(0); i < padding(length); i++ {
		mb.data = append(mb.data, 0)
	}
}

// WriteFile attaches a duplicate of v's descriptor to the message. The
// duplicate is closed once the message has been written, so the caller
// keeps ownership of v.
func (mb *MessageBuilder) WriteFile(v *os.File) {
	if mb.err != nil {
		return
	}
	if v == nil {
		mb.err = errors.New("nil file")
		return
	}

	fd, err := dupFD(int(v.Fd()))
	if err != nil {
		mb.err = fmt.Errorf("dup fd: %w", err)
		return
	}

	if len(mb.fds) == 0 {
		runtime.SetFinalizer(mb, (*MessageBuilder).close)
	}

	mb.fds = append(mb.fds, fd)
}

// bytes finishes the message by filling in its header. The returned
// slice aliases the builder's buffer.
func (mb *MessageBuilder) bytes() ([]byte, []int, error) {
	if mb.err != nil {
		return nil, nil, mb.err
	}
	if len(mb.data) > MaxMessageSize {
		return nil, nil, &MessageError{
			Sender: mb.sender,
			Op:     mb.op,
			Err:    fmt.Errorf("message size %v exceeds maximum", len(mb.data)),
		}
	}

	Header{Sender: mb.sender, Op: mb.op, Size: uint16(len(mb.data))}.put(mb.data)
	return mb.data, mb.fds, nil
}

func (mb *MessageBuilder) close() {
	errs := make([]error, 0, len(mb.fds))
	for _, fd := range mb.fds {
		errs = append(errs, unix.Close(fd))
	}
	if mb.err == nil {
		mb.err = errors.Join(errs...)
	}
	mb.fds = nil
	runtime.SetFinalizer(mb, nil)
}

// Close releases any file descriptors attached to a message that will
// not be written.
func (mb *MessageBuilder) Close() error {
	mb.close()
	return mb.err
}

func (mb *MessageBuilder) String() string {
	return FormatMessage(mb.Interface, mb.sender, mb.Method, mb.Args)
}

// Encode builds a message for op from args, checking each argument
// against the signature. Accepted Go types are int32 or int for int,
// uint32 for uint, Fixed or float64 for fixed, string for string,
// ObjectID or uint32 for object, NewID or uint32 for new_id, []byte
// for array, and *os.File for fd. A nil argument is null, which only
// nullable string and object arguments accept.
func Encode(sender uint32, opcode uint16, op *protocol.Op, args ...any) (*MessageBuilder, error) {
	if len(args) != len(op.Args) {
		return nil, fmt.Errorf("%v: expected %v arguments but got %v", op.Name, len(op.Args), len(args))
	}

	mb := NewMessage(sender, opcode)
	mb.Method = op.Name
	mb.Args = args
	for i, arg := range op.Args {
		err := mb.encodeArg(arg, args[i])
		if err != nil {
			mb.close()
			return nil, fmt.Errorf("%v: %w", op.Name, &ArgError{Arg: arg.Name, Err: err})
		}
	}
	if mb.err != nil {
		mb.close()
		return nil, mb.err
	}

	return mb, nil
}

func (mb *MessageBuilder) encodeArg(arg protocol.Arg, v any) error {
	if v == nil {
		if !arg.AllowNull {
			return errors.New("null value for non-nullable argument")
		}
		switch arg.Kind() {
		case protocol.KindString:
			mb.WriteNullString()
		case protocol.KindObject:
			mb.WriteObject(0)
		default:
			return fmt.Errorf("%v arguments cannot be null", arg.Kind())
		}
		return nil
	}

	switch arg.Kind() {
	case protocol.KindInt:
		switch v := v.(type) {
		case int32:
			mb.WriteInt(v)
		case int:
			mb.WriteInt(int32(v))
		default:
			return typeError(arg, v)
		}

	case protocol.KindUint:
		switch v := v.(type) {
		case uint32:
			mb.WriteUint(v)
		case int:
			mb.WriteUint(uint32(v))
		default:
			return typeError(arg, v)
		}

	case protocol.KindFixed:
		switch v := v.(type) {
		case Fixed:
			mb.WriteFixed(v)
		case float64:
			mb.WriteFixed(FixedFloat(v))
		default:
			return typeError(arg, v)
		}

	case protocol.KindString:
		str, ok := v.(string)
		if !ok {
			return typeError(arg, v)
		}
		mb.WriteString(str)

	case protocol.KindObject:
		switch v := v.(type) {
		case ObjectID:
			if v == 0 && !arg.AllowNull {
				return errors.New("null object")
			}
			mb.WriteObject(v)
		case uint32:
			if v == 0 && !arg.AllowNull {
				return errors.New("null object")
			}
			mb.WriteUint(v)
		default:
			return typeError(arg, v)
		}

	case protocol.KindNewID:
		var id NewID
		switch v := v.(type) {
		case NewID:
			id = v
		case uint32:
			id = NewID{ID: v}
		default:
			return typeError(arg, v)
		}
		if id.ID == 0 {
			return errors.New("null new_id")
		}
		if arg.Interface == "" {
			mb.WriteNewID(id)
		} else {
			mb.WriteUint(id.ID)
		}

	case protocol.KindArray:
		data, ok := v.([]byte)
		if !ok {
			return typeError(arg, v)
		}
		mb.WriteArray(data)

	case protocol.KindFD:
		file, ok := v.(*os.File)
		if !ok {
			return typeError(arg, v)
		}
		mb.WriteFile(file)

	default:
		return fmt.Errorf("unknown argument type %q", arg.Type)
	}

	return mb.err
}

func typeError(arg protocol.Arg, v any) error {
	return fmt.Errorf("cannot encode %T as %v", v, arg.Kind())
}

// FormatMessage formats a message in the style used by WAYLAND_DEBUG
// output, such as wl_surface@3.attach(@5, 0, 0).
func FormatMessage(iface string, id uint32, method string, args []any) string {
	strs := make([]string, 0, len(args))
	for _, arg := range args {
		strs = append(strs, formatArg(arg))
	}

	if iface == "" {
		iface = "unknown"
	}
	return fmt.Sprintf("%v@%v.%v(%v)", iface, id, method, strings.Join(strs, ", "))
}

func formatArg(arg any) string {
	switch arg := arg.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(arg)
	case *os.File:
		if arg == nil {
			return "fd <taken>"
		}
		return "fd " + strconv.FormatUint(uint64(arg.Fd()), 10)
	case ObjectID:
		if arg == 0 {
			return "nil"
		}
		return "@" + strconv.FormatUint(uint64(arg), 10)
	case NewID:
		if arg.Interface == "" {
			return "new id @" + strconv.FormatUint(uint64(arg.ID), 10)
		}
		return fmt.Sprintf("new id %v@%v", arg.Interface, arg.ID)
	case []byte:
		return fmt.Sprintf("array[%v]", len(arg))
	case Fixed:
		return arg.String()
	default:
		return fmt.Sprint(arg)
	}
}
