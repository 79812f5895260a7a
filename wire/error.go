package wire

import (
	"fmt"
)

// MessageError is returned when a message cannot be framed, either
// because its header is invalid or because it would be too large to
// send. The connection should be considered unusable after one.
type MessageError struct {
	Sender uint32
	Op     uint16
	Err    error
}

func (err *MessageError) Error() string {
	return fmt.Sprintf("message from #%v, opcode %v: %v", err.Sender, err.Op, err.Err)
}

func (err *MessageError) Unwrap() error {
	return err.Err
}

// ArgError is returned when an argument fails to decode or encode.
type ArgError struct {
	Arg string
	Err error
}

func (err *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %v", err.Arg, err.Err)
}

func (err *ArgError) Unwrap() error {
	return err.Err
}

// UnknownOpError is returned if a message has an opcode that its
// sender's interface does not define.
type UnknownOpError struct {
	Interface string
	Type      string
	Op        uint16
}

func (err UnknownOpError) Error() string {
	return fmt.Sprintf("unknown %v opcode for %v: %v", err.Type, err.Interface, err.Op)
}
