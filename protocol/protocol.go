// Package protocol defines the types necessary for unmarshalling a
// protocol-specification XML file, along with the descriptions of
// every interface that the compositor serves.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type Protocol struct {
	Name      string `xml:"name,attr"`
	Copyright string `xml:"copyright"`

	Interfaces []Interface `xml:"interface"`
}

type Interface struct {
	Name        string      `xml:"name,attr"`
	Version     int         `xml:"version,attr"`
	Description Description `xml:"description"`

	Requests []Op   `xml:"request"`
	Events   []Op   `xml:"event"`
	Enums    []Enum `xml:"enum"`
}

// Enum returns the enum with the given name declared directly on the
// interface.
func (i *Interface) Enum(name string) (*Enum, bool) {
	for e := range i.Enums {
		if i.Enums[e].Name == name {
			return &i.Enums[e], true
		}
	}
	return nil, false
}

type Description struct {
	Summary string `xml:"summary,attr"`
	Full    string `xml:",chardata"`
}

type Op struct {
	Name        string      `xml:"name,attr"`
	Type        string      `xml:"type,attr"`
	Since       int         `xml:"since,attr"`
	Description Description `xml:"description"`

	Args []Arg `xml:"arg"`
}

// IsDestructor returns true if the op destroys the object that it is
// sent to or from.
func (op Op) IsDestructor() bool {
	return op.Type == "destructor"
}

// MinVersion is the lowest interface version that includes op.
func (op Op) MinVersion() uint32 {
	if op.Since <= 0 {
		return 1
	}
	return uint32(op.Since)
}

// Signature returns a libwayland-style signature string, such as
// "?oii" for wl_surface.attach. It is mostly useful for debugging.
func (op Op) Signature() string {
	var sig strings.Builder
	for _, arg := range op.Args {
		if arg.AllowNull {
			sig.WriteByte('?')
		}
		sig.WriteByte(arg.Kind().Code())
	}
	return sig.String()
}

type Arg struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`

	Type      string `xml:"type,attr"`
	Interface string `xml:"interface,attr"`
	Version   int    `xml:"version,attr"`
	AllowNull bool   `xml:"allow-null,attr"`
	Enum      string `xml:"enum,attr"`
}

// Kind returns the wire type of the argument.
func (arg Arg) Kind() Kind {
	switch arg.Type {
	case "int":
		return KindInt
	case "uint":
		return KindUint
	case "fixed":
		return KindFixed
	case "string":
		return KindString
	case "object":
		return KindObject
	case "new_id":
		return KindNewID
	case "array":
		return KindArray
	case "fd":
		return KindFD
	default:
		return KindInvalid
	}
}

// Kind is the wire type of an argument.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindUint
	KindFixed
	KindString
	KindObject
	KindNewID
	KindArray
	KindFD
)

// Code returns the single character libwayland uses for the kind in
// its signature strings.
func (k Kind) Code() byte {
	switch k {
	case KindInt:
		return 'i'
	case KindUint:
		return 'u'
	case KindFixed:
		return 'f'
	case KindString:
		return 's'
	case KindObject:
		return 'o'
	case KindNewID:
		return 'n'
	case KindArray:
		return 'a'
	case KindFD:
		return 'h'
	default:
		return '!'
	}
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFixed:
		return "fixed"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindNewID:
		return "new_id"
	case KindArray:
		return "array"
	case KindFD:
		return "fd"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Enum struct {
	Name        string      `xml:"name,attr"`
	Since       int         `xml:"since,attr"`
	Bitfield    bool        `xml:"bitfield,attr"`
	Description Description `xml:"description"`

	Entries []Entry `xml:"entry"`
}

// Valid reports whether v is a legal value of the enum for an object
// of the given version. Bitfields accept any combination of their
// entries. Entries newer than version are not legal.
func (e *Enum) Valid(v uint32, version uint32) bool {
	if e.Bitfield {
		var mask uint32
		for _, ent := range e.Entries {
			if ent.MinVersion() > version {
				continue
			}
			n, err := ent.Uint()
			if err != nil {
				continue
			}
			mask |= n
		}
		return v&^mask == 0
	}

	for _, ent := range e.Entries {
		if ent.MinVersion() > version {
			continue
		}
		n, err := ent.Uint()
		if err == nil && n == v {
			return true
		}
	}
	return false
}

type Entry struct {
	Name    string `xml:"name,attr"`
	Summary string `xml:"summary,attr"`
	Value   string `xml:"value,attr"`
	Since   int    `xml:"since,attr"`
}

func (e Entry) Int() (int, error) {
	v, err := strconv.ParseInt(e.Value, 0, 0)
	return int(v), err
}

// Uint parses the entry's value as an unsigned 32-bit integer, which
// is how every enum travels on the wire.
func (e Entry) Uint() (uint32, error) {
	v, err := strconv.ParseUint(e.Value, 0, 32)
	return uint32(v), err
}

func (e Entry) MinVersion() uint32 {
	if e.Since <= 0 {
		return 1
	}
	return uint32(e.Since)
}
