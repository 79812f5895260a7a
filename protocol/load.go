package protocol

import (
	"embed"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
)

//go:embed xml/*.xml
var files embed.FS

// Decode reads a single protocol description.
func Decode(r io.Reader) (Protocol, error) {
	var p Protocol
	err := xml.NewDecoder(r).Decode(&p)
	if err != nil {
		return p, fmt.Errorf("decode protocol XML: %w", err)
	}
	return p, nil
}

// Load decodes one of the embedded protocol descriptions by file name,
// such as "wayland.xml".
func Load(name string) (Protocol, error) {
	file, err := files.Open(path.Join("xml", name))
	if err != nil {
		return Protocol{}, fmt.Errorf("open %q: %w", name, err)
	}
	defer file.Close()

	return Decode(file)
}

// Set is an index of interfaces from one or more protocols.
type Set struct {
	protocols  []Protocol
	interfaces map[string]*Interface
}

// NewSet indexes the interfaces of protocols. Interface names must be
// unique across all of them.
func NewSet(protocols ...Protocol) (*Set, error) {
	s := Set{
		protocols:  protocols,
		interfaces: make(map[string]*Interface),
	}
	for p := range s.protocols {
		proto := &s.protocols[p]
		for i := range proto.Interfaces {
			iface := &proto.Interfaces[i]
			if _, ok := s.interfaces[iface.Name]; ok {
				return nil, fmt.Errorf("duplicate interface %q in protocol %q", iface.Name, proto.Name)
			}
			s.interfaces[iface.Name] = iface
		}
	}

	for _, iface := range s.interfaces {
		err := s.check(iface)
		if err != nil {
			return nil, err
		}
	}

	return &s, nil
}

func (s *Set) check(iface *Interface) error {
	ops := [][]Op{iface.Requests, iface.Events}
	for _, ops := range ops {
		for _, op := range ops {
			for _, arg := range op.Args {
				if arg.Kind() == KindInvalid {
					return fmt.Errorf("%v.%v: argument %q has unknown type %q", iface.Name, op.Name, arg.Name, arg.Type)
				}
				if arg.Enum != "" {
					if _, ok := s.Enum(iface, arg.Enum); !ok {
						return fmt.Errorf("%v.%v: argument %q uses unknown enum %q", iface.Name, op.Name, arg.Name, arg.Enum)
					}
				}
			}
		}
	}
	return nil
}

// Protocols returns the protocols that the set was built from.
func (s *Set) Protocols() []Protocol {
	return s.protocols
}

// Interface returns the interface with the given name.
func (s *Set) Interface(name string) (*Interface, bool) {
	iface, ok := s.interfaces[name]
	return iface, ok
}

// Enum resolves an enum reference from an argument of iface. The
// reference is either local ("format") or qualified with another
// interface's name ("wl_shm.format").
func (s *Set) Enum(iface *Interface, ref string) (*Enum, bool) {
	owner, name, ok := strings.Cut(ref, ".")
	if !ok {
		return iface.Enum(ref)
	}

	other, ok := s.interfaces[owner]
	if !ok {
		return nil, false
	}
	return other.Enum(name)
}

var core = sync.OnceValues(func() (*Set, error) {
	entries, err := fs.ReadDir(files, "xml")
	if err != nil {
		return nil, fmt.Errorf("read embedded protocols: %w", err)
	}

	protocols := make([]Protocol, 0, len(entries))
	for _, ent := range entries {
		p, err := Load(ent.Name())
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, p)
	}

	return NewSet(protocols...)
})

// Core returns the set of every embedded protocol description. It
// panics if they fail to parse, since they are compiled into the
// binary.
func Core() *Set {
	s, err := core()
	if err != nil {
		panic(err)
	}
	return s
}
