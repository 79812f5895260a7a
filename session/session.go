// Package session manages access to the devices of a seat. A session
// can be taken away from the compositor, for example when the user
// switches to another virtual terminal, and given back later.
package session

import (
	"errors"
	"os"
)

// Event reports a change in whether the session is active.
type Event int

const (
	// Disable means that the session is no longer active. Devices
	// opened through it must not be used until Enable.
	Disable Event = iota
	// Enable means that the session is active again. Input devices
	// were revoked while the session was disabled and need to be
	// reopened.
	Enable
)

func (ev Event) String() string {
	switch ev {
	case Disable:
		return "disable"
	case Enable:
		return "enable"
	default:
		return "unknown"
	}
}

// Session is a collaborator that provides device access.
type Session interface {
	// Open opens a device node. The session keeps track of it so that
	// it can be revoked or paused along with the session.
	Open(path string) (*os.File, error)

	// Release stops tracking a device previously opened with Open.
	// It does not close it.
	Release(file *os.File)

	// Events yields session changes.
	Events() <-chan Event

	// Active returns true if the session currently has access to its
	// devices.
	Active() bool

	// Switch asks for a switch to the given virtual terminal.
	Switch(vt int) error

	Close() error
}

// ErrInactive is returned when opening a device while the session is
// disabled.
var ErrInactive = errors.New("session is not active")

// ErrNotVT is returned by OpenVT when the compositor isn't running on
// a virtual terminal.
var ErrNotVT = errors.New("not running on a virtual terminal")
