package client

import (
	"os"

	"deedles.dev/wlc/internal/bin"
)

// Keyboard is a wl_keyboard with callbacks for its events.
type Keyboard struct {
	Keymap     func(format uint32, file *os.File, size uint32)
	Enter      func(serial uint32, surface *Object, keys []uint32)
	Leave      func(serial uint32, surface *Object)
	Key        func(serial, time, key uint32, pressed bool)
	Modifiers  func(serial, depressed, latched, locked, group uint32)
	RepeatInfo func(rate, delay int32)

	obj *Object
}

// GetKeyboard gets the keyboard of seat.
func GetKeyboard(seat *Object) (*Keyboard, error) {
	obj := seat.display.NewObject("wl_keyboard", seat.version)
	err := seat.Request("get_keyboard", obj)
	if err != nil {
		return nil, err
	}

	kb := Keyboard{obj: obj}
	obj.Data = &kb
	obj.On("keymap", func(ev *Event) {
		if kb.Keymap != nil {
			kb.Keymap(ev.Uint(0), ev.File(1), ev.Uint(2))
		}
	})
	obj.On("enter", func(ev *Event) {
		if kb.Enter != nil {
			kb.Enter(ev.Uint(0), ev.Ref(1), keys(ev.Array(2)))
		}
	})
	obj.On("leave", func(ev *Event) {
		if kb.Leave != nil {
			kb.Leave(ev.Uint(0), ev.Ref(1))
		}
	})
	obj.On("key", func(ev *Event) {
		if kb.Key != nil {
			kb.Key(ev.Uint(0), ev.Uint(1), ev.Uint(2), ev.Uint(3) != 0)
		}
	})
	obj.On("modifiers", func(ev *Event) {
		if kb.Modifiers != nil {
			kb.Modifiers(ev.Uint(0), ev.Uint(1), ev.Uint(2), ev.Uint(3), ev.Uint(4))
		}
	})
	obj.On("repeat_info", func(ev *Event) {
		if kb.RepeatInfo != nil {
			kb.RepeatInfo(ev.Int(0), ev.Int(1))
		}
	})

	return &kb, nil
}

func keys(data []byte) []uint32 {
	keys := make([]uint32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		keys = append(keys, bin.Get[uint32](data[i:]))
	}
	return keys
}

func (kb *Keyboard) Object() *Object {
	return kb.obj
}

func (kb *Keyboard) Release() error {
	return kb.obj.Destroy()
}
