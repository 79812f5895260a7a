package input

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Evdev key codes that the compositor cares about.
const (
	KeyEsc        = 1
	KeyEnter      = 28
	KeyLeftCtrl   = 29
	KeyLeftShift  = 42
	KeyRightShift = 54
	KeyLeftAlt    = 56
	KeyCapsLock   = 58
	KeyF1         = 59
	KeyF10        = 68
	KeyF11        = 87
	KeyF12        = 88
	KeyRightCtrl  = 97
	KeyRightAlt   = 100
	KeyLeftMeta   = 125
	KeyRightMeta  = 126
)

// FKey returns the number of the function key with the given code, or
// 0 if it isn't one.
func FKey(key uint32) int {
	switch {
	case key >= KeyF1 && key <= KeyF10:
		return int(key-KeyF1) + 1
	case key == KeyF11:
		return 11
	case key == KeyF12:
		return 12
	default:
		return 0
	}
}

// Mods is a set of modifiers, using the real modifier masks of the
// keymaps produced by Keymap.
type Mods uint32

const (
	ModShift   Mods = 1 << 0
	ModLock    Mods = 1 << 1
	ModControl Mods = 1 << 2
	ModAlt     Mods = 1 << 3
	ModLogo    Mods = 1 << 6
)

func modFor(key uint32) Mods {
	switch key {
	case KeyLeftShift, KeyRightShift:
		return ModShift
	case KeyLeftCtrl, KeyRightCtrl:
		return ModControl
	case KeyLeftAlt, KeyRightAlt:
		return ModAlt
	case KeyLeftMeta, KeyRightMeta:
		return ModLogo
	default:
		return 0
	}
}

// Keyboard tracks pressed keys and modifier state across every
// keyboard of a seat.
type Keyboard struct {
	pressed   []uint32
	depressed Mods
	locked    Mods
}

// Update records a key event. It returns true if the modifier state
// changed.
func (kb *Keyboard) Update(key uint32, pressed bool) bool {
	i := slices.Index(kb.pressed, key)
	switch {
	case pressed && i < 0:
		kb.pressed = append(kb.pressed, key)
	case !pressed && i >= 0:
		kb.pressed = slices.Delete(kb.pressed, i, i+1)
	case pressed:
		return false
	}

	old := kb.depressed | kb.locked<<16
	if key == KeyCapsLock && pressed {
		kb.locked ^= ModLock
	}

	kb.depressed = 0
	for _, k := range kb.pressed {
		kb.depressed |= modFor(k)
	}
	return kb.depressed|kb.locked<<16 != old
}

// Pressed returns the keys that are currently held, in the order they
// were pressed.
func (kb *Keyboard) Pressed() []uint32 {
	return slices.Clone(kb.pressed)
}

func (kb *Keyboard) Depressed() Mods {
	return kb.depressed
}

func (kb *Keyboard) Locked() Mods {
	return kb.locked
}

// Keymap returns an XKB keymap for the given layouts and options, in
// the format that xkbcommon compiles. layout is a comma separated list
// of layouts, each optionally followed by a variant in parentheses.
// options is a comma separated list of XKB options such as
// "ctrl:nocaps".
func Keymap(layout, options string) string {
	symbols := []string{"pc"}
	for i, l := range splitList(layout) {
		if i > 0 {
			l = fmt.Sprintf("%v:%v", l, i+1)
		}
		symbols = append(symbols, l)
	}
	if len(symbols) == 1 {
		symbols = append(symbols, "us")
	}
	symbols = append(symbols, "inet(evdev)")

	for _, opt := range splitList(options) {
		group, name, ok := strings.Cut(opt, ":")
		if !ok {
			continue
		}
		symbols = append(symbols, fmt.Sprintf("%v(%v)", group, name))
	}

	var sb strings.Builder
	sb.WriteString("xkb_keymap {\n")
	sb.WriteString("\txkb_keycodes { include \"evdev+aliases(qwerty)\" };\n")
	sb.WriteString("\txkb_types { include \"complete\" };\n")
	sb.WriteString("\txkb_compat { include \"complete\" };\n")
	fmt.Fprintf(&sb, "\txkb_symbols { include \"%v\" };\n", strings.Join(symbols, "+"))
	sb.WriteString("};\n")
	return sb.String()
}

func splitList(list string) []string {
	parts := strings.Split(list, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
