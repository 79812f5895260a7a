package input

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"deedles.dev/wlc/pointer"
)

func raw(ms int64, typ, code uint16, value int32) RawEvent {
	return RawEvent{Sec: ms / 1000, Usec: (ms % 1000) * 1000, Type: typ, Code: code, Value: value}
}

func syn(ms int64) RawEvent {
	return raw(ms, evSyn, synReport, 0)
}

func decodeAll(d *Decoder, evs ...RawEvent) (out []Event) {
	for _, ev := range evs {
		out = append(out, d.Decode(ev)...)
	}
	return out
}

func TestParseRawEvent(t *testing.T) {
	buf := make([]byte, RawEventSize)
	binary.NativeEndian.PutUint64(buf[0:], 12)
	binary.NativeEndian.PutUint64(buf[8:], 345)
	binary.NativeEndian.PutUint16(buf[16:], evKey)
	binary.NativeEndian.PutUint16(buf[18:], keyA)
	binary.NativeEndian.PutUint32(buf[20:], 1)

	ev := parseRawEvent(buf)
	expected := RawEvent{Sec: 12, Usec: 345, Type: evKey, Code: keyA, Value: 1}
	if ev != expected {
		t.Fatalf("%+v", ev)
	}
	if ev.time() != 12*time.Second+345*time.Microsecond {
		t.Fatalf("time = %v", ev.time())
	}
}

func TestDecodeMouse(t *testing.T) {
	natural := true
	dev := Device{Pointer: pointer.Config{NaturalScroll: &natural}}
	d := NewDecoder(&dev, KindMouse)

	out := decodeAll(d,
		raw(10, evRel, relX, 3),
		raw(10, evRel, relY, -2),
		raw(10, evRel, relWheel, 1),
		raw(10, evKey, btnLeft, 1),
		syn(10),
	)
	if len(out) != 3 {
		t.Fatalf("%v events: %#v", len(out), out)
	}

	motion, ok := out[0].(*PointerMotion)
	if !ok || motion.DX != 3 || motion.DY != -2 || motion.Time != 10*time.Millisecond {
		t.Fatalf("motion = %#v", out[0])
	}
	axis, ok := out[1].(*PointerAxis)
	if !ok || axis.Value != wheelStep || axis.Discrete != 1 || axis.Source != AxisSourceWheel {
		t.Fatalf("axis = %#v", out[1])
	}
	button, ok := out[2].(*PointerButton)
	if !ok || button.Button != pointer.ButtonLeft || !button.Pressed {
		t.Fatalf("button = %#v", out[2])
	}

	if out := d.Decode(syn(20)); len(out) != 0 {
		t.Fatalf("empty frame produced %#v", out)
	}
}

func TestDecodeKeyboard(t *testing.T) {
	var dev Device
	d := NewDecoder(&dev, KindKeyboard)

	out := decodeAll(d,
		raw(1, evKey, keyA, 1), syn(1),
		raw(2, evKey, keyA, 2), syn(2),
		raw(3, evKey, keyA, 0), syn(3),
	)
	expected := []Event{
		&Key{Header: Header{Device: &dev, Time: time.Millisecond}, Key: keyA, Pressed: true},
		&Key{Header: Header{Device: &dev, Time: 3 * time.Millisecond}, Key: keyA, Pressed: false},
	}
	if !reflect.DeepEqual(out, expected) {
		t.Fatalf("%#v", out)
	}
}

func TestDecodeTouchpadTap(t *testing.T) {
	tap := true
	dev := Device{Pointer: pointer.Config{TapToClick: &tap}}
	d := NewDecoder(&dev, KindTouchpad)
	d.SetRange(AbsInfo{Max: 1200}, AbsInfo{Max: 800})

	out := decodeAll(d,
		raw(0, evKey, btnTouch, 1),
		raw(0, evKey, btnToolFinger, 1),
		raw(0, evAbs, absX, 100),
		raw(0, evAbs, absY, 100),
		syn(0),
		raw(50, evAbs, absX, 102),
		syn(50),
		raw(100, evKey, btnTouch, 0),
		raw(100, evKey, btnToolFinger, 0),
		syn(100),
	)

	var buttons []*PointerButton
	for _, ev := range out {
		if b, ok := ev.(*PointerButton); ok {
			buttons = append(buttons, b)
		}
	}
	if len(buttons) != 2 || !buttons[0].Pressed || buttons[1].Pressed || buttons[0].Button != pointer.ButtonLeft {
		t.Fatalf("buttons = %#v", buttons)
	}
}

func TestDecodeTouchpadScroll(t *testing.T) {
	var dev Device
	d := NewDecoder(&dev, KindTouchpad)
	d.SetRange(AbsInfo{Max: 1200}, AbsInfo{Max: 800})

	out := decodeAll(d,
		raw(0, evKey, btnTouch, 1),
		raw(0, evKey, btnToolDouble, 1),
		raw(0, evAbs, absX, 100),
		raw(0, evAbs, absY, 100),
		syn(0),
		raw(10, evAbs, absY, 120),
		syn(10),
	)
	if len(out) != 1 {
		t.Fatalf("%#v", out)
	}
	axis, ok := out[0].(*PointerAxis)
	if !ok || axis.Axis != AxisVertical || axis.Source != AxisSourceFinger || axis.Value != 20 {
		t.Fatalf("%#v", out[0])
	}
}

func TestDecodeTouchscreen(t *testing.T) {
	var dev Device
	d := NewDecoder(&dev, KindTouchscreen)
	d.SetRange(AbsInfo{Max: 100}, AbsInfo{Max: 200})

	out := decodeAll(d,
		raw(0, evAbs, absMTSlot, 0),
		raw(0, evAbs, absMTTrackingID, 5),
		raw(0, evAbs, absMTPositionX, 50),
		raw(0, evAbs, absMTPositionY, 50),
		syn(0),
		raw(1, evAbs, absMTPositionY, 100),
		syn(1),
		raw(2, evAbs, absMTTrackingID, -1),
		syn(2),
	)

	var types []string
	for _, ev := range out {
		types = append(types, reflect.TypeOf(ev).Elem().Name())
	}
	expected := []string{"TouchDown", "TouchFrame", "TouchMotion", "TouchFrame", "TouchUp", "TouchFrame"}
	if !reflect.DeepEqual(types, expected) {
		t.Fatalf("events = %v", types)
	}

	down := out[0].(*TouchDown)
	if down.X != 0.5 || down.Y != 0.25 {
		t.Fatalf("down at (%v, %v)", down.X, down.Y)
	}
	if m := out[2].(*TouchMotion); m.Y != 0.5 {
		t.Fatalf("motion to y %v", m.Y)
	}
}

func TestKeyboardState(t *testing.T) {
	var kb Keyboard
	if !kb.Update(KeyLeftShift, true) {
		t.Fatal("shift press did not change modifiers")
	}
	if kb.Update(keyA, true) {
		t.Fatal("letter changed modifiers")
	}
	if kb.Depressed() != ModShift {
		t.Fatalf("depressed = %v", kb.Depressed())
	}
	if !reflect.DeepEqual(kb.Pressed(), []uint32{KeyLeftShift, keyA}) {
		t.Fatalf("pressed = %v", kb.Pressed())
	}

	kb.Update(KeyCapsLock, true)
	kb.Update(KeyCapsLock, false)
	if kb.Locked() != ModLock {
		t.Fatalf("locked = %v", kb.Locked())
	}

	kb.Update(KeyLeftShift, false)
	if kb.Depressed() != 0 {
		t.Fatalf("depressed = %v after release", kb.Depressed())
	}
}

func TestKeymap(t *testing.T) {
	km := Keymap("us,de(nodeadkeys)", "ctrl:nocaps, compose:ralt")
	const symbols = `include "pc+us+de(nodeadkeys):2+inet(evdev)+ctrl(nocaps)+compose(ralt)"`
	if !strings.Contains(km, symbols) {
		t.Fatalf("keymap:\n%v", km)
	}
	if !strings.Contains(Keymap("", ""), `"pc+us+inet(evdev)"`) {
		t.Fatal("default layout is not us")
	}
}

func TestFKey(t *testing.T) {
	tests := map[uint32]int{KeyF1: 1, KeyF10: 10, KeyF11: 11, KeyF12: 12, keyA: 0}
	for key, n := range tests {
		if FKey(key) != n {
			t.Errorf("FKey(%v) = %v, expected %v", key, FKey(key), n)
		}
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"event10", "event2", "event1", "mouse0"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0600)
	}

	paths, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	if !reflect.DeepEqual(names, []string{"event1", "event2", "event10"}) {
		t.Fatalf("names = %v", names)
	}
}
