package drm

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestIoctlNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"GET_CAP", ioctlGetCap, 0xC010640C},
		{"MODE_GETRESOURCES", ioctlGetResources, 0xC04064A0},
		{"MODE_GETCRTC", ioctlGetCrtc, 0xC06864A1},
		{"MODE_SETCRTC", ioctlSetCrtc, 0xC06864A2},
		{"MODE_GETENCODER", ioctlGetEncoder, 0xC01464A6},
		{"MODE_GETCONNECTOR", ioctlGetConnector, 0xC05064A7},
		{"MODE_ADDFB", ioctlAddFB, 0xC01C64AE},
		{"MODE_RMFB", ioctlRmFB, 0xC00464AF},
		{"MODE_PAGE_FLIP", ioctlPageFlip, 0xC01864B0},
		{"MODE_CREATE_DUMB", ioctlCreateDumb, 0xC02064B2},
		{"MODE_MAP_DUMB", ioctlMapDumb, 0xC01064B3},
		{"MODE_DESTROY_DUMB", ioctlDestroyDumb, 0xC00464B4},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("DRM_IOCTL_%v = %#x, want %#x", test.name, test.got, test.want)
		}
	}
}

func event(typ uint32, userData uint64, sec, usec, crtc uint32) []byte {
	buf := make([]byte, flipEventSize)
	binary.NativeEndian.PutUint32(buf[0:], typ)
	binary.NativeEndian.PutUint32(buf[4:], flipEventSize)
	binary.NativeEndian.PutUint64(buf[8:], userData)
	binary.NativeEndian.PutUint32(buf[16:], sec)
	binary.NativeEndian.PutUint32(buf[20:], usec)
	binary.NativeEndian.PutUint32(buf[28:], crtc)
	return buf
}

func TestParseEvents(t *testing.T) {
	var buf []byte
	buf = append(buf, event(0x01, 7, 1, 0, 7)...)
	buf = append(buf, event(eventFlipComplete, 41, 2, 500, 0)...)
	buf = append(buf, event(eventFlipComplete, 42, 3, 0, 42)...)
	buf = append(buf, 1, 2, 3)

	flips := parseEvents(buf)
	if len(flips) != 2 {
		t.Fatalf("got %v flips, want 2", len(flips))
	}
	if flips[0].crtc != 41 || flips[0].time != 2*time.Second+500*time.Microsecond {
		t.Errorf("first flip = %+v", flips[0])
	}
	if flips[1].crtc != 42 {
		t.Errorf("second flip = %+v", flips[1])
	}
}

func TestParseEventsTruncated(t *testing.T) {
	buf := event(eventFlipComplete, 1, 0, 0, 1)
	binary.NativeEndian.PutUint32(buf[4:], 64)
	if flips := parseEvents(buf); len(flips) != 0 {
		t.Fatalf("parsed %v flips from a truncated event", len(flips))
	}
}

func TestConnectorName(t *testing.T) {
	if name := connectorName(11, 1); name != "HDMI-A-1" {
		t.Errorf("name = %q", name)
	}
	if name := connectorName(14, 2); name != "eDP-2" {
		t.Errorf("name = %q", name)
	}
	if name := connectorName(999, 3); name != "Unknown-3" {
		t.Errorf("name = %q", name)
	}
}

func TestRefresh(t *testing.T) {
	m := modeInfo{clock: 148500, htotal: 2200, vtotal: 1125, vrefresh: 60}
	if r := m.refresh(); r != 60000 {
		t.Errorf("refresh = %v, want 60000", r)
	}

	m.flags = modeFlagInterlace
	if r := m.refresh(); r != 120000 {
		t.Errorf("interlaced refresh = %v, want 120000", r)
	}

	if r := (&modeInfo{vrefresh: 75}).refresh(); r != 75000 {
		t.Errorf("refresh without timings = %v, want 75000", r)
	}
}

func TestPickMode(t *testing.T) {
	if _, ok := pickMode(nil); ok {
		t.Fatal("picked a mode from nothing")
	}

	modes := []modeInfo{{hdisplay: 1024}, {hdisplay: 1920, typ: modeTypePreferred}, {hdisplay: 800}}
	if m, _ := pickMode(modes); m.hdisplay != 1920 {
		t.Errorf("picked %v, want the preferred mode", m.hdisplay)
	}
	if m, _ := pickMode(modes[2:]); m.hdisplay != 800 {
		t.Errorf("picked %v, want the first mode", m.hdisplay)
	}
}

func TestPickCrtc(t *testing.T) {
	crtcs := []uint32{30, 31, 32}
	encoders := map[uint32]getEncoder{
		40: {encoderID: 40, crtcID: 31, possibleCrtcs: 0b011},
		41: {encoderID: 41, possibleCrtcs: 0b110},
	}
	used := func(ids ...uint32) func(uint32) bool {
		return func(id uint32) bool {
			for _, u := range ids {
				if u == id {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name string
		conn connector
		used func(uint32) bool
		want uint32
		ok   bool
	}{
		{"Current", connector{encoder: 40, encoders: []uint32{40}}, used(), 31, true},
		{"CurrentTaken", connector{encoder: 40, encoders: []uint32{40}}, used(31), 30, true},
		{"OtherEncoder", connector{encoders: []uint32{40, 41}}, used(30, 31), 32, true},
		{"NoneFree", connector{encoders: []uint32{40}}, used(30, 31), 0, false},
		{"UnknownEncoder", connector{encoders: []uint32{99}}, used(), 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := pickCrtc(test.conn, encoders, crtcs, test.used)
			if got != test.want || ok != test.ok {
				t.Errorf("pickCrtc() = %v, %v, want %v, %v", got, ok, test.want, test.ok)
			}
		})
	}
}
