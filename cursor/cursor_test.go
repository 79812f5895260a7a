package cursor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// encode builds an XCursor file with one comment and a 2x2 image at
// each of the given sizes.
func encode(sizes ...uint32) []byte {
	var buf bytes.Buffer
	w := func(vals ...uint32) {
		for _, v := range vals {
			binary.Write(&buf, binary.LittleEndian, v)
		}
	}

	const comment = "test"
	ntoc := uint32(len(sizes) + 1)
	pos := 16 + 12*ntoc

	w(fileMagic, 16, 0x10000, ntoc)
	w(chunkComment, uint32(CommentSubtypeOther), pos)
	pos += 20 + uint32(len(comment))
	for _, s := range sizes {
		w(chunkImage, s, pos)
		pos += 36 + 4*4
	}

	w(20, chunkComment, uint32(CommentSubtypeOther), 1, uint32(len(comment)))
	buf.WriteString(comment)
	for _, s := range sizes {
		w(36, chunkImage, s, 1, 2, 2, 1, 1, 50)
		w(0xff000000|s, 0xffffffff, 0, 0x80808080)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	c, err := Decode(bytes.NewReader(encode(16, 24, 32)), 22)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Comments) != 1 || c.Comments[0].Comment != "test" {
		t.Fatalf("comments = %v", c.Comments)
	}
	if len(c.Frames) != 1 {
		t.Fatalf("%v frames", len(c.Frames))
	}

	f := c.Frames[0]
	if f.NominalSize != 24 || f.XHot != 1 || f.YHot != 1 || f.Delay != 50*time.Millisecond {
		t.Fatalf("frame = %+v", f)
	}
	px := f.Image.ARGB8888At(0, 0)
	if px.A() != 0xff || px.B() != 24 {
		t.Fatalf("pixel = %#08x", uint32(px))
	}
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a cursor file")), 24)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v", err)
	}
}

func TestTheme(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XCURSOR_PATH", dir)

	mkdir := func(path string) {
		err := os.MkdirAll(filepath.Join(dir, path), 0755)
		if err != nil {
			t.Fatal(err)
		}
	}
	mkdir("child/cursors")
	mkdir("parent/cursors")
	os.WriteFile(filepath.Join(dir, "child", "index.theme"), []byte("[Icon Theme]\nInherits=parent\n"), 0644)
	os.WriteFile(filepath.Join(dir, "parent", "cursors", "left_ptr"), encode(24), 0644)

	theme := LoadTheme("child", 24)
	if !theme.Found() {
		t.Fatal("theme not found")
	}

	c := theme.Cursor("default", "left_ptr")
	if c == Fallback() {
		t.Fatal("inherited cursor not found")
	}
	if theme.Cursor("nonexistent") != Fallback() {
		t.Fatal("missing cursor did not fall back")
	}
}
