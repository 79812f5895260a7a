package cursor

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"deedles.dev/wlc/internal/bin"
	"deedles.dev/wlc/shm/shmimage"
	"golang.org/x/exp/slices"
)

// ErrBadMagic indicates an unrecognized magic number when attempting
// to load a cursor.
var ErrBadMagic = errors.New("bad magic")

const (
	fileMagic = 0x72756358 // ASCII "Xcur"

	chunkComment = 0xfffe0001
	chunkImage   = 0xfffd0002

	// Images larger than this in either dimension are rejected.
	maxImageSize = 0x7fff
)

type decoder struct {
	r    io.Reader
	br   *bufio.Reader
	n    int
	err  error
	size int
}

func DecodeFile(path string, size int) (*Cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	return Decode(file, size)
}

// Decode decodes an XCursor file, keeping only the images whose
// nominal size is closest to size.
func Decode(r io.Reader, size int) (*Cursor, error) {
	d := decoder{
		r:    r,
		br:   bufio.NewReader(r),
		size: size,
	}
	return d.Decode()
}

func (d *decoder) Decode() (c *Cursor, err error) {
	if d.err != nil {
		return nil, d.err
	}

	defer d.catch(&err)

	tocs := d.header()
	best := bestSize(tocs, d.size)
	slices.SortFunc(tocs, func(t1, t2 fileToc) int {
		return int(t1.Position) - int(t2.Position)
	})

	var cur Cursor
	for _, toc := range tocs {
		switch toc.Type {
		case chunkComment:
			d.SeekTo(int(toc.Position))
			cur.Comments = append(cur.Comments, d.comment())
		case chunkImage:
			if int(toc.Subtype) != best {
				continue
			}
			d.SeekTo(int(toc.Position))
			cur.Frames = append(cur.Frames, d.image())
		}
	}
	if len(cur.Frames) == 0 {
		d.throw(errors.New("no images"))
	}

	return &cur, nil
}

func bestSize(tocs []fileToc, size int) int {
	best := -1
	for _, toc := range tocs {
		if toc.Type != chunkImage {
			continue
		}
		s := int(toc.Subtype)
		if best < 0 || abs(s-size) < abs(best-size) {
			best = s
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (d *decoder) header() []fileToc {
	magic := d.uint32()
	if magic != fileMagic {
		d.throw(ErrBadMagic)
	}
	hsize := d.uint32()
	d.uint32() // Version.
	ntoc := int(d.uint32())
	if ntoc > 0x10000 {
		d.throw(fmt.Errorf("too many table of contents entries: %v", ntoc))
	}
	d.SeekTo(int(hsize))

	tocs := make([]fileToc, 0, ntoc)
	for i := 0; i < ntoc; i++ {
		tocs = append(tocs, fileToc{
			Type:     d.uint32(),
			Subtype:  d.uint32(),
			Position: d.uint32(),
		})
	}

	return tocs
}

func (d *decoder) chunkHeader(want uint32) (subtype, version uint32) {
	hsize := d.uint32()
	typ := d.uint32()
	if typ != want {
		d.throw(fmt.Errorf("chunk type %#x does not match table of contents", typ))
	}
	subtype = d.uint32()
	version = d.uint32()
	if hsize < 16 {
		d.throw(fmt.Errorf("invalid chunk header size %v", hsize))
	}
	return subtype, version
}

func (d *decoder) comment() *Comment {
	subtype, version := d.chunkHeader(chunkComment)
	length := d.uint32()
	if length > 0x100000 {
		d.throw(fmt.Errorf("comment too long: %v", length))
	}

	buf := make([]byte, length)
	_, err := io.ReadFull(d, buf)
	d.throw(err)

	return &Comment{
		Subtype: CommentSubtype(subtype),
		Version: version,
		Comment: string(buf),
	}
}

func (d *decoder) image() *Image {
	subtype, version := d.chunkHeader(chunkImage)
	w, h := d.uint32(), d.uint32()
	xhot, yhot := d.uint32(), d.uint32()
	delay := d.uint32()
	if w > maxImageSize || h > maxImageSize {
		d.throw(fmt.Errorf("image too large: %vx%v", w, h))
	}
	if xhot > w || yhot > h {
		d.throw(fmt.Errorf("hotspot (%v, %v) outside of %vx%v image", xhot, yhot, w, h))
	}

	img := shmimage.NewARGB8888(image.Rect(0, 0, int(w), int(h)))
	for i := 0; i < len(img.Pix); i += 4 {
		bin.Put(img.Pix[i:], d.uint32())
	}

	return &Image{
		Version:     int(version),
		NominalSize: int(subtype),
		XHot:        int(xhot),
		YHot:        int(yhot),
		Delay:       time.Duration(delay) * time.Millisecond,
		Image:       img,
	}
}

func (d *decoder) uint32() (v uint32) {
	d.throw(binary.Read(d, binary.LittleEndian, &v))
	return v
}

func (d *decoder) Read(buf []byte) (int, error) {
	n, err := d.br.Read(buf)
	d.n += n
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		d.throw(err)
	}
	return n, nil
}

func (d *decoder) Discard(n int) (int, error) {
	disc, err := d.br.Discard(n)
	d.throw(err)
	d.n += disc
	return disc, err
}

func (d *decoder) SeekTo(n int) error {
	diff := n - d.n
	if diff < 0 {
		d.throw(fmt.Errorf("chunk at %v overlaps previous data", n))
	}
	if diff == 0 {
		return nil
	}

	s, ok := d.r.(io.Seeker)
	if !ok || (diff <= d.br.Buffered()) {
		_, err := d.Discard(diff)
		d.throw(err)
		return nil
	}

	_, err := s.Seek(int64(n), io.SeekStart)
	d.throw(err)
	d.br.Reset(d.r)
	d.n = n
	return nil
}

type fileToc struct {
	Type     uint32
	Subtype  uint32
	Position uint32
}

type decoderError struct {
	err error
}

func (d *decoder) throw(err error) {
	if err != nil {
		panic(decoderError{err: err})
	}
}

func (d *decoder) catch(err *error) {
	switch r := recover().(type) {
	case decoderError:
		*err = r.err
		d.err = r.err
	case nil:
		*err = d.err
	default:
		panic(r)
	}
}
