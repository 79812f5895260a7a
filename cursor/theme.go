// Package cursor loads pointer images from XCursor themes.
package cursor

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deedles.dev/wlc/shm/shmimage"
	"github.com/adrg/xdg"
)

// libraryPaths returns the directories that themes are searched for
// in, highest priority first.
func libraryPaths() []string {
	if v, ok := os.LookupEnv("XCURSOR_PATH"); ok {
		return filepath.SplitList(v)
	}

	paths := []string{filepath.Join(xdg.Home, ".icons"), filepath.Join(xdg.DataHome, "icons")}
	for _, dir := range xdg.DataDirs {
		paths = append(paths, filepath.Join(dir, "icons"))
	}
	return append(paths, "/usr/share/pixmaps", "/usr/share/cursors/xorg-x11")
}

type Cursor struct {
	Comments []*Comment
	Frames   []*Image
}

type Comment struct {
	Subtype CommentSubtype
	Version uint32
	Comment string
}

type CommentSubtype uint32

const (
	CommentSubtypeCopyright CommentSubtype = 1 + iota
	CommentSubtypeLicense
	CommentSubtypeOther
)

type Image struct {
	Version     int
	NominalSize int
	XHot        int
	YHot        int
	Delay       time.Duration
	Image       *shmimage.ARGB8888
}

// Theme finds cursors in an XCursor theme and the themes that it
// inherits from. Cursors are loaded when they are first asked for.
type Theme struct {
	Name  string
	Size  int
	paths []string

	cursors map[string]*Cursor
	dirs    []string
}

// LoadTheme locates the named theme. If the theme cannot be found, the
// returned theme still works but only provides the built-in fallback
// cursor.
func LoadTheme(name string, size int) *Theme {
	if name == "" {
		name = "default"
	}

	t := Theme{
		Name:    name,
		Size:    size,
		paths:   libraryPaths(),
		cursors: make(map[string]*Cursor),
	}
	t.resolve(name, make(map[string]struct{}))
	return &t
}

// resolve collects the cursor directories of theme and everything it
// inherits from, in lookup order.
func (t *Theme) resolve(theme string, seen map[string]struct{}) {
	if _, ok := seen[theme]; ok {
		return
	}
	seen[theme] = struct{}{}

	for _, path := range t.paths {
		dir := filepath.Join(path, theme)
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		cursors := filepath.Join(dir, "cursors")
		if _, err := os.Stat(cursors); err == nil {
			t.dirs = append(t.dirs, cursors)
		}

		inherits, err := loadInherits(filepath.Join(dir, "index.theme"))
		if err != nil {
			continue
		}
		for _, theme := range inherits {
			t.resolve(theme, seen)
		}
	}
}

// Found returns true if any directory of the theme was found.
func (t *Theme) Found() bool {
	return len(t.dirs) > 0
}

// Cursor returns the named cursor, trying each of the given fallback
// names in turn. If none of them exist in the theme, the built-in
// arrow is returned.
func (t *Theme) Cursor(names ...string) *Cursor {
	for _, name := range names {
		c, err := t.load(name)
		if err == nil {
			return c
		}
	}
	return Fallback()
}

func (t *Theme) load(name string) (*Cursor, error) {
	if c, ok := t.cursors[name]; ok {
		if c == nil {
			return nil, fs.ErrNotExist
		}
		return c, nil
	}

	for _, dir := range t.dirs {
		path := filepath.Join(dir, name)
		c, err := DecodeFile(path, t.Size)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			t.cursors[name] = nil
			return nil, fmt.Errorf("load %q: %w", path, err)
		}

		t.cursors[name] = c
		return c, nil
	}

	t.cursors[name] = nil
	return nil, fs.ErrNotExist
}

func loadInherits(index string) (inherits []string, err error) {
	file, err := os.Open(index)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	s := bufio.NewScanner(file)
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Inherits") {
			continue
		}

		_, after, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		inherits = strings.FieldsFunc(after, func(c rune) bool {
			return (c == ':') || (c == ',') || (c == ';')
		})
		for i, v := range inherits {
			inherits[i] = strings.TrimSpace(v)
		}

		break
	}
	if err := s.Err(); err != nil {
		return inherits, fmt.Errorf("scan: %w", err)
	}

	return inherits, nil
}
