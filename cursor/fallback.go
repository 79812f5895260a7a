package cursor

import (
	"image"
	"sync"

	"deedles.dev/wlc/shm/shmimage"
)

var arrow = [...]string{
	"X           ",
	"XX          ",
	"X.X         ",
	"X..X        ",
	"X...X       ",
	"X....X      ",
	"X.....X     ",
	"X......X    ",
	"X.......X   ",
	"X........X  ",
	"X.....XXXXX ",
	"X..X..X     ",
	"X.X X..X    ",
	"XX  X..X    ",
	"X    X..X   ",
	"     X..X   ",
	"      XX    ",
}

// Fallback returns a simple arrow for use when no theme is installed.
var Fallback = sync.OnceValue(func() *Cursor {
	img := shmimage.NewARGB8888(image.Rect(0, 0, len(arrow[0]), len(arrow)))
	for y, row := range arrow {
		for x, c := range row {
			switch c {
			case 'X':
				img.SetARGB8888(x, y, shmimage.NewARGB8888Color(0, 0, 0, 0xFF))
			case '.':
				img.SetARGB8888(x, y, shmimage.NewARGB8888Color(0xFF, 0xFF, 0xFF, 0xFF))
			}
		}
	}

	return &Cursor{
		Frames: []*Image{{
			Version:     1,
			NominalSize: len(arrow),
			Image:       img,
		}},
	}
})
