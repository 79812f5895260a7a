package compositor

import (
	"image"

	"deedles.dev/wlc/server"
	"deedles.dev/wlc/shm/shmimage"
)

var singlePixelImpl = server.NewImpl("wp_single_pixel_buffer_manager_v1", server.Handlers{
	"create_u32_rgba_buffer": func(r *server.Request) error {
		// Components are premultiplied and use the whole range of a
		// uint32.
		c := shmimage.NewARGB8888Color(
			uint8(r.Uint(1)>>24),
			uint8(r.Uint(2)>>24),
			uint8(r.Uint(3)>>24),
			uint8(r.Uint(4)>>24),
		)

		img := shmimage.NewARGB8888(image.Rect(0, 0, 1, 1))
		img.SetARGB8888(0, 0, c)

		obj := r.NewObject(0, bufferImpl)
		newBuffer(compositorOf(r), obj, image.Pt(1, 1), &imageStorage{img: img})
		return nil
	},
})
