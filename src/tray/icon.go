package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconData []byte
)

var (
	iconFrame = color.RGBA{0x00, 0x78, 0xd4, 0xff}
	iconLens  = color.RGBA{0x33, 0x33, 0x33, 0xff}
)

// IconPNG returns a 16x16 camera glyph for the tray.
func IconPNG() []byte {
	iconOnce.Do(func() {
		const size = 16
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 4; y < 13; y++ {
			for x := 1; x < 15; x++ {
				if y == 4 || y == 12 || x == 1 || x == 14 {
					img.Set(x, y, iconFrame)
				}
			}
		}
		for x := 5; x < 9; x++ {
			img.Set(x, 3, iconFrame)
		}
		for y := 6; y < 11; y++ {
			for x := 6; x < 11; x++ {
				dx, dy := x-8, y-8
				if dx*dx+dy*dy <= 5 {
					img.Set(x, y, iconLens)
				}
			}
		}
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		iconData = buf.Bytes()
	})
	return iconData
}
