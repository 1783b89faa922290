package capture

import (
	"fmt"
	"image"
)

// PixelFormat describes the byte layout of one pixel in a Frame.
type PixelFormat int

const (
	RGBA8888 PixelFormat = iota
	BGRA8888
)

func (f PixelFormat) String() string {
	switch f {
	case RGBA8888:
		return "RGBA_8888"
	case BGRA8888:
		return "BGRA_8888"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

const bytesPerPixel = 4

// Frame is one raw image produced by a frame sink. Stride may exceed
// Width*4 when the producer pads rows.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// Pack copies the visible Width x Height area of f into a tightly packed RGBA
// image, dropping any row padding.
func Pack(f Frame) (*image.RGBA, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	rowBytes := f.Width * bytesPerPixel
	stride := f.Stride
	if stride == 0 {
		stride = rowBytes
	}
	if stride < rowBytes {
		return nil, fmt.Errorf("row stride %d smaller than row width %d", stride, rowBytes)
	}
	if need := stride*(f.Height-1) + rowBytes; len(f.Pix) < need {
		return nil, fmt.Errorf("frame buffer too short: have %d bytes, need %d", len(f.Pix), need)
	}
	if f.Format != RGBA8888 && f.Format != BGRA8888 {
		return nil, fmt.Errorf("unsupported pixel format %s", f.Format)
	}

	out := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*stride : y*stride+rowBytes]
		dst := out.Pix[y*out.Stride : y*out.Stride+rowBytes]
		copy(dst, src)
		if f.Format == BGRA8888 {
			for i := 0; i < rowBytes; i += bytesPerPixel {
				dst[i], dst[i+2] = dst[i+2], dst[i]
			}
		}
	}
	return out, nil
}
