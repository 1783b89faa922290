package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// Image is a captured frame encoded as PNG.
type Image struct {
	Width       int
	Height      int
	PixelFormat string
	Encoded     []byte
}

// Base64 returns the standard, unwrapped base64 form of the PNG bytes
// without a data URI prefix.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Encoded)
}

func encodePNG(img *image.RGBA, format PixelFormat) (Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Image{}, fmt.Errorf("failed to encode PNG: %w", err)
	}
	b := img.Bounds()
	return Image{
		Width:       b.Dx(),
		Height:      b.Dy(),
		PixelFormat: format.String(),
		Encoded:     buf.Bytes(),
	}, nil
}
