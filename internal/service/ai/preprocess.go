package ai

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gorgonia.org/tensor"
)

// DefaultMaxPixels bounds the decoded size of an upload. A few hundred bytes
// of compressed PNG can otherwise claim gigabytes of pixels.
const DefaultMaxPixels = 40_000_000

// Preprocess decodes an image, resizes it to height x width with bilinear
// interpolation and returns a (1, height, width, 3) tensor scaled to [0, 1].
// Images whose header declares more than maxPixels pixels are rejected
// before any pixel data is decoded.
func Preprocess(data []byte, height, width, maxPixels int) (*tensor.Dense, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if maxPixels > 0 && hdr.Width*hdr.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, hdr.Width, hdr.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	bounds := resized.Bounds()

	backing := make([]float32, height*width*3)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// alpha is dropped, not premultiplied
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			backing[i] = float32(c.R) / 255
			backing[i+1] = float32(c.G) / 255
			backing[i+2] = float32(c.B) / 255
			i += 3
		}
	}

	return tensor.New(tensor.WithShape(1, height, width, 3), tensor.WithBacking(backing)), nil
}
