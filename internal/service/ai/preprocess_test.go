package ai

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreprocess_JPEGToInputTensor(t *testing.T) {
	data := encodeJPEG(t, leafImage(500, 500))

	x, err := Preprocess(data, 128, 128, DefaultMaxPixels)
	require.NoError(t, err)
	require.Equal(t, []int{1, 128, 128, 3}, []int(x.Shape()))

	values := x.Data().([]float32)
	require.Len(t, values, 128*128*3)
	for _, v := range values {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}

	// centre of the disc is green
	at := func(y, x, c int) float32 { return values[(y*128+x)*3+c] }
	require.Greater(t, at(64, 40, 1), at(64, 40, 0))
	require.Greater(t, at(64, 40, 1), at(64, 40, 2))
}

func TestPreprocess_GrayscaleBecomesRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 10))
	for i := range gray.Pix {
		gray.Pix[i] = 51
	}

	x, err := Preprocess(encodePNG(t, gray), 8, 8, DefaultMaxPixels)
	require.NoError(t, err)
	require.Equal(t, []int{1, 8, 8, 3}, []int(x.Shape()))
	for _, v := range x.Data().([]float32) {
		require.InDelta(t, 0.2, v, 0.005)
	}
}

func TestPreprocess_TransparentPixelsDropAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 128})
		}
	}

	x, err := Preprocess(encodePNG(t, img), 4, 4, DefaultMaxPixels)
	require.NoError(t, err)
	values := x.Data().([]float32)
	require.InDelta(t, 1.0, values[0], 0.01)
	require.InDelta(t, 0.0, values[1], 0.01)
}

func TestPreprocess_InvalidImage(t *testing.T) {
	full := encodeJPEG(t, leafImage(64, 64))

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated jpeg", full[:len(full)/2]},
		{"not an image", []byte("hello, world")},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preprocess(tt.data, 128, 128, DefaultMaxPixels)
			require.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

// withPNGDimensions rewrites the IHDR chunk of an encoded PNG so the header
// declares width x height while the pixel data stays tiny.
func withPNGDimensions(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	require.Equal(t, "IHDR", string(data[12:16]))

	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestPreprocess_RejectsOversizedHeader(t *testing.T) {
	bomb := withPNGDimensions(t, encodePNG(t, leafImage(8, 8)), 50000, 50000)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(bomb))
	require.NoError(t, err)
	require.Equal(t, 50000, cfg.Width)

	_, err = Preprocess(bomb, 128, 128, DefaultMaxPixels)
	require.ErrorIs(t, err, ErrInvalidImage)
	require.ErrorContains(t, err, "50000x50000")
}

func TestPreprocess_PixelLimit(t *testing.T) {
	data := encodePNG(t, leafImage(40, 30))

	_, err := Preprocess(data, 12, 12, 40*30-1)
	require.ErrorIs(t, err, ErrInvalidImage)

	x, err := Preprocess(data, 12, 12, 40*30)
	require.NoError(t, err)
	require.Equal(t, []int{1, 12, 12, 3}, []int(x.Shape()))
}
