package ai

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// DefaultAlpha is the heatmap weight used when blending.
const DefaultAlpha = 0.4

// Composite upscales sal to the image size of x, colours it with the JET
// palette and blends it over the image as heat*alpha + original.
// x is the (1, H, W, C) tensor the network saw, C being 1 or 3.
func Composite(sal *SaliencyMap, x *tensor.Dense, alpha float64) (*image.RGBA, error) {
	if sal == nil || sal.Height <= 0 || sal.Width <= 0 || len(sal.Values) != sal.Height*sal.Width {
		return nil, fmt.Errorf("%w: empty saliency map", ErrShapeMismatch)
	}
	s := x.Shape()
	if len(s) != 4 || s[0] != 1 || (s[3] != 1 && s[3] != 3) {
		return nil, fmt.Errorf("%w: image tensor %v", ErrShapeMismatch, s)
	}
	h, w, ch := s[1], s[2], s[3]
	pixels, err := float32s(x)
	if err != nil {
		return nil, err
	}

	small := gocv.NewMatWithSize(sal.Height, sal.Width, gocv.MatTypeCV32F)
	defer small.Close()
	for y := 0; y < sal.Height; y++ {
		for xx := 0; xx < sal.Width; xx++ {
			small.SetFloatAt(y, xx, sal.At(y, xx))
		}
	}

	large := gocv.NewMat()
	defer large.Close()
	gocv.Resize(small, &large, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	if large.Rows() != h || large.Cols() != w {
		return nil, fmt.Errorf("%w: heatmap %dx%d, image %dx%d", ErrShapeMismatch, large.Cols(), large.Rows(), w, h)
	}

	gray := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	defer gray.Close()
	for y := 0; y < h; y++ {
		for xx := 0; xx < w; xx++ {
			gray.SetUCharAt(y, xx, toByte(float64(large.GetFloatAt(y, xx))*255))
		}
	}

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapJet)
	if colored.Rows() != h || colored.Cols() != w || colored.Channels() != 3 {
		return nil, fmt.Errorf("%w: colour map produced %dx%dx%d", ErrShapeMismatch, colored.Cols(), colored.Rows(), colored.Channels())
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for xx := 0; xx < w; xx++ {
			// OpenCV pixels are BGR
			bgr := colored.GetVecbAt(y, xx)
			heat := [3]float64{float64(bgr[2]), float64(bgr[1]), float64(bgr[0])}

			base := (y*w + xx) * ch
			o := out.PixOffset(xx, y)
			for c := 0; c < 3; c++ {
				src := base + c
				if ch == 1 {
					src = base
				}
				orig := float64(toByte(float64(pixels[src]) * 255))
				out.Pix[o+c] = toByte(heat[c]*alpha + orig)
			}
			out.Pix[o+3] = 0xff
		}
	}
	return out, nil
}

// toByte truncates like a uint8 cast after clamping to [0, 255].
func toByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
