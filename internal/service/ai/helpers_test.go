package ai

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"leafscan/internal/logger"
)

var appleLabels = []string{"Apple - Healthy", "Apple - Rotten", "Apple - Blotch", "Apple - Scab"}

func randomWeights(r *rand.Rand, n int, scale float32) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = (r.Float32()*2 - 1) * scale
	}
	return w
}

func positiveWeights(r *rand.Rand, n int, scale float32) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = r.Float32()*scale + 0.01
	}
	return w
}

// tinyCNN builds conv -> pool -> conv -> GAP -> dense softmax. The last conv
// has positive weights so its feature map is positive, and the dense layer
// has no bias, which keeps the Grad-CAM map of the predicted class non-zero.
func tinyCNN(size, classes int, seed int64) *Network {
	r := rand.New(rand.NewSource(seed))
	return &Network{
		Name:       "tiny",
		InputShape: [3]int{size, size, 3},
		Layers: []LayerSpec{
			{
				Name: "conv1", Kind: KindConv2D, Activation: ActivationReLU,
				Filters: 4, KernelSize: [2]int{3, 3},
				Kernel: randomWeights(r, 3*3*3*4, 0.5),
				Bias:   randomWeights(r, 4, 0.1),
			},
			{Name: "pool1", Kind: KindMaxPooling2D, PoolSize: [2]int{2, 2}},
			{
				Name: "bn1", Kind: KindBatchNormalization,
				Gamma: []float32{1, 1, 1, 1}, Beta: []float32{0.1, 0.1, 0.1, 0.1},
				MovingMean: []float32{0, 0, 0, 0}, MovingVariance: []float32{1, 1, 1, 1},
			},
			{
				Name: "conv2", Kind: KindConv2D, Activation: ActivationReLU,
				Filters: 6, KernelSize: [2]int{3, 3}, Padding: PaddingSame,
				Kernel: positiveWeights(r, 3*3*4*6, 0.2),
				Bias:   positiveWeights(r, 6, 0.1),
			},
			{Name: "gap", Kind: KindGlobalAvgPool2D},
			{Name: "dropout", Kind: KindDropout},
			{
				Name: "predictions", Kind: KindDense, Activation: ActivationSoftmax,
				Units:  classes,
				Kernel: randomWeights(r, 6*classes, 1),
			},
		},
	}
}

// flatCNN uses Flatten instead of global pooling.
func flatCNN(size, classes int, seed int64) *Network {
	r := rand.New(rand.NewSource(seed))
	conv := size - 2
	return &Network{
		Name:       "flat",
		InputShape: [3]int{size, size, 3},
		Layers: []LayerSpec{
			{
				Name: "conv", Kind: KindConv2D, Activation: ActivationReLU,
				Filters: 2, KernelSize: [2]int{3, 3},
				Kernel: randomWeights(r, 3*3*3*2, 0.5),
			},
			{Name: "flatten", Kind: KindFlatten},
			{
				Name: "hidden", Kind: KindDense, Activation: ActivationReLU,
				Units: 8, Kernel: randomWeights(r, conv*conv*2*8, 0.2),
			},
			{Name: "out", Kind: KindDense, Units: classes, Kernel: randomWeights(r, 8*classes, 1)},
			{Name: "softmax", Kind: KindActivation, Activation: ActivationSoftmax},
		},
	}
}

func newTestModel(t *testing.T, net *Network, labels []string) *Model {
	t.Helper()

	m, err := NewModel("test", labels, net)
	require.NoError(t, err)
	return m
}

func writeArtifact(t *testing.T, dir, name string, net *Network) {
	t.Helper()
	require.NoError(t, SaveArtifact(filepath.Join(dir, name), net))
}

// leafImage draws a green disc with a brown blotch on a light background.
func leafImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	cx, cy, rad := w/2, h/2, min(w, h)/3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 235, G: 235, B: 225, A: 255}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy < rad*rad {
				c = color.RGBA{R: 40, G: 150, B: 50, A: 255}
			}
			bx, by := x-cx-rad/3, y-cy
			if bx*bx+by*by < (rad/4)*(rad/4) {
				c = color.RGBA{R: 110, G: 70, B: 30, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingFS records every Open so tests can assert on filesystem access.
// onOpen, when set, runs before the file is opened.
type countingFS struct {
	fs.FS
	opens  atomic.Int32
	onOpen func(name string)
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	if c.onOpen != nil {
		c.onOpen(name)
	}
	return c.FS.Open(name)
}

func newTestLoader(t *testing.T, labels []string) (*Loader, *countingFS, string) {
	t.Helper()

	dir := t.TempDir()
	catalog, err := NewCatalog([]ModelEntry{
		{ID: "Apple", Labels: labels},
		{ID: "Citrus", Labels: []string{"Citrus - Black-Spot", "Citrus - Canker", "Citrus - Healthy"}},
	})
	require.NoError(t, err)

	cfs := &countingFS{FS: os.DirFS(dir)}
	return NewLoader(catalog, cfs, logger.Discard()), cfs, dir
}
