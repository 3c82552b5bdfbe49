package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func requireNormalized(t *testing.T, s *SaliencyMap) {
	t.Helper()

	require.Len(t, s.Values, s.Height*s.Width)
	for _, v := range s.Values {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestSaliency_PredictedClass(t *testing.T) {
	m := newTestModel(t, tinyCNN(128, 4, 7), appleLabels)
	x, err := Preprocess(encodeJPEG(t, leafImage(500, 500)), 128, 128, DefaultMaxPixels)
	require.NoError(t, err)

	sal, err := Saliency(m, x, -1)
	require.NoError(t, err)

	// 128 -> conv 126 -> pool 63 -> same conv 63
	require.Equal(t, 63, sal.Height)
	require.Equal(t, 63, sal.Width)
	requireNormalized(t, sal)
	require.Equal(t, float32(1), sal.Max())

	cls, err := Classify(m, x)
	require.NoError(t, err)
	explicit, err := Saliency(m, x, cls.Index)
	require.NoError(t, err)
	require.InDeltaSlice(t, sal.Values, explicit.Values, 1e-6)
}

func TestSaliency_CounterfactualTarget(t *testing.T) {
	m := newTestModel(t, tinyCNN(32, 4, 11), appleLabels)
	x, err := Preprocess(encodeJPEG(t, leafImage(64, 64)), 32, 32, DefaultMaxPixels)
	require.NoError(t, err)

	for target := 0; target < 4; target++ {
		sal, err := Saliency(m, x, target)
		require.NoError(t, err)
		requireNormalized(t, sal)
		if max := sal.Max(); max != 0 {
			require.Equal(t, float32(1), max)
		}
	}

	_, err = Saliency(m, x, 4)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSaliency_ZeroFeatureMapGivesZeroMap(t *testing.T) {
	net := tinyCNN(32, 4, 3)
	conv2 := &net.Layers[3]
	conv2.Kernel = make([]float32, len(conv2.Kernel))
	conv2.Bias = make([]float32, len(conv2.Bias))
	m := newTestModel(t, net, appleLabels)

	x, err := Preprocess(encodeJPEG(t, leafImage(64, 64)), 32, 32, DefaultMaxPixels)
	require.NoError(t, err)

	sal, err := Saliency(m, x, -1)
	require.NoError(t, err)
	requireNormalized(t, sal)
	require.Zero(t, sal.Max())
}

func TestSaliency_NoConvLayer(t *testing.T) {
	net := &Network{
		InputShape: [3]int{8, 8, 3},
		Layers: []LayerSpec{
			{Kind: KindGlobalAvgPool2D},
			{Kind: KindDense, Units: 2, Activation: ActivationSoftmax, Kernel: []float32{1, -1, 0.5, 0.5, -1, 1}},
		},
	}
	m := newTestModel(t, net, []string{"a", "b"})
	x, err := Preprocess(encodePNG(t, leafImage(8, 8)), 8, 8, DefaultMaxPixels)
	require.NoError(t, err)

	_, err = Classify(m, x)
	require.NoError(t, err)

	_, err = Saliency(m, x, -1)
	require.ErrorIs(t, err, ErrSaliencyUnsupported)
}

func TestCamFromGradient(t *testing.T) {
	// two channels on a 1x2 map: channel weights are 1 and -1
	features := tensor.New(tensor.WithShape(1, 2, 1, 2), tensor.WithBacking([]float32{
		4, 2,
		1, 3,
	}))
	grads := tensor.New(tensor.WithShape(1, 2, 1, 2), tensor.WithBacking([]float32{
		1, 1,
		-2, 0,
	}))

	sal, err := camFromGradient(features, grads)
	require.NoError(t, err)
	// cam = ((4*1 + 1*-1)/2, (2*1 + 3*-1)/2) = (1.5, -0.5) -> relu -> (1.5, 0) -> (1, 0)
	require.Equal(t, []float32{1, 0}, sal.Values)

	_, err = camFromGradient(features, tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float32{1, 1})))
	require.ErrorIs(t, err, ErrShapeMismatch)
}
