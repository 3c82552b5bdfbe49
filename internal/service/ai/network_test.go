package ai

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewModel_LayerShapes(t *testing.T) {
	m := newTestModel(t, tinyCNN(32, 4, 1), appleLabels)

	require.Equal(t, "tiny", m.Name())
	require.Equal(t, 4, m.NumClasses())
	h, w := m.InputSize()
	require.Equal(t, 32, h)
	require.Equal(t, 32, w)

	var shapes [][]int
	for _, l := range m.Layers() {
		shapes = append(shapes, l.OutputShape)
	}
	require.Equal(t, [][]int{
		{30, 30, 4}, // conv1 valid
		{15, 15, 4}, // pool1
		{15, 15, 4}, // bn1
		{15, 15, 6}, // conv2 same
		{6},         // gap
		{6},         // dropout
		{4},         // predictions
	}, shapes)
	require.Equal(t, 3, m.lastConv())
}

func TestNewModel_FlattenShapes(t *testing.T) {
	m := newTestModel(t, flatCNN(8, 3, 2), []string{"a", "b", "c"})

	layers := m.Layers()
	require.Equal(t, []int{6, 6, 2}, layers[0].OutputShape)
	require.Equal(t, []int{72}, layers[1].OutputShape)
	require.Equal(t, []int{3}, layers[len(layers)-1].OutputShape)
}

func TestNewModel_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *Network)
	}{
		{"grayscale input", func(n *Network) { n.InputShape[2] = 1 }},
		{"no layers", func(n *Network) { n.Layers = nil }},
		{"kernel size mismatch", func(n *Network) { n.Layers[0].Kernel = n.Layers[0].Kernel[:10] }},
		{"bias size mismatch", func(n *Network) { n.Layers[0].Bias = []float32{1} }},
		{"even kernel same padding", func(n *Network) {
			n.Layers[0].Padding = PaddingSame
			n.Layers[0].KernelSize = [2]int{2, 2}
			n.Layers[0].Kernel = make([]float32, 2*2*3*4)
		}},
		{"unknown padding", func(n *Network) { n.Layers[0].Padding = "causal" }},
		{"unknown kind", func(n *Network) { n.Layers[1].Kind = "LSTM" }},
		{"unknown activation", func(n *Network) { n.Layers[0].Activation = "swish" }},
		{"softmax on conv", func(n *Network) { n.Layers[0].Activation = ActivationSoftmax }},
		{"dense on spatial input", func(n *Network) { n.Layers = append(n.Layers[:4], n.Layers[6]) }},
		{"spatial output", func(n *Network) { n.Layers = n.Layers[:4] }},
		{"pool larger than input", func(n *Network) { n.Layers[1].PoolSize = [2]int{64, 64} }},
		{"logits output", func(n *Network) { n.Layers[len(n.Layers)-1].Activation = "" }},
		{"relu output", func(n *Network) { n.Layers[len(n.Layers)-1].Activation = ActivationReLU }},
		{"softmax before dropout and dense", func(n *Network) {
			n.Layers[len(n.Layers)-1].Activation = ActivationLinear
			n.Layers[len(n.Layers)-2] = LayerSpec{Kind: KindActivation, Activation: ActivationSoftmax}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := tinyCNN(32, 4, 1)
			tt.mutate(net)
			_, err := NewModel("bad", appleLabels, net)
			require.Error(t, err)
		})
	}
}

func TestNewModel_OutputActivation(t *testing.T) {
	// conv -> GAP -> dense(2) with a strong bias: raw logits would read as 500%
	net := &Network{
		InputShape: [3]int{8, 8, 3},
		Layers: []LayerSpec{
			{Kind: KindConv2D, Filters: 1, KernelSize: [2]int{3, 3}, Kernel: make([]float32, 3*3*3)},
			{Kind: KindGlobalAvgPool2D},
			{Kind: KindDense, Units: 2, Kernel: make([]float32, 2), Bias: []float32{5, -5}},
		},
	}
	_, err := NewModel("logits", []string{"a", "b"}, net)
	require.ErrorContains(t, err, "softmax or sigmoid")

	net.Layers = append(net.Layers, LayerSpec{Kind: KindDropout})
	_, err = NewModel("logits", []string{"a", "b"}, net)
	require.Error(t, err)

	net.Layers[2].Activation = ActivationSigmoid
	m, err := NewModel("sigmoid", []string{"a", "b"}, net)
	require.NoError(t, err)

	x, err := Preprocess(encodePNG(t, leafImage(8, 8)), 8, 8, DefaultMaxPixels)
	require.NoError(t, err)
	cls, err := Classify(m, x)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cls.Confidence, 0.0)
	require.LessOrEqual(t, cls.Confidence, 100.0)
	require.Equal(t, 0, cls.Index)

	net.Layers[2].Activation = ""
	net.Layers = append(net.Layers, LayerSpec{Kind: KindActivation, Activation: ActivationSoftmax})
	_, err = NewModel("softmax", []string{"a", "b"}, net)
	require.NoError(t, err)
}

func TestArtifact_EncodeDecode(t *testing.T) {
	net := tinyCNN(16, 2, 3)

	var buf bytes.Buffer
	require.NoError(t, EncodeArtifact(&buf, net))

	got, err := DecodeArtifact(&buf)
	require.NoError(t, err)
	require.Equal(t, net, got)
}

func TestArtifact_RejectsForeignData(t *testing.T) {
	_, err := DecodeArtifact(bytes.NewReader([]byte("this is not a model")))
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(artifactHeader{Magic: "keras", Version: 1}))
	_, err = DecodeArtifact(&buf)
	require.ErrorContains(t, err, "not a model artifact")

	buf.Reset()
	require.NoError(t, gob.NewEncoder(&buf).Encode(artifactHeader{Magic: artifactMagic, Version: 9}))
	_, err = DecodeArtifact(&buf)
	require.ErrorContains(t, err, "unsupported artifact version")
}
