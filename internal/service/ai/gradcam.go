package ai

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SaliencyMap is a non-negative importance map at the resolution of the last
// convolutional feature map, row-major.
type SaliencyMap struct {
	Height int
	Width  int
	Values []float32
}

// At returns the value at row y, column x.
func (s *SaliencyMap) At(y, x int) float32 {
	return s.Values[y*s.Width+x]
}

// Max returns the largest value, 0 for an empty map.
func (s *SaliencyMap) Max() float32 {
	var m float32
	for _, v := range s.Values {
		if v > m {
			m = v
		}
	}
	return m
}

// Saliency computes a Grad-CAM map explaining class target for x. A negative
// target selects the class the network predicts.
func Saliency(m *Model, x *tensor.Dense, target int) (*SaliencyMap, error) {
	conv := m.lastConv()
	if conv < 0 {
		return nil, fmt.Errorf("%w: no Conv2D layer in %q", ErrSaliencyUnsupported, m.ID)
	}
	if conv == len(m.layers)-1 {
		return nil, fmt.Errorf("%w: no classifier head after layer %q", ErrSaliencyUnsupported, m.layers[conv].Name)
	}
	if target >= m.numClasses {
		return nil, fmt.Errorf("%w: target class %d, model has %d outputs", ErrIndexOutOfRange, target, m.numClasses)
	}

	// Feature extractor: input to the output of the last conv layer.
	g := G.NewGraph()
	in, err := m.inputNode(g, x)
	if err != nil {
		return nil, err
	}
	fm, err := m.applyLayers(g, in, 0, conv+1)
	if err != nil {
		return nil, err
	}
	vals, err := run(g, fm)
	if err != nil {
		return nil, err
	}
	features := vals[0]

	if target < 0 {
		probs, err := m.runHead(features, conv)
		if err != nil {
			return nil, err
		}
		target = argmax(probs)
	}

	grads, err := m.headGradient(features, conv, target)
	if err != nil {
		return nil, err
	}

	return camFromGradient(features, grads)
}

// runHead replays the layers after conv on a feature map.
func (m *Model) runHead(features *tensor.Dense, conv int) ([]float32, error) {
	g := G.NewGraph()
	fm := G.NewTensor(g, tensor.Float32, 4, G.WithShape(features.Shape()...), G.WithValue(features.Clone()), G.WithName("features"))
	probs, err := m.applyLayers(g, fm, conv+1, len(m.layers))
	if err != nil {
		return nil, err
	}
	vals, err := run(g, probs)
	if err != nil {
		return nil, err
	}
	return float32s(vals[0])
}

// headGradient differentiates the target class probability with respect to
// the feature map. The feature map enters the head graph as a leaf so it can
// be differentiated.
func (m *Model) headGradient(features *tensor.Dense, conv, target int) (*tensor.Dense, error) {
	g := G.NewGraph()
	fm := G.NewTensor(g, tensor.Float32, 4, G.WithShape(features.Shape()...), G.WithValue(features.Clone()), G.WithName("features"))
	probs, err := m.applyLayers(g, fm, conv+1, len(m.layers))
	if err != nil {
		return nil, err
	}

	score, err := G.Slice(probs, G.S(0), G.S(target))
	if err != nil {
		return nil, fmt.Errorf("failed to select class %d: %w", target, err)
	}
	grads, err := G.Grad(score, fm)
	if err != nil {
		return nil, fmt.Errorf("failed to differentiate class %d: %w", target, err)
	}

	vals, err := run(g, grads[0])
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// camFromGradient weights each feature channel by the spatial mean of its
// gradient, averages the channels, applies ReLU and max-normalizes.
// Both tensors are NCHW with batch 1.
func camFromGradient(features, grads *tensor.Dense) (*SaliencyMap, error) {
	if !features.Shape().Eq(grads.Shape()) || features.Dims() != 4 {
		return nil, fmt.Errorf("%w: features %v, gradient %v", ErrShapeMismatch, features.Shape(), grads.Shape())
	}
	fm, err := float32s(features)
	if err != nil {
		return nil, err
	}
	gd, err := float32s(grads)
	if err != nil {
		return nil, err
	}

	s := features.Shape()
	c, h, w := s[1], s[2], s[3]
	plane := h * w

	weights := make([]float64, c)
	for ch := 0; ch < c; ch++ {
		var sum float64
		for _, v := range gd[ch*plane : (ch+1)*plane] {
			sum += float64(v)
		}
		weights[ch] = sum / float64(plane)
	}

	cam := make([]float64, plane)
	for ch := 0; ch < c; ch++ {
		wt := weights[ch]
		for i, v := range fm[ch*plane : (ch+1)*plane] {
			cam[i] += float64(v) * wt
		}
	}

	var peak float64
	for i := range cam {
		cam[i] /= float64(c)
		if cam[i] < 0 || math.IsNaN(cam[i]) {
			cam[i] = 0
		}
		if cam[i] > peak {
			peak = cam[i]
		}
	}

	out := &SaliencyMap{Height: h, Width: w, Values: make([]float32, plane)}
	if peak == 0 || math.IsInf(peak, 0) {
		return out, nil
	}
	for i, v := range cam {
		out.Values[i] = float32(v / peak)
	}
	return out, nil
}
