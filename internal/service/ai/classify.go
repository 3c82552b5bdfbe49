package ai

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Classification is the result of one forward pass.
type Classification struct {
	Index         int
	Label         string
	Confidence    float64 // percent, 100 * max probability
	Probabilities []float32
}

// Classify runs m on x and looks the winning class up in m.Labels.
func Classify(m *Model, x *tensor.Dense) (*Classification, error) {
	probs, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	if len(probs) == 0 {
		return nil, fmt.Errorf("model %q produced no output", m.ID)
	}

	idx := argmax(probs)
	if idx >= len(m.Labels) {
		return nil, fmt.Errorf("%w: class %d, model %q has %d labels", ErrIndexOutOfRange, idx, m.ID, len(m.Labels))
	}

	return &Classification{
		Index:         idx,
		Label:         m.Labels[idx],
		Confidence:    float64(probs[idx]) * 100,
		Probabilities: probs,
	}, nil
}

// argmax returns the first index holding the largest value.
func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
