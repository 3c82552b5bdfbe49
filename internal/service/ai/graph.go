package ai

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Graphs are built per call. Weight values are cloned into each graph so the
// tape machine may reuse buffers without touching the cached model.

// inputNode places an NHWC image tensor into g and returns it as NCHW.
func (m *Model) inputNode(g *G.ExprGraph, x *tensor.Dense) (*G.Node, error) {
	h, w := m.InputSize()
	want := tensor.Shape{1, h, w, m.inputShape[2]}
	if !x.Shape().Eq(want) {
		return nil, fmt.Errorf("%w: input tensor %v, model expects %v", ErrShapeMismatch, x.Shape(), want)
	}

	in := G.NewTensor(g, tensor.Float32, 4, G.WithShape(want...), G.WithValue(x.Clone()), G.WithName("input"))
	return G.Transpose(in, 0, 3, 1, 2)
}

// applyLayers appends layers[from:to] to the graph, starting from x.
func (m *Model) applyLayers(g *G.ExprGraph, x *G.Node, from, to int) (*G.Node, error) {
	var err error
	for i := from; i < to; i++ {
		if x, err = m.layers[i].apply(g, x, i); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, m.layers[i].Name, err)
		}
	}
	return x, nil
}

func (l *layer) apply(g *G.ExprGraph, x *G.Node, idx int) (*G.Node, error) {
	var err error

	switch l.Kind {
	case KindConv2D:
		kh, kw := l.spec.KernelSize[0], l.spec.KernelSize[1]
		filter := l.constant(g, l.weight, idx, "kernel")
		if x, err = G.Conv2d(x, filter, tensor.Shape{kh, kw}, l.pad[:], l.stride[:], []int{1, 1}); err != nil {
			return nil, err
		}
		if x, err = G.BroadcastAdd(x, l.constant(g, l.bias, idx, "bias"), nil, []byte{0, 2, 3}); err != nil {
			return nil, err
		}

	case KindMaxPooling2D:
		pool := tensor.Shape{l.spec.PoolSize[0], l.spec.PoolSize[1]}
		if x, err = G.MaxPool2D(x, pool, []int{0, 0}, l.stride[:]); err != nil {
			return nil, err
		}

	case KindBatchNormalization:
		scale := l.constant(g, l.scale, idx, "scale")
		shift := l.constant(g, l.shift, idx, "shift")
		if x.Dims() == 4 {
			if x, err = G.BroadcastHadamardProd(x, scale, nil, []byte{0, 2, 3}); err != nil {
				return nil, err
			}
			if x, err = G.BroadcastAdd(x, shift, nil, []byte{0, 2, 3}); err != nil {
				return nil, err
			}
		} else {
			if x, err = G.HadamardProd(x, scale); err != nil {
				return nil, err
			}
			if x, err = G.Add(x, shift); err != nil {
				return nil, err
			}
		}

	case KindGlobalAvgPool2D:
		if x, err = G.Mean(x, 3); err != nil {
			return nil, err
		}
		if x, err = G.Mean(x, 2); err != nil {
			return nil, err
		}

	case KindFlatten:
		if x.Dims() == 4 {
			// channels-last order so dense weights exported from Keras line up
			if x, err = G.Transpose(x, 0, 2, 3, 1); err != nil {
				return nil, err
			}
			n := x.Shape().TotalSize()
			if x, err = G.Reshape(x, tensor.Shape{1, n}); err != nil {
				return nil, err
			}
		}

	case KindDense:
		if x, err = G.Mul(x, l.constant(g, l.weight, idx, "kernel")); err != nil {
			return nil, err
		}
		if x, err = G.Add(x, l.constant(g, l.bias, idx, "bias")); err != nil {
			return nil, err
		}

	case KindDropout, KindActivation:
		// Dropout is the identity at inference time.
	}

	return activate(x, l.spec.Activation)
}

func activate(x *G.Node, name string) (*G.Node, error) {
	switch name {
	case ActivationReLU:
		return G.Rectify(x)
	case ActivationSigmoid:
		return G.Sigmoid(x)
	case ActivationTanh:
		return G.Tanh(x)
	case ActivationSoftmax:
		return G.SoftMax(x)
	}
	return x, nil
}

func (l *layer) constant(g *G.ExprGraph, t *tensor.Dense, idx int, what string) *G.Node {
	return G.NewTensor(g, tensor.Float32, t.Dims(),
		G.WithShape(t.Shape()...),
		G.WithValue(t.Clone()),
		G.WithName(fmt.Sprintf("l%d_%s", idx, what)))
}

// run executes g and returns a copy of each requested node's value.
func run(g *G.ExprGraph, nodes ...*G.Node) ([]*tensor.Dense, error) {
	vals := make([]G.Value, len(nodes))
	for i, n := range nodes {
		G.Read(n, &vals[i])
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("failed to run graph: %w", err)
	}

	out := make([]*tensor.Dense, len(nodes))
	for i, v := range vals {
		t, ok := v.(tensor.Tensor)
		if !ok {
			return nil, fmt.Errorf("node %s produced %T, want a tensor", nodes[i].Name(), v)
		}
		d, ok := t.Clone().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("node %s produced %T, want a dense tensor", nodes[i].Name(), t)
		}
		out[i] = d
	}
	return out, nil
}

// Forward runs the whole network on an NHWC tensor and returns the class
// probability vector.
func (m *Model) Forward(x *tensor.Dense) ([]float32, error) {
	g := G.NewGraph()
	in, err := m.inputNode(g, x)
	if err != nil {
		return nil, err
	}
	out, err := m.applyLayers(g, in, 0, len(m.layers))
	if err != nil {
		return nil, err
	}

	vals, err := run(g, out)
	if err != nil {
		return nil, err
	}
	return float32s(vals[0])
}

func float32s(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor holds %T, want []float32", t.Data())
	}
	return data, nil
}
