package ai

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// LayerKind tags a layer descriptor with its operation.
type LayerKind string

const (
	KindConv2D             LayerKind = "Conv2D"
	KindMaxPooling2D       LayerKind = "MaxPooling2D"
	KindBatchNormalization LayerKind = "BatchNormalization"
	KindGlobalAvgPool2D    LayerKind = "GlobalAveragePooling2D"
	KindFlatten            LayerKind = "Flatten"
	KindDense              LayerKind = "Dense"
	KindDropout            LayerKind = "Dropout"
	KindActivation         LayerKind = "Activation"
)

// Activation names accepted on Conv2D, Dense and Activation layers.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationSoftmax = "softmax"
)

const (
	PaddingValid = "valid"
	PaddingSame  = "same"
)

// LayerSpec is one serialized layer. Weights use the Keras layout: conv
// kernels are (kh, kw, in, out), dense kernels are (in, out).
type LayerSpec struct {
	Name       string    `json:"name" yaml:"name"`
	Kind       LayerKind `json:"kind" yaml:"kind"`
	Activation string    `json:"activation,omitempty" yaml:"activation,omitempty"`

	// Conv2D
	Filters    int    `json:"filters,omitempty" yaml:"filters,omitempty"`
	KernelSize [2]int `json:"kernel_size,omitempty" yaml:"kernel_size,omitempty"`
	Strides    [2]int `json:"strides,omitempty" yaml:"strides,omitempty"`
	Padding    string `json:"padding,omitempty" yaml:"padding,omitempty"`

	// MaxPooling2D, Strides default to PoolSize.
	PoolSize [2]int `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`

	// Dense
	Units int `json:"units,omitempty" yaml:"units,omitempty"`

	Kernel []float32 `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Bias   []float32 `json:"bias,omitempty" yaml:"bias,omitempty"`

	// BatchNormalization
	Gamma          []float32 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Beta           []float32 `json:"beta,omitempty" yaml:"beta,omitempty"`
	MovingMean     []float32 `json:"moving_mean,omitempty" yaml:"moving_mean,omitempty"`
	MovingVariance []float32 `json:"moving_variance,omitempty" yaml:"moving_variance,omitempty"`
	Epsilon        float32   `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
}

// Network is the serialized form of a sequential image classifier. The
// json and yaml tags describe the exporter's input format; artifacts use gob.
type Network struct {
	Name string `json:"name" yaml:"name"`
	// InputShape is (height, width, channels).
	InputShape [3]int      `json:"input_shape" yaml:"input_shape"`
	Layers     []LayerSpec `json:"layers" yaml:"layers"`
}

// LayerInfo describes a prepared layer. OutputShape is (h, w, c) for
// spatial outputs and (n) once the tensor has been flattened.
type LayerInfo struct {
	Name        string    `json:"name"`
	Kind        LayerKind `json:"kind"`
	OutputShape []int     `json:"output_shape"`
}

// layer is a validated layer with its weights converted for the graph.
// Prepared tensors are never written to after construction.
type layer struct {
	LayerInfo
	spec LayerSpec

	weight *tensor.Dense // conv OIHW, dense (in, out)
	bias   *tensor.Dense // conv (1, c, 1, 1), dense (1, n)
	scale  *tensor.Dense // folded batch norm
	shift  *tensor.Dense
	pad    [2]int
	stride [2]int
}

// Model is a loaded classifier: prepared layers plus the catalog labels.
// Safe for concurrent use.
type Model struct {
	ID     string
	Labels []string

	name       string
	inputShape [3]int
	layers     []*layer
	numClasses int
}

// shape tracks the activation shape while layers are prepared.
type shape struct {
	spatial bool
	h, w, c int
	n       int
}

func (s shape) dims() []int {
	if s.spatial {
		return []int{s.h, s.w, s.c}
	}
	return []int{s.n}
}

// features is the per-sample element count along the channel (or unit) axis.
func (s shape) features() int {
	if s.spatial {
		return s.c
	}
	return s.n
}

// NewModel validates net and prepares its weights for inference.
func NewModel(id string, labels []string, net *Network) (*Model, error) {
	if net == nil {
		return nil, fmt.Errorf("network is nil")
	}
	h, w, c := net.InputShape[0], net.InputShape[1], net.InputShape[2]
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("invalid input shape %v", net.InputShape)
	}
	if c != 3 {
		return nil, fmt.Errorf("input must have 3 channels, got %d", c)
	}
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("network has no layers")
	}

	m := &Model{
		ID:         id,
		Labels:     append([]string(nil), labels...),
		name:       net.Name,
		inputShape: net.InputShape,
		layers:     make([]*layer, 0, len(net.Layers)),
	}

	cur := shape{spatial: true, h: h, w: w, c: c}
	for i, spec := range net.Layers {
		l, next, err := prepareLayer(spec, cur)
		if err != nil {
			name := spec.Name
			if name == "" {
				name = string(spec.Kind)
			}
			return nil, fmt.Errorf("layer %d (%s): %w", i, name, err)
		}
		if l.Name == "" {
			l.Name = fmt.Sprintf("%s_%d", spec.Kind, i)
		}
		m.layers = append(m.layers, l)
		cur = next
	}

	if cur.spatial {
		return nil, fmt.Errorf("network output must be a class vector, got shape %v", cur.dims())
	}
	// Confidence is read straight off the output, so it has to be a probability.
	if act := outputActivation(net.Layers); act != ActivationSoftmax && act != ActivationSigmoid {
		return nil, fmt.Errorf("network output must end in softmax or sigmoid, got %s", act)
	}
	m.numClasses = cur.n
	return m, nil
}

// outputActivation returns the activation applied last. Dropout and Flatten
// leave values untouched.
func outputActivation(layers []LayerSpec) string {
	for i := len(layers) - 1; i >= 0; i-- {
		switch l := layers[i]; l.Kind {
		case KindDropout, KindFlatten:
			continue
		case KindDense, KindActivation:
			if l.Activation != "" {
				return l.Activation
			}
		}
		return ActivationLinear
	}
	return ActivationLinear
}

func prepareLayer(spec LayerSpec, in shape) (*layer, shape, error) {
	l := &layer{spec: spec}
	l.Name = spec.Name
	l.Kind = spec.Kind

	if err := checkActivation(spec.Activation, in, spec.Kind); err != nil {
		return nil, in, err
	}

	out := in
	switch spec.Kind {
	case KindConv2D:
		if !in.spatial {
			return nil, in, fmt.Errorf("Conv2D needs a spatial input")
		}
		kh, kw := spec.KernelSize[0], spec.KernelSize[1]
		if spec.Filters <= 0 || kh <= 0 || kw <= 0 {
			return nil, in, fmt.Errorf("invalid filters %d or kernel %v", spec.Filters, spec.KernelSize)
		}
		sh, sw := defaultPair(spec.Strides, [2]int{1, 1})
		l.stride = [2]int{sh, sw}

		switch spec.Padding {
		case "", PaddingValid:
			out.h = (in.h-kh)/sh + 1
			out.w = (in.w-kw)/sw + 1
			if in.h < kh || in.w < kw {
				return nil, in, fmt.Errorf("kernel %v larger than input %dx%d", spec.KernelSize, in.h, in.w)
			}
		case PaddingSame:
			if kh%2 == 0 || kw%2 == 0 || sh != 1 || sw != 1 {
				return nil, in, fmt.Errorf("same padding needs an odd kernel and stride 1")
			}
			l.pad = [2]int{(kh - 1) / 2, (kw - 1) / 2}
		default:
			return nil, in, fmt.Errorf("unsupported padding %q", spec.Padding)
		}
		out.c = spec.Filters

		want := kh * kw * in.c * spec.Filters
		if len(spec.Kernel) != want {
			return nil, in, fmt.Errorf("kernel has %d weights, want %d", len(spec.Kernel), want)
		}
		k := tensor.New(tensor.WithShape(kh, kw, in.c, spec.Filters), tensor.WithBacking(append([]float32(nil), spec.Kernel...)))
		if err := k.T(3, 2, 0, 1); err != nil {
			return nil, in, err
		}
		if err := k.Transpose(); err != nil {
			return nil, in, err
		}
		l.weight = k

		bias, err := vectorOrDefault(spec.Bias, spec.Filters, 0)
		if err != nil {
			return nil, in, fmt.Errorf("bias: %w", err)
		}
		l.bias = tensor.New(tensor.WithShape(1, spec.Filters, 1, 1), tensor.WithBacking(bias))

	case KindMaxPooling2D:
		if !in.spatial {
			return nil, in, fmt.Errorf("MaxPooling2D needs a spatial input")
		}
		ph, pw := defaultPair(spec.PoolSize, [2]int{2, 2})
		sh, sw := defaultPair(spec.Strides, [2]int{ph, pw})
		if spec.Padding != "" && spec.Padding != PaddingValid {
			return nil, in, fmt.Errorf("unsupported pooling padding %q", spec.Padding)
		}
		if in.h < ph || in.w < pw {
			return nil, in, fmt.Errorf("pool %dx%d larger than input %dx%d", ph, pw, in.h, in.w)
		}
		l.spec.PoolSize = [2]int{ph, pw}
		l.stride = [2]int{sh, sw}
		out.h = (in.h-ph)/sh + 1
		out.w = (in.w-pw)/sw + 1

	case KindBatchNormalization:
		n := in.features()
		gamma, err := vectorOrDefault(spec.Gamma, n, 1)
		if err != nil {
			return nil, in, fmt.Errorf("gamma: %w", err)
		}
		beta, err := vectorOrDefault(spec.Beta, n, 0)
		if err != nil {
			return nil, in, fmt.Errorf("beta: %w", err)
		}
		mean, err := vectorOrDefault(spec.MovingMean, n, 0)
		if err != nil {
			return nil, in, fmt.Errorf("moving mean: %w", err)
		}
		variance, err := vectorOrDefault(spec.MovingVariance, n, 1)
		if err != nil {
			return nil, in, fmt.Errorf("moving variance: %w", err)
		}
		eps := spec.Epsilon
		if eps <= 0 {
			eps = 1e-3
		}

		scale := make([]float32, n)
		shift := make([]float32, n)
		for i := range scale {
			scale[i] = gamma[i] / float32(math.Sqrt(float64(variance[i]+eps)))
			shift[i] = beta[i] - mean[i]*scale[i]
		}
		bshape := []int{1, n}
		if in.spatial {
			bshape = []int{1, n, 1, 1}
		}
		l.scale = tensor.New(tensor.WithShape(bshape...), tensor.WithBacking(scale))
		l.shift = tensor.New(tensor.WithShape(bshape...), tensor.WithBacking(shift))

	case KindGlobalAvgPool2D:
		if !in.spatial {
			return nil, in, fmt.Errorf("GlobalAveragePooling2D needs a spatial input")
		}
		out = shape{n: in.c}

	case KindFlatten:
		if in.spatial {
			out = shape{n: in.h * in.w * in.c}
		}

	case KindDense:
		if in.spatial {
			return nil, in, fmt.Errorf("Dense needs a flat input, add Flatten or GlobalAveragePooling2D")
		}
		if spec.Units <= 0 {
			return nil, in, fmt.Errorf("invalid units %d", spec.Units)
		}
		if len(spec.Kernel) != in.n*spec.Units {
			return nil, in, fmt.Errorf("kernel has %d weights, want %d", len(spec.Kernel), in.n*spec.Units)
		}
		l.weight = tensor.New(tensor.WithShape(in.n, spec.Units), tensor.WithBacking(append([]float32(nil), spec.Kernel...)))
		bias, err := vectorOrDefault(spec.Bias, spec.Units, 0)
		if err != nil {
			return nil, in, fmt.Errorf("bias: %w", err)
		}
		l.bias = tensor.New(tensor.WithShape(1, spec.Units), tensor.WithBacking(bias))
		out = shape{n: spec.Units}

	case KindDropout:
	case KindActivation:
		if spec.Activation == "" {
			return nil, in, fmt.Errorf("activation layer without activation")
		}

	default:
		return nil, in, fmt.Errorf("unsupported layer kind %q", spec.Kind)
	}

	l.OutputShape = out.dims()
	return l, out, nil
}

func checkActivation(name string, in shape, kind LayerKind) error {
	switch name {
	case "", ActivationLinear, ActivationReLU, ActivationSigmoid, ActivationTanh:
		return nil
	case ActivationSoftmax:
		// softmax over the class vector only
		if kind == KindConv2D || (kind == KindActivation && in.spatial) {
			return fmt.Errorf("softmax on a spatial tensor is not supported")
		}
		return nil
	}
	return fmt.Errorf("unsupported activation %q", name)
}

func defaultPair(p, def [2]int) (int, int) {
	if p[0] <= 0 || p[1] <= 0 {
		return def[0], def[1]
	}
	return p[0], p[1]
}

func vectorOrDefault(v []float32, n int, fill float32) ([]float32, error) {
	if len(v) == 0 {
		out := make([]float32, n)
		for i := range out {
			out[i] = fill
		}
		return out, nil
	}
	if len(v) != n {
		return nil, fmt.Errorf("has %d values, want %d", len(v), n)
	}
	return append([]float32(nil), v...), nil
}

// Name is the network name stored in the artifact.
func (m *Model) Name() string {
	return m.name
}

// InputSize returns the (height, width) images are resized to.
func (m *Model) InputSize() (int, int) {
	return m.inputShape[0], m.inputShape[1]
}

// NumClasses is the width of the network's output vector.
func (m *Model) NumClasses() int {
	return m.numClasses
}

// Layers lists the prepared layers in order.
func (m *Model) Layers() []LayerInfo {
	infos := make([]LayerInfo, len(m.layers))
	for i, l := range m.layers {
		infos[i] = l.LayerInfo
		infos[i].OutputShape = append([]int(nil), l.OutputShape...)
	}
	return infos
}

// SaliencyLayer names the convolution Grad-CAM explains, empty when the
// network has none.
func (m *Model) SaliencyLayer() string {
	if i := m.lastConv(); i >= 0 {
		return m.layers[i].Name
	}
	return ""
}

// lastConv scans from the output toward the input for the first Conv2D.
func (m *Model) lastConv() int {
	for i := len(m.layers) - 1; i >= 0; i-- {
		if m.layers[i].Kind == KindConv2D {
			return i
		}
	}
	return -1
}
