package backbone

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Noofbiz/contourgraph/internal/snapgob"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// WeightsVersion is incremented when the on-disk weights format changes.
const WeightsVersion = 1

// LayerKind identifies the operation of a Layer.
type LayerKind string

const (
	KindConv    LayerKind = "conv"
	KindReLU    LayerKind = "relu"
	KindMaxPool LayerKind = "maxpool"
)

// Layer is one computational layer of a backbone stage.
type Layer struct {
	Kind LayerKind

	// Convolution parameters. Kernel is laid out as
	// [KernelSize, KernelSize, In, Out] and Bias has Out entries.
	KernelSize int
	In, Out    int
	Kernel     []float64
	Bias       []float64

	// Pooling window (and stride) for KindMaxPool.
	Window int
}

// Stage groups consecutive layers, typically ending at a resolution change.
type Stage struct {
	Name   string
	Layers []Layer
}

// Weights is the full trained parameter set of one backbone.
type Weights struct {
	Version int
	Name    string
	Stages  []Stage
}

// Flatten returns all layers of all stages in order.
func (w *Weights) Flatten() []Layer {
	var layers []Layer
	for _, s := range w.Stages {
		layers = append(layers, s.Layers...)
	}
	return layers
}

// NumLayers is len(w.Flatten()).
func (w *Weights) NumLayers() int {
	n := 0
	for _, s := range w.Stages {
		n += len(s.Layers)
	}
	return n
}

// StageBoundaries returns the depths at which each stage ends. These are the
// useful extraction depths.
func (w *Weights) StageBoundaries() []int {
	var out []int
	n := 0
	for _, s := range w.Stages {
		n += len(s.Layers)
		out = append(out, n)
	}
	return out
}

// Validate checks layer shapes and that convolution channels chain up,
// starting from 3 input channels.
func (w *Weights) Validate() error {
	channels := 3
	for i, l := range w.Flatten() {
		switch l.Kind {
		case KindConv:
			if l.KernelSize < 1 || l.Out < 1 {
				return errors.Errorf("layer %d: invalid conv %dx%d -> %d", i, l.KernelSize, l.KernelSize, l.Out)
			}
			if l.In != channels {
				return errors.Errorf("layer %d: conv expects %d input channels, previous layer has %d", i, l.In, channels)
			}
			if want := l.KernelSize * l.KernelSize * l.In * l.Out; len(l.Kernel) != want {
				return errors.Errorf("layer %d: kernel has %d values, want %d", i, len(l.Kernel), want)
			}
			if len(l.Bias) != l.Out {
				return errors.Errorf("layer %d: bias has %d values, want %d", i, len(l.Bias), l.Out)
			}
			channels = l.Out
		case KindMaxPool:
			if l.Window < 1 {
				return errors.Errorf("layer %d: invalid pooling window %d", i, l.Window)
			}
		case KindReLU:
		default:
			return errors.Errorf("layer %d: unknown kind %q", i, l.Kind)
		}
	}
	return nil
}

// VGGSpec describes a VGG-style backbone: stage i holds Convs[i] 3x3
// convolutions (each followed by a ReLU) with Widths[i] output channels, and
// every stage but the first starts with a 2x2 max-pool.
type VGGSpec struct {
	Widths     []int
	Convs      []int
	KernelSize int
}

// OSVOS is the VGG-16 layout used by the OSVOS segmentation network. Its 30
// layers end stages at depths 4, 9, 16, 23 and 30, where the feature map has
// 64, 128, 256, 512 and 512 channels at 1, 1/2, 1/4, 1/8 and 1/16 resolution.
var OSVOS = VGGSpec{
	Widths:     []int{64, 128, 256, 512, 512},
	Convs:      []int{2, 2, 3, 3, 3},
	KernelSize: 3,
}

// VGG builds a deterministic, randomly initialized backbone for spec.
// Production weights come from online training; these serve tests and
// bootstrapping of the weights format.
func VGG(spec VGGSpec, seed int64) (*Weights, error) {
	if len(spec.Widths) != len(spec.Convs) {
		return nil, errors.Errorf("vgg: %d widths for %d stages", len(spec.Widths), len(spec.Convs))
	}
	ks := spec.KernelSize
	if ks <= 0 {
		ks = 3
	}
	rng := rand.New(rand.NewSource(seed))
	w := &Weights{Version: WeightsVersion, Name: "vgg"}
	in := 3
	for s, width := range spec.Widths {
		stage := Stage{Name: stageName(s)}
		if s > 0 {
			stage.Layers = append(stage.Layers, Layer{Kind: KindMaxPool, Window: 2})
		}
		for c := 0; c < spec.Convs[s]; c++ {
			// He initialization.
			std := math.Sqrt(2 / float64(ks*ks*in))
			kernel := make([]float64, ks*ks*in*width)
			for i := range kernel {
				kernel[i] = rng.NormFloat64() * std
			}
			stage.Layers = append(stage.Layers,
				Layer{Kind: KindConv, KernelSize: ks, In: in, Out: width, Kernel: kernel, Bias: make([]float64, width)},
				Layer{Kind: KindReLU},
			)
			in = width
		}
		w.Stages = append(w.Stages, stage)
	}
	return w, nil
}

func stageName(i int) string {
	return fmt.Sprintf("stage%d", i+1)
}

// SaveWeights writes w to path.
func SaveWeights(fs afero.Fs, path string, w *Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	_, err := snapgob.Save(fs, path, w)
	return err
}

// LoadWeights reads and validates the weights stored at path.
func LoadWeights(fs afero.Fs, path string) (*Weights, error) {
	var w Weights
	if err := snapgob.Load(fs, path, &w); err != nil {
		return nil, err
	}
	if w.Version != WeightsVersion {
		return nil, errors.Errorf("weights %s: version %d, expected %d", path, w.Version, WeightsVersion)
	}
	if err := w.Validate(); err != nil {
		return nil, errors.Wrapf(err, "weights %s", path)
	}
	return &w, nil
}
