// Package backbone runs a truncated convolutional network on gomlx to produce
// feature maps for the features package.
//
// A Backbone is built from one sequence's Weights: the stages are flattened
// into a single ordered layer list, cut at the configured depth, and compiled
// into a float64 inference-only graph on the selected device. Backbones are
// stateless between calls; build a new one whenever the weights change.
package backbone

import (
	"strings"

	"github.com/Noofbiz/contourgraph/features"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Options configures a Backbone.
type Options struct {
	// Depth is the number of flattened layers to keep, 1..NumLayers.
	Depth int

	// Device selects the gomlx backend. Empty or "cpu" uses the pure Go
	// simplego backend; anything else is handed to backends.NewWithConfig,
	// e.g. "xla:cuda".
	Device string
}

type layer struct {
	Layer
	kernel *tensors.Tensor
	bias   *tensors.Tensor
}

// Backbone is a features.Extractor backed by a compiled gomlx graph.
type Backbone struct {
	backend backends.Backend
	exec    *graph.Exec
	layers  []layer

	// Channels is the depth of the produced feature maps.
	Channels int
	// Stride is the total downsampling factor of the kept layers.
	Stride int
}

var _ features.Extractor = (*Backbone)(nil)

// NewBackend creates the gomlx backend for device.
func NewBackend(device string) (backends.Backend, error) {
	switch strings.ToLower(device) {
	case "", "cpu", "go", "simplego":
		b, err := simplego.New("")
		return b, errors.Wrap(err, "create simplego backend")
	default:
		b, err := backends.NewWithConfig(device)
		return b, errors.Wrapf(err, "create backend %q", device)
	}
}

// New builds a Backbone from w truncated to opts.Depth layers.
func New(w *Weights, opts Options) (*Backbone, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	all := w.Flatten()
	if opts.Depth < 1 || opts.Depth > len(all) {
		return nil, errors.Errorf("depth %d out of range [1, %d]", opts.Depth, len(all))
	}

	b := &Backbone{Channels: 3, Stride: 1}
	// tensors panics on a data/shape mismatch.
	if err := exceptions.TryCatch[error](func() {
		for _, l := range all[:opts.Depth] {
			kept := layer{Layer: l}
			switch l.Kind {
			case KindConv:
				kept.kernel = tensors.FromFlatDataAndDimensions(l.Kernel, l.KernelSize, l.KernelSize, l.In, l.Out)
				kept.bias = tensors.FromFlatDataAndDimensions(l.Bias, 1, 1, 1, l.Out)
				b.Channels = l.Out
			case KindMaxPool:
				b.Stride *= l.Window
			}
			b.layers = append(b.layers, kept)
		}
	}); err != nil {
		return nil, errors.Wrap(err, "backbone parameters")
	}

	backend, err := NewBackend(opts.Device)
	if err != nil {
		return nil, err
	}
	b.backend = backend
	if b.exec, err = graph.NewExec(backend, b.forward); err != nil {
		backend.Finalize()
		return nil, errors.Wrap(err, "compile backbone")
	}
	return b, nil
}

// Load reads the weights at path and builds a Backbone from them.
func Load(fs afero.Fs, path string, opts Options) (*Backbone, error) {
	w, err := LoadWeights(fs, path)
	if err != nil {
		return nil, err
	}
	return New(w, opts)
}

// forward applies the kept layers to a [1, H, W, 3] float64 batch.
func (b *Backbone) forward(x *graph.Node) *graph.Node {
	g := x.Graph()
	for _, l := range b.layers {
		switch l.Kind {
		case KindConv:
			x = graph.Convolve(x, graph.Const(g, l.kernel)).Strides(1).PadSame().Done()
			x = graph.Add(x, graph.BroadcastToDims(graph.Const(g, l.bias), x.Shape().Dimensions...))
		case KindReLU:
			x = graph.Max(x, graph.ZerosLike(x))
		case KindMaxPool:
			x = graph.MaxPool(x).Window(l.Window).Done()
		}
	}
	return x
}

// Extract runs the truncated network on img and returns the feature map in
// CHW order.
func (b *Backbone) Extract(img *features.Image) (*features.FeatureMap, error) {
	if img.Width < b.Stride || img.Height < b.Stride {
		return nil, errors.Errorf("image %dx%d smaller than backbone stride %d", img.Width, img.Height, b.Stride)
	}
	if len(img.Pix) != img.Width*img.Height*3 {
		return nil, errors.Errorf("image %dx%d has %d values, want %d", img.Width, img.Height, len(img.Pix), img.Width*img.Height*3)
	}
	input := tensors.FromFlatDataAndDimensions(img.Pix, 1, img.Height, img.Width, 3)
	defer input.FinalizeAll()

	outs, err := b.exec.Exec(input)
	if err != nil {
		return nil, errors.Wrap(err, "backbone inference")
	}
	out := outs[0]
	defer out.FinalizeAll()

	var value any
	if err := exceptions.TryCatch[error](func() { value = out.Value() }); err != nil {
		return nil, errors.Wrap(err, "read backbone output")
	}
	hwc, ok := value.([][][][]float64)
	if !ok {
		return nil, errors.Errorf("backbone produced %s, expected float64 [1, H, W, C]", out.Shape())
	}
	return toCHW(hwc[0]), nil
}

// Close releases the compiled graph and the backend.
func (b *Backbone) Close() error {
	if b.exec != nil {
		b.exec.Finalize()
		b.exec = nil
	}
	if b.backend != nil {
		b.backend.Finalize()
		b.backend = nil
	}
	return nil
}

func toCHW(hwc [][][]float64) *features.FeatureMap {
	h, w, c := len(hwc), len(hwc[0]), len(hwc[0][0])
	fm := features.NewFeatureMap(c, h, w)
	for y, row := range hwc {
		for x, cell := range row {
			for ch, v := range cell {
				fm.Set(ch, y, x, v)
			}
		}
	}
	return fm
}
