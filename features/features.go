// Package features turns backbone activations into per-point feature vectors.
//
// The package is deliberately independent of any concrete network: a backbone
// only has to implement Extractor, which maps one Image to one FeatureMap. The
// backbone package provides the gomlx implementation used in production; tests
// plug in small hand-written extractors.
//
// Layout conventions:
//   - Image holds interleaved RGB values in HWC order, float64 in [0, 255].
//   - FeatureMap holds activations in CHW order (channels x height x width).
package features

import "fmt"

// Image is a decoded raster frame ready to be fed to a backbone.
type Image struct {
	Width  int
	Height int

	// Pix holds Height*Width*3 values, row-major, RGB interleaved.
	Pix []float64
}

// NewImage allocates a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*3),
	}
}

// Set writes the RGB value of pixel (x, y).
func (im *Image) Set(x, y int, r, g, b float64) {
	i := (y*im.Width + x) * 3
	im.Pix[i] = r
	im.Pix[i+1] = g
	im.Pix[i+2] = b
}

// FeatureMap is the output of a truncated backbone for a single image.
type FeatureMap struct {
	Channels int
	Height   int
	Width    int

	// Data holds Channels*Height*Width activations in CHW order.
	Data []float64
}

// NewFeatureMap allocates a zeroed feature map.
func NewFeatureMap(channels, height, width int) *FeatureMap {
	return &FeatureMap{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float64, channels*height*width),
	}
}

// At returns the activation of channel c at cell (x, y).
func (fm *FeatureMap) At(c, y, x int) float64 {
	return fm.Data[(c*fm.Height+y)*fm.Width+x]
}

// Set writes the activation of channel c at cell (x, y).
func (fm *FeatureMap) Set(c, y, x int, v float64) {
	fm.Data[(c*fm.Height+y)*fm.Width+x] = v
}

// Vector copies the channel vector at cell (x, y).
func (fm *FeatureMap) Vector(y, x int) []float64 {
	v := make([]float64, fm.Channels)
	for c := range v {
		v[c] = fm.At(c, y, x)
	}
	return v
}

func (fm *FeatureMap) String() string {
	return fmt.Sprintf("FeatureMap[%d x %d x %d]", fm.Channels, fm.Height, fm.Width)
}

// Extractor maps an image to the activations of a backbone at a fixed depth.
// Implementations must be deterministic and must not track gradients.
type Extractor interface {
	Extract(img *Image) (*FeatureMap, error)
}
