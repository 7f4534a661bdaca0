package datasets

import (
	"github.com/Noofbiz/contourgraph/features"
	"github.com/Noofbiz/contourgraph/knn"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Assembler combines backbone features of two consecutive frames with the
// k-NN graph of a contour into a GraphSample.
type Assembler struct {
	Fs        afero.Fs
	Extractor features.Extractor
	Mapper    features.Mapper
	K         int
}

// Assemble builds the sample for contour. The node features are the sampled
// features of imgPath0 (current frame) followed by those of imgPath1 (next
// frame). translation becomes the node target when non-nil; its rows must
// align with the contour points.
func (a *Assembler) Assemble(contour [][2]float64, translation [][]float64, imgPath0, imgPath1 string) (*GraphSample, error) {
	current, err := a.pointFeatures(contour, imgPath0)
	if err != nil {
		return nil, err
	}
	next, err := a.pointFeatures(contour, imgPath1)
	if err != nil {
		return nil, err
	}

	x := make([][]float64, len(contour))
	for i := range x {
		row := make([]float64, 0, len(current[i])+len(next[i]))
		row = append(row, current[i]...)
		x[i] = append(row, next[i]...)
	}

	g, err := knn.Build(contour, a.K)
	if err != nil {
		return nil, err
	}

	s := &GraphSample{
		X:         x,
		EdgeIndex: g.Edges,
		EdgeAttr:  g.Weights,
		Contour:   contour,
	}
	if translation != nil {
		s.Y = translation
	}
	return s, nil
}

func (a *Assembler) pointFeatures(contour [][2]float64, path string) ([][]float64, error) {
	img, err := features.LoadImage(a.Fs, path)
	if err != nil {
		return nil, err
	}
	vecs, _, err := features.ExtractAndSample(a.Extractor, img, contour, a.Mapper)
	if err != nil {
		return nil, errors.Wrapf(err, "extract features of %s", path)
	}
	return vecs, nil
}
