package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// GraphSample is one persisted k-NN graph over the contour of a frame.
//
//   - X: node features, one row per contour point; the current frame's
//     feature vector followed by the next frame's.
//   - EdgeIndex: symmetric edge list, sorted by (source, target).
//   - EdgeAttr: inverse-distance weight of each edge, in (0, 1].
//   - Y: optional per-node displacement to the next frame.
//   - Contour: the raw contour coordinates the graph was built from.
type GraphSample struct {
	Sequence string
	Frame    string

	X         [][]float64
	EdgeIndex [][2]int
	EdgeAttr  []float64
	Y         [][]float64
	Contour   [][2]float64
}

// NumNodes returns the number of contour points.
func (s *GraphSample) NumNodes() int { return len(s.X) }

// NumEdges returns the number of directed edges.
func (s *GraphSample) NumEdges() int { return len(s.EdgeIndex) }

// NumFeatures returns the width of X.
func (s *GraphSample) NumFeatures() int {
	if len(s.X) == 0 {
		return 0
	}
	return len(s.X[0])
}

// HasTarget reports whether the sample carries displacements.
func (s *GraphSample) HasTarget() bool { return s.Y != nil }

func (s *GraphSample) String() string {
	return fmt.Sprintf("GraphSample{%s/%s nodes=%d features=%d edges=%d target=%t}",
		s.Sequence, s.Frame, s.NumNodes(), s.NumFeatures(), s.NumEdges(), s.HasTarget())
}

// Validate checks the structural invariants of the sample.
func (s *GraphSample) Validate() error {
	n := len(s.Contour)
	if len(s.X) != n {
		return errors.Errorf("%d feature rows for %d contour points", len(s.X), n)
	}
	for i, row := range s.X {
		if len(row) != s.NumFeatures() {
			return errors.Errorf("feature row %d has %d columns, want %d", i, len(row), s.NumFeatures())
		}
	}
	if len(s.EdgeAttr) != len(s.EdgeIndex) {
		return errors.Errorf("%d edge weights for %d edges", len(s.EdgeAttr), len(s.EdgeIndex))
	}
	present := make(map[[2]int]struct{}, len(s.EdgeIndex))
	for _, e := range s.EdgeIndex {
		present[e] = struct{}{}
	}
	for i, e := range s.EdgeIndex {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return errors.Errorf("edge %d (%d, %d) out of range", i, e[0], e[1])
		}
		if _, ok := present[[2]int{e[1], e[0]}]; !ok {
			return errors.Errorf("edge %d (%d, %d) has no reverse", i, e[0], e[1])
		}
		if w := s.EdgeAttr[i]; !(w > 0 && w <= 1) {
			return errors.Errorf("edge %d weight %g outside (0, 1]", i, w)
		}
	}
	if s.Y != nil && len(s.Y) != n {
		return errors.Errorf("%d targets for %d contour points", len(s.Y), n)
	}
	return nil
}

// Tensors converts the sample to gomlx tensors: inputs are
// x [N, F] float64, edge_index [2, E] int64 and edge_attr [E] float64;
// labels is y [N, D] float64, or empty when the sample has no target.
func (s *GraphSample) Tensors() (inputs []*tensors.Tensor, labels []*tensors.Tensor) {
	n, f, e := s.NumNodes(), s.NumFeatures(), s.NumEdges()

	x := make([]float64, 0, n*f)
	for _, row := range s.X {
		x = append(x, row...)
	}
	edges := make([]int64, 2*e)
	for i, edge := range s.EdgeIndex {
		edges[i] = int64(edge[0])
		edges[e+i] = int64(edge[1])
	}
	attr := append([]float64(nil), s.EdgeAttr...)

	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(x, n, f),
		tensors.FromFlatDataAndDimensions(edges, 2, e),
		tensors.FromFlatDataAndDimensions(attr, e),
	}
	if s.HasTarget() {
		d := 0
		if n > 0 {
			d = len(s.Y[0])
		}
		y := make([]float64, 0, n*d)
		for _, row := range s.Y {
			y = append(y, row...)
		}
		labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(y, n, d)}
	}
	return inputs, labels
}
