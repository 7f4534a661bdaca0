// Package knn builds symmetric k-nearest-neighbor graphs over 2D point sets.
package knn

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidK is returned for k < 1.
	ErrInvalidK = errors.New("knn: k must be >= 1")
	// ErrTooFewPoints is returned when k is not smaller than the number of points.
	ErrTooFewPoints = errors.New("knn: k must be smaller than the number of points")
)

// Graph is an undirected graph in COO form. Both directions of every edge are
// stored. Edges are sorted by (source, target) and unique.
type Graph struct {
	Edges   [][2]int
	Weights []float64
}

// Len returns the number of directed edges.
func (g *Graph) Len() int { return len(g.Edges) }

// Has reports whether the edge a->b is present.
func (g *Graph) Has(a, b int) bool {
	i := sort.Search(len(g.Edges), func(i int) bool {
		e := g.Edges[i]
		return e[0] > a || (e[0] == a && e[1] >= b)
	})
	return i < len(g.Edges) && g.Edges[i] == [2]int{a, b}
}

type neighbor struct {
	idx      int
	distance float64
}

// Directed returns, for every point, the indices of its k nearest other
// points ordered by increasing distance. Equal distances keep index order.
func Directed(points [][2]float64, k int) ([][]int, error) {
	if err := check(len(points), k); err != nil {
		return nil, err
	}
	out := make([][]int, len(points))
	candidates := make([]neighbor, 0, len(points)-1)
	for i, p := range points {
		candidates = candidates[:0]
		for j, q := range points {
			if i == j {
				continue
			}
			candidates = append(candidates, neighbor{idx: j, distance: Distance(p, q)})
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].distance < candidates[b].distance
		})
		nn := make([]int, k)
		for n := range nn {
			nn[n] = candidates[n].idx
		}
		out[i] = nn
	}
	return out, nil
}

// Build connects every point to its k nearest neighbors, adds the reverse of
// every edge, and weights each edge by InverseDistance.
func Build(points [][2]float64, k int) (*Graph, error) {
	directed, err := Directed(points, k)
	if err != nil {
		return nil, err
	}

	seen := make(map[[2]int]struct{}, 2*k*len(points))
	edges := make([][2]int, 0, 2*k*len(points))
	add := func(e [2]int) {
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	for i, nn := range directed {
		for _, j := range nn {
			add([2]int{i, j})
			add([2]int{j, i})
		}
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a][0] != edges[b][0] {
			return edges[a][0] < edges[b][0]
		}
		return edges[a][1] < edges[b][1]
	})

	g := &Graph{Edges: edges, Weights: make([]float64, len(edges))}
	for i, e := range edges {
		g.Weights[i] = InverseDistance(points[e[0]], points[e[1]])
	}
	return g, nil
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b [2]float64) float64 {
	return floats.Distance(a[:], b[:], 2)
}

// InverseDistance returns 1/(1+d) for the Euclidean distance d between a and
// b. The result lies in (0, 1] and decreases strictly with distance.
func InverseDistance(a, b [2]float64) float64 {
	return 1 / (1 + Distance(a, b))
}

func check(n, k int) error {
	if k < 1 {
		return errors.Wrapf(ErrInvalidK, "got k=%d", k)
	}
	if k >= n {
		return errors.Wrapf(ErrTooFewPoints, "k=%d, points=%d", k, n)
	}
	return nil
}
