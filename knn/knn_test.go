package knn

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func randomPoints(n int, seed int64) [][2]float64 {
	rng := rand.New(rand.NewSource(seed))
	pts := make([][2]float64, n)
	for i := range pts {
		pts[i] = [2]float64{rng.Float64() * 854, rng.Float64() * 480}
	}
	return pts
}

func TestDirectedMatchesBruteForce(t *testing.T) {
	// Points on a line at known distances: 0, 1, 3, 6, 10.
	pts := [][2]float64{{0, 0}, {1, 0}, {3, 0}, {6, 0}, {10, 0}}
	nn, err := Directed(pts, 2)
	require.NoError(t, err)
	require.Equal(t, [][]int{
		{1, 2},
		{0, 2},
		{1, 0},
		{2, 4},
		{3, 2},
	}, nn)

	pts = randomPoints(40, 7)
	k := 5
	nn, err = Directed(pts, k)
	require.NoError(t, err)
	for i, p := range pts {
		var d []float64
		for j, q := range pts {
			if j != i {
				d = append(d, Distance(p, q))
			}
		}
		sort.Float64s(d)
		for n, j := range nn[i] {
			require.NotEqual(t, i, j)
			require.InDelta(t, d[n], Distance(p, pts[j]), 1e-12)
		}
	}
}

func TestDirectedTiesAreStable(t *testing.T) {
	// Point 0 is equidistant from 1, 2, 3 and 4.
	pts := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	first, err := Directed(pts, 3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, first[0])
	for i := 0; i < 5; i++ {
		again, err := Directed(pts, 3)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestBuildSymmetricWithoutSelfLoops(t *testing.T) {
	pts := randomPoints(60, 3)
	k := 4
	g, err := Build(pts, k)
	require.NoError(t, err)
	require.Len(t, g.Weights, g.Len())
	require.GreaterOrEqual(t, g.Len(), len(pts)*k)
	require.LessOrEqual(t, g.Len(), 2*len(pts)*k)

	seen := map[[2]int]bool{}
	for _, e := range g.Edges {
		require.NotEqual(t, e[0], e[1], "self loop %v", e)
		require.True(t, g.Has(e[1], e[0]), "missing reverse of %v", e)
		require.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true
	}

	nn, err := Directed(pts, k)
	require.NoError(t, err)
	for i, row := range nn {
		for _, j := range row {
			require.True(t, g.Has(i, j))
		}
	}
}

func TestBuildWeights(t *testing.T) {
	pts := [][2]float64{{0, 0}, {3, 4}, {3, 4}, {30, 40}}
	g, err := Build(pts, 1)
	require.NoError(t, err)
	for i, e := range g.Edges {
		w := g.Weights[i]
		require.Greater(t, w, 0.0)
		require.LessOrEqual(t, w, 1.0)
		require.InDelta(t, 1/(1+Distance(pts[e[0]], pts[e[1]])), w, 1e-15)
	}
	// Coincident points get the maximum weight.
	require.True(t, g.Has(1, 2))
	require.Equal(t, 1.0, InverseDistance(pts[1], pts[2]))
	require.Equal(t, 1.0/6, InverseDistance(pts[0], pts[1]))
}

func TestInverseDistanceStrictlyDecreasing(t *testing.T) {
	prev := math.Inf(1)
	for d := 0.0; d < 1000; d += 0.5 {
		w := InverseDistance([2]float64{0, 0}, [2]float64{d, 0})
		require.Less(t, w, prev)
		require.Greater(t, w, 0.0)
		prev = w
	}
}

func TestBuildRejectsBadK(t *testing.T) {
	pts := randomPoints(5, 1)
	_, err := Build(pts, 5)
	require.True(t, errors.Is(err, ErrTooFewPoints))
	_, err = Build(pts, 0)
	require.True(t, errors.Is(err, ErrInvalidK))
	_, err = Build(nil, 1)
	require.True(t, errors.Is(err, ErrTooFewPoints))
}
