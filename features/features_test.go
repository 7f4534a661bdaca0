package features

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// rampMap builds a feature map where channel c at (x, y) holds c*1000 + y*100 + x.
func rampMap(channels, height, width int) *FeatureMap {
	fm := NewFeatureMap(channels, height, width)
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				fm.Set(c, y, x, float64(c*1000+y*100+x))
			}
		}
	}
	return fm
}

func TestMapperCell(t *testing.T) {
	m := Mapper{Offset: DefaultOffset}

	// 480x854 image, 30x54 map (stage 5 of the VGG backbone).
	x, y := m.Cell([2]float64{427, 240}, 854, 480, 54, 30)
	require.Equal(t, 27-2, x)
	require.Equal(t, 15-2, y)

	// Near the origin the offset pushes below zero and is clamped.
	x, y = m.Cell([2]float64{3, 3}, 854, 480, 54, 30)
	require.Equal(t, 0, x)
	require.Equal(t, 0, y)

	// The far border maps to the last cell minus the offset.
	x, y = m.Cell([2]float64{854, 480}, 854, 480, 54, 30)
	require.Equal(t, 52, x)
	require.Equal(t, 28, y)

	// Without offset the far border is clamped to the last cell.
	x, y = Mapper{}.Cell([2]float64{854, 480}, 854, 480, 54, 30)
	require.Equal(t, 53, x)
	require.Equal(t, 29, y)
}

func TestMapperContains(t *testing.T) {
	m := Mapper{}
	require.True(t, m.Contains([2]float64{0, 0}, 10, 10))
	require.True(t, m.Contains([2]float64{10, 10}, 10, 10))
	require.False(t, m.Contains([2]float64{10.5, 3}, 10, 10))
	require.False(t, m.Contains([2]float64{3, -1}, 10, 10))
}

func TestSampleInsideAndOutside(t *testing.T) {
	fm := rampMap(3, 4, 5)
	m := Mapper{Offset: 0}
	contour := [][2]float64{
		{0, 0},
		{19.9, 15.9},
		{8, 4},
		{25, 3},  // right of the image
		{3, 100}, // below the image
	}
	got := Sample(contour, 20, 16, fm, m)
	require.Len(t, got, len(contour))

	for i, p := range contour[:3] {
		x, y := m.Cell(p, 20, 16, fm.Width, fm.Height)
		require.Equal(t, fm.Vector(y, x), got[i], "point %d", i)
	}
	require.Equal(t, []float64{0, 1000, 2000}, got[0])
	require.Equal(t, []float64{102, 1102, 2102}, got[2])
	for _, v := range got[3:] {
		require.Equal(t, []float64{0, 0, 0}, v)
	}
}

type constExtractor struct{ fm *FeatureMap }

func (c constExtractor) Extract(*Image) (*FeatureMap, error) { return c.fm, nil }

func TestExtractAndSample(t *testing.T) {
	fm := rampMap(2, 2, 2)
	img := NewImage(4, 4)
	vecs, channels, err := ExtractAndSample(constExtractor{fm}, img, [][2]float64{{3, 3}, {-1, 0}}, Mapper{})
	require.NoError(t, err)
	require.Equal(t, 2, channels)
	require.Equal(t, []float64{101, 1101}, vecs[0])
	require.Equal(t, []float64{0, 0}, vecs[1])
}

func TestLoadImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	f, err := fs.Create("/frames/00000.png")
	require.NoError(t, err)
	require.NoError(t, imaging.Encode(f, src, imaging.PNG))
	require.NoError(t, f.Close())

	img, err := LoadImage(fs, "/frames/00000.png")
	require.NoError(t, err)
	require.Equal(t, 3, img.Width)
	require.Equal(t, 2, img.Height)
	i := (1*img.Width + 2) * 3
	require.Equal(t, []float64{10, 20, 30}, img.Pix[i:i+3])

	_, err = LoadImage(fs, "/frames/missing.png")
	require.Error(t, err)
}
