package datasets

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Noofbiz/contourgraph/features"
	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	imgW     = 32
	imgH     = 24
	channels = 3
)

// fixture is an in-memory raw tree plus counting collaborators.
type fixture struct {
	fs      afero.Fs
	layout  *Layout
	store   *Store
	trained atomic.Int32
	loaded  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "/processed", 0)
	require.NoError(t, err)
	return &fixture{
		fs: fs,
		layout: &Layout{
			Fs:           fs,
			Contours:     "/raw/Contours",
			Images:       "/raw/JPEGImages",
			Translations: "/raw/Translations",
		},
		store: store,
	}
}

func frameName(i int) string { return fmt.Sprintf("%05d", i) }

// contourPoints spreads n distinct points inside the image, shifted by one
// pixel per frame.
func contourPoints(n, frame int) *mat.Dense {
	m := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		m.Set(i, 0, float64(4+frame+3*i))
		m.Set(i, 1, float64(5+(i*7)%12))
	}
	return m
}

// addSequence writes frames frames of points contour points each.
func (f *fixture) addSequence(t *testing.T, seq string, frames, points int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		name := frameName(i)
		for _, dir := range []string{f.layout.Contours, f.layout.Translations, f.layout.Images} {
			require.NoError(t, f.fs.MkdirAll(filepath.Join(dir, seq), 0755))
		}
		require.NoError(t, SaveArray(f.fs, filepath.Join(f.layout.Contours, seq, name+".npy"), contourPoints(points, i)))

		tr := mat.NewDense(points, 2, nil)
		for p := 0; p < points; p++ {
			tr.Set(p, 0, 1)
			tr.Set(p, 1, float64(p)*0.5)
		}
		require.NoError(t, SaveArray(f.fs, filepath.Join(f.layout.Translations, seq, name+".npy"), tr))

		img := image.NewNRGBA(image.Rect(0, 0, imgW, imgH))
		for y := 0; y < imgH; y++ {
			for x := 0; x < imgW; x++ {
				img.Set(x, y, color.NRGBA{R: uint8(10 * i), G: uint8(x), B: uint8(y), A: 255})
			}
		}
		w, err := f.fs.Create(filepath.Join(f.layout.Images, seq, name+".png"))
		require.NoError(t, err)
		require.NoError(t, imaging.Encode(w, img, imaging.PNG))
		require.NoError(t, w.Close())
	}
}

// fakeExtractor produces a 3 x 6 x 8 map whose values identify the cell and
// the red level of the image's first pixel.
type fakeExtractor struct{}

func (fakeExtractor) Extract(img *features.Image) (*features.FeatureMap, error) {
	fm := features.NewFeatureMap(channels, imgH/4, imgW/4)
	for c := 0; c < fm.Channels; c++ {
		for y := 0; y < fm.Height; y++ {
			for x := 0; x < fm.Width; x++ {
				fm.Set(c, y, x, img.Pix[0]+float64(c*100+y*10+x)+1)
			}
		}
	}
	return fm, nil
}

func (f *fixture) loader() ExtractorLoader {
	return func(fs afero.Fs, path string) (features.Extractor, error) {
		f.loaded.Add(1)
		return fakeExtractor{}, nil
	}
}

// trainer writes a placeholder weights file, like the real online training.
func (f *fixture) trainer(dir string) Trainer {
	return TrainerFunc(func(ctx context.Context, seq string) error {
		f.trained.Add(1)
		if err := f.fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
		return afero.WriteFile(f.fs, filepath.Join(dir, seq+"_epoch-24.gob"), []byte("weights"), 0644)
	})
}

func (f *fixture) options(split Split, partition *Partition) Options {
	return Options{
		Layout:         f.layout,
		Store:          f.store,
		Partition:      partition,
		Split:          split,
		K:              2,
		Mapper:         features.Mapper{Offset: 0},
		WeightsDir:     "/models",
		WeightsPattern: SequencePlaceholder + "_epoch-24.gob",
		Trainer:        f.trainer("/models"),
		LoadExtractor:  f.loader(),
	}
}

func (f *fixture) dataset(t *testing.T, opts Options) *GraphDataset {
	t.Helper()
	d, err := NewGraphDataset(logs.NewTestingLog(t), opts)
	require.NoError(t, err)
	return d
}
