// Package viz renders graph samples as PNG plots: the contour points, the
// k-NN edges between them and, when present, the displacement to the next
// frame.
package viz

import (
	"image/color"
	"math"
	"path/filepath"

	"github.com/Noofbiz/contourgraph/datasets"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Size of the rendered plots.
var (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

// Image rows grow downwards, so y is negated to keep the contour upright.
func xy(p [2]float64) plotter.XY { return plotter.XY{X: p[0], Y: -p[1]} }

// PlotSample writes a PNG of sample to path on fs.
func PlotSample(fs afero.Fs, sample *datasets.GraphSample, path string) error {
	if len(sample.Contour) == 0 {
		return errors.Errorf("%v: nothing to plot", sample)
	}
	p := plot.New()
	p.Title.Text = "Contour graph " + sample.Sequence + "/" + sample.Frame
	p.X.Label.Text = "x"
	p.Y.Label.Text = "-y"

	// Edges, each undirected pair drawn once.
	for _, e := range sample.EdgeIndex {
		if e[0] > e[1] {
			continue
		}
		line, err := plotter.NewLine(plotter.XYs{xy(sample.Contour[e[0]]), xy(sample.Contour[e[1]])})
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 140}
		line.Width = vg.Points(0.6)
		p.Add(line)
	}

	points := make(plotter.XYs, len(sample.Contour))
	for i, c := range sample.Contour {
		points[i] = xy(c)
	}
	sc, err := plotter.NewScatter(points)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	sc.GlyphStyle.Radius = vg.Points(2.2)
	p.Add(sc)
	p.Legend.Add("contour", sc)

	all := append(plotter.XYs(nil), points...)
	if sample.HasTarget() {
		moved := make(plotter.XYs, 0, len(sample.Y))
		for i, d := range sample.Y {
			if len(d) < 2 {
				continue
			}
			to := xy([2]float64{sample.Contour[i][0] + d[0], sample.Contour[i][1] + d[1]})
			line, err := plotter.NewLine(plotter.XYs{points[i], to})
			if err != nil {
				return err
			}
			line.Color = color.RGBA{R: 200, G: 30, B: 30, A: 200}
			line.Width = vg.Points(0.9)
			p.Add(line)
			moved = append(moved, to)
		}
		if len(moved) > 0 {
			ts, err := plotter.NewScatter(moved)
			if err != nil {
				return err
			}
			ts.GlyphStyle.Color = color.RGBA{R: 200, G: 30, B: 30, A: 180}
			ts.GlyphStyle.Radius = vg.Points(1.6)
			p.Add(ts)
			p.Legend.Add("next frame", ts)
			all = append(all, moved...)
		}
	}

	p.Add(plotter.NewGrid())
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = autoRange(all)

	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return errors.Wrap(err, "render plot")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}
