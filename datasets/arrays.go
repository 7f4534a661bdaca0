package datasets

import (
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"
)

// LoadArray reads a 2-D float64 .npy file (one row per contour point).
func LoadArray(fs afero.Fs, path string) (*mat.Dense, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header %s", path)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.Errorf("%s: expected a 2-D array, got shape %v", path, shape)
	}
	if shape[0] == 0 || shape[1] == 0 {
		return nil, errors.Errorf("%s: empty array", path)
	}
	var data []float64
	if err := r.Read(&data); err != nil {
		return nil, errors.Wrapf(err, "read npy data %s", path)
	}
	if r.Header.Descr.Fortran {
		m := mat.NewDense(shape[1], shape[0], data)
		return mat.DenseCopyOf(m.T()), nil
	}
	return mat.NewDense(shape[0], shape[1], data), nil
}

// SaveArray writes m as a .npy file.
func SaveArray(fs afero.Fs, path string, m *mat.Dense) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return errors.Wrapf(err, "write npy %s", path)
	}
	return f.Close()
}

// Points converts an N x 2 matrix to contour coordinates.
func Points(m *mat.Dense) ([][2]float64, error) {
	rows, cols := m.Dims()
	if cols != 2 {
		return nil, errors.Errorf("contour has %d columns, expected 2", cols)
	}
	pts := make([][2]float64, rows)
	for i := range pts {
		pts[i] = [2]float64{m.At(i, 0), m.At(i, 1)}
	}
	return pts, nil
}

// Rows copies m into a slice of rows.
func Rows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
