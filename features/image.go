package features

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	// registers the webp decoder with image.Decode
	_ "golang.org/x/image/webp"
)

// ImageExtensions lists the raster formats LoadImage understands.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tif", ".tiff", ".gif"}

// ImageFromGo converts a decoded image into an Image. Alpha is dropped.
func ImageFromGo(src image.Image) *Image {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	im := NewImage(b.Dx(), b.Dy())
	for y := 0; y < im.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < im.Width; x++ {
			im.Set(x, y, float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2]))
		}
	}
	return im
}

// LoadImage reads and decodes the raster file at path.
func LoadImage(fs afero.Fs, path string) (*Image, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %s", path)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err == nil {
		return ImageFromGo(img), nil
	}
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return ImageFromGo(img), nil
		}
	}
	return nil, errors.Wrapf(err, "decode image %s", path)
}
