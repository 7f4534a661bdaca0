package datasets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noofbiz/contourgraph/features"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Layout describes the raw inputs: three parallel trees holding one directory
// per sequence. Contours and translations are .npy files named after the
// frame; images share the frame's stem with any supported raster extension.
type Layout struct {
	Fs           afero.Fs
	Contours     string
	Images       string
	Translations string
}

// Frame is one frame of a sequence.
type Frame struct {
	// ID is the file name without extension, e.g. "00012".
	ID string
	// File is the contour/translation file name, e.g. "00012.npy".
	File string
}

// Sequences lists the sequence directories under the contours tree, sorted.
func (l *Layout) Sequences() ([]string, error) {
	infos, err := afero.ReadDir(l.Fs, l.Contours)
	if err != nil {
		return nil, errors.Wrapf(err, "list sequences in %s", l.Contours)
	}
	var seqs []string
	for _, info := range infos {
		if info.IsDir() {
			seqs = append(seqs, info.Name())
		}
	}
	sort.Strings(seqs)
	return seqs, nil
}

// Frames lists the frames of sequence in file name order.
func (l *Layout) Frames(sequence string) ([]Frame, error) {
	dir := filepath.Join(l.Contours, sequence)
	infos, err := afero.ReadDir(l.Fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list frames in %s", dir)
	}
	var frames []Frame
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		name := info.Name()
		frames = append(frames, Frame{ID: strings.TrimSuffix(name, filepath.Ext(name)), File: name})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].File < frames[j].File })
	return frames, nil
}

// ContourPath returns the contour file of frame.
func (l *Layout) ContourPath(sequence string, frame Frame) string {
	return filepath.Join(l.Contours, sequence, frame.File)
}

// TranslationPath returns the translation file of frame.
func (l *Layout) TranslationPath(sequence string, frame Frame) string {
	return filepath.Join(l.Translations, sequence, frame.File)
}

// ImagePath finds the raster file of frame.
func (l *Layout) ImagePath(sequence string, frame Frame) (string, error) {
	for _, ext := range features.ImageExtensions {
		for _, e := range []string{ext, strings.ToUpper(ext)} {
			p := filepath.Join(l.Images, sequence, frame.ID+e)
			if _, err := l.Fs.Stat(p); err == nil {
				return p, nil
			} else if !os.IsNotExist(err) {
				return "", errors.Wrapf(err, "stat %s", p)
			}
		}
	}
	return "", errors.Errorf("no image for %s/%s in %s", sequence, frame.ID, l.Images)
}
