package features

import "math"

// DefaultOffset compensates for the stride and receptive-field asymmetry of the
// VGG backbone at depth 30. It is not a universal constant: a different
// backbone or extraction depth needs its own value.
const DefaultOffset = 2

// Mapper maps points in image space to cells of a lower-resolution feature map.
type Mapper struct {
	// Offset is subtracted from both mapped coordinates.
	Offset int
}

// Cell returns the feature-map cell whose receptive field best matches the
// point p = (x, y) of an imgW x imgH image, for a fmW x fmH feature map.
// Coordinates are clamped into the feature map.
func (m Mapper) Cell(p [2]float64, imgW, imgH, fmW, fmH int) (x, y int) {
	x = int(math.Floor(p[0]*float64(fmW)/float64(imgW))) - m.Offset
	y = int(math.Floor(p[1]*float64(fmH)/float64(imgH))) - m.Offset
	return clamp(x, 0, fmW-1), clamp(y, 0, fmH-1)
}

// Contains reports whether p lies inside an imgW x imgH image. The upper bound
// is inclusive: contour extraction may emit points on the far border.
func (m Mapper) Contains(p [2]float64, imgW, imgH int) bool {
	return p[0] >= 0 && p[1] >= 0 && p[0] <= float64(imgW) && p[1] <= float64(imgH)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
