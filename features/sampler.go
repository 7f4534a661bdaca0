package features

// Sample returns one feature vector per contour point, read from fm at the
// cell chosen by mapper. Points outside the imgW x imgH image get a zero
// vector of length fm.Channels. The result is len(contour) x fm.Channels.
func Sample(contour [][2]float64, imgW, imgH int, fm *FeatureMap, mapper Mapper) [][]float64 {
	out := make([][]float64, len(contour))
	for i, p := range contour {
		if !mapper.Contains(p, imgW, imgH) {
			out[i] = make([]float64, fm.Channels)
			continue
		}
		x, y := mapper.Cell(p, imgW, imgH, fm.Width, fm.Height)
		out[i] = fm.Vector(y, x)
	}
	return out
}

// ExtractAndSample runs ex on img and samples the contour from the result.
func ExtractAndSample(ex Extractor, img *Image, contour [][2]float64, mapper Mapper) ([][]float64, int, error) {
	fm, err := ex.Extract(img)
	if err != nil {
		return nil, 0, err
	}
	return Sample(contour, img.Width, img.Height, fm, mapper), fm.Channels, nil
}
