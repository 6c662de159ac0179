// Otsu threshold selection on 8-bit histograms
package algorithms

import "strel-optimizer/internal/core"

// Histogram counts samples per 8-bit level, clamping out-of-range samples
// to the nearest end. Samples where mask is zero are ignored.
func Histogram(img, mask *core.Grid) [256]float64 {
	var hist [256]float64
	for k, v := range img.Pix() {
		if mask != nil && mask.Pix()[k] == 0 {
			continue
		}
		hist[clampByte(v)]++
	}
	return hist
}

// OtsuThreshold returns the level t maximizing the between-class variance
// of the split {<= t} / {> t}. Foreground is therefore every sample >= t+1.
func OtsuThreshold(hist [256]float64) int {
	total := 0.0
	sum := 0.0
	for t, n := range hist {
		total += n
		sum += float64(t) * n
	}
	if total == 0 {
		return 0
	}

	sumB := 0.0
	wB := 0.0
	maximum := 0.0
	level := 0

	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}

		wF := total - wB
		if wF == 0 {
			break
		}

		sumB += float64(t) * hist[t]
		mB := sumB / wB
		mF := (sum - sumB) / wF

		// between-class variance
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > maximum {
			level = t
			maximum = between
		}
	}

	return level
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
