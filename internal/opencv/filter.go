// OpenCV convolution for integer kernels
package opencv

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
)

// maxExactSum bounds |sample| * sum|weight| so that double accumulation
// rounds back to the exact integer sum
const maxExactSum = 1 << 40

// SupportsConvolve reports whether Filter2D serves the kernel directly
func (b *Backend) SupportsConvolve(img, kernel *core.Grid) bool {
	weights := 0
	for _, w := range kernel.Pix() {
		weights += abs(w)
	}
	lo, hi, ok := img.MinMax(nil)
	if !ok {
		return false
	}
	peak := max(abs(lo), abs(hi))
	return peak == 0 || weights <= maxExactSum/peak
}

// Convolve implements algorithms.Convolver with Filter2D on double samples.
// A constant zero border contributes nothing, matching skipped taps.
func (b *Backend) Convolve(img, kernel *core.Grid) (*core.Grid, error) {
	if !b.SupportsConvolve(img, kernel) {
		return algorithms.Convolve(img, kernel)
	}

	src := toFloatMat(img)
	defer src.Close()
	k := toFloatMat(kernel)
	defer k.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	if err := gocv.Filter2D(src, &dst, gocv.MatTypeCV64F, k, image.Pt(-1, -1), 0, gocv.BorderConstant); err != nil {
		return nil, err
	}

	div := algorithms.KernelDivisor(kernel)
	out := core.NewGrid(img.Rows(), img.Cols())
	for i := 0; i < img.Rows(); i++ {
		for j := 0; j < img.Cols(); j++ {
			acc := int(math.Round(dst.GetDoubleAt(i, j)))
			out.Set(i, j, acc/div)
		}
	}
	return out, nil
}

func toFloatMat(g *core.Grid) gocv.Mat {
	m := gocv.NewMatWithSize(g.Rows(), g.Cols(), gocv.MatTypeCV64F)
	for i := 0; i < g.Rows(); i++ {
		for j := 0; j < g.Cols(); j++ {
			m.SetDoubleAt(i, j, float64(g.At(i, j)))
		}
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
