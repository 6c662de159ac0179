// Weighted convolution filters and intensity normalization
package algorithms

import (
	"fmt"
	"math"

	"strel-optimizer/internal/core"
)

// GaussianKernel5 is the integer 5x5 Gaussian approximation used for
// smoothing; its weights sum to 273
var GaussianKernel5 = core.MustGridFromRows([][]int{
	{1, 4, 7, 4, 1},
	{4, 16, 26, 16, 4},
	{7, 26, 41, 26, 7},
	{4, 16, 26, 16, 4},
	{1, 4, 7, 4, 1},
})

// Convolver correlates an image with an integer kernel. Implementations
// must produce exactly the output of Convolve.
type Convolver interface {
	Convolve(img, kernel *core.Grid) (*core.Grid, error)
}

// KernelDivisor returns |sum of weights|, or 1 when the weights cancel
func KernelDivisor(kernel *core.Grid) int {
	div := 0
	for _, w := range kernel.Pix() {
		div += w
	}
	if div < 0 {
		div = -div
	}
	if div == 0 {
		div = 1
	}
	return div
}

// Convolve correlates img with an integer kernel centered at
// (rows/2, cols/2) and divides by KernelDivisor. Out-of-bounds taps are
// skipped. Division truncates toward zero.
func Convolve(img, kernel *core.Grid) (*core.Grid, error) {
	if kernel == nil || kernel.Rows() == 0 || kernel.Cols() == 0 {
		return nil, fmt.Errorf("empty convolution kernel: %w", core.ErrInvalidFootprint)
	}
	div := KernelDivisor(kernel)

	rows, cols := img.Rows(), img.Cols()
	ci, cj := kernel.Rows()/2, kernel.Cols()/2
	out := core.NewGrid(rows, cols)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			acc := 0
			for i := y - ci; i <= y+ci; i++ {
				if i < 0 || i >= rows {
					continue
				}
				for j := x - cj; j <= x+cj; j++ {
					if j < 0 || j >= cols {
						continue
					}
					ki, kj := ci+(i-y), cj+(j-x)
					if ki >= kernel.Rows() || kj >= kernel.Cols() {
						continue
					}
					acc += img.At(i, j) * kernel.At(ki, kj)
				}
			}
			out.Set(y, x, acc/div)
		}
	}
	return out, nil
}

// Convolve runs Convolve on the backend when it implements Convolver
func (e *Engine) Convolve(img, kernel *core.Grid) (*core.Grid, error) {
	if kernel == nil || kernel.Rows() == 0 || kernel.Cols() == 0 {
		return nil, fmt.Errorf("empty convolution kernel: %w", core.ErrInvalidFootprint)
	}
	if c, ok := e.backend.(Convolver); ok {
		return c.Convolve(img, kernel)
	}
	return Convolve(img, kernel)
}

// GaussianSmooth convolves img with GaussianKernel5 through the backend
func (e *Engine) GaussianSmooth(img *core.Grid) (*core.Grid, error) {
	return e.Convolve(img, GaussianKernel5)
}

// GaussianSmooth convolves img with GaussianKernel5
func GaussianSmooth(img *core.Grid) (*core.Grid, error) {
	return Convolve(img, GaussianKernel5)
}

// Normalize stretches img linearly so its minimum maps to 0 and its maximum
// to 255. With a mask, extremes are taken over masked-in samples only and
// excluded samples are set to 0. A flat image maps to all zeros.
func Normalize(img, mask *core.Grid) (*core.Grid, error) {
	if mask != nil {
		if err := core.CheckSameSize(img, mask, "mask"); err != nil {
			return nil, err
		}
	}

	out := core.NewGrid(img.Rows(), img.Cols())
	lo, hi, ok := img.MinMax(mask)
	if !ok || hi == lo {
		return out, nil
	}

	src, dst := img.Pix(), out.Pix()
	for k, v := range src {
		if mask != nil && mask.Pix()[k] == 0 {
			continue
		}
		dst[k] = (v - lo) * 255 / (hi - lo)
	}
	return out, nil
}

// NormalizeFloat maps real samples linearly onto [lo, hi] with rounding
func NormalizeFloat(values []float64, rows, cols, lo, hi int) (*core.Grid, error) {
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%d samples for %dx%d grid: %w", len(values), rows, cols, core.ErrDimensionMismatch)
	}
	out := core.NewFilledGrid(rows, cols, lo)
	if len(values) == 0 {
		return out, nil
	}

	vmin, vmax := values[0], values[0]
	for _, v := range values[1:] {
		vmin = math.Min(vmin, v)
		vmax = math.Max(vmax, v)
	}
	if vmax == vmin {
		return out, nil
	}

	scale := float64(hi-lo) / (vmax - vmin)
	for k, v := range values {
		out.Pix()[k] = int(math.Round((v-vmin)*scale)) + lo
	}
	return out, nil
}
