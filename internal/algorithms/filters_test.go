package algorithms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strel-optimizer/internal/core"
)

func TestConvolveBoxAverage(t *testing.T) {
	img := core.MustGridFromRows([][]int{
		{9, 9, 9},
		{9, 0, 9},
		{9, 9, 9},
	})
	box := core.NewFilledGrid(3, 3, 1)

	got, err := Convolve(img, box)
	require.NoError(t, err)
	// the center sees 8*9 over 9 weights, the corner 3*9 over 9 weights
	assert.Equal(t, 8, got.At(1, 1))
	assert.Equal(t, 3, got.At(0, 0))
}

func TestConvolveZeroSumKernel(t *testing.T) {
	img := core.MustGridFromRows([][]int{{1, 2, 3}})
	edge := core.MustGridFromRows([][]int{{-1, 0, 1}})

	got, err := Convolve(img, edge)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, -2}, got.Pix())
}

func TestGaussianSmoothPreservesFlatImage(t *testing.T) {
	img := core.NewFilledGrid(9, 9, 100)

	got, err := GaussianSmooth(img)
	require.NoError(t, err)
	assert.Equal(t, 100, got.At(4, 4))
	// border taps are dropped but the divisor is not, so borders darken
	assert.Less(t, got.At(0, 0), 100)
}

func TestNormalize(t *testing.T) {
	img := core.MustGridFromRows([][]int{{10, 20}, {30, 110}})

	got, err := Normalize(img, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 25, 51, 255}, got.Pix())

	mask := core.MustGridFromRows([][]int{{1, 1}, {1, 0}})
	got, err = Normalize(img, mask)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 127, 255, 0}, got.Pix())

	flat, err := Normalize(core.NewFilledGrid(2, 2, 7), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, flat.Pix())
}

func TestNormalizeFloat(t *testing.T) {
	got, err := NormalizeFloat([]float64{-1, 0, 1}, 1, 3, 0, 255)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 128, 255}, got.Pix())

	_, err = NormalizeFloat([]float64{1}, 2, 2, 0, 255)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestOtsuThresholdSeparatesModes(t *testing.T) {
	var hist [256]float64
	hist[20] = 50
	hist[30] = 50
	hist[200] = 40
	hist[220] = 40

	level := OtsuThreshold(hist)
	assert.GreaterOrEqual(t, level, 30)
	assert.Less(t, level, 200)

	assert.Equal(t, 0, OtsuThreshold([256]float64{}))
}

func TestHistogramClampsAndMasks(t *testing.T) {
	img := core.MustGridFromRows([][]int{{-4, 300}, {7, 7}})
	mask := core.MustGridFromRows([][]int{{1, 1}, {1, 0}})

	hist := Histogram(img, mask)
	assert.Equal(t, 1.0, hist[0])
	assert.Equal(t, 1.0, hist[255])
	assert.Equal(t, 1.0, hist[7])
}

func TestRotateKernel(t *testing.T) {
	horizontal := core.MustGridFromRows([][]int{
		{0, 0, 0},
		{1, 1, 1},
		{0, 0, 0},
	})

	assert.True(t, RotateKernel(horizontal, 0).Equal(horizontal))

	vertical := RotateKernel(horizontal, 90)
	assert.Equal(t, []int{0, 1, 0, 0, 1, 0, 0, 1, 0}, vertical.Pix())
}

func TestMatchedFilterRespondsToDarkLine(t *testing.T) {
	img := core.NewFilledGrid(21, 21, 200)
	for i := 0; i < 21; i++ {
		img.Set(i, 10, 40)
	}

	kernel, err := MatchedFilterKernel(DefaultMatchedFilterParams())
	require.NoError(t, err)
	assert.Equal(t, 13, kernel.Rows())
	assert.Equal(t, 19, kernel.Cols())

	// each profile row of the default kernel cancels out
	for i := 0; i < kernel.Rows(); i++ {
		sum := 0
		for j := 0; j < kernel.Cols(); j++ {
			sum += kernel.At(i, j)
		}
		assert.Zero(t, sum, "row %d", i)
	}

	aligned := DefaultMatchedFilterParams()
	aligned.Angles = 1
	got, err := MatchedFilter(img, nil, aligned)
	require.NoError(t, err)
	assert.Equal(t, 255, got.At(10, 10))
	assert.Less(t, got.At(10, 2), got.At(10, 10))

	all, err := MatchedFilter(img, nil, DefaultMatchedFilterParams())
	require.NoError(t, err)
	lo, hi, ok := all.MinMax(nil)
	require.True(t, ok)
	assert.GreaterOrEqual(t, lo, 0)
	assert.LessOrEqual(t, hi, 255)
}
