package opencv

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
	"strel-optimizer/internal/strel"
)

func randomImage(rows, cols int, seed uint64) *core.Grid {
	rng := rand.New(rand.NewPCG(seed, seed))
	g := core.NewGrid(rows, cols)
	for k := range g.Pix() {
		g.Pix()[k] = rng.IntN(256)
	}
	return g
}

func circleMask(rows, cols int) *core.Grid {
	m := core.NewGrid(rows, cols)
	cy, cx := rows/2, cols/2
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if (i-cy)*(i-cy)+(j-cx)*(j-cx) <= (rows/3)*(rows/3) {
				m.Set(i, j, 255)
			}
		}
	}
	return m
}

func TestMatRoundTrip(t *testing.T) {
	g := randomImage(7, 11, 1)
	m := ToMat(g)
	defer m.Close()

	assert.Equal(t, 7, m.Rows())
	assert.Equal(t, 11, m.Cols())
	assert.True(t, FromMat(m).Equal(g))
}

func TestBackendMatchesNative(t *testing.T) {
	img := randomImage(23, 19, 7)
	mask := circleMask(23, 19)

	shapes := []struct {
		shape strel.Shape
		p     strel.Params
	}{
		{strel.ShapeDisk, strel.Params{Weight: 1, Radius: 2}},
		{strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 3}},
		{strel.ShapeSquare, strel.Params{Weight: 1, Radius: 1}},
		{strel.ShapeCross, strel.Params{Weight: 1, Radius: 2}},
	}
	modes := []algorithms.Mode{algorithms.ModeMax, algorithms.ModeMin, algorithms.ModeRange}
	policies := []algorithms.MaskPolicy{algorithms.MaskSentinel, algorithms.MaskPassThrough}

	b := NewBackend()
	for _, s := range shapes {
		kernel, err := strel.Build(s.shape, s.p)
		require.NoError(t, err)
		for _, mode := range modes {
			for _, policy := range policies {
				for _, m := range []*core.Grid{nil, mask} {
					req := algorithms.SweepRequest{Image: img, Kernel: kernel, Radius: s.p.Radius, Mode: mode, Mask: m, Policy: policy}
					require.True(t, b.Supports(req))

					want, err := algorithms.NativeBackend{}.Sweep(req)
					require.NoError(t, err)
					got, err := b.Sweep(req)
					require.NoError(t, err)
					assert.True(t, want.Equal(got), "%s r=%d mode=%s masked=%v", s.shape, s.p.Radius, mode, m != nil)
				}
			}
		}
	}
}

func TestConvolveMatchesNative(t *testing.T) {
	img := randomImage(21, 17, 9)
	signed := img.Clone()
	for k := range signed.Pix() {
		signed.Pix()[k] -= 128
	}

	base, err := algorithms.MatchedFilterKernel(algorithms.DefaultMatchedFilterParams())
	require.NoError(t, err)
	kernels := map[string]*core.Grid{
		"gaussian": algorithms.GaussianKernel5,
		"matched":  algorithms.RotateKernel(base, 30),
		"edge":     core.MustGridFromRows([][]int{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}),
		"even":     core.MustGridFromRows([][]int{{1, 2, 3, 4}, {-4, 3, -2, 1}}),
		"single":   core.MustGridFromRows([][]int{{-3}}),
	}

	b := NewBackend()
	for name, kernel := range kernels {
		for _, src := range []*core.Grid{img, signed} {
			require.True(t, b.SupportsConvolve(src, kernel))

			want, err := algorithms.Convolve(src, kernel)
			require.NoError(t, err)
			got, err := b.Convolve(src, kernel)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "kernel %s", name)
		}
	}
}

func TestEngineFiltersWithOpenCVBackend(t *testing.T) {
	img := randomImage(25, 25, 11)
	cv := algorithms.NewEngine(algorithms.WithBackend(NewBackend()))
	native := algorithms.NewEngine()

	want, err := native.GaussianSmooth(img)
	require.NoError(t, err)
	got, err := cv.GaussianSmooth(img)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	p := algorithms.DefaultMatchedFilterParams()
	want, err = native.MatchedFilter(img, circleMask(25, 25), p)
	require.NoError(t, err)
	got, err = cv.MatchedFilter(img, circleMask(25, 25), p)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestBackendDelegatesUnsupportedRequests(t *testing.T) {
	img := randomImage(9, 9, 3)
	b := NewBackend()

	weighted, err := strel.Build(strel.ShapeSquare, strel.Params{Weight: 2, Radius: 1})
	require.NoError(t, err)
	hollow := core.NewFilledGrid(3, 3, 1)
	hollow.Set(1, 1, 0)

	for _, kernel := range []*core.Grid{weighted, hollow} {
		req := algorithms.SweepRequest{Image: img, Kernel: kernel, Radius: 1, Mode: algorithms.ModeMax}
		assert.False(t, b.Supports(req))

		want, err := algorithms.NativeBackend{}.Sweep(req)
		require.NoError(t, err)
		got, err := b.Sweep(req)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	}
}

func TestEngineWithOpenCVBackend(t *testing.T) {
	e := algorithms.NewEngine(algorithms.WithBackend(NewBackend()))
	assert.Equal(t, "opencv", e.BackendName())

	img := randomImage(15, 15, 5)
	kernel, err := strel.Build(strel.ShapeDisk, strel.Params{Weight: 1, Radius: 2})
	require.NoError(t, err)

	got, err := e.TopHat(img, kernel, 2, nil)
	require.NoError(t, err)
	want, err := algorithms.NewEngine().TopHat(img, kernel, 2, nil)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}
