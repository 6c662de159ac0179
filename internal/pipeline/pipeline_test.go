package pipeline

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
	"strel-optimizer/internal/strel"
)

func testLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestMorphContrastMatchesComposition(t *testing.T) {
	img := core.MustGridFromRows([][]int{
		{120, 120, 120, 120, 120},
		{120, 60, 120, 200, 120},
		{120, 60, 120, 120, 120},
		{120, 60, 120, 120, 120},
		{120, 120, 120, 120, 120},
	})
	kernel, err := strel.Build(strel.ShapeDisk, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)
	engine := algorithms.NewEngine()

	got, err := Morph{Engine: engine, Kernel: kernel, Radius: 1, Mode: ModeContrast}.Apply(img, nil)
	require.NoError(t, err)

	top, err := engine.TopHat(img, kernel, 1, nil)
	require.NoError(t, err)
	black, err := engine.BlackHat(img, kernel, 1, nil)
	require.NoError(t, err)
	for k, v := range img.Pix() {
		want := v + top.Pix()[k]
		if want > 255 {
			want = 255
		}
		want -= black.Pix()[k]
		if want < 0 {
			want = 0
		}
		assert.Equal(t, want, got.Pix()[k], "pixel %d", k)
	}

	// the isolated bright spot is emphasized, the dark streak deepened
	assert.Greater(t, got.At(1, 3), img.At(1, 3))
	assert.Less(t, got.At(2, 1), img.At(2, 1))
}

func TestMorphSubtractTopHat(t *testing.T) {
	img := core.NewFilledGrid(5, 5, 50)
	img.Set(2, 2, 250)
	kernel, err := strel.Build(strel.ShapeSquare, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)

	got, err := Morph{Kernel: kernel, Radius: 1, Mode: ModeSubtractTopHat}.Apply(img, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, got.At(2, 2))
	assert.Equal(t, 50, got.At(0, 0))
}

func TestEnhancementPipelineInverts(t *testing.T) {
	img := core.NewFilledGrid(4, 4, 30)
	kernel, err := strel.Build(strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)

	p := Enhancement(testLogger(), algorithms.NewEngine(), kernel, 1, ModeContrast, false)
	got, err := p.Run(context.Background(), img, nil)
	require.NoError(t, err)

	for _, v := range got.Pix() {
		assert.Equal(t, 225, v)
	}
	assert.Equal(t, 30, img.At(0, 0))
}

func TestEnhancementAppendsPostSteps(t *testing.T) {
	img := core.NewFilledGrid(7, 7, 200)
	for i := 0; i < 7; i++ {
		img.Set(i, 3, 50)
	}
	kernel, err := strel.Build(strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)

	post, err := ParseSteps([]string{"normalize"}, false)
	require.NoError(t, err)
	p := Enhancement(testLogger(), algorithms.NewEngine(), kernel, 1, ModeContrast, false, post...)
	require.Len(t, p.GetSteps(), 3)

	got, err := p.Run(context.Background(), img, nil)
	require.NoError(t, err)
	assert.Equal(t, 255, got.At(3, 3))
	assert.Equal(t, 0, got.At(3, 0))
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps(StepNames(), true)
	require.NoError(t, err)
	require.Len(t, steps, 3+len(algorithms.Names()))
	assert.Equal(t, "gaussian", steps[0].Name())
	assert.Equal(t, Normalize{UseMask: true}, steps[1])
	assert.Equal(t, "matched-filter", steps[2].Name())
	assert.Equal(t, Operator{Operator: "blackhat", UseMask: true}, steps[3])

	_, err = ParseSteps([]string{"sharpen"}, false)
	assert.Error(t, err)
}

func TestEnhancementBindsOperatorSteps(t *testing.T) {
	img := core.NewFilledGrid(7, 7, 200)
	for i := 0; i < 7; i++ {
		img.Set(i, 3, 50)
	}
	kernel, err := strel.Build(strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)
	engine := algorithms.NewEngine()

	post, err := ParseSteps([]string{"dilation", "smooth"}, false)
	require.NoError(t, err)
	p := Enhancement(testLogger(), engine, kernel, 1, ModeContrast, false, post...)

	steps := p.GetSteps()
	require.Len(t, steps, 4)
	op, ok := steps[2].Step.(Operator)
	require.True(t, ok)
	assert.Same(t, kernel, op.Kernel)
	assert.Same(t, engine, op.Engine)
	assert.Equal(t, 1, op.Radius)
	smooth, ok := steps[3].Step.(Smooth)
	require.True(t, ok)
	assert.Same(t, engine, smooth.Engine)

	// disable smoothing to read the dilated line directly
	require.NoError(t, p.SetEnabled(3, false))
	got, err := p.Run(context.Background(), img, nil)
	require.NoError(t, err)
	assert.Equal(t, 255, got.At(3, 2))
	assert.Equal(t, 255, got.At(3, 3))
	assert.Equal(t, 255, got.At(3, 4))
	assert.Equal(t, 55, got.At(3, 0))
}

func TestOperatorWithoutElement(t *testing.T) {
	_, err := Operator{Operator: "opening"}.Apply(core.NewGrid(3, 3), nil)
	assert.ErrorIs(t, err, core.ErrInvalidFootprint)
}

func TestPipelineSkipsDisabledStepsAndCopies(t *testing.T) {
	img := core.MustGridFromRows([][]int{{0, 255}})
	p := New(testLogger(), Invert{})
	require.NoError(t, p.SetEnabled(0, false))
	assert.Error(t, p.SetEnabled(3, true))

	got, err := p.Run(context.Background(), img, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(img))
	assert.NotSame(t, img, got)
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testLogger(), Smooth{}).Run(ctx, core.NewGrid(3, 3), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineWrapsStepErrors(t *testing.T) {
	bad := Operator{Operator: "erosion", Kernel: core.NewGrid(2, 2), Radius: 1}
	_, err := New(testLogger(), Normalize{}, bad).Run(context.Background(), core.NewGrid(3, 3), nil)
	assert.ErrorIs(t, err, core.ErrInvalidFootprint)
	assert.Contains(t, err.Error(), "step 1 (erosion)")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("subtract-tophat")
	require.NoError(t, err)
	assert.Equal(t, ModeSubtractTopHat, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeContrast, m)

	_, err = ParseMode("sharpen")
	assert.Error(t, err)
}
