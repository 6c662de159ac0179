package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"strel-optimizer/internal/config"
	"strel-optimizer/internal/core"
	"strel-optimizer/internal/dataset"
	"strel-optimizer/internal/imageio"
	"strel-optimizer/internal/report"
	"strel-optimizer/internal/strel"
	"strel-optimizer/internal/telemetry"
)

// vesselDataset has dark vertical lines of width one on a bright
// background, one line position per sample
func vesselDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	var images, truths, masks []*core.Grid
	for n := 0; n < 3; n++ {
		img := core.NewFilledGrid(9, 9, 200)
		truth := core.NewGrid(9, 9)
		col := 2 + 2*n
		for i := 0; i < 9; i++ {
			img.Set(i, col, 50)
			truth.Set(i, col, 255)
		}
		images = append(images, img)
		truths = append(truths, truth)
		masks = append(masks, core.NewFilledGrid(9, 9, 255))
	}
	ds, err := dataset.New(images, truths, masks)
	require.NoError(t, err)
	return ds
}

func newTestService(t *testing.T, opts ...Option) (*Service, *config.Config) {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Output.Dir = t.TempDir()
	cfg.Evaluation.Workers = 2
	cfg.Sweep.Radii = []int{1, 2}

	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(cfg, vesselDataset(t), opts...), cfg
}

func TestEvaluateStrel(t *testing.T) {
	s, cfg := newTestService(t)

	eval, err := s.EvaluateStrel(context.Background(), strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)
	assert.Equal(t, "diamond", eval.Shape)
	assert.Equal(t, 1, eval.Radius)
	assert.InDelta(t, 1.0, eval.Summary.AUC, 1e-12)
	assert.InDelta(t, 1.0, eval.Summary.YoudenJ, 1e-12)
	assert.Contains(t, eval.Summary.Metrics, "dice")

	assert.FileExists(t, filepath.Join(cfg.Output.Dir, EvaluateROCPlot))

	raw, err := os.ReadFile(filepath.Join(cfg.Output.Dir, EvaluateReport))
	require.NoError(t, err)
	var saved report.Evaluation
	require.NoError(t, yaml.Unmarshal(raw, &saved))
	require.Contains(t, saved.MetricInfo, "dice")
	dice := saved.MetricInfo["dice"]
	assert.Equal(t, "Dice", dice.Name)
	assert.NotEmpty(t, dice.Description)
	assert.Equal(t, [2]float64{0, 1}, dice.Range)
	assert.True(t, dice.HigherBetter)
	assert.Len(t, saved.MetricInfo, 6)
}

func TestEvaluateStrelRejectsBadShape(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.EvaluateStrel(context.Background(), strel.Shape("ring"), strel.Params{Weight: 1, Radius: 1})
	assert.ErrorIs(t, err, core.ErrUnsupportedShape)

	_, err = s.EvaluateStrel(context.Background(), strel.ShapeSquare, strel.Params{Weight: 1, Rows: 2, Cols: 3})
	assert.ErrorIs(t, err, core.ErrInvalidFootprint)
}

func TestSweepShapes(t *testing.T) {
	s, cfg := newTestService(t)

	var buf bytes.Buffer
	sweep, err := s.SweepShapes(context.Background(), &buf)
	require.NoError(t, err)

	require.Len(t, sweep.Evaluations, 4)
	require.NotNil(t, sweep.Best)
	assert.InDelta(t, 1.0, sweep.Best.Summary.AUC, 1e-12)
	for _, e := range sweep.Evaluations {
		assert.GreaterOrEqual(t, e.Summary.AUC, 0.0)
		assert.LessOrEqual(t, e.Summary.AUC, 1.0+1e-12)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "|Strel"))
	assert.True(t, strings.HasPrefix(lines[1], "diamond"))

	assert.FileExists(t, filepath.Join(cfg.Output.Dir, SweepReport))
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, SweepROCPlot))
}

func TestOptimizeStrelWritesResults(t *testing.T) {
	recorder := telemetry.NewRecorder()
	s, cfg := newTestService(t, WithRecorder(recorder))

	best, auc, err := s.OptimizeStrel(context.Background(), strel.ShapeDiamond, 1, 2, 2)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, 3, best.Rows())
	assert.GreaterOrEqual(t, auc, 0.0)
	assert.LessOrEqual(t, auc, 1.0+1e-12)

	f, err := os.Open(filepath.Join(cfg.Output.Dir, BestStrelFile))
	require.NoError(t, err)
	defer f.Close()
	saved, err := imageio.DecodePGM(f)
	require.NoError(t, err)
	for k, v := range best.Pix() {
		if v != 0 {
			assert.Equal(t, 255, saved.Pix()[k])
		} else {
			assert.Zero(t, saved.Pix()[k])
		}
	}

	raw, err := os.ReadFile(filepath.Join(cfg.Output.Dir, BestStrelFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# best strel from ILS algorithm")

	assert.FileExists(t, filepath.Join(cfg.Output.Dir, BestStrelPreview))
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, OptimizeReport))
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, OptimizeTrace))
}

func TestOptimizeStrelCancelled(t *testing.T) {
	s, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.OptimizeStrel(ctx, strel.ShapeDiamond, 1, 2, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeStrelRejectsInvalidParameters(t *testing.T) {
	s, _ := newTestService(t)

	_, _, err := s.OptimizeStrel(context.Background(), strel.ShapeDiamond, 0, 2, 2)
	assert.Error(t, err)
}

func TestEnhanceDataset(t *testing.T) {
	s, cfg := newTestService(t)

	paths, err := s.EnhanceDataset(context.Background(), strel.ShapeDiamond, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "0_enhance.pgm"), paths[0])

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# image + tophat - blackhat, diamond")

	g, err := imageio.DecodePGM(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 255, g.At(4, 2))
	assert.Equal(t, 55, g.At(4, 7))

	assert.FileExists(t, filepath.Join(cfg.Output.Dir, "0_enhance.webp"))
}
