package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"strel-optimizer/internal/core"
	"strel-optimizer/internal/metrics"
	"strel-optimizer/internal/strel"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{0.5, 0.7, 0.9})
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 0.7, s.Mean, 1e-12)
	assert.InDelta(t, 0.2, s.StdDev, 1e-12)
	assert.Equal(t, 0.5, s.Min)
	assert.Equal(t, 0.9, s.Max)

	single := NewStats([]float64{0.8})
	assert.Equal(t, 0.8, single.Mean)
	assert.Zero(t, single.StdDev)

	assert.Equal(t, Stats{}, NewStats(nil))
}

func TestNewSweepSelectsBest(t *testing.T) {
	evals := []Evaluation{
		{Shape: "diamond", Radius: 2, Summary: metrics.Summary{AUC: 0.81}},
		{Shape: "disk", Radius: 4, Summary: metrics.Summary{AUC: 0.93}},
		{Shape: "disk", Radius: 2, Summary: metrics.Summary{AUC: 0.93}},
	}
	s := NewSweep(evals)
	require.NotNil(t, s.Best)
	assert.Equal(t, "disk", s.Best.Shape)
	assert.Equal(t, 4, s.Best.Radius)
	assert.Equal(t, 3, s.Stats.Count)
}

func TestTableLayout(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf)
	tbl.Header()
	tbl.Row(Evaluation{Shape: "diamond", Radius: 8, Summary: metrics.Summary{AUC: 0.5}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "|Strel              |Radius   |AUC      ", lines[0])
	assert.Equal(t, "diamond             8         0.500000  ", lines[1])
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	kernel, err := strel.Build(strel.ShapeCross, strel.Params{Weight: 1, Radius: 1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "run.yaml")
	in := Optimization{
		InitialShape: "cross",
		Radius:       1,
		InitialAUC:   0.6,
		BestAUC:      0.75,
		History:      []float64{0.6, 0.6, 0.75},
		Evaluations:  13,
		Accepted:     1,
		BestElement:  ElementRows(kernel),
	}
	require.NoError(t, WriteYAML(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out Optimization
	require.NoError(t, yaml.Unmarshal(raw, &out))
	assert.Equal(t, in.History, out.History)
	assert.Equal(t, 0.75, out.BestAUC)
	assert.Len(t, out.BestElement, 3)
}

func TestElementRows(t *testing.T) {
	g := core.MustGridFromRows([][]int{{0, 1}, {1, 1}})
	rows := ElementRows(g)
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[0], ". #"))
}

func testCurve(t *testing.T) *metrics.Curve {
	t.Helper()
	enhanced := core.MustGridFromRows([][]int{{10, 200}, {30, 250}})
	truth := core.MustGridFromRows([][]int{{0, 255}, {0, 255}})
	mask := core.NewFilledGrid(2, 2, 255)
	conf, err := metrics.ConfusionSweep(context.Background(),
		[]metrics.Entry{{Enhanced: enhanced, GroundTruth: truth, Mask: mask}}, true, 1)
	require.NoError(t, err)
	return metrics.NewCurve(conf, metrics.OrderROC)
}

func TestPlotROCWritesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roc.png")
	err := PlotROC(map[string]*metrics.Curve{"diamond r2": testCurve(t)}, "ROC", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, PlotROC(nil, "ROC", path))
}

func TestPlotHistoryWritesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.png")
	require.NoError(t, PlotHistory([]float64{0.7, 0.72, 0.72, 0.8}, "Search", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, PlotHistory(nil, "Search", path))
}
