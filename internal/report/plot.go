// ROC curve and search trace plots
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"strel-optimizer/internal/metrics"
)

// PlotROC draws one line per labeled curve, false-positive rate on X and
// sensitivity on Y, and saves the figure to outPath
func PlotROC(curves map[string]*metrics.Curve, title, outPath string) error {
	if len(curves) == 0 {
		return fmt.Errorf("no curves to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "1 - specificity"
	p.Y.Label.Text = "Sensitivity"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	labels := make([]string, 0, len(curves))
	for label := range curves {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for i, label := range labels {
		c := curves[label]
		pts := make(plotter.XYs, metrics.Thresholds)
		for k := range pts {
			pts[k].X, pts[k].Y = c.Point(k)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (AUC %.4f)", label, c.AUC()), line)
	}

	p.Legend.Top = false
	p.Legend.Left = false
	return save(p, outPath)
}

// PlotHistory draws the best AUC after each search iteration
func PlotHistory(history []float64, title, outPath string) error {
	if len(history) == 0 {
		return fmt.Errorf("empty history")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Best AUC"

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	p.Add(line, points, plotter.NewGrid())
	return save(p, outPath)
}

func save(p *plot.Plot, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(outPath), err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, outPath); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", outPath, err)
	}
	return nil
}
