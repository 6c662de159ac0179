// Evaluation, search and enhancement runs over a loaded dataset
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/config"
	"strel-optimizer/internal/core"
	"strel-optimizer/internal/dataset"
	"strel-optimizer/internal/imageio"
	"strel-optimizer/internal/metrics"
	"strel-optimizer/internal/opencv"
	"strel-optimizer/internal/optimizer"
	"strel-optimizer/internal/pipeline"
	"strel-optimizer/internal/report"
	"strel-optimizer/internal/strel"
	"strel-optimizer/internal/telemetry"
)

// Output file names
const (
	BestStrelFile    = "best_strel.pgm"
	BestStrelPreview = "best_strel.webp"
	OptimizeReport   = "optimize.yaml"
	OptimizeTrace    = "optimize_trace.png"
	SweepReport      = "sweep.yaml"
	SweepROCPlot     = "sweep_roc.png"
	EvaluateReport   = "evaluate.yaml"
	EvaluateROCPlot  = "evaluate_roc.png"

	previewSide = 256
)

// Service runs the structuring element workflows against one dataset
type Service struct {
	cfg       *config.Config
	ds        *dataset.Dataset
	engine    *algorithms.Engine
	evaluator *metrics.Evaluator
	loader    *imageio.Loader
	recorder  *telemetry.Recorder
	logger    logrus.FieldLogger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRecorder reports optimizer events to r
func WithRecorder(r *telemetry.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewEngine builds the morphology engine selected by cfg
func NewEngine(cfg *config.Config) *algorithms.Engine {
	opts := []algorithms.EngineOption{algorithms.WithMaskPolicy(cfg.MaskPolicy())}
	if cfg.Engine.Backend == config.BackendOpenCV {
		opts = append(opts, algorithms.WithBackend(opencv.NewBackend()))
	}
	return algorithms.NewEngine(opts...)
}

// New creates a service over an already loaded dataset
func New(cfg *config.Config, ds *dataset.Dataset, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		ds:     ds,
		engine: NewEngine(cfg),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.evaluator = metrics.NewEvaluator(cfg.CurveOrder())
	s.loader = imageio.NewLoader(s.logger, cfg.Channel())
	return s
}

// Open loads the configured dataset from disk and creates a service
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := New(cfg, nil, opts...)
	ds, err := dataset.Load(ctx, s.loader, cfg.Layout(), cfg.Evaluation.Workers, s.logger)
	if err != nil {
		return nil, err
	}
	s.ds = ds
	return s, nil
}

// Engine returns the morphology engine in use
func (s *Service) Engine() *algorithms.Engine { return s.engine }

func (s *Service) objective() *optimizer.AUCObjective {
	return &optimizer.AUCObjective{
		Dataset:        s.ds,
		Engine:         s.engine,
		Evaluator:      s.evaluator,
		Mode:           s.cfg.EnhanceMode(),
		UseMask:        s.cfg.Evaluation.UseMask,
		MaskMorphology: s.cfg.Enhance.MaskMorphology,
		PostSteps:      s.cfg.PostSteps(),
		Workers:        s.cfg.Evaluation.Workers,
		Logger:         s.logger,
	}
}

func (s *Service) output(name string) string {
	return filepath.Join(s.cfg.Output.Dir, name)
}

// radiusOf returns r for a (2r+1)x(2r+1) element
func radiusOf(kernel *core.Grid) (int, error) {
	if kernel.Rows() != kernel.Cols() || kernel.Rows()%2 == 0 {
		return 0, fmt.Errorf("element %dx%d is not square with odd side: %w", kernel.Rows(), kernel.Cols(), core.ErrInvalidFootprint)
	}
	return kernel.Rows() / 2, nil
}

// evaluate scores kernel over the dataset
func (s *Service) evaluate(ctx context.Context, label string, kernel *core.Grid) (report.Evaluation, *metrics.Curve, error) {
	radius, err := radiusOf(kernel)
	if err != nil {
		return report.Evaluation{}, nil, err
	}
	conf, err := s.objective().Confusion(ctx, kernel, radius)
	if err != nil {
		return report.Evaluation{}, nil, err
	}

	summary := s.evaluator.Summarize(conf)
	curve := s.evaluator.Curve(conf)
	if curve.Undefined() {
		s.logger.WithFields(logrus.Fields{
			"strel":                 label,
			"undefined_sensitivity": curve.UndefinedSensitivity,
			"undefined_specificity": curve.UndefinedSpecificity,
		}).Warn("ROC ratio undefined, dataset lacks a class")
	}
	return report.Evaluation{Shape: label, Radius: radius, Summary: summary}, curve, nil
}

// EvaluateStrel builds the element described by shape and params and
// returns its ROC summary over the dataset
func (s *Service) EvaluateStrel(ctx context.Context, shape strel.Shape, params strel.Params) (*report.Evaluation, error) {
	kernel, err := strel.Build(shape, params)
	if err != nil {
		return nil, err
	}
	eval, curve, err := s.evaluate(ctx, string(shape), kernel)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"strel":  shape,
		"radius": eval.Radius,
		"auc":    eval.Summary.AUC,
	}).Info("Structuring element evaluated")

	eval.MetricInfo = s.evaluator.GetMetricInfo()
	if err := report.WriteYAML(s.output(EvaluateReport), eval); err != nil {
		return &eval, err
	}
	if s.cfg.Output.Plots {
		label := fmt.Sprintf("%s r%d", shape, eval.Radius)
		if err := report.PlotROC(map[string]*metrics.Curve{label: curve}, "ROC", s.output(EvaluateROCPlot)); err != nil {
			return &eval, err
		}
	}
	return &eval, nil
}

// SweepShapes evaluates every configured shape at every configured radius,
// printing one table row per element to w when w is not nil
func (s *Service) SweepShapes(ctx context.Context, w io.Writer) (*report.Sweep, error) {
	var table *report.Table
	if w != nil {
		table = report.NewTable(w)
		table.Header()
	}

	var evals []report.Evaluation
	curves := make(map[string]*metrics.Curve)
	for _, shape := range s.cfg.SweepShapes() {
		for _, radius := range s.cfg.Sweep.Radii {
			kernel, err := strel.Build(shape, strel.Params{Weight: 1, Radius: radius})
			if err != nil {
				return nil, err
			}
			eval, curve, err := s.evaluate(ctx, string(shape), kernel)
			if err != nil {
				return nil, fmt.Errorf("%s radius %d: %w", shape, radius, err)
			}
			evals = append(evals, eval)
			curves[fmt.Sprintf("%s r%d", shape, radius)] = curve
			if table != nil {
				table.Row(eval)
			}
		}
	}

	sweep := report.NewSweep(evals)
	if sweep.Best != nil {
		s.logger.WithFields(logrus.Fields{
			"strel":  sweep.Best.Shape,
			"radius": sweep.Best.Radius,
			"auc":    sweep.Best.Summary.AUC,
			"mean":   sweep.Stats.Mean,
		}).Info("Sweep finished")
	}

	if err := report.WriteYAML(s.output(SweepReport), sweep); err != nil {
		return &sweep, err
	}
	if s.cfg.Output.Plots && len(curves) > 0 {
		if err := report.PlotROC(curves, "ROC by structuring element", s.output(SweepROCPlot)); err != nil {
			return &sweep, err
		}
	}
	return &sweep, nil
}

// OptimizeStrel runs an iterated local search from the initial shape and
// returns the best element with its AUC. The best element is written as
// PGM along with a report. On cancellation the best element found so far
// is still written and returned together with the context error.
func (s *Service) OptimizeStrel(ctx context.Context, initialShape strel.Shape, radius, outer, inner int) (*core.Grid, float64, error) {
	cfg := s.cfg.Optimizer.Config
	cfg.Radius, cfg.OuterIterations, cfg.InnerIterations = radius, outer, inner

	opts := []optimizer.Option{optimizer.WithLogger(s.logger)}
	if s.recorder != nil {
		opts = append(opts, optimizer.WithObserver(s.recorder))
	}
	opt, err := optimizer.New(s.objective(), cfg, opts...)
	if err != nil {
		return nil, 0, err
	}
	initial, err := strel.Build(initialShape, strel.Params{Weight: 1, Radius: radius})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	res, runErr := opt.IteratedLocalSearch(ctx, initial, radius, outer)
	if res == nil {
		return nil, 0, runErr
	}
	cancelled := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	if runErr != nil && !cancelled {
		return res.Best, res.AUC, runErr
	}

	if err := s.saveBest(res.Best); err != nil {
		return res.Best, res.AUC, err
	}
	rep := report.Optimization{
		Generated:    time.Now().UTC(),
		InitialShape: string(initialShape),
		Radius:       radius,
		Parameters:   cfg,
		InitialAUC:   res.History[0],
		BestAUC:      res.AUC,
		History:      res.History,
		Evaluations:  res.Evaluations,
		Accepted:     res.Accepted,
		Duration:     time.Since(start),
		BestElement:  report.ElementRows(res.Best),
		Cancelled:    cancelled,
	}
	if err := report.WriteYAML(s.output(OptimizeReport), rep); err != nil {
		return res.Best, res.AUC, err
	}
	if s.cfg.Output.Plots {
		if err := report.PlotHistory(res.History, "Iterated local search", s.output(OptimizeTrace)); err != nil {
			return res.Best, res.AUC, err
		}
	}
	return res.Best, res.AUC, runErr
}

func (s *Service) saveBest(best *core.Grid) error {
	// set cells are written as 255
	visible := best.Clone()
	for k, v := range visible.Pix() {
		if v != 0 {
			visible.Pix()[k] = 255
		}
	}
	if err := s.loader.SaveGrid(visible, s.output(BestStrelFile), "best strel from ILS algorithm"); err != nil {
		return err
	}
	if s.cfg.Output.Previews {
		return s.loader.SavePreview(visible, s.output(BestStrelPreview), previewSide)
	}
	return nil
}

// EnhanceDataset enhances every sample with the given element and writes
// <output>/<id>_enhance.pgm for each. It returns the written paths.
func (s *Service) EnhanceDataset(ctx context.Context, shape strel.Shape, params strel.Params) ([]string, error) {
	kernel, err := strel.Build(shape, params)
	if err != nil {
		return nil, err
	}
	radius, err := radiusOf(kernel)
	if err != nil {
		return nil, err
	}
	entries, err := s.objective().Enhance(ctx, kernel, radius)
	if err != nil {
		return nil, err
	}

	comment := fmt.Sprintf("%s, %s", enhanceComment(s.cfg.EnhanceMode()), shape)
	paths := make([]string, 0, len(entries))
	for i, e := range entries {
		id := s.ds.Samples[i].ID
		path := s.output(fmt.Sprintf("%d_enhance.pgm", id))
		if err := s.loader.SaveGrid(e.Enhanced, path, comment); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		if s.cfg.Output.Previews {
			preview := s.output(fmt.Sprintf("%d_enhance.webp", id))
			if err := s.loader.SavePreview(e.Enhanced, preview, previewSide); err != nil {
				return paths, err
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"strel":  shape,
		"radius": radius,
		"count":  len(paths),
		"dir":    s.cfg.Output.Dir,
	}).Info("Dataset enhanced")
	return paths, nil
}

func enhanceComment(mode pipeline.Mode) string {
	if mode == pipeline.ModeSubtractTopHat {
		return "image - tophat"
	}
	return "image + tophat - blackhat"
}
