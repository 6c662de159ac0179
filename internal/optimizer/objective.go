// Dataset-backed AUC objective for structuring element search
package optimizer

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
	"strel-optimizer/internal/dataset"
	"strel-optimizer/internal/metrics"
	"strel-optimizer/internal/pipeline"
)

// Objective scores a structuring element; higher is better
type Objective interface {
	Evaluate(ctx context.Context, kernel *core.Grid, radius int) (float64, error)
}

// ObjectiveFunc adapts a function to Objective
type ObjectiveFunc func(ctx context.Context, kernel *core.Grid, radius int) (float64, error)

func (f ObjectiveFunc) Evaluate(ctx context.Context, kernel *core.Grid, radius int) (float64, error) {
	return f(ctx, kernel, radius)
}

// AUCObjective enhances every dataset image with the candidate element and
// returns the ROC AUC of the enhanced images against the ground truth
type AUCObjective struct {
	Dataset        *dataset.Dataset
	Engine         *algorithms.Engine
	Evaluator      *metrics.Evaluator
	Mode           pipeline.Mode
	UseMask        bool
	MaskMorphology bool
	PostSteps      []pipeline.Step
	Workers        int
	Logger         logrus.FieldLogger
}

// Enhance runs the enhancement pipeline over the dataset and returns one
// evaluation entry per sample, in dataset order
func (o *AUCObjective) Enhance(ctx context.Context, kernel *core.Grid, radius int) ([]metrics.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := pipeline.Enhancement(logger, o.Engine, kernel, radius, o.Mode, o.MaskMorphology, o.PostSteps...)

	samples := o.Dataset.Samples
	entries := make([]metrics.Entry, len(samples))
	errs := make([]error, len(samples))

	workers := o.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	work := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(samples)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				s := samples[idx]
				enhanced, err := p.Run(ctx, s.Image, s.Mask)
				if err != nil {
					errs[idx] = fmt.Errorf("sample %d: %w", s.ID, err)
					continue
				}
				entries[idx] = metrics.Entry{Enhanced: enhanced, GroundTruth: s.GroundTruth, Mask: s.Mask}
			}
		}()
	}

	var ctxErr error
dispatch:
	for idx := range samples {
		select {
		case work <- idx:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	if ctxErr != nil {
		return nil, ctxErr
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Confusion enhances the dataset and sweeps all thresholds
func (o *AUCObjective) Confusion(ctx context.Context, kernel *core.Grid, radius int) (*metrics.Confusion, error) {
	entries, err := o.Enhance(ctx, kernel, radius)
	if err != nil {
		return nil, err
	}
	return metrics.ConfusionSweep(ctx, entries, o.UseMask, o.Workers)
}

// Evaluate implements Objective
func (o *AUCObjective) Evaluate(ctx context.Context, kernel *core.Grid, radius int) (float64, error) {
	conf, err := o.Confusion(ctx, kernel, radius)
	if err != nil {
		return 0, err
	}

	curve := o.Evaluator.Curve(conf)
	if curve.Undefined() && o.Logger != nil {
		o.Logger.WithFields(logrus.Fields{
			"undefined_sensitivity": curve.UndefinedSensitivity,
			"undefined_specificity": curve.UndefinedSpecificity,
		}).Warn("ROC ratio undefined, dataset lacks a class")
	}
	return curve.AUC(), nil
}
