// Stochastic local search over binary structuring elements
package optimizer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"strel-optimizer/internal/core"
	"strel-optimizer/internal/strel"
)

// Config holds the search parameters
type Config struct {
	Radius             int     `mapstructure:"radius" yaml:"radius"`
	InnerIterations    int     `mapstructure:"inner_iterations" yaml:"inner_iterations"`
	OuterIterations    int     `mapstructure:"outer_iterations" yaml:"outer_iterations"`
	InnerChangePercent float64 `mapstructure:"inner_change_percent" yaml:"inner_change_percent"`
	OuterChangePercent float64 `mapstructure:"outer_change_percent" yaml:"outer_change_percent"`
	Seed               uint64  `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns the parameters used for DRIVE: radius 8, five outer
// and five inner iterations, 75% perturbations and 15% refinements
func DefaultConfig() Config {
	return Config{
		Radius:             8,
		InnerIterations:    5,
		OuterIterations:    5,
		InnerChangePercent: 15,
		OuterChangePercent: 75,
		Seed:               1,
	}
}

// Validate rejects parameters the search cannot run with
func (c Config) Validate() error {
	if c.Radius < 1 {
		return fmt.Errorf("radius must be at least 1, got %d", c.Radius)
	}
	if c.InnerIterations < 0 || c.OuterIterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got inner=%d outer=%d", c.InnerIterations, c.OuterIterations)
	}
	for name, pct := range map[string]float64{"inner": c.InnerChangePercent, "outer": c.OuterChangePercent} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%s change percent %.2f outside [0,100]", name, pct)
		}
	}
	if c.OuterChangePercent <= c.InnerChangePercent {
		return fmt.Errorf("outer change percent %.2f must exceed inner %.2f", c.OuterChangePercent, c.InnerChangePercent)
	}
	return nil
}

// Observer receives search events
type Observer interface {
	ObserveEvaluation(loop string, auc float64, elapsed time.Duration)
	ObserveAccepted(loop string, auc float64)
	ObserveBest(auc float64)
}

type noopObserver struct{}

func (noopObserver) ObserveEvaluation(string, float64, time.Duration) {}
func (noopObserver) ObserveAccepted(string, float64)                  {}
func (noopObserver) ObserveBest(float64)                              {}

const (
	loopInner = "inner"
	loopOuter = "outer"
)

// Result is the outcome of a search. History holds the best AUC after the
// initial evaluation and after every iteration, so it never decreases.
type Result struct {
	Best        *core.Grid
	AUC         float64
	History     []float64
	Evaluations int
	Accepted    int
}

// Optimizer searches for the structuring element maximizing an objective
type Optimizer struct {
	cfg       Config
	objective Objective
	rng       *rand.Rand
	logger    logrus.FieldLogger
	observer  Observer
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Optimizer) { o.logger = logger }
}

// WithObserver sets the event sink
func WithObserver(obs Observer) Option {
	return func(o *Optimizer) { o.observer = obs }
}

// WithRand replaces the generator seeded from the config
func WithRand(rng *rand.Rand) Option {
	return func(o *Optimizer) { o.rng = rng }
}

// New creates an optimizer. The random generator is seeded once from
// cfg.Seed so runs are reproducible.
func New(objective Objective, cfg Config, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Optimizer{
		cfg:       cfg,
		objective: objective,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
		logger:    logrus.StandardLogger(),
		observer:  noopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the parameters in effect
func (o *Optimizer) Config() Config { return o.cfg }

func (o *Optimizer) evaluate(ctx context.Context, loop string, kernel *core.Grid, radius int) (float64, error) {
	start := time.Now()
	auc, err := o.objective.Evaluate(ctx, kernel, radius)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	o.observer.ObserveEvaluation(loop, auc, elapsed)
	o.logger.WithFields(logrus.Fields{
		"loop":      loop,
		"auc":       auc,
		"footprint": strel.Footprint(kernel),
		"elapsed":   elapsed,
	}).Debug("Candidate evaluated")
	return auc, nil
}

// LocalSearch repeatedly mutates the best element by changePercent and
// keeps a mutation only when it scores strictly higher. It always runs
// the given number of iterations unless ctx is cancelled, in which case
// the best result so far is returned with the context error.
func (o *Optimizer) LocalSearch(ctx context.Context, incumbent *core.Grid, changePercent float64, radius, iterations int) (*Result, error) {
	return o.localSearch(ctx, loopInner, incumbent, changePercent, radius, iterations)
}

func (o *Optimizer) localSearch(ctx context.Context, loop string, incumbent *core.Grid, changePercent float64, radius, iterations int) (*Result, error) {
	side := 2*radius + 1
	if incumbent == nil || incumbent.Rows() != side || incumbent.Cols() != side {
		return nil, fmt.Errorf("local search incumbent for radius %d: %w", radius, core.ErrInvalidFootprint)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("iterations must be non-negative, got %d", iterations)
	}

	auc, err := o.evaluate(ctx, loop, incumbent, radius)
	if err != nil {
		return nil, err
	}
	res := &Result{Best: incumbent.Clone(), AUC: auc, History: []float64{auc}, Evaluations: 1}

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		candidate, err := strel.Mutate(res.Best, changePercent, radius, o.rng)
		if err != nil {
			return res, err
		}
		candAUC, err := o.evaluate(ctx, loop, candidate, radius)
		if err != nil {
			return res, err
		}
		res.Evaluations++

		if candAUC > res.AUC {
			// move: the previous best is dropped here
			res.Best, res.AUC = candidate, candAUC
			res.Accepted++
			o.observer.ObserveAccepted(loop, candAUC)
		}
		res.History = append(res.History, res.AUC)
	}
	return res, nil
}

// IteratedLocalSearch escapes local optima by perturbing the best element
// heavily (OuterChangePercent), refining the perturbed element with a local
// search (InnerChangePercent, InnerIterations) and keeping the refined
// element when it beats the best so far.
func (o *Optimizer) IteratedLocalSearch(ctx context.Context, initial *core.Grid, radius, outerIterations int) (*Result, error) {
	side := 2*radius + 1
	if initial == nil || initial.Rows() != side || initial.Cols() != side {
		return nil, fmt.Errorf("initial element for radius %d: %w", radius, core.ErrInvalidFootprint)
	}
	if outerIterations < 0 {
		return nil, fmt.Errorf("iterations must be non-negative, got %d", outerIterations)
	}

	auc, err := o.evaluate(ctx, loopOuter, initial, radius)
	if err != nil {
		return nil, err
	}
	res := &Result{Best: initial.Clone(), AUC: auc, History: []float64{auc}, Evaluations: 1}
	o.observer.ObserveBest(auc)
	o.logger.WithFields(logrus.Fields{
		"auc":       auc,
		"radius":    radius,
		"footprint": strel.Footprint(initial),
	}).Info("Initial structuring element evaluated")

	for it := 0; it < outerIterations; it++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start, err := strel.Mutate(res.Best, o.cfg.OuterChangePercent, radius, o.rng)
		if err != nil {
			return res, err
		}
		refined, err := o.localSearch(ctx, loopInner, start, o.cfg.InnerChangePercent, radius, o.cfg.InnerIterations)
		if refined != nil {
			res.Evaluations += refined.Evaluations
			if refined.AUC > res.AUC {
				res.Best, res.AUC = refined.Best, refined.AUC
				res.Accepted++
				o.observer.ObserveAccepted(loopOuter, refined.AUC)
				o.observer.ObserveBest(refined.AUC)
				o.logger.WithFields(logrus.Fields{
					"iteration": it + 1,
					"auc":       refined.AUC,
				}).Info("Improved structuring element accepted")
			}
		}
		if err != nil {
			return res, err
		}
		res.History = append(res.History, res.AUC)
	}

	o.logger.WithFields(logrus.Fields{
		"auc":         res.AUC,
		"evaluations": res.Evaluations,
		"accepted":    res.Accepted,
	}).Info("Iterated local search finished")
	return res, nil
}
