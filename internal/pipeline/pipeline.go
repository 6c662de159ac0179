// Sequential enhancement pipeline over grids
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
)

// Step transforms an image. mask may be nil and must not be modified.
type Step interface {
	Name() string
	Apply(img, mask *core.Grid) (*core.Grid, error)
}

// ProcessingStep represents a sequential processing step
type ProcessingStep struct {
	Step    Step
	Enabled bool
}

// Pipeline runs its enabled steps in order
type Pipeline struct {
	steps  []ProcessingStep
	logger logrus.FieldLogger
}

// New creates a pipeline with the given steps, all enabled
func New(logger logrus.FieldLogger, steps ...Step) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &Pipeline{logger: logger}
	for _, s := range steps {
		p.AddStep(s)
	}
	return p
}

// AddStep appends an enabled step
func (p *Pipeline) AddStep(s Step) {
	p.steps = append(p.steps, ProcessingStep{Step: s, Enabled: true})
}

// SetEnabled toggles the step at index
func (p *Pipeline) SetEnabled(index int, enabled bool) error {
	if index < 0 || index >= len(p.steps) {
		return fmt.Errorf("step index %d out of range [0,%d)", index, len(p.steps))
	}
	p.steps[index].Enabled = enabled
	return nil
}

// GetSteps returns a copy of the configured steps
func (p *Pipeline) GetSteps() []ProcessingStep {
	out := make([]ProcessingStep, len(p.steps))
	copy(out, p.steps)
	return out
}

// Run applies every enabled step to a copy of img. The input is never
// modified.
func (p *Pipeline) Run(ctx context.Context, img, mask *core.Grid) (*core.Grid, error) {
	current := img
	for i, ps := range p.steps {
		if !ps.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		out, err := ps.Step.Apply(current, mask)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, ps.Step.Name(), err)
		}
		p.logger.WithFields(logrus.Fields{
			"step":     ps.Step.Name(),
			"index":    i,
			"duration": time.Since(start),
		}).Trace("PIPELINE: step complete")
		current = out
	}

	if current == img {
		return img.Clone(), nil
	}
	return current, nil
}

// Mode selects the morphological enhancement formula
type Mode int

const (
	// ModeSubtractTopHat computes img - tophat
	ModeSubtractTopHat Mode = iota + 1
	// ModeContrast computes img + tophat - blackhat
	ModeContrast
)

// ParseMode maps "subtract-tophat" and "contrast" to a mode
func ParseMode(name string) (Mode, error) {
	switch name {
	case "subtract-tophat", "1":
		return ModeSubtractTopHat, nil
	case "", "contrast", "2":
		return ModeContrast, nil
	default:
		return 0, fmt.Errorf("unknown enhancement mode %q", name)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeSubtractTopHat:
		return "subtract-tophat"
	case ModeContrast:
		return "contrast"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Morph enhances contrast with top-hat and black-hat transforms of a
// structuring element. The sweeps only see the mask when UseMask is set.
type Morph struct {
	Engine  *algorithms.Engine
	Kernel  *core.Grid
	Radius  int
	Mode    Mode
	UseMask bool
}

func (m Morph) Name() string { return "morph-" + m.Mode.String() }

func (m Morph) Apply(img, mask *core.Grid) (*core.Grid, error) {
	engine := engineOrNative(m.Engine)
	if !m.UseMask {
		mask = nil
	}

	top, err := engine.TopHat(img, m.Kernel, m.Radius, mask)
	if err != nil {
		return nil, err
	}

	switch m.Mode {
	case ModeSubtractTopHat:
		return algorithms.Subtract(img, top)
	case ModeContrast:
		black, err := engine.BlackHat(img, m.Kernel, m.Radius, mask)
		if err != nil {
			return nil, err
		}
		brightened, err := algorithms.Add(img, top)
		if err != nil {
			return nil, err
		}
		return algorithms.Subtract(brightened, black)
	default:
		return nil, fmt.Errorf("unknown enhancement mode %d", int(m.Mode))
	}
}

// Operator applies a registered morphological operator by name. A step
// parsed from configuration has no Kernel until Enhancement binds it to the
// element being scored.
type Operator struct {
	Engine   *algorithms.Engine
	Operator string
	Kernel   *core.Grid
	Radius   int
	UseMask  bool
}

func (o Operator) Name() string { return o.Operator }

func (o Operator) Apply(img, mask *core.Grid) (*core.Grid, error) {
	if o.Kernel == nil {
		return nil, fmt.Errorf("operator %s has no structuring element: %w", o.Operator, core.ErrInvalidFootprint)
	}
	if !o.UseMask {
		mask = nil
	}
	return algorithms.Apply(o.Operator, engineOrNative(o.Engine), img, o.Kernel, o.Radius, mask)
}

func (o Operator) bind(engine *algorithms.Engine, kernel *core.Grid, radius int) Step {
	if o.Engine == nil {
		o.Engine = engine
	}
	if o.Kernel == nil {
		o.Kernel, o.Radius = kernel, radius
	}
	return o
}

// Invert maps v to 255-v. With UseMask, excluded samples become 0.
type Invert struct {
	UseMask bool
}

func (Invert) Name() string { return "invert" }

func (s Invert) Apply(img, mask *core.Grid) (*core.Grid, error) {
	if !s.UseMask {
		mask = nil
	}
	return algorithms.Invert(img, mask)
}

// Smooth applies the 5x5 Gaussian
type Smooth struct {
	Engine *algorithms.Engine
}

func (Smooth) Name() string { return "gaussian" }

func (s Smooth) Apply(img, _ *core.Grid) (*core.Grid, error) {
	return engineOrNative(s.Engine).GaussianSmooth(img)
}

func (s Smooth) bind(engine *algorithms.Engine, _ *core.Grid, _ int) Step {
	if s.Engine == nil {
		s.Engine = engine
	}
	return s
}

// Normalize stretches samples to [0,255]
type Normalize struct {
	UseMask bool
}

func (Normalize) Name() string { return "normalize" }

func (s Normalize) Apply(img, mask *core.Grid) (*core.Grid, error) {
	if !s.UseMask {
		mask = nil
	}
	return algorithms.Normalize(img, mask)
}

// MatchedFilter applies the rotated Gaussian matched filter
type MatchedFilter struct {
	Engine  *algorithms.Engine
	Params  algorithms.MatchedFilterParams
	UseMask bool
}

func (MatchedFilter) Name() string { return "matched-filter" }

func (s MatchedFilter) Apply(img, mask *core.Grid) (*core.Grid, error) {
	if !s.UseMask {
		mask = nil
	}
	return engineOrNative(s.Engine).MatchedFilter(img, mask, s.Params)
}

func (s MatchedFilter) bind(engine *algorithms.Engine, _ *core.Grid, _ int) Step {
	if s.Engine == nil {
		s.Engine = engine
	}
	return s
}

// elementStep is implemented by steps that take the engine and structuring
// element of the enhancement they are appended to
type elementStep interface {
	bind(engine *algorithms.Engine, kernel *core.Grid, radius int) Step
}

func engineOrNative(e *algorithms.Engine) *algorithms.Engine {
	if e == nil {
		return algorithms.NewEngine()
	}
	return e
}

// StepNames lists the step names ParseSteps accepts: the filters followed
// by the registered morphological operators
func StepNames() []string {
	return append([]string{"smooth", "normalize", "matched-filter"}, algorithms.Names()...)
}

// ParseSteps resolves post-processing step names. Morphological operators
// use the structuring element of the enhancement. Steps that honor a mask
// use it when useMask is set.
func ParseSteps(names []string, useMask bool) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		switch {
		case name == "smooth" || name == "gaussian":
			steps = append(steps, Smooth{})
		case name == "normalize":
			steps = append(steps, Normalize{UseMask: useMask})
		case name == "matched-filter":
			steps = append(steps, MatchedFilter{Params: algorithms.DefaultMatchedFilterParams(), UseMask: useMask})
		case algorithms.IsValidOperator(name):
			steps = append(steps, Operator{Operator: name, UseMask: useMask})
		default:
			return nil, fmt.Errorf("unknown pipeline step %q", name)
		}
	}
	return steps, nil
}

// Enhancement builds the pipeline scored during structuring element search:
// morphological enhancement followed by inversion so that dark vessels
// become bright foreground, then any post steps
func Enhancement(logger logrus.FieldLogger, engine *algorithms.Engine, kernel *core.Grid, radius int, mode Mode, maskMorphology bool, post ...Step) *Pipeline {
	p := New(logger,
		Morph{Engine: engine, Kernel: kernel, Radius: radius, Mode: mode, UseMask: maskMorphology},
		Invert{},
	)
	for _, s := range post {
		if es, ok := s.(elementStep); ok {
			s = es.bind(engine, kernel, radius)
		}
		p.AddStep(s)
	}
	return p
}
