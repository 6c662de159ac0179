// Layered run configuration: defaults, YAML file, environment and flags
package config

import (
	"errors"
	"fmt"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/dataset"
	"strel-optimizer/internal/imageio"
	"strel-optimizer/internal/metrics"
	"strel-optimizer/internal/optimizer"
	"strel-optimizer/internal/pipeline"
	"strel-optimizer/internal/strel"
)

// Backend names
const (
	BackendNative = "native"
	BackendOpenCV = "opencv"
)

// Config is the resolved configuration of a run
type Config struct {
	Dataset    DatasetConfig    `mapstructure:"dataset" yaml:"dataset"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Evaluation EvaluationConfig `mapstructure:"evaluation" yaml:"evaluation"`
	Enhance    EnhanceConfig    `mapstructure:"enhance" yaml:"enhance"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer" yaml:"optimizer"`
	Sweep      SweepConfig      `mapstructure:"sweep" yaml:"sweep"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// DatasetConfig locates the image, ground truth and mask files
type DatasetConfig struct {
	Root               string `mapstructure:"root" yaml:"root"`
	ImageDir           string `mapstructure:"image_dir" yaml:"image_dir"`
	GroundTruthDir     string `mapstructure:"groundtruth_dir" yaml:"groundtruth_dir"`
	MaskDir            string `mapstructure:"mask_dir" yaml:"mask_dir"`
	ImagePattern       string `mapstructure:"image_pattern" yaml:"image_pattern"`
	GroundTruthPattern string `mapstructure:"groundtruth_pattern" yaml:"groundtruth_pattern"`
	MaskPattern        string `mapstructure:"mask_pattern" yaml:"mask_pattern"`
	First              int    `mapstructure:"first" yaml:"first"`
	Count              int    `mapstructure:"count" yaml:"count"`
	Channel            string `mapstructure:"channel" yaml:"channel"`
}

// EngineConfig selects the morphology backend
type EngineConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	MaskPolicy string `mapstructure:"mask_policy" yaml:"mask_policy"`
}

// EvaluationConfig controls threshold sweeping and curve building
type EvaluationConfig struct {
	UseMask    bool   `mapstructure:"use_mask" yaml:"use_mask"`
	Workers    int    `mapstructure:"workers" yaml:"workers"`
	CurveOrder string `mapstructure:"curve_order" yaml:"curve_order"`
}

// EnhanceConfig selects the enhancement formula
type EnhanceConfig struct {
	Mode           string   `mapstructure:"mode" yaml:"mode"`
	MaskMorphology bool     `mapstructure:"mask_morphology" yaml:"mask_morphology"`
	PostSteps      []string `mapstructure:"post_steps" yaml:"post_steps"`
}

// OptimizerConfig extends the search parameters with the starting shape
type OptimizerConfig struct {
	optimizer.Config `mapstructure:",squash" yaml:",inline"`
	InitialShape     string `mapstructure:"initial_shape" yaml:"initial_shape"`
}

// SweepConfig lists the shapes and radii compared by the sweep command
type SweepConfig struct {
	Shapes []string `mapstructure:"shapes" yaml:"shapes"`
	Radii  []int    `mapstructure:"radii" yaml:"radii"`
}

// OutputConfig controls where results are written
type OutputConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Previews bool   `mapstructure:"previews" yaml:"previews"`
	Plots    bool   `mapstructure:"plots" yaml:"plots"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Layout converts the dataset section into a file layout
func (c *Config) Layout() dataset.Layout {
	d := c.Dataset
	return dataset.Layout{
		Root:               d.Root,
		ImageDir:           d.ImageDir,
		GroundTruthDir:     d.GroundTruthDir,
		MaskDir:            d.MaskDir,
		ImagePattern:       d.ImagePattern,
		GroundTruthPattern: d.GroundTruthPattern,
		MaskPattern:        d.MaskPattern,
		First:              d.First,
		Count:              d.Count,
	}
}

// Channel returns the configured color reduction
func (c *Config) Channel() imageio.Channel {
	ch, _ := imageio.ParseChannel(c.Dataset.Channel)
	return ch
}

// MaskPolicy returns the configured mask policy
func (c *Config) MaskPolicy() algorithms.MaskPolicy {
	p, _ := algorithms.ParseMaskPolicy(c.Engine.MaskPolicy)
	return p
}

// CurveOrder returns the configured ROC point ordering
func (c *Config) CurveOrder() metrics.Ordering {
	o, _ := metrics.ParseOrdering(c.Evaluation.CurveOrder)
	return o
}

// EnhanceMode returns the configured enhancement formula
func (c *Config) EnhanceMode() pipeline.Mode {
	m, _ := pipeline.ParseMode(c.Enhance.Mode)
	return m
}

// PostSteps returns the steps run after enhancement
func (c *Config) PostSteps() []pipeline.Step {
	steps, _ := pipeline.ParseSteps(c.Enhance.PostSteps, c.Evaluation.UseMask)
	return steps
}

// InitialShape returns the shape the optimizer starts from
func (c *Config) InitialShape() strel.Shape {
	s, _ := strel.ParseShape(c.Optimizer.InitialShape)
	return s
}

// SweepShapes returns the parsed sweep shapes
func (c *Config) SweepShapes() []strel.Shape {
	shapes := make([]strel.Shape, 0, len(c.Sweep.Shapes))
	for _, name := range c.Sweep.Shapes {
		if s, err := strel.ParseShape(name); err == nil {
			shapes = append(shapes, s)
		}
	}
	return shapes
}

// Validate checks every section and reports all problems at once
func Validate(c *Config) error {
	var errs []error

	if c.Dataset.Root == "" {
		errs = append(errs, errors.New("dataset.root is required"))
	}
	if c.Dataset.ImagePattern == "" || c.Dataset.GroundTruthPattern == "" {
		errs = append(errs, errors.New("dataset image and groundtruth patterns are required"))
	}
	if c.Dataset.Count < 1 {
		errs = append(errs, fmt.Errorf("dataset.count must be positive, got %d", c.Dataset.Count))
	}
	if _, err := imageio.ParseChannel(c.Dataset.Channel); err != nil {
		errs = append(errs, fmt.Errorf("dataset.channel: %w", err))
	}

	switch c.Engine.Backend {
	case BackendNative, BackendOpenCV:
	default:
		errs = append(errs, fmt.Errorf("engine.backend must be %q or %q, got %q", BackendNative, BackendOpenCV, c.Engine.Backend))
	}
	if _, err := algorithms.ParseMaskPolicy(c.Engine.MaskPolicy); err != nil {
		errs = append(errs, fmt.Errorf("engine.mask_policy: %w", err))
	}

	if c.Evaluation.Workers < 0 {
		errs = append(errs, fmt.Errorf("evaluation.workers must be non-negative, got %d", c.Evaluation.Workers))
	}
	if _, err := metrics.ParseOrdering(c.Evaluation.CurveOrder); err != nil {
		errs = append(errs, fmt.Errorf("evaluation.curve_order: %w", err))
	}
	if _, err := pipeline.ParseMode(c.Enhance.Mode); err != nil {
		errs = append(errs, fmt.Errorf("enhance.mode: %w", err))
	}
	if _, err := pipeline.ParseSteps(c.Enhance.PostSteps, false); err != nil {
		errs = append(errs, fmt.Errorf("enhance.post_steps: %w", err))
	}

	if err := c.Optimizer.Config.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("optimizer: %w", err))
	}
	if _, err := strel.ParseShape(c.Optimizer.InitialShape); err != nil {
		errs = append(errs, fmt.Errorf("optimizer.initial_shape: %w", err))
	}

	if len(c.Sweep.Shapes) == 0 || len(c.Sweep.Radii) == 0 {
		errs = append(errs, errors.New("sweep needs at least one shape and one radius"))
	}
	for _, name := range c.Sweep.Shapes {
		if _, err := strel.ParseShape(name); err != nil {
			errs = append(errs, fmt.Errorf("sweep.shapes: %w", err))
		}
	}
	for _, r := range c.Sweep.Radii {
		if r < 1 {
			errs = append(errs, fmt.Errorf("sweep.radii must be positive, got %d", r))
		}
	}

	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}

	return errors.Join(errs...)
}
