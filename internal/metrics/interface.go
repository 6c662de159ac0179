// Segmentation metric registry and curve summaries
package metrics

import (
	"fmt"
	"sort"

	"strel-optimizer/internal/algorithms"
)

// Metric defines a score computed from a single-threshold confusion matrix
type Metric interface {
	// Calculate computes the metric value
	Calculate(c Counts) (float64, error)

	// GetName returns the metric name
	GetName() string

	// GetDescription returns the metric description
	GetDescription() string

	// GetRange returns the value range (min, max)
	GetRange() (float64, float64)

	// IsHigherBetter returns true if higher values indicate better agreement
	IsHigherBetter() bool
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
	order   Ordering
}

// NewEvaluator creates an evaluator with the default segmentation metrics
func NewEvaluator(order Ordering) *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
		order:   order,
	}
	e.RegisterDefaultMetrics()
	return e
}

// RegisterDefaultMetrics registers all default metrics
func (e *Evaluator) RegisterDefaultMetrics() {
	e.Register("dice", NewDice())
	e.Register("jaccard", NewJaccard())
	e.Register("accuracy", NewAccuracy())
	e.Register("recall", NewRecall())
	e.Register("precision", NewPrecision())
	e.Register("specificity", NewSpecificity())
}

// Register registers a metric
func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names returns the registered metric names in sorted order
func (e *Evaluator) Names() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate calculates a specific metric
func (e *Evaluator) Calculate(name string, c Counts) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}
	return metric.Calculate(c)
}

// CalculateAll calculates all registered metrics, omitting undefined ones
func (e *Evaluator) CalculateAll(c Counts) map[string]float64 {
	results := make(map[string]float64)
	for name, metric := range e.metrics {
		if value, err := metric.Calculate(c); err == nil {
			results[name] = value
		}
	}
	return results
}

// Curve builds the ROC curve with the evaluator's ordering
func (e *Evaluator) Curve(c *Confusion) *Curve {
	return NewCurve(c, e.order)
}

// Summary condenses an evaluation into an AUC and an operating point
type Summary struct {
	AUC                  float64            `json:"auc" yaml:"auc"`
	BestThreshold        int                `json:"best_threshold" yaml:"best_threshold"`
	YoudenJ              float64            `json:"youden_j" yaml:"youden_j"`
	Metrics              map[string]float64 `json:"metrics" yaml:"metrics"`
	OtsuThreshold        int                `json:"otsu_threshold" yaml:"otsu_threshold"`
	OtsuMetrics          map[string]float64 `json:"otsu_metrics" yaml:"otsu_metrics"`
	UndefinedSensitivity bool               `json:"undefined_sensitivity,omitempty" yaml:"undefined_sensitivity,omitempty"`
	UndefinedSpecificity bool               `json:"undefined_specificity,omitempty" yaml:"undefined_specificity,omitempty"`
}

// Summarize computes the AUC and the metrics at the threshold maximizing
// Youden's J (sensitivity + specificity - 1), ties keeping the lowest
// threshold. It also reports the metrics at the Otsu threshold of the
// counted samples.
func (e *Evaluator) Summarize(c *Confusion) Summary {
	curve := e.Curve(c)

	best, bestJ := 0, -1.0
	for j := 0; j < Thresholds; j++ {
		counts := c.At(j)
		sens, _ := ratio(counts.TP, counts.TP+counts.FN)
		spec, _ := ratio(counts.TN, counts.TN+counts.FP)
		if jv := sens + spec - 1; jv > bestJ {
			best, bestJ = j, jv
		}
	}

	otsu := algorithms.OtsuThreshold(c.Histogram())

	return Summary{
		AUC:                  curve.AUC(),
		BestThreshold:        best,
		YoudenJ:              bestJ,
		Metrics:              e.CalculateAll(c.At(best)),
		OtsuThreshold:        otsu,
		OtsuMetrics:          e.CalculateAll(c.At(min(otsu+1, Thresholds-1))),
		UndefinedSensitivity: curve.UndefinedSensitivity,
		UndefinedSpecificity: curve.UndefinedSpecificity,
	}
}

// MetricInfo provides metadata about a metric
type MetricInfo struct {
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	Range        [2]float64 `yaml:"range,flow" json:"range"`
	HigherBetter bool       `yaml:"higher_better" json:"higher_better"`
}

// GetMetricInfo returns information about all metrics
func (e *Evaluator) GetMetricInfo() map[string]MetricInfo {
	info := make(map[string]MetricInfo)
	for name, metric := range e.metrics {
		lo, hi := metric.GetRange()
		info[name] = MetricInfo{
			Name:         metric.GetName(),
			Description:  metric.GetDescription(),
			Range:        [2]float64{lo, hi},
			HigherBetter: metric.IsHigherBetter(),
		}
	}
	return info
}
