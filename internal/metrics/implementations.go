// Concrete segmentation metrics over a confusion matrix
package metrics

import (
	"errors"
	"fmt"
)

// ErrUndefinedMetric is returned when a ratio has a zero denominator
var ErrUndefinedMetric = errors.New("metric undefined")

func safeRatio(name string, num, den float64) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrUndefinedMetric)
	}
	return num / den, nil
}

// Dice implements the Dice coefficient (F1 score)
type Dice struct{}

// NewDice creates a new Dice metric
func NewDice() *Dice {
	return &Dice{}
}

func (d *Dice) Calculate(c Counts) (float64, error) {
	return safeRatio("dice", 2*c.TP, 2*c.TP+c.FP+c.FN)
}

func (d *Dice) GetName() string { return "Dice" }

func (d *Dice) GetDescription() string {
	return "Overlap between prediction and ground truth, 2TP/(2TP+FP+FN)"
}

func (d *Dice) GetRange() (float64, float64) { return 0, 1 }

func (d *Dice) IsHigherBetter() bool { return true }

// Jaccard implements intersection over union
type Jaccard struct{}

func NewJaccard() *Jaccard {
	return &Jaccard{}
}

func (j *Jaccard) Calculate(c Counts) (float64, error) {
	return safeRatio("jaccard", c.TP, c.TP+c.FP+c.FN)
}

func (j *Jaccard) GetName() string { return "Jaccard" }

func (j *Jaccard) GetDescription() string {
	return "Intersection over union, TP/(TP+FP+FN)"
}

func (j *Jaccard) GetRange() (float64, float64) { return 0, 1 }

func (j *Jaccard) IsHigherBetter() bool { return true }

// Accuracy is the fraction of correctly labeled pixels
type Accuracy struct{}

func NewAccuracy() *Accuracy {
	return &Accuracy{}
}

func (a *Accuracy) Calculate(c Counts) (float64, error) {
	return safeRatio("accuracy", c.TP+c.TN, c.Total())
}

func (a *Accuracy) GetName() string { return "Accuracy" }

func (a *Accuracy) GetDescription() string {
	return "Fraction of pixels labeled correctly"
}

func (a *Accuracy) GetRange() (float64, float64) { return 0, 1 }

func (a *Accuracy) IsHigherBetter() bool { return true }

// Recall is the true positive rate (sensitivity)
type Recall struct{}

func NewRecall() *Recall {
	return &Recall{}
}

func (r *Recall) Calculate(c Counts) (float64, error) {
	return safeRatio("recall", c.TP, c.TP+c.FN)
}

func (r *Recall) GetName() string { return "Recall" }

func (r *Recall) GetDescription() string {
	return "Fraction of foreground pixels detected, TP/(TP+FN)"
}

func (r *Recall) GetRange() (float64, float64) { return 0, 1 }

func (r *Recall) IsHigherBetter() bool { return true }

// Precision is the positive predictive value
type Precision struct{}

func NewPrecision() *Precision {
	return &Precision{}
}

func (p *Precision) Calculate(c Counts) (float64, error) {
	return safeRatio("precision", c.TP, c.TP+c.FP)
}

func (p *Precision) GetName() string { return "Precision" }

func (p *Precision) GetDescription() string {
	return "Fraction of detections that are foreground, TP/(TP+FP)"
}

func (p *Precision) GetRange() (float64, float64) { return 0, 1 }

func (p *Precision) IsHigherBetter() bool { return true }

// Specificity is the true negative rate
type Specificity struct{}

func NewSpecificity() *Specificity {
	return &Specificity{}
}

func (s *Specificity) Calculate(c Counts) (float64, error) {
	return safeRatio("specificity", c.TN, c.TN+c.FP)
}

func (s *Specificity) GetName() string { return "Specificity" }

func (s *Specificity) GetDescription() string {
	return "Fraction of background pixels rejected, TN/(TN+FP)"
}

func (s *Specificity) GetRange() (float64, float64) { return 0, 1 }

func (s *Specificity) IsHigherBetter() bool { return true }
