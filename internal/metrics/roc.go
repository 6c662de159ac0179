// ROC curve construction and trapezoidal AUC
package metrics

import (
	"fmt"
	"math"
	"sort"
)

// Ordering selects how curve points are arranged before integration
type Ordering int

const (
	// OrderROC sorts by ascending sensitivity and breaks ties by ascending
	// false-positive rate, which keeps the integration path monotone
	OrderROC Ordering = iota
	// OrderStableIndex sorts by ascending sensitivity and keeps ties in
	// threshold order. Sensitivity ties with differing specificity make the
	// path double back, so AUC can exceed 1 under this ordering.
	OrderStableIndex
)

// ParseOrdering maps "roc" and "stable-index" to an ordering. The default
// is OrderROC because the stable index order can push AUC above 1.
func ParseOrdering(name string) (Ordering, error) {
	switch name {
	case "", "roc":
		return OrderROC, nil
	case "stable-index", "stable":
		return OrderStableIndex, nil
	default:
		return OrderROC, fmt.Errorf("unknown curve ordering %q", name)
	}
}

// Curve is a 256-point ROC curve. Point i pairs Sensitivity[i] with
// Specificity[i] and Threshold[i] records the threshold it came from.
type Curve struct {
	Sensitivity [Thresholds]float64
	Specificity [Thresholds]float64
	Threshold   [Thresholds]int

	// Set when the dataset has no positive (negative) pixels; the affected
	// ratio is reported as 0 at every threshold
	UndefinedSensitivity bool
	UndefinedSpecificity bool
}

// NewCurve derives sensitivity and specificity for every threshold and
// orders the points for integration
func NewCurve(c *Confusion, order Ordering) *Curve {
	curve := &Curve{}
	for j := 0; j < Thresholds; j++ {
		sens, ok := ratio(c.TP[j], c.TP[j]+c.FN[j])
		if !ok {
			curve.UndefinedSensitivity = true
		}
		spec, ok := ratio(c.TN[j], c.TN[j]+c.FP[j])
		if !ok {
			curve.UndefinedSpecificity = true
		}
		curve.Sensitivity[j] = sens
		curve.Specificity[j] = spec
		curve.Threshold[j] = j
	}

	idx := make([]int, Thresholds)
	for i := range idx {
		idx[i] = i
	}
	switch order {
	case OrderStableIndex:
		sort.SliceStable(idx, func(a, b int) bool {
			return curve.Sensitivity[idx[a]] < curve.Sensitivity[idx[b]]
		})
	default:
		sort.SliceStable(idx, func(a, b int) bool {
			sa, sb := curve.Sensitivity[idx[a]], curve.Sensitivity[idx[b]]
			if sa != sb {
				return sa < sb
			}
			fa, fb := 1-curve.Specificity[idx[a]], 1-curve.Specificity[idx[b]]
			if fa != fb {
				return fa < fb
			}
			return idx[a] > idx[b]
		})
	}

	sorted := &Curve{
		UndefinedSensitivity: curve.UndefinedSensitivity,
		UndefinedSpecificity: curve.UndefinedSpecificity,
	}
	for i, j := range idx {
		sorted.Sensitivity[i] = curve.Sensitivity[j]
		sorted.Specificity[i] = curve.Specificity[j]
		sorted.Threshold[i] = j
	}
	return sorted
}

// Undefined reports whether either ratio was 0/0 somewhere
func (c *Curve) Undefined() bool {
	return c.UndefinedSensitivity || c.UndefinedSpecificity
}

// AUC integrates sensitivity over the false-positive rate with the
// trapezoidal rule
func (c *Curve) AUC() float64 {
	area := 0.0
	for i := 1; i < Thresholds; i++ {
		dx := math.Abs((1 - c.Specificity[i]) - (1 - c.Specificity[i-1]))
		area += dx * (c.Sensitivity[i] + c.Sensitivity[i-1]) / 2
	}
	return area
}

// Point returns the i-th ordered point as (false-positive rate, sensitivity)
func (c *Curve) Point(i int) (fpr, tpr float64) {
	return 1 - c.Specificity[i], c.Sensitivity[i]
}

func ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
