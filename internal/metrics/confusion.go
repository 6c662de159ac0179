// Per-threshold confusion counting over a labeled dataset
package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"strel-optimizer/internal/core"
)

// Thresholds is the number of intensity thresholds swept
const Thresholds = 256

// Entry is one evaluated image with its ground truth and optional mask
type Entry struct {
	Enhanced    *core.Grid
	GroundTruth *core.Grid
	Mask        *core.Grid
}

// Validate checks that every present grid matches the enhanced image
func (e Entry) Validate() error {
	if e.Enhanced == nil {
		return fmt.Errorf("enhanced image is nil: %w", core.ErrDimensionMismatch)
	}
	if err := core.CheckSameSize(e.Enhanced, e.GroundTruth, "ground truth"); err != nil {
		return err
	}
	if e.Mask != nil {
		return core.CheckSameSize(e.Enhanced, e.Mask, "mask")
	}
	return nil
}

// Confusion holds true/false positive/negative counts for each threshold j,
// where a pixel is predicted foreground iff its enhanced value is >= j
type Confusion struct {
	TP [Thresholds]float64
	TN [Thresholds]float64
	FP [Thresholds]float64
	FN [Thresholds]float64
}

// Counts is the confusion matrix at a single threshold
type Counts struct {
	TP, TN, FP, FN float64
}

// Total returns the number of counted pixels
func (c Counts) Total() float64 { return c.TP + c.TN + c.FP + c.FN }

// At returns the counts for threshold j
func (c *Confusion) At(j int) Counts {
	return Counts{TP: c.TP[j], TN: c.TN[j], FP: c.FP[j], FN: c.FN[j]}
}

// Merge adds o's counters into c
func (c *Confusion) Merge(o *Confusion) {
	floats.Add(c.TP[:], o.TP[:])
	floats.Add(c.TN[:], o.TN[:])
	floats.Add(c.FP[:], o.FP[:])
	floats.Add(c.FN[:], o.FN[:])
}

// Total returns TP+TN+FP+FN at threshold j
func (c *Confusion) Total(j int) float64 {
	return c.TP[j] + c.TN[j] + c.FP[j] + c.FN[j]
}

// Histogram recovers the per-level sample counts from the cumulative
// counters. Negative samples are not represented.
func (c *Confusion) Histogram() [Thresholds]float64 {
	var hist [Thresholds]float64
	for j := 0; j < Thresholds; j++ {
		hist[j] = c.TP[j] + c.FP[j]
		if j+1 < Thresholds {
			hist[j] -= c.TP[j+1] + c.FP[j+1]
		}
	}
	return hist
}

// Add counts one entry. Pixels where the mask is zero are skipped when
// useMask is set and the entry has a mask.
func (c *Confusion) Add(e Entry, useMask bool) error {
	if err := e.Validate(); err != nil {
		return err
	}

	// level histograms split by truth; level 0 also holds negative values,
	// which are never >= j, tracked separately in below*
	var pos, neg [Thresholds]float64
	var belowPos, belowNeg float64

	enhanced := e.Enhanced.Pix()
	truth := e.GroundTruth.Pix()
	var mask []int
	if useMask && e.Mask != nil {
		mask = e.Mask.Pix()
	}

	for k, v := range enhanced {
		if mask != nil && mask[k] == 0 {
			continue
		}
		positive := truth[k] != 0
		switch {
		case v < 0:
			if positive {
				belowPos++
			} else {
				belowNeg++
			}
			continue
		case v > Thresholds-1:
			v = Thresholds - 1
		}
		if positive {
			pos[v]++
		} else {
			neg[v]++
		}
	}

	// walk thresholds from the top so atOrAbove* holds the count of
	// values >= j
	var atOrAbovePos, atOrAboveNeg float64
	totalPos := floats.Sum(pos[:]) + belowPos
	totalNeg := floats.Sum(neg[:]) + belowNeg
	for j := Thresholds - 1; j >= 0; j-- {
		atOrAbovePos += pos[j]
		atOrAboveNeg += neg[j]
		c.TP[j] += atOrAbovePos
		c.FN[j] += totalPos - atOrAbovePos
		c.FP[j] += atOrAboveNeg
		c.TN[j] += totalNeg - atOrAboveNeg
	}
	return nil
}

// ConfusionSweep counts every entry into a fresh accumulator. Entries are
// sharded across workers with private accumulators that are summed at the
// end, so the result does not depend on the worker count.
func ConfusionSweep(ctx context.Context, entries []Entry, useMask bool, workers int) (*Confusion, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(entries) {
		workers = len(entries)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := &Confusion{}
	if len(entries) == 0 {
		return total, nil
	}

	partials := make([]*Confusion, workers)
	errs := make([]error, len(entries))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		partials[w] = &Confusion{}
		wg.Add(1)
		go func(acc *Confusion) {
			defer wg.Done()
			for idx := range work {
				if err := acc.Add(entries[idx], useMask); err != nil {
					errs[idx] = fmt.Errorf("entry %d: %w", idx, err)
				}
			}
		}(partials[w])
	}

	var ctxErr error
dispatch:
	for idx := range entries {
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
	for _, p := range partials {
		total.Merge(p)
	}
	return total, nil
}
