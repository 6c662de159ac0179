// Labeled image dataset: images, ground truths and field-of-view masks
package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"strel-optimizer/internal/core"
)

// Sample is one image with its ground truth and optional mask
type Sample struct {
	ID          int
	Image       *core.Grid
	GroundTruth *core.Grid
	Mask        *core.Grid
}

// Dataset is an ordered, read-only collection of samples
type Dataset struct {
	Samples []Sample
}

// New pairs images with ground truths and masks by position. masks may be
// nil, otherwise every collection must have the same length and every
// triple the same dimensions.
func New(images, truths, masks []*core.Grid) (*Dataset, error) {
	if len(images) != len(truths) {
		return nil, fmt.Errorf("%d images but %d ground truths: %w", len(images), len(truths), core.ErrDatasetInconsistency)
	}
	if masks != nil && len(masks) != len(images) {
		return nil, fmt.Errorf("%d images but %d masks: %w", len(images), len(masks), core.ErrDatasetInconsistency)
	}

	ds := &Dataset{Samples: make([]Sample, len(images))}
	for i := range images {
		s := Sample{ID: i, Image: images[i], GroundTruth: truths[i]}
		if masks != nil {
			s.Mask = masks[i]
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		ds.Samples[i] = s
	}
	return ds, nil
}

// Validate checks that ground truth and mask align with the image
func (s Sample) Validate() error {
	if s.Image == nil {
		return fmt.Errorf("image is nil: %w", core.ErrDatasetInconsistency)
	}
	if err := core.CheckSameSize(s.Image, s.GroundTruth, "ground truth"); err != nil {
		return err
	}
	if s.Mask != nil {
		return core.CheckSameSize(s.Image, s.Mask, "mask")
	}
	return nil
}

func (d *Dataset) Len() int { return len(d.Samples) }

// Layout names the on-disk files of a dataset. Patterns are fmt templates
// taking the sample id.
type Layout struct {
	Root               string
	ImageDir           string
	GroundTruthDir     string
	MaskDir            string
	ImagePattern       string
	GroundTruthPattern string
	MaskPattern        string
	First              int
	Count              int
}

// DRIVELayout is the DRIVE training split converted to PGM: ids 21-40
func DRIVELayout(root string) Layout {
	return Layout{
		Root:               root,
		ImageDir:           "training",
		GroundTruthDir:     filepath.Join("training", "groundtruth"),
		MaskDir:            filepath.Join("training", "mask"),
		ImagePattern:       "%d_training.pgm",
		GroundTruthPattern: "%d_manual1.pgm",
		MaskPattern:        "%d_training_mask.pgm",
		First:              21,
		Count:              20,
	}
}

// ImagePath returns the image file of sample id
func (l Layout) ImagePath(id int) string {
	return filepath.Join(l.Root, l.ImageDir, fmt.Sprintf(l.ImagePattern, id))
}

// GroundTruthPath returns the ground-truth file of sample id
func (l Layout) GroundTruthPath(id int) string {
	return filepath.Join(l.Root, l.GroundTruthDir, fmt.Sprintf(l.GroundTruthPattern, id))
}

// MaskPath returns the mask file of sample id, or "" when masks are not
// part of the layout
func (l Layout) MaskPath(id int) string {
	if l.MaskPattern == "" {
		return ""
	}
	return filepath.Join(l.Root, l.MaskDir, fmt.Sprintf(l.MaskPattern, id))
}

// IDs returns the sample ids covered by the layout
func (l Layout) IDs() []int {
	ids := make([]int, 0, l.Count)
	for i := 0; i < l.Count; i++ {
		ids = append(ids, l.First+i)
	}
	return ids
}

// GridLoader reads a grid from a path
type GridLoader interface {
	LoadGrid(path string) (*core.Grid, error)
}

// Load reads every sample of the layout concurrently
func Load(ctx context.Context, loader GridLoader, layout Layout, workers int, logger logrus.FieldLogger) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if layout.Count <= 0 {
		return nil, fmt.Errorf("layout selects %d samples: %w", layout.Count, core.ErrDatasetInconsistency)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ids := layout.IDs()
	samples := make([]Sample, len(ids))
	errs := make([]error, len(ids))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				samples[idx], errs[idx] = loadSample(loader, layout, ids[idx])
			}
		}()
	}

	var ctxErr error
dispatch:
	for idx := range ids {
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

	logger.WithFields(logrus.Fields{
		"root":    layout.Root,
		"first":   layout.First,
		"samples": len(samples),
	}).Info("Dataset loaded")
	return &Dataset{Samples: samples}, nil
}

func loadSample(loader GridLoader, layout Layout, id int) (Sample, error) {
	s := Sample{ID: id}
	var err error

	if s.Image, err = loader.LoadGrid(layout.ImagePath(id)); err != nil {
		return s, fmt.Errorf("sample %d image: %w", id, err)
	}
	if s.GroundTruth, err = loader.LoadGrid(layout.GroundTruthPath(id)); err != nil {
		return s, fmt.Errorf("sample %d ground truth: %w", id, err)
	}
	if path := layout.MaskPath(id); path != "" {
		if s.Mask, err = loader.LoadGrid(path); err != nil {
			return s, fmt.Errorf("sample %d mask: %w", id, err)
		}
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("sample %d: %w", id, err)
	}
	return s, nil
}
