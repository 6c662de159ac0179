// Error taxonomy shared by the engine, factory, evaluator and optimizer
package core

import "errors"

var (
	// ErrUnsupportedShape is returned when a structuring element cannot be built
	ErrUnsupportedShape = errors.New("unsupported structuring element")

	// ErrInvalidFootprint is returned when a kernel is not (2r+1)x(2r+1)
	ErrInvalidFootprint = errors.New("invalid kernel footprint")

	// ErrDimensionMismatch is returned when grids that must align do not
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDatasetInconsistency is returned when image, ground-truth and mask
	// collections do not line up
	ErrDatasetInconsistency = errors.New("dataset inconsistency")
)
