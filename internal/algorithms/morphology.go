// Flat-kernel morphological sweep and the composite operators built on it
package algorithms

import (
	"fmt"

	"strel-optimizer/internal/core"
)

// Mode selects the reduction performed by a sweep
type Mode int

const (
	// ModeMax keeps the maximum weighted sample (dilation)
	ModeMax Mode = iota
	// ModeMin keeps the minimum weighted sample (erosion)
	ModeMin
	// ModeRange keeps max-min of the weighted samples (gradient)
	ModeRange
)

func (m Mode) String() string {
	switch m {
	case ModeMax:
		return "max"
	case ModeMin:
		return "min"
	case ModeRange:
		return "range"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Init returns the value an output pixel starts from, and keeps when no
// kernel cell contributes to it
func (m Mode) Init() int {
	if m == ModeMax {
		return 0
	}
	return 255
}

// MaskPolicy decides what mask-excluded output pixels contain
type MaskPolicy int

const (
	// MaskSentinel leaves excluded pixels at the mode's initialization value
	MaskSentinel MaskPolicy = iota
	// MaskPassThrough copies the source pixel into excluded positions
	MaskPassThrough
)

// ParseMaskPolicy maps "sentinel" and "passthrough" to a policy
func ParseMaskPolicy(name string) (MaskPolicy, error) {
	switch name {
	case "", "sentinel":
		return MaskSentinel, nil
	case "passthrough", "pass-through":
		return MaskPassThrough, nil
	default:
		return MaskSentinel, fmt.Errorf("unknown mask policy %q", name)
	}
}

// SweepRequest bundles the inputs of one sweep
type SweepRequest struct {
	Image  *core.Grid
	Kernel *core.Grid
	Radius int
	Mode   Mode
	Mask   *core.Grid
	Policy MaskPolicy
}

// Validate checks the kernel footprint and mask alignment
func (r SweepRequest) Validate() error {
	side := 2*r.Radius + 1
	if r.Radius < 0 || r.Kernel == nil || r.Kernel.Rows() != side || r.Kernel.Cols() != side {
		rows, cols := 0, 0
		if r.Kernel != nil {
			rows, cols = r.Kernel.Rows(), r.Kernel.Cols()
		}
		return fmt.Errorf("kernel %dx%d for radius %d: %w", rows, cols, r.Radius, core.ErrInvalidFootprint)
	}
	if r.Image == nil {
		return fmt.Errorf("image is nil: %w", core.ErrDimensionMismatch)
	}
	if r.Mask != nil {
		return core.CheckSameSize(r.Image, r.Mask, "mask")
	}
	return nil
}

// Backend executes sweeps. Implementations must produce exactly the output
// of the native sweep.
type Backend interface {
	Name() string
	Sweep(req SweepRequest) (*core.Grid, error)
}

// NativeBackend is the pure Go sweep
type NativeBackend struct{}

func (NativeBackend) Name() string { return "native" }

// Sweep runs the request without validating it
func (NativeBackend) Sweep(req SweepRequest) (*core.Grid, error) {
	return sweep(req), nil
}

func sweep(req SweepRequest) *core.Grid {
	img, kernel, mask, r := req.Image, req.Kernel, req.Mask, req.Radius
	rows, cols := img.Rows(), img.Cols()
	side := 2*r + 1
	out := core.NewFilledGrid(rows, cols, req.Mode.Init())

	src := img.Pix()
	kpix := kernel.Pix()
	dst := out.Pix()

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			if mask != nil && mask.Pix()[idx] == 0 {
				if req.Policy == MaskPassThrough {
					dst[idx] = src[idx]
				}
				continue
			}

			value := dst[idx]
			// RANGE bounds start at the first weighted sample, not at 0/255
			hi, lo := 0, 0
			seen := false
			for k := 0; k < side; k++ {
				y := i + k - r
				if y < 0 || y >= rows {
					continue
				}
				for l := 0; l < side; l++ {
					w := kpix[k*side+l]
					if w == 0 {
						continue
					}
					x := j + l - r
					if x < 0 || x >= cols {
						continue
					}
					v := src[y*cols+x] * w

					switch req.Mode {
					case ModeMax:
						if v > value {
							value = v
						}
					case ModeMin:
						if v < value {
							value = v
						}
					case ModeRange:
						if !seen {
							hi, lo, seen = v, v, true
						} else if v > hi {
							hi = v
						} else if v < lo {
							lo = v
						}
						value = hi - lo
					}
				}
			}
			dst[idx] = value
		}
	}
	return out
}

// Engine applies morphological operators through a backend
type Engine struct {
	backend Backend
	policy  MaskPolicy
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithBackend replaces the native backend
func WithBackend(b Backend) EngineOption {
	return func(e *Engine) {
		if b != nil {
			e.backend = b
		}
	}
}

// WithMaskPolicy sets how mask-excluded pixels are filled
func WithMaskPolicy(p MaskPolicy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// NewEngine creates an engine using the native backend and sentinel masking
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{backend: NativeBackend{}, policy: MaskSentinel}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BackendName reports which backend serves sweeps
func (e *Engine) BackendName() string { return e.backend.Name() }

// Sweep slides kernel over img and reduces the weighted samples under its
// footprint according to mode. Out-of-bounds samples and zero kernel cells
// never contribute. mask may be nil.
func (e *Engine) Sweep(img, kernel *core.Grid, radius int, mode Mode, mask *core.Grid) (*core.Grid, error) {
	req := SweepRequest{Image: img, Kernel: kernel, Radius: radius, Mode: mode, Mask: mask, Policy: e.policy}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.backend.Sweep(req)
}

// Erode is a MIN sweep
func (e *Engine) Erode(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	return e.Sweep(img, kernel, radius, ModeMin, mask)
}

// Dilate is a MAX sweep
func (e *Engine) Dilate(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	return e.Sweep(img, kernel, radius, ModeMax, mask)
}

// Gradient is a RANGE sweep
func (e *Engine) Gradient(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	return e.Sweep(img, kernel, radius, ModeRange, mask)
}

// Open dilates the erosion of img
func (e *Engine) Open(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	eroded, err := e.Erode(img, kernel, radius, mask)
	if err != nil {
		return nil, err
	}
	return e.Dilate(eroded, kernel, radius, mask)
}

// Close erodes the dilation of img
func (e *Engine) Close(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	dilated, err := e.Dilate(img, kernel, radius, mask)
	if err != nil {
		return nil, err
	}
	return e.Erode(dilated, kernel, radius, mask)
}

// TopHat returns max(img - open(img), 0)
func (e *Engine) TopHat(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	opened, err := e.Open(img, kernel, radius, mask)
	if err != nil {
		return nil, err
	}
	return Subtract(img, opened)
}

// BlackHat returns max(close(img) - img, 0)
func (e *Engine) BlackHat(img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	closed, err := e.Close(img, kernel, radius, mask)
	if err != nil {
		return nil, err
	}
	return Subtract(closed, img)
}

// Subtract returns max(a-b, 0) element-wise
func Subtract(a, b *core.Grid) (*core.Grid, error) {
	if err := core.CheckSameSize(a, b, "subtrahend"); err != nil {
		return nil, err
	}
	out := a.Clone()
	bp := b.Pix()
	for k, v := range out.Pix() {
		d := v - bp[k]
		if d < 0 {
			d = 0
		}
		out.Pix()[k] = d
	}
	return out, nil
}

// Add returns min(a+b, 255) element-wise
func Add(a, b *core.Grid) (*core.Grid, error) {
	if err := core.CheckSameSize(a, b, "addend"); err != nil {
		return nil, err
	}
	out := a.Clone()
	bp := b.Pix()
	for k, v := range out.Pix() {
		s := v + bp[k]
		if s > 255 {
			s = 255
		}
		out.Pix()[k] = s
	}
	return out, nil
}

// Invert returns 255-v for every sample. With a mask, excluded samples are
// set to 0.
func Invert(img, mask *core.Grid) (*core.Grid, error) {
	if mask != nil {
		if err := core.CheckSameSize(img, mask, "mask"); err != nil {
			return nil, err
		}
	}
	out := img.Clone()
	for k, v := range out.Pix() {
		if mask != nil && mask.Pix()[k] == 0 {
			out.Pix()[k] = 0
			continue
		}
		out.Pix()[k] = 255 - v
	}
	return out, nil
}
