// OpenCV sweep backend for binary structuring elements
package opencv

import (
	"gocv.io/x/gocv"

	"strel-optimizer/internal/algorithms"
	"strel-optimizer/internal/core"
)

// Backend runs binary-kernel sweeps with OpenCV morphology. Requests it
// cannot reproduce exactly (weighted kernels, kernels without a center
// cell, samples outside 0..255) are delegated to the native sweep.
type Backend struct {
	fallback algorithms.Backend
}

// NewBackend creates the OpenCV backend
func NewBackend() *Backend {
	return &Backend{fallback: algorithms.NativeBackend{}}
}

func (b *Backend) Name() string { return "opencv" }

// Supports reports whether OpenCV serves req directly
func (b *Backend) Supports(req algorithms.SweepRequest) bool {
	side := 2*req.Radius + 1
	kpix := req.Kernel.Pix()
	if kpix[req.Radius*side+req.Radius] != 1 {
		return false
	}
	for _, w := range kpix {
		if w != 0 && w != 1 {
			return false
		}
	}
	lo, hi, _ := req.Image.MinMax(nil)
	return lo >= 0 && hi <= 255
}

// Sweep implements algorithms.Backend
func (b *Backend) Sweep(req algorithms.SweepRequest) (*core.Grid, error) {
	if !b.Supports(req) {
		return b.fallback.Sweep(req)
	}

	src := ToMat(req.Image)
	defer src.Close()
	kernel := ToMat(req.Kernel)
	defer kernel.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	switch req.Mode {
	case algorithms.ModeMax:
		gocv.Dilate(src, &dst, kernel)
	case algorithms.ModeMin:
		gocv.Erode(src, &dst, kernel)
	default:
		gocv.MorphologyEx(src, &dst, gocv.MorphGradient, kernel)
	}

	out := FromMat(dst)
	if req.Mask != nil {
		applyMask(out, req)
	}
	return out, nil
}

// applyMask rewrites excluded pixels the way the native sweep fills them
func applyMask(out *core.Grid, req algorithms.SweepRequest) {
	init := req.Mode.Init()
	dst, src, mask := out.Pix(), req.Image.Pix(), req.Mask.Pix()
	for idx, m := range mask {
		if m != 0 {
			continue
		}
		if req.Policy == algorithms.MaskPassThrough {
			dst[idx] = src[idx]
		} else {
			dst[idx] = init
		}
	}
}

// ToMat copies a grid into an 8-bit single-channel Mat. Values are
// truncated to their low byte.
func ToMat(g *core.Grid) gocv.Mat {
	m := gocv.NewMatWithSize(g.Rows(), g.Cols(), gocv.MatTypeCV8U)
	for i := 0; i < g.Rows(); i++ {
		for j := 0; j < g.Cols(); j++ {
			m.SetUCharAt(i, j, uint8(g.At(i, j)))
		}
	}
	return m
}

// FromMat copies an 8-bit single-channel Mat into a grid
func FromMat(m gocv.Mat) *core.Grid {
	rows, cols := m.Rows(), m.Cols()
	g := core.NewGrid(rows, cols)
	data := m.ToBytes()
	pix := g.Pix()
	for k := range pix {
		pix[k] = int(data[k])
	}
	return g
}
