// Core grid data structure backing images, masks and structuring elements
package core

import (
	"fmt"
	"strings"
)

// Grid is a dense rows x cols matrix of integer samples stored row-major in
// a single owned buffer. Samples are conventionally in [0,255] but
// intermediate results may leave that range.
type Grid struct {
	rows int
	cols int
	pix  []int
}

// NewGrid creates a zero-filled grid
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("core: negative grid size %dx%d", rows, cols))
	}
	return &Grid{rows: rows, cols: cols, pix: make([]int, rows*cols)}
}

// NewFilledGrid creates a grid with every sample set to value
func NewFilledGrid(rows, cols, value int) *Grid {
	g := NewGrid(rows, cols)
	g.Fill(value)
	return g
}

// GridFromRows builds a grid from a slice of equally sized rows
func GridFromRows(data [][]int) (*Grid, error) {
	if len(data) == 0 {
		return NewGrid(0, 0), nil
	}
	cols := len(data[0])
	g := NewGrid(len(data), cols)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), cols, ErrDimensionMismatch)
		}
		copy(g.pix[i*cols:(i+1)*cols], row)
	}
	return g, nil
}

// MustGridFromRows is GridFromRows for literals known to be rectangular
func MustGridFromRows(data [][]int) *Grid {
	g, err := GridFromRows(data)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) Rows() int { return g.rows }

func (g *Grid) Cols() int { return g.cols }

// Len returns the number of samples
func (g *Grid) Len() int { return len(g.pix) }

// At returns the sample at row i, column j
func (g *Grid) At(i, j int) int {
	return g.pix[i*g.cols+j]
}

// Set stores v at row i, column j
func (g *Grid) Set(i, j, v int) {
	g.pix[i*g.cols+j] = v
}

// InBounds reports whether (i, j) addresses a sample
func (g *Grid) InBounds(i, j int) bool {
	return i >= 0 && i < g.rows && j >= 0 && j < g.cols
}

// Pix exposes the row-major buffer. Callers must not retain it past the
// lifetime of the grid.
func (g *Grid) Pix() []int { return g.pix }

// Fill sets every sample to v
func (g *Grid) Fill(v int) {
	for k := range g.pix {
		g.pix[k] = v
	}
}

// Clone returns a deep copy
func (g *Grid) Clone() *Grid {
	out := &Grid{rows: g.rows, cols: g.cols, pix: make([]int, len(g.pix))}
	copy(out.pix, g.pix)
	return out
}

// SameSize reports whether both grids have identical dimensions
func (g *Grid) SameSize(o *Grid) bool {
	return o != nil && g.rows == o.rows && g.cols == o.cols
}

// Equal reports whether both grids have identical dimensions and samples
func (g *Grid) Equal(o *Grid) bool {
	if !g.SameSize(o) {
		return false
	}
	for k, v := range g.pix {
		if o.pix[k] != v {
			return false
		}
	}
	return true
}

// Clamp limits every sample to [lo, hi] in place
func (g *Grid) Clamp(lo, hi int) {
	for k, v := range g.pix {
		switch {
		case v < lo:
			g.pix[k] = lo
		case v > hi:
			g.pix[k] = hi
		}
	}
}

// MinMax returns the extreme sample values. Samples where mask is zero are
// ignored when mask is non-nil. ok is false if no sample qualified.
func (g *Grid) MinMax(mask *Grid) (lo, hi int, ok bool) {
	for k, v := range g.pix {
		if mask != nil && mask.pix[k] == 0 {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}

// CheckSameSize returns ErrDimensionMismatch naming both shapes when the
// grids differ in size
func CheckSameSize(a, b *Grid, what string) error {
	if a.SameSize(b) {
		return nil
	}
	if b == nil {
		return fmt.Errorf("%s is nil: %w", what, ErrDimensionMismatch)
	}
	return fmt.Errorf("%s is %dx%d, want %dx%d: %w", what, b.rows, b.cols, a.rows, a.cols, ErrDimensionMismatch)
}

// String renders the grid one row per line
func (g *Grid) String() string {
	var b strings.Builder
	for i := 0; i < g.rows; i++ {
		for j := 0; j < g.cols; j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", g.At(i, j))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
