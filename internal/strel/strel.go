// Structuring element construction and random mutation
package strel

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"strel-optimizer/internal/core"
)

// Shape names a structuring element family
type Shape string

const (
	ShapeSquare  Shape = "square"
	ShapeCross   Shape = "cross"
	ShapeDisk    Shape = "disk"
	ShapeLine    Shape = "line"
	ShapeDiamond Shape = "diamond"
)

// Shapes lists every buildable shape
var Shapes = []Shape{ShapeSquare, ShapeCross, ShapeDisk, ShapeLine, ShapeDiamond}

// ParseShape resolves a shape name case-insensitively
func ParseShape(name string) (Shape, error) {
	s := Shape(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Shapes {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("shape %q: %w", name, core.ErrUnsupportedShape)
}

// Params carries the construction parameters. A positive Radius selects a
// (2r+1)x(2r+1) grid; otherwise Rows and Cols give the size. Angle is only
// read for lines.
type Params struct {
	Weight int
	Rows   int
	Cols   int
	Radius int
	Angle  int
}

// Size returns the grid dimensions implied by p
func (p Params) Size() (rows, cols int) {
	if p.Radius > 0 {
		return 2*p.Radius + 1, 2*p.Radius + 1
	}
	return p.Rows, p.Cols
}

// Build creates a structuring element of the given shape
func Build(shape Shape, p Params) (*core.Grid, error) {
	if p.Weight <= 0 {
		return nil, fmt.Errorf("%s: weight %d must be positive: %w", shape, p.Weight, core.ErrUnsupportedShape)
	}

	rows, cols := p.Size()
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%s: need a radius or a positive size: %w", shape, core.ErrUnsupportedShape)
	}
	g := core.NewGrid(rows, cols)
	w := p.Weight

	switch shape {
	case ShapeSquare:
		g.Fill(w)

	case ShapeCross:
		for i := 0; i < rows; i++ {
			g.Set(i, cols/2, w)
		}
		for j := 0; j < cols; j++ {
			g.Set(rows/2, j, w)
		}

	case ShapeDisk:
		if p.Radius <= 0 {
			return nil, fmt.Errorf("disk requires a radius: %w", core.ErrUnsupportedShape)
		}
		r := p.Radius
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if (i-r)*(i-r)+(j-r)*(j-r) <= r*r {
					g.Set(i, j, w)
				}
			}
		}

	case ShapeDiamond:
		if p.Radius <= 0 {
			return nil, fmt.Errorf("diamond requires a radius: %w", core.ErrUnsupportedShape)
		}
		r := p.Radius
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if abs(i-r)+abs(j-r) <= r {
					g.Set(i, j, w)
				}
			}
		}

	case ShapeLine:
		n := min(rows, cols)
		switch p.Angle {
		case 0:
			for j := 0; j < cols; j++ {
				g.Set(rows/2, j, w)
			}
		case 90:
			for i := 0; i < rows; i++ {
				g.Set(i, cols/2, w)
			}
		case 45:
			for i := 0; i < n; i++ {
				g.Set(i, cols-1-i, w)
			}
		case 135:
			for i := 0; i < n; i++ {
				g.Set(i, i, w)
			}
		default:
			return nil, fmt.Errorf("line angle %d not in {0,45,90,135}: %w", p.Angle, core.ErrUnsupportedShape)
		}

	default:
		return nil, fmt.Errorf("shape %q: %w", shape, core.ErrUnsupportedShape)
	}

	return g, nil
}

// Mutate returns a copy of base in which round(changePercent% of (2r+1)^2)
// randomly drawn cells have been set to a random 0 or 1. Cells are drawn
// with repetition, so fewer distinct cells may change. base is untouched.
func Mutate(base *core.Grid, changePercent float64, radius int, rng *rand.Rand) (*core.Grid, error) {
	side := 2*radius + 1
	if radius < 0 || base.Rows() != side || base.Cols() != side {
		return nil, fmt.Errorf("mutate %dx%d with radius %d: %w", base.Rows(), base.Cols(), radius, core.ErrInvalidFootprint)
	}
	if changePercent < 0 || changePercent > 100 || math.IsNaN(changePercent) {
		return nil, fmt.Errorf("change percent %.2f outside [0,100]", changePercent)
	}

	out := base.Clone()
	n := int(math.Round(changePercent / 100 * float64(side*side)))
	for k := 0; k < n; k++ {
		i := rng.IntN(side)
		j := rng.IntN(side)
		out.Set(i, j, rng.IntN(2))
	}
	return out, nil
}

// Footprint counts the active cells of a structuring element
func Footprint(g *core.Grid) int {
	n := 0
	for _, v := range g.Pix() {
		if v != 0 {
			n++
		}
	}
	return n
}

// Describe renders a structuring element with '#' for active cells
func Describe(g *core.Grid) string {
	var b strings.Builder
	for i := 0; i < g.Rows(); i++ {
		for j := 0; j < g.Cols(); j++ {
			if g.At(i, j) != 0 {
				b.WriteString("# ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
