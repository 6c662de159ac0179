// Named morphological operator registry
package algorithms

import (
	"fmt"
	"sort"

	"strel-optimizer/internal/core"
)

// Operator is a morphological operator parameterized by a structuring
// element of the given radius
type Operator interface {
	Apply(e *Engine, img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error)
	GetName() string
	GetDescription() string
}

type operatorFunc struct {
	name        string
	description string
	apply       func(e *Engine, img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error)
}

func (o operatorFunc) Apply(e *Engine, img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	return o.apply(e, img, kernel, radius, mask)
}

func (o operatorFunc) GetName() string { return o.name }

func (o operatorFunc) GetDescription() string { return o.description }

var operators = make(map[string]Operator)

func Register(name string, op Operator) {
	operators[name] = op
}

func Get(name string) (Operator, bool) {
	op, exists := operators[name]
	return op, exists
}

// Apply runs the named operator on img
func Apply(name string, e *Engine, img, kernel *core.Grid, radius int, mask *core.Grid) (*core.Grid, error) {
	op, exists := operators[name]
	if !exists {
		return nil, fmt.Errorf("operator not found: %s", name)
	}
	return op.Apply(e, img, kernel, radius, mask)
}

func IsValidOperator(name string) bool {
	_, exists := operators[name]
	return exists
}

// Names returns the registered operator names in sorted order
func Names() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("erosion", operatorFunc{"Erosion", "Minimum of the image under the footprint", (*Engine).Erode})
	Register("dilation", operatorFunc{"Dilation", "Maximum of the image under the footprint", (*Engine).Dilate})
	Register("gradient", operatorFunc{"Gradient", "Maximum minus minimum under the footprint", (*Engine).Gradient})
	Register("opening", operatorFunc{"Opening", "Dilation of the erosion, removes bright detail smaller than the element", (*Engine).Open})
	Register("closing", operatorFunc{"Closing", "Erosion of the dilation, fills dark detail smaller than the element", (*Engine).Close})
	Register("tophat", operatorFunc{"Top-hat", "Bright detail removed by the opening", (*Engine).TopHat})
	Register("blackhat", operatorFunc{"Black-hat", "Dark detail filled by the closing", (*Engine).BlackHat})
}
