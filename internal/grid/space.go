package grid

import (
	"fmt"
	"math"
)

// Dimension defines one tunable axis of the search grid.
// Steps discrete values are taken from the half-open interval [Start, End):
// value(i) = Start + i*(End-Start)/Steps. End == Start is allowed and yields
// Steps copies of Start.
type Dimension struct {
	Name  string
	Start float64
	End   float64
	Steps int
}

// Width returns the spacing between adjacent values on this axis.
func (d Dimension) Width() float64 {
	return (d.End - d.Start) / float64(d.Steps)
}

// ConfigError reports an invalid dimension definition.
type ConfigError struct {
	Dimension string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dimension %q: %s", e.Dimension, e.Reason)
}

// Binding is one dimension's value within a point.
type Binding struct {
	Name  string
	Value float64
}

// Point is one concrete assignment of values across all dimensions.
// Bindings are ordered the same way as the space's dimensions and are not
// mutated after generation.
type Point struct {
	Index    int64
	Bindings []Binding
}

// ID returns a stable identifier for the point, usable in file names.
func (p Point) ID() string {
	return fmt.Sprintf("%d", p.Index)
}

// Space enumerates the full cartesian grid over a fixed set of dimensions.
// Enumeration order is deterministic: the first dimension varies slowest.
// Points are addressed directly by index, so a sweep can resume from any
// position without re-iterating from zero.
type Space struct {
	dims  []Dimension
	count int64
}

func NewSpace(dims []Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, &ConfigError{Dimension: "", Reason: "no dimensions defined"}
	}
	count := int64(1)
	for _, d := range dims {
		if d.Name == "" {
			return nil, &ConfigError{Dimension: d.Name, Reason: "name is required"}
		}
		if d.Steps <= 0 {
			return nil, &ConfigError{Dimension: d.Name, Reason: fmt.Sprintf("steps must be > 0, got %d", d.Steps)}
		}
		if d.End < d.Start {
			return nil, &ConfigError{Dimension: d.Name, Reason: fmt.Sprintf("end %v < start %v", d.End, d.Start)}
		}
		if count > math.MaxInt64/int64(d.Steps) {
			return nil, &ConfigError{Dimension: d.Name, Reason: "grid size overflows int64"}
		}
		count *= int64(d.Steps)
	}
	cp := make([]Dimension, len(dims))
	copy(cp, dims)
	return &Space{dims: cp, count: count}, nil
}

// Count returns the total number of points: the product of all step counts.
func (s *Space) Count() int64 { return s.count }

// Dimensions returns the axes in enumeration order.
func (s *Space) Dimensions() []Dimension {
	cp := make([]Dimension, len(s.dims))
	copy(cp, s.dims)
	return cp
}

// PointAt maps an index to its point in O(1) memory via mixed-radix decode.
// Index i and PointAt(i) correspond one-to-one for the lifetime of the space.
func (s *Space) PointAt(index int64) (Point, error) {
	if index < 0 || index >= s.count {
		return Point{}, fmt.Errorf("point index %d out of range [0, %d)", index, s.count)
	}
	bindings := make([]Binding, len(s.dims))
	rem := index
	for i := len(s.dims) - 1; i >= 0; i-- {
		d := s.dims[i]
		steps := int64(d.Steps)
		digit := rem % steps
		rem /= steps
		bindings[i] = Binding{
			Name:  d.Name,
			Value: d.Start + float64(digit)*d.Width(),
		}
	}
	return Point{Index: index, Bindings: bindings}, nil
}

// Values returns the point's values keyed by dimension name.
func (p Point) Values() map[string]float64 {
	m := make(map[string]float64, len(p.Bindings))
	for _, b := range p.Bindings {
		m[b.Name] = b.Value
	}
	return m
}
