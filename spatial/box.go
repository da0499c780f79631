// Package spatial contains the small geometric value types shared by the surfel
// storage and segmentation packages: axis aligned boxes, intervals, planes,
// triads and oriented boxes, plus principal axis analysis of point samples.
package spatial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Box is an axis aligned bounding box. An empty box has Min at +MaxFloat64 and
// Max at -MaxFloat64 so that a union with it never changes the other operand.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// EmptyBox returns a box that contains nothing.
func EmptyBox() Box {
	return Box{
		Min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
}

// NewBox returns the box spanning the two corners in any order.
func NewBox(a, b r3.Vector) Box {
	return Box{
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// IsEmpty reports whether the box contains no points.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// UnionPoint returns the smallest box containing b and p.
func (b Box) UnionPoint(p r3.Vector) Box {
	return Box{
		Min: r3.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.UnionPoint(o.Min).UnionPoint(o.Max)
}

// Intersect returns the overlap of the two boxes, which may be empty.
func (b Box) Intersect(o Box) Box {
	ret := Box{
		Min: r3.Vector{X: math.Max(b.Min.X, o.Min.X), Y: math.Max(b.Min.Y, o.Min.Y), Z: math.Max(b.Min.Z, o.Min.Z)},
		Max: r3.Vector{X: math.Min(b.Max.X, o.Max.X), Y: math.Min(b.Max.Y, o.Max.Y), Z: math.Min(b.Max.Z, o.Max.Z)},
	}
	if ret.IsEmpty() {
		return EmptyBox()
	}
	return ret
}

// Intersects reports whether the boxes share at least one point.
func (b Box) Intersects(o Box) bool {
	return !b.Intersect(o).IsEmpty()
}

// Intersects2D is like Intersects but ignores Z.
func (b Box) Intersects2D(o Box) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

// Contains reports whether p lies inside the box, boundary included.
func (b Box) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Contains2D is like Contains but ignores Z.
func (b Box) Contains2D(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// ContainsBox reports whether o lies completely inside b.
func (b Box) ContainsBox(o Box) bool {
	if o.IsEmpty() {
		return true
	}
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Centroid returns the center of the box, or the origin when empty.
func (b Box) Centroid() r3.Vector {
	if b.IsEmpty() {
		return r3.Vector{}
	}
	return b.Min.Add(b.Max).Mul(0.5)
}

// Lengths returns the extent of the box along each axis.
func (b Box) Lengths() r3.Vector {
	if b.IsEmpty() {
		return r3.Vector{}
	}
	return b.Max.Sub(b.Min)
}

// Volume returns the volume of the box.
func (b Box) Volume() float64 {
	l := b.Lengths()
	return l.X * l.Y * l.Z
}

// Translate returns the box moved by offset.
func (b Box) Translate(offset r3.Vector) Box {
	if b.IsEmpty() {
		return b
	}
	return Box{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Transform returns the axis aligned box around the eight transformed corners.
func (b Box) Transform(xf func(r3.Vector) r3.Vector) Box {
	if b.IsEmpty() {
		return b
	}
	ret := EmptyBox()
	for i := 0; i < 8; i++ {
		corner := b.Min
		if i&1 != 0 {
			corner.X = b.Max.X
		}
		if i&2 != 0 {
			corner.Y = b.Max.Y
		}
		if i&4 != 0 {
			corner.Z = b.Max.Z
		}
		ret = ret.UnionPoint(xf(corner))
	}
	return ret
}

// SquaredDistance returns the squared distance from p to the closest point of the box.
func (b Box) SquaredDistance(p r3.Vector) float64 {
	var d float64
	for _, c := range [][3]float64{
		{p.X, b.Min.X, b.Max.X},
		{p.Y, b.Min.Y, b.Max.Y},
		{p.Z, b.Min.Z, b.Max.Z},
	} {
		if c[0] < c[1] {
			d += (c[1] - c[0]) * (c[1] - c[0])
		} else if c[0] > c[2] {
			d += (c[0] - c[2]) * (c[0] - c[2])
		}
	}
	return d
}

// SquaredDistance2D is like SquaredDistance but ignores Z.
func (b Box) SquaredDistance2D(p r3.Vector) float64 {
	flat := b
	flat.Min.Z, flat.Max.Z = p.Z, p.Z
	return flat.SquaredDistance(p)
}

func (b Box) String() string {
	if b.IsEmpty() {
		return "(empty)"
	}
	return fmt.Sprintf("(%g %g %g) (%g %g %g)", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// Interval is a closed range of scalars with the same empty sentinel rules as Box.
type Interval struct {
	Min float64
	Max float64
}

// EmptyInterval returns an interval that contains nothing.
func EmptyInterval() Interval {
	return Interval{Min: math.MaxFloat64, Max: -math.MaxFloat64}
}

// IsEmpty reports whether the interval contains no values.
func (i Interval) IsEmpty() bool {
	return i.Min > i.Max
}

// UnionValue returns the smallest interval containing i and v.
func (i Interval) UnionValue(v float64) Interval {
	return Interval{Min: math.Min(i.Min, v), Max: math.Max(i.Max, v)}
}

// Union returns the smallest interval containing both intervals.
func (i Interval) Union(o Interval) Interval {
	if o.IsEmpty() {
		return i
	}
	if i.IsEmpty() {
		return o
	}
	return Interval{Min: math.Min(i.Min, o.Min), Max: math.Max(i.Max, o.Max)}
}

// Contains reports whether v is inside the interval, bounds included.
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

// Intersects reports whether the intervals overlap.
func (i Interval) Intersects(o Interval) bool {
	return !i.IsEmpty() && !o.IsEmpty() && i.Min <= o.Max && o.Min <= i.Max
}

// Translate returns the interval shifted by offset.
func (i Interval) Translate(offset float64) Interval {
	if i.IsEmpty() {
		return i
	}
	return Interval{Min: i.Min + offset, Max: i.Max + offset}
}

// Diameter returns Max-Min, or 0 when empty.
func (i Interval) Diameter() float64 {
	if i.IsEmpty() {
		return 0
	}
	return i.Max - i.Min
}
