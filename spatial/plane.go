package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Plane is the set of points p with Normal.Dot(p) + D == 0. Normal is unit length
// for every plane built with NewPlane.
type Plane struct {
	Normal r3.Vector
	D      float64
}

// NullPlane is the degenerate plane returned when no plane can be fit.
var NullPlane = Plane{}

// NewPlane returns the plane through point with the given normal.
func NewPlane(point, normal r3.Vector) Plane {
	if normal.Norm2() == 0 {
		return NullPlane
	}
	n := normal.Normalize()
	return Plane{Normal: n, D: -n.Dot(point)}
}

// NewPlaneFromCoefficients returns the plane a*x + b*y + c*z + d = 0.
func NewPlaneFromCoefficients(a, b, c, d float64) Plane {
	n := r3.Vector{X: a, Y: b, Z: c}
	norm := n.Norm()
	if norm == 0 {
		return NullPlane
	}
	return Plane{Normal: n.Mul(1 / norm), D: d / norm}
}

// IsNull reports whether the plane has no normal.
func (p Plane) IsNull() bool {
	return p.Normal.Norm2() == 0
}

// SignedDistance is positive on the side the normal points to.
func (p Plane) SignedDistance(pt r3.Vector) float64 {
	return p.Normal.Dot(pt) + p.D
}

// Distance returns the unsigned distance from pt to the plane.
func (p Plane) Distance(pt r3.Vector) float64 {
	return math.Abs(p.SignedDistance(pt))
}

// Flip returns the same plane with the opposite orientation.
func (p Plane) Flip() Plane {
	return Plane{Normal: p.Normal.Mul(-1), D: -p.D}
}

// Project returns the closest point on the plane to pt.
func (p Plane) Project(pt r3.Vector) r3.Vector {
	return pt.Sub(p.Normal.Mul(p.SignedDistance(pt)))
}

// Point returns some point on the plane.
func (p Plane) Point() r3.Vector {
	return p.Normal.Mul(-p.D)
}

// Z solves the plane equation for z at (x, y). It returns NaN for vertical planes.
func (p Plane) Z(x, y float64) float64 {
	if p.Normal.Z == 0 {
		return math.NaN()
	}
	return -(p.Normal.X*x + p.Normal.Y*y + p.D) / p.Normal.Z
}
