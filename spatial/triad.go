package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Triad is an ordered set of three axes.
type Triad [3]r3.Vector

// XYZTriad returns the standard basis.
func XYZTriad() Triad {
	return Triad{{X: 1}, {Y: 1}, {Z: 1}}
}

// RotateZ returns the triad rotated by angle radians about the world Z axis.
func (t Triad) RotateZ(angle float64) Triad {
	c, s := math.Cos(angle), math.Sin(angle)
	var ret Triad
	for i, a := range t {
		ret[i] = r3.Vector{X: c*a.X - s*a.Y, Y: s*a.X + c*a.Y, Z: a.Z}
	}
	return ret
}

// Centroid returns the (optionally weighted) mean of the positions. A nil
// weights slice weighs every position equally.
func Centroid(positions []r3.Vector, weights []float64) r3.Vector {
	var sum r3.Vector
	var total float64
	for i, p := range positions {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sum = sum.Add(p.Mul(w))
		total += w
	}
	if total == 0 {
		return r3.Vector{}
	}
	return sum.Mul(1 / total)
}

// PrincipleAxes computes the principal directions of positions about center.
// The covariance is factorized with an SVD, so axes come out in descending
// variance order. Axes 0 and 1 are flipped to point towards the side holding
// more of the positions and axis 2 is their cross product, which makes the
// result a right handed orthonormal triad. With no positions the standard
// basis and zero variances are returned.
func PrincipleAxes(center r3.Vector, positions []r3.Vector, weights []float64) (Triad, [3]float64) {
	var variances [3]float64
	if len(positions) == 0 {
		return XYZTriad(), variances
	}

	var total float64
	cov := mat.NewSymDense(3, nil)
	for i, p := range positions {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		d := p.Sub(center)
		v := [3]float64{d.X, d.Y, d.Z}
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				cov.SetSym(r, c, cov.At(r, c)+w*v[r]*v[c])
			}
		}
		total += w
	}
	if total == 0 {
		return XYZTriad(), variances
	}
	cov.ScaleSym(1/total, cov)

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return XYZTriad(), variances
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)

	var axes Triad
	for i := 0; i < 3; i++ {
		axes[i] = r3.Vector{X: v.At(0, i), Y: v.At(1, i), Z: v.At(2, i)}.Normalize()
		variances[i] = values[i]
	}

	for i := 0; i < 2; i++ {
		var positive, negative int
		for _, p := range positions {
			dot := p.Sub(center).Dot(axes[i])
			if dot > 0 {
				positive++
			} else if dot < 0 {
				negative++
			}
		}
		if negative > positive {
			axes[i] = axes[i].Mul(-1)
		}
	}
	axes[2] = axes[0].Cross(axes[1]).Normalize()

	return axes, variances
}

// OrientedBox is a box with arbitrary axes. Radii are half extents along each axis.
type OrientedBox struct {
	Center r3.Vector
	Axes   Triad
	Radii  [3]float64
}

// NullOrientedBox is returned when there is nothing to bound.
var NullOrientedBox = OrientedBox{Axes: XYZTriad(), Radii: [3]float64{-1, -1, -1}}

// IsEmpty reports whether the box has negative radii.
func (o OrientedBox) IsEmpty() bool {
	return o.Radii[0] < 0 || o.Radii[1] < 0 || o.Radii[2] < 0
}

// Volume returns the volume of the box, 0 when empty.
func (o OrientedBox) Volume() float64 {
	if o.IsEmpty() {
		return 0
	}
	return 8 * o.Radii[0] * o.Radii[1] * o.Radii[2]
}

// Contains reports whether p is inside the box, boundary included.
func (o OrientedBox) Contains(p r3.Vector) bool {
	if o.IsEmpty() {
		return false
	}
	d := p.Sub(o.Center)
	for i, a := range o.Axes {
		if math.Abs(d.Dot(a)) > o.Radii[i]+1e-9 {
			return false
		}
	}
	return true
}
