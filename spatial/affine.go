package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Affine is a 3D affine transform p -> M*p + T.
type Affine struct {
	M [3][3]float64
	T r3.Vector
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{M: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Translation returns a transform moving points by v.
func Translation(v r3.Vector) Affine {
	a := Identity()
	a.T = v
	return a
}

// Scaling returns a uniform scale about the origin.
func Scaling(s float64) Affine {
	return Affine{M: [3][3]float64{{s, 0, 0}, {0, s, 0}, {0, 0, s}}}
}

// RotationZ returns a rotation by angle radians about the Z axis.
func RotationZ(angle float64) Affine {
	c, s := math.Cos(angle), math.Sin(angle)
	return Affine{M: [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}}
}

// Then returns the transform applying a first and b second.
func (a Affine) Then(b Affine) Affine {
	var ret Affine
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			for k := 0; k < 3; k++ {
				ret.M[r][c] += b.M[r][k] * a.M[k][c]
			}
		}
	}
	ret.T = b.ApplyVector(a.T).Add(b.T)
	return ret
}

// Apply transforms a point.
func (a Affine) Apply(p r3.Vector) r3.Vector {
	return a.ApplyVector(p).Add(a.T)
}

// ApplyVector transforms a direction, ignoring translation.
func (a Affine) ApplyVector(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: a.M[0][0]*v.X + a.M[0][1]*v.Y + a.M[0][2]*v.Z,
		Y: a.M[1][0]*v.X + a.M[1][1]*v.Y + a.M[1][2]*v.Z,
		Z: a.M[2][0]*v.X + a.M[2][1]*v.Y + a.M[2][2]*v.Z,
	}
}

// ApplyNormal transforms a surface normal with the cofactor matrix of M and
// renormalizes it. Zero vectors stay zero.
func (a Affine) ApplyNormal(n r3.Vector) r3.Vector {
	m := a.M
	cof := [3][3]float64{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[1][2]*m[2][0] - m[1][0]*m[2][2], m[1][0]*m[2][1] - m[1][1]*m[2][0]},
		{m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1]},
		{m[0][1]*m[1][2] - m[0][2]*m[1][1], m[0][2]*m[1][0] - m[0][0]*m[1][2], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	ret := Affine{M: cof}.ApplyVector(n)
	if a.Determinant() < 0 {
		ret = ret.Mul(-1)
	}
	if ret.Norm2() == 0 {
		return ret
	}
	return ret.Normalize()
}

// Determinant returns det(M).
func (a Affine) Determinant() float64 {
	m := a.M
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Scale returns the average linear scale factor of the transform.
func (a Affine) Scale() float64 {
	return math.Cbrt(math.Abs(a.Determinant()))
}

// IsIdentity reports whether the transform leaves every point unchanged.
func (a Affine) IsIdentity() bool {
	return a == Identity()
}
