package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func checkOrthonormal(t *testing.T, axes Triad) {
	t.Helper()
	for i := 0; i < 3; i++ {
		test.That(t, axes[i].Norm(), test.ShouldAlmostEqual, 1, 1e-9)
		for j := i + 1; j < 3; j++ {
			test.That(t, axes[i].Dot(axes[j]), test.ShouldAlmostEqual, 0, 1e-9)
		}
	}
	cross := axes[0].Cross(axes[1])
	test.That(t, cross.Sub(axes[2]).Norm(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestPrincipleAxesEmpty(t *testing.T) {
	axes, variances := PrincipleAxes(r3.Vector{}, nil, nil)
	test.That(t, axes, test.ShouldResemble, XYZTriad())
	test.That(t, variances, test.ShouldResemble, [3]float64{})
}

func TestPrincipleAxesPlanar(t *testing.T) {
	// an elongated patch in the plane z = 2, longer along y
	var positions []r3.Vector
	for x := -2; x <= 2; x++ {
		for y := -10; y <= 10; y++ {
			positions = append(positions, r3.Vector{X: float64(x), Y: float64(y), Z: 2})
		}
	}
	// skew the distribution so the plurality sign test has a clear winner
	positions = append(positions, r3.Vector{X: 1, Y: 3, Z: 2}, r3.Vector{X: 2, Y: 5, Z: 2})

	center := Centroid(positions, nil)
	axes, variances := PrincipleAxes(center, positions, nil)
	checkOrthonormal(t, axes)

	test.That(t, math.Abs(axes[0].Y), test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, math.Abs(axes[1].X), test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, math.Abs(axes[2].Z), test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, variances[0], test.ShouldBeGreaterThan, variances[1])
	test.That(t, variances[1], test.ShouldBeGreaterThan, variances[2])
	test.That(t, variances[2], test.ShouldAlmostEqual, 0, 1e-9)

	for i := 0; i < 2; i++ {
		var positive, negative int
		for _, p := range positions {
			d := p.Sub(center).Dot(axes[i])
			if d > 0 {
				positive++
			} else if d < 0 {
				negative++
			}
		}
		test.That(t, positive, test.ShouldBeGreaterThanOrEqualTo, negative)
	}
}

func TestPrincipleAxesRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		positions := make([]r3.Vector, 50)
		for i := range positions {
			positions[i] = r3.Vector{X: r.NormFloat64() * 3, Y: r.NormFloat64(), Z: r.NormFloat64() * 0.1}
		}
		axes, _ := PrincipleAxes(Centroid(positions, nil), positions, nil)
		checkOrthonormal(t, axes)
	}
}

func TestCentroidWeighted(t *testing.T) {
	positions := []r3.Vector{{X: 0}, {X: 4}}
	test.That(t, Centroid(positions, nil), test.ShouldResemble, r3.Vector{X: 2})
	test.That(t, Centroid(positions, []float64{3, 1}), test.ShouldResemble, r3.Vector{X: 1})
	test.That(t, Centroid(nil, nil), test.ShouldResemble, r3.Vector{})
}

func TestRotateZ(t *testing.T) {
	axes := XYZTriad().RotateZ(math.Pi / 2)
	test.That(t, axes[0].Y, test.ShouldAlmostEqual, 1)
	test.That(t, axes[1].X, test.ShouldAlmostEqual, -1)
	test.That(t, axes[2], test.ShouldResemble, r3.Vector{Z: 1})
	checkOrthonormal(t, axes)
}

func TestPlane(t *testing.T) {
	p := NewPlane(r3.Vector{Z: 2}, r3.Vector{Z: 5})
	test.That(t, p.Normal, test.ShouldResemble, r3.Vector{Z: 1})
	test.That(t, p.SignedDistance(r3.Vector{X: 4, Z: 3}), test.ShouldAlmostEqual, 1)
	test.That(t, p.SignedDistance(r3.Vector{Z: 1}), test.ShouldAlmostEqual, -1)
	test.That(t, p.Distance(r3.Vector{Z: 1}), test.ShouldAlmostEqual, 1)
	test.That(t, p.Flip().SignedDistance(r3.Vector{Z: 1}), test.ShouldAlmostEqual, 1)
	test.That(t, p.Z(7, 7), test.ShouldAlmostEqual, 2)
	test.That(t, p.Project(r3.Vector{X: 1, Y: 1, Z: 9}), test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 2})
	test.That(t, NewPlane(r3.Vector{}, r3.Vector{}).IsNull(), test.ShouldBeTrue)

	q := NewPlaneFromCoefficients(0, 0, 2, -4)
	test.That(t, q.Z(0, 0), test.ShouldAlmostEqual, 2)
}

func TestOrientedBox(t *testing.T) {
	o := OrientedBox{Center: r3.Vector{X: 1}, Axes: XYZTriad(), Radii: [3]float64{1, 2, 3}}
	test.That(t, o.Volume(), test.ShouldAlmostEqual, 48)
	test.That(t, o.Contains(r3.Vector{X: 2, Y: 2, Z: -3}), test.ShouldBeTrue)
	test.That(t, o.Contains(r3.Vector{X: 2.5}), test.ShouldBeFalse)
	test.That(t, NullOrientedBox.IsEmpty(), test.ShouldBeTrue)
	test.That(t, NullOrientedBox.Volume(), test.ShouldEqual, 0)
}

func TestAffine(t *testing.T) {
	xf := Scaling(2).Then(RotationZ(math.Pi / 2)).Then(Translation(r3.Vector{Z: 1}))
	p := xf.Apply(r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 0)
	test.That(t, p.Y, test.ShouldAlmostEqual, 2)
	test.That(t, p.Z, test.ShouldAlmostEqual, 1)
	test.That(t, xf.Scale(), test.ShouldAlmostEqual, 2)

	n := xf.ApplyNormal(r3.Vector{Z: 3})
	test.That(t, n.Z, test.ShouldAlmostEqual, 1)
	test.That(t, xf.ApplyNormal(r3.Vector{}), test.ShouldResemble, r3.Vector{})
	test.That(t, Identity().IsIdentity(), test.ShouldBeTrue)
	test.That(t, xf.IsIdentity(), test.ShouldBeFalse)
}
