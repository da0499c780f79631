package surfel

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// Constraint selects surfels. CheckBox is a conservative test on a bounding
// box: it returns false only when no surfel inside the box can pass
// CheckSurfel.
type Constraint interface {
	CheckBox(box spatial.Box) bool
	CheckSurfel(b *Block, s *Surfel) bool
}

// BoxConstraint accepts surfels inside a box.
type BoxConstraint struct {
	Box spatial.Box
}

// CheckBox implements Constraint.
func (c BoxConstraint) CheckBox(box spatial.Box) bool {
	return c.Box.Intersects(box)
}

// CheckSurfel implements Constraint.
func (c BoxConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return c.Box.Contains(b.WorldPosition(s))
}

// Box2DConstraint accepts surfels whose XY position lies inside a box.
type Box2DConstraint struct {
	Box spatial.Box
}

// CheckBox implements Constraint.
func (c Box2DConstraint) CheckBox(box spatial.Box) bool {
	return c.Box.Intersects2D(box)
}

// CheckSurfel implements Constraint.
func (c Box2DConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return c.Box.Contains2D(b.WorldPosition(s))
}

// CylinderConstraint accepts surfels inside a vertical cylinder.
type CylinderConstraint struct {
	Center     r3.Vector
	Radius     float64
	ZMin, ZMax float64
}

// CheckBox implements Constraint.
func (c CylinderConstraint) CheckBox(box spatial.Box) bool {
	if box.Max.Z < c.ZMin || box.Min.Z > c.ZMax {
		return false
	}
	return box.SquaredDistance2D(c.Center) <= c.Radius*c.Radius
}

// CheckSurfel implements Constraint.
func (c CylinderConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return inCylinder(b.WorldPosition(s), c.Center, c.Radius, c.ZMin, c.ZMax)
}

// SphereConstraint accepts surfels within Radius of Center.
type SphereConstraint struct {
	Center r3.Vector
	Radius float64
}

// CheckBox implements Constraint.
func (c SphereConstraint) CheckBox(box spatial.Box) bool {
	return box.SquaredDistance(c.Center) <= c.Radius*c.Radius
}

// CheckSurfel implements Constraint.
func (c SphereConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return b.WorldPosition(s).Sub(c.Center).Norm2() <= c.Radius*c.Radius
}

func boxCorners(box spatial.Box) [8]r3.Vector {
	var corners [8]r3.Vector
	for i := range corners {
		corners[i] = box.Min
		if i&1 != 0 {
			corners[i].X = box.Max.X
		}
		if i&2 != 0 {
			corners[i].Y = box.Max.Y
		}
		if i&4 != 0 {
			corners[i].Z = box.Max.Z
		}
	}
	return corners
}

// signedDistanceRange returns the smallest and largest signed distance from
// plane over the corners of box.
func signedDistanceRange(plane spatial.Plane, box spatial.Box) (float64, float64) {
	dmin, dmax := math.MaxFloat64, -math.MaxFloat64
	for _, c := range boxCorners(box) {
		d := plane.SignedDistance(c)
		dmin = math.Min(dmin, d)
		dmax = math.Max(dmax, d)
	}
	return dmin, dmax
}

// HalfspaceConstraint accepts surfels on the positive side of a plane.
type HalfspaceConstraint struct {
	Plane spatial.Plane
}

// CheckBox implements Constraint.
func (c HalfspaceConstraint) CheckBox(box spatial.Box) bool {
	if box.IsEmpty() {
		return false
	}
	_, dmax := signedDistanceRange(c.Plane, box)
	return dmax >= 0
}

// CheckSurfel implements Constraint.
func (c HalfspaceConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return c.Plane.SignedDistance(b.WorldPosition(s)) >= 0
}

// PlaneConstraint accepts surfels below, on or above a plane. A surfel is on
// the plane when its distance is at most Tolerance.
type PlaneConstraint struct {
	Plane     spatial.Plane
	Below     bool
	On        bool
	Above     bool
	Tolerance float64
}

// CheckBox implements Constraint.
func (c PlaneConstraint) CheckBox(box spatial.Box) bool {
	if box.IsEmpty() {
		return false
	}
	dmin, dmax := signedDistanceRange(c.Plane, box)
	if c.Below && dmin < -c.Tolerance {
		return true
	}
	if c.Above && dmax > c.Tolerance {
		return true
	}
	return c.On && dmin <= c.Tolerance && dmax >= -c.Tolerance
}

// CheckSurfel implements Constraint.
func (c PlaneConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	d := c.Plane.SignedDistance(b.WorldPosition(s))
	switch {
	case d < -c.Tolerance:
		return c.Below
	case d > c.Tolerance:
		return c.Above
	default:
		return c.On
	}
}

// TimestampConstraint accepts surfels with a timestamp in Range.
type TimestampConstraint struct {
	Range spatial.Interval
}

// CheckBox implements Constraint.
func (c TimestampConstraint) CheckBox(spatial.Box) bool {
	return !c.Range.IsEmpty()
}

// CheckSurfel implements Constraint.
func (c TimestampConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	return c.Range.Contains(b.WorldTimestamp(s))
}

// IdentifierConstraint accepts surfels with an identifier in [Min, Max].
type IdentifierConstraint struct {
	Min, Max uint32
}

// CheckBox implements Constraint.
func (c IdentifierConstraint) CheckBox(spatial.Box) bool {
	return c.Min <= c.Max
}

// CheckSurfel implements Constraint.
func (c IdentifierConstraint) CheckSurfel(_ *Block, s *Surfel) bool {
	return s.Identifier >= c.Min && s.Identifier <= c.Max
}

// SourceConstraint accepts surfels captured by the selected kinds of scanner.
type SourceConstraint struct {
	Aerial      bool
	Terrestrial bool
}

// CheckBox implements Constraint.
func (c SourceConstraint) CheckBox(spatial.Box) bool {
	return c.Aerial || c.Terrestrial
}

// CheckSurfel implements Constraint.
func (c SourceConstraint) CheckSurfel(_ *Block, s *Surfel) bool {
	return (c.Aerial && s.IsAerial()) || (c.Terrestrial && s.IsTerrestrial())
}

// MarkConstraint accepts surfels whose mark equals Marked.
type MarkConstraint struct {
	Marked bool
}

// CheckBox implements Constraint.
func (c MarkConstraint) CheckBox(spatial.Box) bool {
	return true
}

// CheckSurfel implements Constraint.
func (c MarkConstraint) CheckSurfel(_ *Block, s *Surfel) bool {
	return s.IsMarked() == c.Marked
}

// NormalConstraint accepts surfels whose normal is within MaxAngle radians of
// Direction. Surfels without a normal are rejected.
type NormalConstraint struct {
	Direction r3.Vector
	MaxAngle  float64
}

// CheckBox implements Constraint.
func (c NormalConstraint) CheckBox(spatial.Box) bool {
	return true
}

// CheckSurfel implements Constraint.
func (c NormalConstraint) CheckSurfel(_ *Block, s *Surfel) bool {
	if !s.HasNormal() || c.Direction.Norm2() == 0 {
		return false
	}
	cos := s.NormalVector().Normalize().Dot(c.Direction.Normalize())
	return cos >= math.Cos(c.MaxAngle)
}

// MultiConstraint accepts surfels accepted by every one of its constraints.
type MultiConstraint []Constraint

// CheckBox implements Constraint.
func (c MultiConstraint) CheckBox(box spatial.Box) bool {
	for _, sub := range c {
		if !sub.CheckBox(box) {
			return false
		}
	}
	return true
}

// CheckSurfel implements Constraint.
func (c MultiConstraint) CheckSurfel(b *Block, s *Surfel) bool {
	for _, sub := range c {
		if !sub.CheckSurfel(b, s) {
			return false
		}
	}
	return true
}
