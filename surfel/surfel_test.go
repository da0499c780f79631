package surfel

import (
	"encoding/binary"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestSurfelFields(t *testing.T) {
	s := NewSurfel(1, 2, 3)
	test.That(t, s.IsActive(), test.ShouldBeTrue)
	test.That(t, s.PositionVector(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, s.HasNormal(), test.ShouldBeFalse)
	test.That(t, s.HasTangent(), test.ShouldBeFalse)

	s.setNormal(r3.Vector{Z: 4})
	test.That(t, s.NormalVector(), test.ShouldResemble, r3.Vector{Z: 1})
	s.setTangent(r3.Vector{X: -2})
	test.That(t, s.TangentVector(), test.ShouldResemble, r3.Vector{X: -1})

	s.setRadii(0.5, 0.5)
	test.That(t, s.IsIsotropic(), test.ShouldBeTrue)
	s.setRadii(0.5, 0.25)
	test.That(t, s.IsIsotropic(), test.ShouldBeFalse)
	test.That(t, s.Radius(1), test.ShouldEqual, 0.25)

	test.That(t, s.IsOnBoundary(), test.ShouldBeFalse)
	s.setFlag(FlagShadowBoundary, true)
	test.That(t, s.IsOnBoundary(), test.ShouldBeTrue)
	test.That(t, s.HasFlags(FlagActive|FlagShadowBoundary), test.ShouldBeTrue)
	test.That(t, s.HasFlags(FlagActive|FlagAerial), test.ShouldBeFalse)
	s.setFlag(FlagActive, false)
	test.That(t, s.IsActive(), test.ShouldBeFalse)

	test.That(t, binary.Size(Surfel{}), test.ShouldEqual, surfelRecordSize)
	test.That(t, surfelRecordSize, test.ShouldEqual, 69)
}
