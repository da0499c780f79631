// Package surfel implements paged storage for large surfel clouds.
//
// Surfels live in blocks. Blocks are owned by a Database, which persists them
// to an .ssb file and keeps a read count per block: a block's surfels are in
// memory exactly while its read count is positive. Blocks are grouped by the
// nodes of a Tree, and nodes cache aggregate properties that are refreshed
// lazily after any change below them. Point and PointSet give algorithms a
// way to hold surfels from many blocks while keeping those blocks resident.
//
// None of the types in this package are safe for concurrent use.
package surfel

import (
	"github.com/golang/geo/r3"
)

// Surfel flag bits.
const (
	FlagActive uint16 = 1 << iota
	FlagMarked
	FlagAerial
	FlagTerrestrial
	FlagOriented
	FlagIsotropic
	FlagSilhouetteBoundary
	FlagShadowBoundary
	FlagBorderBoundary

	FlagBoundary = FlagSilhouetteBoundary | FlagShadowBoundary | FlagBorderBoundary
)

// Surfel is a disc shaped surface sample. Position and timestamp are relative
// to the origins of the owning block. A zero normal or tangent means unset, as
// does a zero radius. Field order is the on-disk record layout.
type Surfel struct {
	Position   [3]float32
	Normal     [3]float32
	Tangent    [3]float32
	Radii      [2]float32
	Depth      float32
	Elevation  float32
	Timestamp  float32
	Identifier uint32
	Attribute  uint32
	Color      [3]uint8
	Flags      uint16
}

// NewSurfel returns an active surfel at the given block relative position.
func NewSurfel(x, y, z float32) Surfel {
	return Surfel{Position: [3]float32{x, y, z}, Flags: FlagActive}
}

// PositionVector returns the block relative position.
func (s *Surfel) PositionVector() r3.Vector {
	return r3.Vector{X: float64(s.Position[0]), Y: float64(s.Position[1]), Z: float64(s.Position[2])}
}

// NormalVector returns the normal, zero when unset.
func (s *Surfel) NormalVector() r3.Vector {
	return r3.Vector{X: float64(s.Normal[0]), Y: float64(s.Normal[1]), Z: float64(s.Normal[2])}
}

// TangentVector returns the tangent, zero when unset.
func (s *Surfel) TangentVector() r3.Vector {
	return r3.Vector{X: float64(s.Tangent[0]), Y: float64(s.Tangent[1]), Z: float64(s.Tangent[2])}
}

// HasNormal reports whether the normal has been set.
func (s *Surfel) HasNormal() bool {
	return s.Normal != [3]float32{}
}

// HasTangent reports whether the tangent has been set.
func (s *Surfel) HasTangent() bool {
	return s.Tangent != [3]float32{}
}

// Radius returns the radius along axis 0 (the tangent) or axis 1.
func (s *Surfel) Radius(axis int) float64 {
	return float64(s.Radii[axis])
}

// HasFlags reports whether all of the given flag bits are set.
func (s *Surfel) HasFlags(flags uint16) bool {
	return s.Flags&flags == flags
}

// IsActive reports whether the surfel is active.
func (s *Surfel) IsActive() bool { return s.HasFlags(FlagActive) }

// IsMarked reports whether the surfel is marked.
func (s *Surfel) IsMarked() bool { return s.HasFlags(FlagMarked) }

// IsAerial reports whether the surfel was captured from the air.
func (s *Surfel) IsAerial() bool { return s.HasFlags(FlagAerial) }

// IsTerrestrial reports whether the surfel was captured from the ground.
func (s *Surfel) IsTerrestrial() bool { return s.HasFlags(FlagTerrestrial) }

// IsOriented reports whether the sign of the normal is meaningful.
func (s *Surfel) IsOriented() bool { return s.HasFlags(FlagOriented) }

// IsIsotropic reports whether both radii are equal.
func (s *Surfel) IsIsotropic() bool { return s.HasFlags(FlagIsotropic) }

// IsOnBoundary reports whether any boundary bit is set.
func (s *Surfel) IsOnBoundary() bool { return s.Flags&FlagBoundary != 0 }

func (s *Surfel) setFlag(flag uint16, on bool) {
	if on {
		s.Flags |= flag
	} else {
		s.Flags &^= flag
	}
}

func (s *Surfel) setPosition(p r3.Vector) {
	s.Position = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
}

func (s *Surfel) setNormal(n r3.Vector) {
	if n.Norm2() > 0 {
		n = n.Normalize()
	}
	s.Normal = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
}

func (s *Surfel) setTangent(t r3.Vector) {
	if t.Norm2() > 0 {
		t = t.Normalize()
	}
	s.Tangent = [3]float32{float32(t.X), float32(t.Y), float32(t.Z)}
}

func (s *Surfel) setRadii(r0, r1 float64) {
	s.Radii = [2]float32{float32(r0), float32(r1)}
	s.setFlag(FlagIsotropic, s.Radii[0] == s.Radii[1])
}
