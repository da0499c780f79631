package surfel

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Point refers to one surfel of a block and holds a lease on that block for
// as long as it does, keeping the surfel in memory. A Point must be released
// with Release when no longer needed.
type Point struct {
	block *Block
	index int
}

func leaseBlock(b *Block) error {
	if b == nil || b.database == nil {
		return nil
	}
	return b.database.ReadBlock(b)
}

func releaseBlock(b *Block) error {
	if b == nil || b.database == nil {
		return nil
	}
	return b.database.ReleaseBlock(b)
}

// NewPoint returns a point on the index-th surfel of block, paging the block in.
func NewPoint(block *Block, index int) (*Point, error) {
	if index < 0 || index >= block.NSurfels() {
		panic(errors.Errorf("surfel index %d out of range [0,%d)", index, block.NSurfels()))
	}
	if err := leaseBlock(block); err != nil {
		return nil, err
	}
	return &Point{block: block, index: index}, nil
}

// newLeasedPoint returns a point on a block the caller already holds a lease on.
func newLeasedPoint(block *Block, index int) *Point {
	if block.database != nil {
		block.database.retain(block)
	}
	return &Point{block: block, index: index}
}

// Copy makes p refer to the same surfel as other. The lease moves only when
// the block changes.
func (p *Point) Copy(other *Point) error {
	return p.Reset(other.block, other.index)
}

// Reset makes p refer to the index-th surfel of block.
func (p *Point) Reset(block *Block, index int) error {
	if p.block != block {
		if err := leaseBlock(block); err != nil {
			return err
		}
		if err := releaseBlock(p.block); err != nil {
			return multierr.Combine(err, releaseBlock(block))
		}
	}
	p.block = block
	p.index = index
	return nil
}

// Release returns the point's lease. The point is unusable afterwards.
func (p *Point) Release() error {
	b := p.block
	p.block = nil
	p.index = -1
	return releaseBlock(b)
}

// Block returns the block holding the surfel.
func (p *Point) Block() *Block {
	return p.block
}

// Index returns the index of the surfel in its block.
func (p *Point) Index() int {
	return p.index
}

// Surfel returns the underlying surfel record.
func (p *Point) Surfel() *Surfel {
	return p.block.Surfel(p.index)
}

// Node returns the node owning the point's block, if any.
func (p *Point) Node() *Node {
	return p.block.node
}

// Position returns the world position.
func (p *Point) Position() r3.Vector {
	return p.block.WorldPosition(p.Surfel())
}

// Normal returns the normal, zero when unset.
func (p *Point) Normal() r3.Vector {
	return p.Surfel().NormalVector()
}

// Tangent returns the tangent, zero when unset.
func (p *Point) Tangent() r3.Vector {
	return p.Surfel().TangentVector()
}

// Radius returns the radius along axis 0 or 1.
func (p *Point) Radius(axis int) float64 {
	return p.Surfel().Radius(axis)
}

// Color returns the RGB color.
func (p *Point) Color() [3]uint8 {
	return p.Surfel().Color
}

// Depth returns the capture depth.
func (p *Point) Depth() float64 {
	return float64(p.Surfel().Depth)
}

// Elevation returns the elevation above ground.
func (p *Point) Elevation() float64 {
	return float64(p.Surfel().Elevation)
}

// Timestamp returns the absolute timestamp.
func (p *Point) Timestamp() float64 {
	return p.block.WorldTimestamp(p.Surfel())
}

// Identifier returns the surfel identifier.
func (p *Point) Identifier() uint32 {
	return p.Surfel().Identifier
}

// Attribute returns the attribute bits.
func (p *Point) Attribute() uint32 {
	return p.Surfel().Attribute
}

// HasNormal reports whether the normal is set.
func (p *Point) HasNormal() bool { return p.Surfel().HasNormal() }

// HasTangent reports whether the tangent is set.
func (p *Point) HasTangent() bool { return p.Surfel().HasTangent() }

// IsActive reports whether the surfel is active.
func (p *Point) IsActive() bool { return p.Surfel().IsActive() }

// IsMarked reports whether the surfel is marked.
func (p *Point) IsMarked() bool { return p.Surfel().IsMarked() }

// IsAerial reports whether the surfel was captured from the air.
func (p *Point) IsAerial() bool { return p.Surfel().IsAerial() }

// IsTerrestrial reports whether the surfel was captured from the ground.
func (p *Point) IsTerrestrial() bool { return p.Surfel().IsTerrestrial() }

// SetPosition moves the surfel to a world position.
func (p *Point) SetPosition(position r3.Vector) { p.block.SetSurfelPosition(p.index, position) }

// SetNormal sets the normal.
func (p *Point) SetNormal(normal r3.Vector) { p.block.SetSurfelNormal(p.index, normal) }

// SetTangent sets the tangent.
func (p *Point) SetTangent(tangent r3.Vector) { p.block.SetSurfelTangent(p.index, tangent) }

// SetRadius sets both radii.
func (p *Point) SetRadius(radius float64) { p.block.SetSurfelRadius(p.index, radius) }

// SetRadii sets the radii along the tangent and bitangent.
func (p *Point) SetRadii(r0, r1 float64) { p.block.SetSurfelRadii(p.index, r0, r1) }

// SetColor sets the RGB color.
func (p *Point) SetColor(rgb [3]uint8) { p.block.SetSurfelColor(p.index, rgb) }

// SetDepth sets the capture depth.
func (p *Point) SetDepth(depth float64) { p.block.SetSurfelDepth(p.index, depth) }

// SetElevation sets the elevation.
func (p *Point) SetElevation(elevation float64) { p.block.SetSurfelElevation(p.index, elevation) }

// SetTimestamp sets the absolute timestamp.
func (p *Point) SetTimestamp(timestamp float64) { p.block.SetSurfelTimestamp(p.index, timestamp) }

// SetIdentifier sets the identifier.
func (p *Point) SetIdentifier(id uint32) { p.block.SetSurfelIdentifier(p.index, id) }

// SetAttribute sets the attribute bits.
func (p *Point) SetAttribute(attribute uint32) { p.block.SetSurfelAttribute(p.index, attribute) }

// SetActive sets or clears the active flag.
func (p *Point) SetActive(active bool) { p.block.SetSurfelFlags(p.index, FlagActive, active) }

// SetAerial sets or clears the aerial flag.
func (p *Point) SetAerial(aerial bool) { p.block.SetSurfelFlags(p.index, FlagAerial, aerial) }

// SetMark sets or clears the mark. Marks are not persisted.
func (p *Point) SetMark(mark bool) { p.Surfel().setFlag(FlagMarked, mark) }
