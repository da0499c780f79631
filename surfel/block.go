package surfel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// Block summary flags, cached alongside the other block properties.
const (
	blockHasNormals uint16 = 1 << iota
	blockHasTangents
	blockHasActive
	blockHasAerial
	blockHasTerrestrial
)

// Block cache validity bits.
const (
	bboxUpToDate uint16 = 1 << iota
	resolutionUpToDate
	timestampUpToDate
	elevationUpToDate
	identifierUpToDate
	flagsUpToDate

	allUpToDate = bboxUpToDate | resolutionUpToDate | timestampUpToDate |
		elevationUpToDate | identifierUpToDate | flagsUpToDate
)

// Block is an array of surfels sharing a position origin and a timestamp
// origin, with cached aggregate properties. A block is referenced by at most
// one Database and at most one Node; neither reference implies ownership of
// the other.
type Block struct {
	surfels  []Surfel
	nsurfels int

	positionOrigin  r3.Vector
	timestampOrigin float64

	bbox           spatial.Box
	resolution     float64
	timestampRange spatial.Interval
	elevationRange spatial.Interval
	minIdentifier  uint32
	maxIdentifier  uint32
	summary        uint16
	uptodate       uint16

	database      *Database
	databaseIndex int
	fileOffset    uint64
	fileCount     uint32
	readCount     int
	dirty         bool
	deletePending bool

	node *Node
}

// NewBlock returns a block holding a copy of surfels, whose positions and
// timestamps are relative to the given origins.
func NewBlock(surfels []Surfel, positionOrigin r3.Vector, timestampOrigin float64) *Block {
	b := &Block{
		surfels:         make([]Surfel, len(surfels)),
		nsurfels:        len(surfels),
		positionOrigin:  positionOrigin,
		timestampOrigin: timestampOrigin,
		databaseIndex:   -1,
	}
	copy(b.surfels, surfels)
	b.invalidate(allUpToDate)
	return b
}

// NewBlockFromPositions returns a block with one active surfel per position. The
// position origin is the center of the positions' bounding box.
func NewBlockFromPositions(positions []r3.Vector) *Block {
	bbox := spatial.EmptyBox()
	for _, p := range positions {
		bbox = bbox.UnionPoint(p)
	}
	origin := bbox.Centroid()
	surfels := make([]Surfel, len(positions))
	for i, p := range positions {
		surfels[i].Flags = FlagActive
		surfels[i].setPosition(p.Sub(origin))
	}
	return NewBlock(surfels, origin, 0)
}

// NewBlockFromPointSet returns a block holding copies of the surfels referenced
// by set, re-expressed relative to the set's centroid and earliest timestamp.
func NewBlockFromPointSet(set *PointSet) *Block {
	origin := set.Centroid()
	tOrigin := 0.0
	if tr := set.TimestampRange(); !tr.IsEmpty() {
		tOrigin = tr.Min
	}
	surfels := make([]Surfel, set.NPoints())
	for i, p := range set.points {
		s := *p.Surfel()
		s.setPosition(p.Position().Sub(origin))
		s.Timestamp = float32(p.Timestamp() - tOrigin)
		surfels[i] = s
	}
	return NewBlock(surfels, origin, tOrigin)
}

// NSurfels returns the number of surfels, resident or not.
func (b *Block) NSurfels() int {
	return b.nsurfels
}

// IsResident reports whether the surfels are in memory. Blocks outside any
// database are always resident.
func (b *Block) IsResident() bool {
	if b.database == nil {
		return true
	}
	return b.readCount > 0
}

// ReadCount returns the number of outstanding leases on the block.
func (b *Block) ReadCount() int {
	return b.readCount
}

// Database returns the database the block belongs to, if any.
func (b *Block) Database() *Database {
	return b.database
}

// DatabaseIndex returns the index of the block in its database, or -1.
func (b *Block) DatabaseIndex() int {
	return b.databaseIndex
}

// Node returns the node the block belongs to, if any.
func (b *Block) Node() *Node {
	return b.node
}

// IsDirty reports whether the block has changes not yet written to the backing store.
func (b *Block) IsDirty() bool {
	return b.dirty
}

// IsDeletePending reports whether the block was removed and awaits a purge.
func (b *Block) IsDeletePending() bool {
	return b.deletePending
}

// PositionOrigin returns the world position that surfel positions are relative to.
func (b *Block) PositionOrigin() r3.Vector {
	return b.positionOrigin
}

// TimestampOrigin returns the timestamp that surfel timestamps are relative to.
func (b *Block) TimestampOrigin() float64 {
	return b.timestampOrigin
}

// Surfel returns the i-th surfel. The block must be resident.
func (b *Block) Surfel(i int) *Surfel {
	if b.surfels == nil {
		panic(errors.Errorf("surfel %d requested from non-resident block %d", i, b.databaseIndex))
	}
	return &b.surfels[i]
}

// WorldPosition returns the world position of a surfel of this block.
func (b *Block) WorldPosition(s *Surfel) r3.Vector {
	return b.positionOrigin.Add(s.PositionVector())
}

// WorldTimestamp returns the absolute timestamp of a surfel of this block.
func (b *Block) WorldTimestamp(s *Surfel) float64 {
	return b.timestampOrigin + float64(s.Timestamp)
}

// SurfelPosition returns the world position of the i-th surfel.
func (b *Block) SurfelPosition(i int) r3.Vector {
	return b.WorldPosition(b.Surfel(i))
}

// SurfelTimestamp returns the absolute timestamp of the i-th surfel.
func (b *Block) SurfelTimestamp(i int) float64 {
	return b.WorldTimestamp(b.Surfel(i))
}

// BBox returns the world bounding box of the surfels.
func (b *Block) BBox() spatial.Box {
	b.updateProperties(bboxUpToDate)
	return b.bbox
}

// Centroid returns the center of the bounding box.
func (b *Block) Centroid() r3.Vector {
	return b.BBox().Centroid()
}

// Resolution returns the number of surfels per unit area, 0 for an empty block.
func (b *Block) Resolution() float64 {
	b.updateProperties(resolutionUpToDate)
	return b.resolution
}

// AverageRadius returns the radius of a disc covering the area of one surfel.
func (b *Block) AverageRadius() float64 {
	res := b.Resolution()
	if res <= 0 {
		return 0
	}
	return math.Sqrt(1 / (res * math.Pi))
}

// TimestampRange returns the range of absolute surfel timestamps.
func (b *Block) TimestampRange() spatial.Interval {
	b.updateProperties(timestampUpToDate)
	return b.timestampRange
}

// ElevationRange returns the range of surfel elevations.
func (b *Block) ElevationRange() spatial.Interval {
	b.updateProperties(elevationUpToDate)
	return b.elevationRange
}

// MinIdentifier returns the smallest surfel identifier.
func (b *Block) MinIdentifier() uint32 {
	b.updateProperties(identifierUpToDate)
	return b.minIdentifier
}

// MaxIdentifier returns the largest surfel identifier.
func (b *Block) MaxIdentifier() uint32 {
	b.updateProperties(identifierUpToDate)
	return b.maxIdentifier
}

func (b *Block) hasSummary(flag uint16) bool {
	b.updateProperties(flagsUpToDate)
	return b.summary&flag != 0
}

// HasNormals reports whether any surfel has a normal.
func (b *Block) HasNormals() bool { return b.hasSummary(blockHasNormals) }

// HasTangents reports whether any surfel has a tangent.
func (b *Block) HasTangents() bool { return b.hasSummary(blockHasTangents) }

// HasActive reports whether any surfel is active.
func (b *Block) HasActive() bool { return b.hasSummary(blockHasActive) }

// HasAerial reports whether any surfel is aerial.
func (b *Block) HasAerial() bool { return b.hasSummary(blockHasAerial) }

// HasTerrestrial reports whether any surfel is terrestrial.
func (b *Block) HasTerrestrial() bool { return b.hasSummary(blockHasTerrestrial) }

func (b *Block) invalidate(mask uint16) {
	b.uptodate &^= mask
}

// page takes a lease on a non-resident database block so that its surfels can
// be visited, and returns the function giving the lease back.
func (b *Block) page() (func() error, error) {
	if b.surfels != nil || b.nsurfels == 0 || b.database == nil {
		return func() error { return nil }, nil
	}
	if err := b.database.ReadBlock(b); err != nil {
		return nil, errors.Wrapf(err, "paging in block %d", b.databaseIndex)
	}
	return func() error { return b.database.ReleaseBlock(b) }, nil
}

// updateProperties recomputes the stale properties in mask, paging the
// surfels in for the duration when needed. Properties that cannot be
// recomputed stay stale.
func (b *Block) updateProperties(mask uint16) {
	stale := mask &^ b.uptodate
	if stale == 0 {
		return
	}
	release, err := b.page()
	if err != nil {
		b.database.logger.Errorw("cannot update block properties", "index", b.databaseIndex, "error", err)
		return
	}
	defer func() {
		if err := release(); err != nil {
			b.database.logger.Errorw("cannot release block", "index", b.databaseIndex, "error", err)
		}
	}()

	if stale&bboxUpToDate != 0 {
		bbox := spatial.EmptyBox()
		for i := range b.surfels {
			bbox = bbox.UnionPoint(b.WorldPosition(&b.surfels[i]))
		}
		b.bbox = bbox
	}
	if stale&timestampUpToDate != 0 {
		tr := spatial.EmptyInterval()
		for i := range b.surfels {
			tr = tr.UnionValue(b.WorldTimestamp(&b.surfels[i]))
		}
		b.timestampRange = tr
	}
	if stale&elevationUpToDate != 0 {
		er := spatial.EmptyInterval()
		for i := range b.surfels {
			er = er.UnionValue(float64(b.surfels[i].Elevation))
		}
		b.elevationRange = er
	}
	if stale&identifierUpToDate != 0 {
		b.minIdentifier, b.maxIdentifier = 0, 0
		for i := range b.surfels {
			id := b.surfels[i].Identifier
			if i == 0 || id < b.minIdentifier {
				b.minIdentifier = id
			}
			if id > b.maxIdentifier {
				b.maxIdentifier = id
			}
		}
	}
	if stale&flagsUpToDate != 0 {
		var summary uint16
		for i := range b.surfels {
			s := &b.surfels[i]
			if s.HasNormal() {
				summary |= blockHasNormals
			}
			if s.HasTangent() {
				summary |= blockHasTangents
			}
			if s.IsActive() {
				summary |= blockHasActive
			}
			if s.IsAerial() {
				summary |= blockHasAerial
			}
			if s.IsTerrestrial() {
				summary |= blockHasTerrestrial
			}
		}
		b.summary = summary
	}
	if stale&resolutionUpToDate != 0 {
		b.resolution = b.computeResolution()
	}
	b.uptodate |= stale
}

// computeResolution derives surfels per unit area from the mean radius when
// radii are known and from the bounding box footprint otherwise.
func (b *Block) computeResolution() float64 {
	n := len(b.surfels)
	if n == 0 {
		return 0
	}
	var total float64
	var count int
	for i := range b.surfels {
		if r := b.surfels[i].Radius(0); r > 0 {
			total += r
			count++
		}
	}
	if count > 0 {
		r := total / float64(count)
		return 1 / (math.Pi * r * r)
	}

	bbox := spatial.EmptyBox()
	for i := range b.surfels {
		bbox = bbox.UnionPoint(b.surfels[i].PositionVector())
	}
	l := bbox.Lengths()
	extents := []float64{l.X, l.Y, l.Z}
	if extents[0] < extents[1] {
		extents[0], extents[1] = extents[1], extents[0]
	}
	if extents[1] < extents[2] {
		extents[1], extents[2] = extents[2], extents[1]
	}
	if extents[0] < extents[1] {
		extents[0], extents[1] = extents[1], extents[0]
	}
	area := extents[0] * extents[1]
	if area <= 0 {
		area = extents[0] * extents[0]
	}
	if area <= 0 {
		return 0
	}
	return float64(n) / area
}

// SetDirty marks the block as changed. Dirty blocks are written to the
// backing store when their last lease is released or the database syncs.
func (b *Block) SetDirty() {
	b.dirty = true
	if b.database != nil {
		b.database.setDirty()
	}
}

// surfelsChanged records a mutation affecting the given cached properties.
func (b *Block) surfelsChanged(mask uint16) {
	b.invalidate(mask)
	b.SetDirty()
	if b.node != nil {
		b.node.invalidate(nodeMaskForBlock(mask))
	}
}

// SetPositionOrigin moves the origin without moving any surfel in world space.
// A non-resident block is paged in for the duration.
func (b *Block) SetPositionOrigin(origin r3.Vector) (err error) {
	release, err := b.page()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, release())
	}()
	delta := b.positionOrigin.Sub(origin)
	for i := range b.surfels {
		s := &b.surfels[i]
		s.setPosition(s.PositionVector().Add(delta))
	}
	b.positionOrigin = origin
	b.surfelsChanged(bboxUpToDate)
	return nil
}

// SetTimestampOrigin moves the timestamp origin without changing absolute
// timestamps. A non-resident block is paged in for the duration.
func (b *Block) SetTimestampOrigin(origin float64) (err error) {
	release, err := b.page()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, release())
	}()
	delta := b.timestampOrigin - origin
	for i := range b.surfels {
		b.surfels[i].Timestamp = float32(float64(b.surfels[i].Timestamp) + delta)
	}
	b.timestampOrigin = origin
	b.surfelsChanged(timestampUpToDate)
	return nil
}

// SetSurfelPosition moves the i-th surfel to a world position.
func (b *Block) SetSurfelPosition(i int, p r3.Vector) {
	b.Surfel(i).setPosition(p.Sub(b.positionOrigin))
	b.surfelsChanged(bboxUpToDate | resolutionUpToDate)
	if b.database != nil {
		b.database.bbox = b.database.bbox.UnionPoint(p)
	}
}

// SetSurfelNormal sets the normal of the i-th surfel; zero unsets it.
func (b *Block) SetSurfelNormal(i int, n r3.Vector) {
	b.Surfel(i).setNormal(n)
	b.surfelsChanged(flagsUpToDate)
}

// SetSurfelTangent sets the tangent of the i-th surfel; zero unsets it.
func (b *Block) SetSurfelTangent(i int, t r3.Vector) {
	b.Surfel(i).setTangent(t)
	b.surfelsChanged(flagsUpToDate)
}

// SetSurfelRadius sets both radii of the i-th surfel.
func (b *Block) SetSurfelRadius(i int, r float64) {
	b.SetSurfelRadii(i, r, r)
}

// SetSurfelRadii sets the radii of the i-th surfel along its tangent and bitangent.
func (b *Block) SetSurfelRadii(i int, r0, r1 float64) {
	b.Surfel(i).setRadii(r0, r1)
	b.surfelsChanged(resolutionUpToDate)
}

// SetSurfelColor sets the RGB color of the i-th surfel.
func (b *Block) SetSurfelColor(i int, rgb [3]uint8) {
	b.Surfel(i).Color = rgb
	b.SetDirty()
}

// SetSurfelDepth sets the capture depth of the i-th surfel.
func (b *Block) SetSurfelDepth(i int, depth float64) {
	b.Surfel(i).Depth = float32(depth)
	b.SetDirty()
}

// SetSurfelElevation sets the elevation above ground of the i-th surfel.
func (b *Block) SetSurfelElevation(i int, elevation float64) {
	b.Surfel(i).Elevation = float32(elevation)
	b.surfelsChanged(elevationUpToDate)
}

// SetSurfelTimestamp sets the absolute timestamp of the i-th surfel.
func (b *Block) SetSurfelTimestamp(i int, timestamp float64) {
	b.Surfel(i).Timestamp = float32(timestamp - b.timestampOrigin)
	b.surfelsChanged(timestampUpToDate)
	if b.database != nil {
		b.database.timestampRange = b.database.timestampRange.UnionValue(timestamp)
	}
}

// SetSurfelIdentifier sets the identifier of the i-th surfel.
func (b *Block) SetSurfelIdentifier(i int, id uint32) {
	b.Surfel(i).Identifier = id
	b.surfelsChanged(identifierUpToDate)
	if b.database != nil && id > b.database.maxIdentifier {
		b.database.maxIdentifier = id
	}
}

// SetSurfelAttribute sets the attribute bits of the i-th surfel.
func (b *Block) SetSurfelAttribute(i int, attribute uint32) {
	b.Surfel(i).Attribute = attribute
	b.SetDirty()
}

// SetSurfelFlags sets or clears flag bits of the i-th surfel.
func (b *Block) SetSurfelFlags(i int, flags uint16, on bool) {
	b.Surfel(i).setFlag(flags, on)
	b.surfelsChanged(flagsUpToDate)
}

// SetSurfelMark sets or clears the mark of the i-th surfel.
func (b *Block) SetSurfelMark(i int, mark bool) {
	b.SetSurfelFlags(i, FlagMarked, mark)
}

// SetMarks sets or clears the mark of every surfel.
func (b *Block) SetMarks(mark bool) {
	for i := range b.surfels {
		b.surfels[i].setFlag(FlagMarked, mark)
	}
	b.SetDirty()
}

// Transform applies xf to every surfel. Positions keep their origin relative
// encoding; normals, tangents and radii follow the linear part. A
// non-resident block is paged in for the duration.
func (b *Block) Transform(xf spatial.Affine) (err error) {
	if xf.IsIdentity() {
		return nil
	}
	release, err := b.page()
	if err != nil {
		return errors.Wrap(err, "cannot transform block")
	}
	defer func() {
		err = multierr.Combine(err, release())
	}()
	scale := xf.Scale()
	for i := range b.surfels {
		s := &b.surfels[i]
		s.setPosition(xf.ApplyVector(s.PositionVector()))
		if s.HasNormal() {
			s.setNormal(xf.ApplyNormal(s.NormalVector()))
		}
		if s.HasTangent() {
			s.setTangent(xf.ApplyVector(s.TangentVector()))
		}
		s.Radii[0] = float32(float64(s.Radii[0]) * scale)
		s.Radii[1] = float32(float64(s.Radii[1]) * scale)
	}
	b.positionOrigin = xf.Apply(b.positionOrigin)
	b.surfelsChanged(bboxUpToDate | resolutionUpToDate)
	if b.database != nil {
		b.database.bbox = b.database.bbox.Union(b.BBox())
	}
	return nil
}
