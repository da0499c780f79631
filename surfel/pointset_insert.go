package surfel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// unbounded returns box with its Z extent opened up, for XY-only tests.
func unbounded(box spatial.Box) spatial.Box {
	box.Min.Z = -math.MaxFloat64
	box.Max.Z = math.MaxFloat64
	return box
}

// cylinderBox returns the bounding box of a vertical cylinder.
func cylinderBox(center r3.Vector, radius, zmin, zmax float64) spatial.Box {
	return spatial.Box{
		Min: r3.Vector{X: center.X - radius, Y: center.Y - radius, Z: zmin},
		Max: r3.Vector{X: center.X + radius, Y: center.Y + radius, Z: zmax},
	}
}

func inCylinder(pos, center r3.Vector, radius, zmin, zmax float64) bool {
	if pos.Z < zmin || pos.Z > zmax {
		return false
	}
	dx, dy := pos.X-center.X, pos.Y-center.Y
	return dx*dx+dy*dy <= radius*radius
}

// copyFromBlock appends a point for every surfel of b accepted by keep. The
// block is leased only for the duration of the copy; each new point holds its
// own lease. When track is set the bounds are extended per accepted point.
func (s *PointSet) copyFromBlock(b *Block, track bool, keep func(i int, s *Surfel) bool) error {
	if err := leaseBlock(b); err != nil {
		return err
	}
	for i := 0; i < b.nsurfels; i++ {
		sfl := b.Surfel(i)
		if keep != nil && !keep(i, sfl) {
			continue
		}
		p := newLeasedPoint(b, i)
		s.points = append(s.points, p)
		if track {
			s.extend(p)
		}
	}
	return releaseBlock(b)
}

// InsertPoints adds every surfel of b.
func (s *PointSet) InsertPoints(b *Block) error {
	if b.NSurfels() == 0 {
		return nil
	}
	s.bbox = s.bbox.Union(b.BBox())
	s.timestampRange = s.timestampRange.Union(b.TimestampRange())
	return s.copyFromBlock(b, false, nil)
}

// InsertPointsInBox2D adds the surfels of b whose XY position lies in box.
func (s *PointSet) InsertPointsInBox2D(b *Block, box spatial.Box) error {
	if b.NSurfels() == 0 {
		return nil
	}
	overlap := unbounded(box).Intersect(b.BBox())
	if overlap.IsEmpty() {
		return nil
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(b.TimestampRange())
	return s.copyFromBlock(b, false, func(_ int, sfl *Surfel) bool {
		return box.Contains2D(b.WorldPosition(sfl))
	})
}

// InsertPointsInBox adds the surfels of b inside box.
func (s *PointSet) InsertPointsInBox(b *Block, box spatial.Box) error {
	if b.NSurfels() == 0 {
		return nil
	}
	overlap := box.Intersect(b.BBox())
	if overlap.IsEmpty() {
		return nil
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(b.TimestampRange())
	return s.copyFromBlock(b, false, func(_ int, sfl *Surfel) bool {
		return box.Contains(b.WorldPosition(sfl))
	})
}

// InsertPointsInCylinder adds the surfels of b inside the vertical cylinder
// of the given XY center and radius spanning [zmin, zmax].
func (s *PointSet) InsertPointsInCylinder(b *Block, center r3.Vector, radius, zmin, zmax float64) error {
	if b.NSurfels() == 0 {
		return nil
	}
	overlap := cylinderBox(center, radius, zmin, zmax).Intersect(b.BBox())
	if overlap.IsEmpty() {
		return nil
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(b.TimestampRange())
	return s.copyFromBlock(b, false, func(_ int, sfl *Surfel) bool {
		return inCylinder(b.WorldPosition(sfl), center, radius, zmin, zmax)
	})
}

// InsertPointsWithConstraint adds the surfels of b accepted by c.
func (s *PointSet) InsertPointsWithConstraint(b *Block, c Constraint) error {
	if b.NSurfels() == 0 || !c.CheckBox(b.BBox()) {
		return nil
	}
	return s.copyFromBlock(b, true, func(_ int, sfl *Surfel) bool {
		return c.CheckSurfel(b, sfl)
	})
}

// subsampleCount returns how many of n surfels to keep so that a block of
// the given resolution is reduced to at most maxResolution. It is never zero
// for a non-empty block.
func subsampleCount(n int, resolution, maxResolution float64) int {
	if maxResolution <= 0 || resolution <= maxResolution {
		return n
	}
	count := int(float64(n) * maxResolution / resolution)
	if count < 1 {
		count = 1
	}
	return count
}

// strideIndices returns count indices spread over [0, n) with a fractional
// stride, truncated to integers.
func strideIndices(n, count int) []int {
	if count >= n {
		return lo.Range(n)
	}
	step := float64(n) / float64(count)
	indices := make([]int, 0, count)
	for x := 0.0; int(x) < n && len(indices) < count; x += step {
		indices = append(indices, int(x))
	}
	return indices
}

// InsertPointsAtResolution adds the surfels of b, subsampled with a fixed
// stride when the block is finer than maxResolution.
func (s *PointSet) InsertPointsAtResolution(b *Block, maxResolution float64) error {
	n := b.NSurfels()
	if n == 0 {
		return nil
	}
	s.bbox = s.bbox.Union(b.BBox())
	s.timestampRange = s.timestampRange.Union(b.TimestampRange())
	count := subsampleCount(n, b.Resolution(), maxResolution)
	if count == n {
		return s.copyFromBlock(b, false, nil)
	}
	keep := make(map[int]struct{}, count)
	for _, i := range strideIndices(n, count) {
		keep[i] = struct{}{}
	}
	return s.copyFromBlock(b, false, func(i int, _ *Surfel) bool {
		_, ok := keep[i]
		return ok
	})
}

// copyFromSet appends a copy of every point of other accepted by keep.
func (s *PointSet) copyFromSet(other *PointSet, track bool, keep func(p *Point) bool) {
	for _, p := range other.points {
		if keep != nil && !keep(p) {
			continue
		}
		s.points = append(s.points, newLeasedPoint(p.block, p.index))
		if track {
			s.extend(p)
		}
	}
}

// InsertSet adds a copy of every point of other.
func (s *PointSet) InsertSet(other *PointSet) {
	if other.NPoints() == 0 {
		return
	}
	s.bbox = s.bbox.Union(other.bbox)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
	s.copyFromSet(other, false, nil)
}

// InsertSetInBox2D adds the points of other whose XY position lies in box.
func (s *PointSet) InsertSetInBox2D(other *PointSet, box spatial.Box) {
	if other.NPoints() == 0 {
		return
	}
	overlap := unbounded(box).Intersect(other.bbox)
	if overlap.IsEmpty() {
		return
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
	s.copyFromSet(other, false, func(p *Point) bool { return box.Contains2D(p.Position()) })
}

// InsertSetInBox adds the points of other inside box.
func (s *PointSet) InsertSetInBox(other *PointSet, box spatial.Box) {
	if other.NPoints() == 0 {
		return
	}
	overlap := box.Intersect(other.bbox)
	if overlap.IsEmpty() {
		return
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
	s.copyFromSet(other, false, func(p *Point) bool { return box.Contains(p.Position()) })
}

// InsertSetInCylinder adds the points of other inside a vertical cylinder.
func (s *PointSet) InsertSetInCylinder(other *PointSet, center r3.Vector, radius, zmin, zmax float64) {
	if other.NPoints() == 0 {
		return
	}
	overlap := cylinderBox(center, radius, zmin, zmax).Intersect(other.bbox)
	if overlap.IsEmpty() {
		return
	}
	s.bbox = s.bbox.Union(overlap)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
	s.copyFromSet(other, false, func(p *Point) bool {
		return inCylinder(p.Position(), center, radius, zmin, zmax)
	})
}

// InsertSetWithConstraint adds the points of other accepted by c.
func (s *PointSet) InsertSetWithConstraint(other *PointSet, c Constraint) {
	if other.NPoints() == 0 || !c.CheckBox(other.bbox) {
		return
	}
	s.copyFromSet(other, true, func(p *Point) bool { return c.CheckSurfel(p.block, p.Surfel()) })
}

// InsertSetAtResolution adds the points of other, subsampling the points of
// each source block the way InsertPointsAtResolution subsamples a block.
func (s *PointSet) InsertSetAtResolution(other *PointSet, maxResolution float64) {
	if other.NPoints() == 0 {
		return
	}
	s.bbox = s.bbox.Union(other.bbox)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
	groups := lo.GroupBy(other.points, func(p *Point) *Block { return p.block })
	for _, b := range other.Blocks() {
		points := groups[b]
		count := subsampleCount(len(points), b.Resolution(), maxResolution)
		for _, i := range strideIndices(len(points), count) {
			p := points[i]
			s.points = append(s.points, newLeasedPoint(p.block, p.index))
		}
	}
}
