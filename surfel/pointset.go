package surfel

import (
	"bufio"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// PointSet is a collection of points drawn from any number of blocks. Each
// point holds a lease on its block, so every block referenced by the set stays
// resident until the points are removed or the set is emptied.
//
// The bounding box and timestamp range grow with every insertion and are not
// shrunk by removals; UpdateBBox recomputes them exactly. Removal swaps the
// last point into the vacated slot, so indices are only stable until the
// next removal.
type PointSet struct {
	points         []*Point
	bbox           spatial.Box
	timestampRange spatial.Interval
}

type pointKey struct {
	block *Block
	index int
}

func keyOf(p *Point) pointKey {
	return pointKey{block: p.block, index: p.index}
}

// NewPointSet returns an empty set.
func NewPointSet() *PointSet {
	return &PointSet{
		bbox:           spatial.EmptyBox(),
		timestampRange: spatial.EmptyInterval(),
	}
}

// NPoints returns the number of points.
func (s *PointSet) NPoints() int {
	return len(s.points)
}

// Point returns the k-th point.
func (s *PointSet) Point(k int) *Point {
	return s.points[k]
}

// Points returns the points. The slice must not be modified.
func (s *PointSet) Points() []*Point {
	return s.points
}

// Positions returns the world position of every point, in set order.
func (s *PointSet) Positions() []r3.Vector {
	return lo.Map(s.points, func(p *Point, _ int) r3.Vector { return p.Position() })
}

// BBox returns a box containing every point, possibly larger than needed.
func (s *PointSet) BBox() spatial.Box {
	return s.bbox
}

// TimestampRange returns a range containing every point's timestamp.
func (s *PointSet) TimestampRange() spatial.Interval {
	return s.timestampRange
}

// Centroid returns the mean position, the origin for an empty set.
func (s *PointSet) Centroid() r3.Vector {
	if len(s.points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range s.points {
		sum = sum.Add(p.Position())
	}
	return sum.Mul(1 / float64(len(s.points)))
}

// PrincipleAxes returns the principal axes of the points about center, or
// about the centroid when center is nil, with the variance along each axis.
func (s *PointSet) PrincipleAxes(center *r3.Vector) (spatial.Triad, [3]float64) {
	if len(s.points) == 0 {
		return spatial.XYZTriad(), [3]float64{}
	}
	c := s.Centroid()
	if center != nil {
		c = *center
	}
	return spatial.PrincipleAxes(c, s.Positions(), nil)
}

// PointIndex returns the index of the point referring to the same surfel as
// p, or -1.
func (s *PointSet) PointIndex(p *Point) int {
	key := keyOf(p)
	_, k, ok := lo.FindIndexOf(s.points, func(q *Point) bool { return keyOf(q) == key })
	if !ok {
		return -1
	}
	return k
}

func (s *PointSet) extend(p *Point) {
	s.bbox = s.bbox.UnionPoint(p.Position())
	s.timestampRange = s.timestampRange.UnionValue(p.Timestamp())
}

// InsertPoint adds a copy of p, taking its own lease on p's block.
func (s *PointSet) InsertPoint(p *Point) {
	s.points = append(s.points, newLeasedPoint(p.block, p.index))
	s.extend(p)
}

// RemovePoint removes the point referring to the same surfel as p, if present.
func (s *PointSet) RemovePoint(p *Point) error {
	k := s.PointIndex(p)
	if k < 0 {
		return nil
	}
	return s.RemovePointAt(k)
}

// RemovePointAt removes the k-th point by moving the last point into its place.
func (s *PointSet) RemovePointAt(k int) error {
	if k < 0 || k >= len(s.points) {
		panic(errors.Errorf("point index %d out of range [0,%d)", k, len(s.points)))
	}
	p := s.points[k]
	last := len(s.points) - 1
	s.points[k] = s.points[last]
	s.points[last] = nil
	s.points = s.points[:last]
	return p.Release()
}

// Empty releases every point and resets the bounds.
func (s *PointSet) Empty() error {
	var err error
	for _, p := range s.points {
		err = multierr.Combine(err, p.Release())
	}
	s.points = nil
	s.bbox = spatial.EmptyBox()
	s.timestampRange = spatial.EmptyInterval()
	return err
}

// removeIf removes every point for which drop returns true.
func (s *PointSet) removeIf(drop func(*Point) bool) error {
	var err error
	for k := 0; k < len(s.points); {
		if drop(s.points[k]) {
			err = multierr.Combine(err, s.RemovePointAt(k))
			continue
		}
		k++
	}
	return err
}

func (s *PointSet) keys() map[pointKey]struct{} {
	keys := make(map[pointKey]struct{}, len(s.points))
	for _, p := range s.points {
		keys[keyOf(p)] = struct{}{}
	}
	return keys
}

// Union adds the points of other that are not already in s.
func (s *PointSet) Union(other *PointSet) {
	have := s.keys()
	for _, p := range other.points {
		key := keyOf(p)
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = struct{}{}
		s.points = append(s.points, newLeasedPoint(p.block, p.index))
	}
	s.bbox = s.bbox.Union(other.bbox)
	s.timestampRange = s.timestampRange.Union(other.timestampRange)
}

// Intersect keeps only the points that are also in other.
func (s *PointSet) Intersect(other *PointSet) error {
	keep := other.keys()
	return s.removeIf(func(p *Point) bool {
		_, ok := keep[keyOf(p)]
		return !ok
	})
}

// Subtract removes the points that are in other.
func (s *PointSet) Subtract(other *PointSet) error {
	drop := other.keys()
	return s.removeIf(func(p *Point) bool {
		_, ok := drop[keyOf(p)]
		return ok
	})
}

// SetMarks sets or clears the mark of every point.
func (s *PointSet) SetMarks(mark bool) {
	for _, p := range s.points {
		p.SetMark(mark)
	}
}

// Blocks returns the distinct blocks referenced by the set, in first-use order.
func (s *PointSet) Blocks() []*Block {
	return lo.Uniq(lo.Map(s.points, func(p *Point, _ int) *Block { return p.block }))
}

// Nodes returns the distinct nodes owning the set's blocks.
func (s *PointSet) Nodes() []*Node {
	return lo.Uniq(lo.FilterMap(s.points, func(p *Point, _ int) (*Node, bool) {
		return p.block.node, p.block.node != nil
	}))
}

// Objects returns the distinct objects of the nodes owning the set's blocks.
func (s *PointSet) Objects() []Object {
	return lo.Uniq(lo.FilterMap(s.Nodes(), func(n *Node, _ int) (Object, bool) {
		return n.object, n.object != nil
	}))
}

// UpdateBBox recomputes the bounding box and timestamp range from the points.
func (s *PointSet) UpdateBBox() {
	s.bbox = spatial.EmptyBox()
	s.timestampRange = spatial.EmptyInterval()
	for _, p := range s.points {
		s.extend(p)
	}
}

// WriteXYZFile writes one "x y z" line per point.
func (s *PointSet) WriteXYZFile(filename string) (err error) {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", filename)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	for _, p := range s.points {
		pos := p.Position()
		if _, err := fmt.Fprintf(w, "%g %g %g\n", pos.X, pos.Y, pos.Z); err != nil {
			return err
		}
	}
	return w.Flush()
}
