package surfel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// Node aggregate validity bits.
const (
	nodeBBoxUpToDate uint16 = 1 << iota
	nodeComplexityUpToDate
	nodeElevationUpToDate
	nodeTimestampUpToDate
	nodeResolutionUpToDate
	nodeFlagsUpToDate

	// aggregates over the whole subtree; staleness of these is propagated
	// to every ancestor.
	nodeSubtreeMask = nodeBBoxUpToDate | nodeComplexityUpToDate | nodeElevationUpToDate | nodeTimestampUpToDate
	// aggregates over the node's own blocks.
	nodeLocalMask = nodeResolutionUpToDate | nodeFlagsUpToDate
	nodeAllMask   = nodeSubtreeMask | nodeLocalMask
)

// nodeMaskForBlock maps block cache bits to the node aggregates they feed.
func nodeMaskForBlock(mask uint16) uint16 {
	var m uint16
	if mask&bboxUpToDate != 0 {
		m |= nodeBBoxUpToDate
	}
	if mask&resolutionUpToDate != 0 {
		m |= nodeResolutionUpToDate
	}
	if mask&timestampUpToDate != 0 {
		m |= nodeTimestampUpToDate
	}
	if mask&elevationUpToDate != 0 {
		m |= nodeElevationUpToDate
	}
	if mask&flagsUpToDate != 0 {
		m |= nodeFlagsUpToDate
	}
	return m
}

// Node groups blocks and child nodes (parts) of a Tree. Aggregate properties
// are cached and recomputed on the first read after a change below the node.
type Node struct {
	name      string
	tree      *Tree
	treeIndex int
	parent    *Node
	parts     []*Node
	blocks    []*Block
	object    Object
	scan      Scan

	complexity     int64
	resolution     float64
	bbox           spatial.Box
	elevationRange spatial.Interval
	timestampRange spatial.Interval
	summary        uint16
	uptodate       uint16
}

// NewNode returns a detached node. It joins a tree through Tree.InsertNode.
func NewNode(name string) *Node {
	return &Node{name: name, treeIndex: -1}
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// SetName renames the node.
func (n *Node) SetName(name string) {
	n.name = name
	n.setDirty()
}

// Tree returns the tree the node belongs to.
func (n *Node) Tree() *Tree {
	return n.tree
}

// TreeIndex returns the position of the node in its tree, or -1.
func (n *Node) TreeIndex() int {
	return n.treeIndex
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// NParts returns the number of child nodes.
func (n *Node) NParts() int {
	return len(n.parts)
}

// Part returns the i-th child node.
func (n *Node) Part(i int) *Node {
	return n.parts[i]
}

// Parts returns the child nodes. The slice must not be modified.
func (n *Node) Parts() []*Node {
	return n.parts
}

// NBlocks returns the number of blocks directly owned by the node.
func (n *Node) NBlocks() int {
	return len(n.blocks)
}

// Block returns the i-th block.
func (n *Node) Block(i int) *Block {
	return n.blocks[i]
}

// Blocks returns the blocks directly owned by the node. The slice must not be modified.
func (n *Node) Blocks() []*Block {
	return n.blocks
}

// Object returns the object associated with this node.
func (n *Node) Object() Object {
	return n.object
}

// SetObject associates an object with this node.
func (n *Node) SetObject(object Object) {
	n.object = object
	n.setDirty()
}

// Scan returns the scan associated with this node.
func (n *Node) Scan() Scan {
	return n.scan
}

// SetScan associates a scan with this node.
func (n *Node) SetScan(scan Scan) {
	n.scan = scan
	n.setDirty()
}

// FindObject returns the node's object, or failing that the object of the
// most complex descendant part holding one, or of the nearest ancestor.
func (n *Node) FindObject(searchAncestors, searchDescendants bool) Object {
	if n.object != nil {
		return n.object
	}
	if searchDescendants {
		var best Object
		var bestComplexity int64
		for _, part := range n.parts {
			if object := part.FindObject(false, true); object != nil {
				if c := part.Complexity(); best == nil || c > bestComplexity {
					best, bestComplexity = object, c
				}
			}
		}
		if best != nil {
			return best
		}
	}
	if searchAncestors {
		for a := n.parent; a != nil; a = a.parent {
			if a.object != nil {
				return a.object
			}
		}
	}
	return nil
}

// FindScan returns the node's scan or, when searchAncestors is set, the scan
// of the nearest ancestor that has one.
func (n *Node) FindScan(searchAncestors bool) Scan {
	if !searchAncestors {
		return n.scan
	}
	for a := n; a != nil; a = a.parent {
		if a.scan != nil {
			return a.scan
		}
	}
	return nil
}

// TreeLevel returns the number of hops to the root; the root is level 0.
func (n *Node) TreeLevel() int {
	level := 0
	for a := n.parent; a != nil; a = a.parent {
		level++
	}
	return level
}

// HasSurfels reports whether a block of this node holds surfels or, with
// leafLevel set, whether any descendant does.
func (n *Node) HasSurfels(leafLevel bool) bool {
	if lo.ContainsBy(n.blocks, func(b *Block) bool { return b.NSurfels() > 0 }) {
		return true
	}
	if leafLevel {
		return lo.ContainsBy(n.parts, func(p *Node) bool { return p.HasSurfels(true) })
	}
	return false
}

// Complexity returns the number of surfels in the subtree.
func (n *Node) Complexity() int64 {
	n.update(nodeComplexityUpToDate)
	return n.complexity
}

// Resolution returns the minimum resolution over the node's own blocks, 0
// when it has no surfels.
func (n *Node) Resolution() float64 {
	n.update(nodeResolutionUpToDate)
	return n.resolution
}

// AverageRadius returns the surfel count weighted mean of the block average radii.
func (n *Node) AverageRadius() float64 {
	var total, weight float64
	for _, b := range n.blocks {
		w := float64(b.NSurfels())
		total += w * b.AverageRadius()
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

// BBox returns the bounding box of the subtree.
func (n *Node) BBox() spatial.Box {
	n.update(nodeBBoxUpToDate)
	return n.bbox
}

// Centroid returns the center of the bounding box.
func (n *Node) Centroid() r3.Vector {
	return n.BBox().Centroid()
}

// ElevationRange returns the elevation range of the subtree.
func (n *Node) ElevationRange() spatial.Interval {
	n.update(nodeElevationUpToDate)
	return n.elevationRange
}

// TimestampRange returns the timestamp range of the subtree.
func (n *Node) TimestampRange() spatial.Interval {
	n.update(nodeTimestampUpToDate)
	return n.timestampRange
}

func (n *Node) hasSummary(flag uint16) bool {
	n.update(nodeFlagsUpToDate)
	return n.summary&flag != 0
}

// HasActive reports whether an own block has active surfels.
func (n *Node) HasActive() bool { return n.hasSummary(blockHasActive) }

// HasNormals reports whether an own block has surfels with normals.
func (n *Node) HasNormals() bool { return n.hasSummary(blockHasNormals) }

// HasTangents reports whether an own block has surfels with tangents.
func (n *Node) HasTangents() bool { return n.hasSummary(blockHasTangents) }

// HasAerial reports whether an own block has aerial surfels.
func (n *Node) HasAerial() bool { return n.hasSummary(blockHasAerial) }

// HasTerrestrial reports whether an own block has terrestrial surfels.
func (n *Node) HasTerrestrial() bool { return n.hasSummary(blockHasTerrestrial) }

// IsStale reports whether any cached aggregate needs recomputing.
func (n *Node) IsStale() bool {
	return n.uptodate&nodeAllMask != nodeAllMask
}

// invalidate marks aggregates stale. Subtree aggregates are cleared on every
// ancestor up to the first one on which they are already stale.
func (n *Node) invalidate(mask uint16) {
	n.uptodate &^= mask & nodeLocalMask
	subtree := mask & nodeSubtreeMask
	for a := n; a != nil && subtree != 0; a = a.parent {
		if a.uptodate&subtree == 0 {
			break
		}
		a.uptodate &^= subtree
	}
}

func (n *Node) update(mask uint16) {
	stale := mask &^ n.uptodate
	if stale == 0 {
		return
	}
	if stale&nodeComplexityUpToDate != 0 {
		var c int64
		for _, b := range n.blocks {
			c += int64(b.NSurfels())
		}
		for _, p := range n.parts {
			c += p.Complexity()
		}
		n.complexity = c
	}
	if stale&nodeBBoxUpToDate != 0 {
		bbox := spatial.EmptyBox()
		for _, b := range n.blocks {
			bbox = bbox.Union(b.BBox())
		}
		for _, p := range n.parts {
			bbox = bbox.Union(p.BBox())
		}
		n.bbox = bbox
	}
	if stale&nodeElevationUpToDate != 0 {
		r := spatial.EmptyInterval()
		for _, b := range n.blocks {
			r = r.Union(b.ElevationRange())
		}
		for _, p := range n.parts {
			r = r.Union(p.ElevationRange())
		}
		n.elevationRange = r
	}
	if stale&nodeTimestampUpToDate != 0 {
		r := spatial.EmptyInterval()
		for _, b := range n.blocks {
			r = r.Union(b.TimestampRange())
		}
		for _, p := range n.parts {
			r = r.Union(p.TimestampRange())
		}
		n.timestampRange = r
	}
	if stale&nodeResolutionUpToDate != 0 {
		res := math.MaxFloat64
		for _, b := range n.blocks {
			if b.NSurfels() > 0 {
				res = math.Min(res, b.Resolution())
			}
		}
		if res == math.MaxFloat64 {
			res = 0
		}
		n.resolution = res
	}
	if stale&nodeFlagsUpToDate != 0 {
		var summary uint16
		for _, b := range n.blocks {
			b.updateProperties(flagsUpToDate)
			summary |= b.summary
		}
		n.summary = summary
	}
	n.uptodate |= stale
}

func (n *Node) setDirty() {
	if n.tree != nil {
		n.tree.setDirty()
	}
}

// SetParent moves the node under a new parent of the same tree. The root
// cannot be reparented.
func (n *Node) SetParent(parent *Node) {
	if parent == nil {
		panic(errors.Errorf("node %q: nil parent", n.name))
	}
	if n.parent == nil {
		panic(errors.Errorf("node %q has no parent and cannot be reparented", n.name))
	}
	if n.tree == nil || parent.tree != n.tree {
		panic(errors.Errorf("node %q and new parent %q belong to different trees", n.name, parent.name))
	}
	if parent == n.parent {
		return
	}
	for a := parent; a != nil; a = a.parent {
		if a == n {
			panic(errors.Errorf("node %q cannot become a descendant of itself", n.name))
		}
	}
	n.parent.invalidate(nodeSubtreeMask)
	parent.invalidate(nodeSubtreeMask)
	n.parent.parts = lo.Without(n.parent.parts, n)
	parent.parts = append(parent.parts, n)
	n.parent = parent
	n.setDirty()
}

// InsertBlock makes the node the owner of a block. A block belongs to at most one node.
func (n *Node) InsertBlock(b *Block) {
	if b.node != nil {
		panic(errors.Errorf("block %d already belongs to node %q", b.databaseIndex, b.node.name))
	}
	n.blocks = append(n.blocks, b)
	b.node = n
	n.invalidate(nodeAllMask)
	n.setDirty()
}

// RemoveBlock releases the node's ownership of a block.
func (n *Node) RemoveBlock(b *Block) {
	if b.node != n {
		panic(errors.Errorf("block %d does not belong to node %q", b.databaseIndex, n.name))
	}
	n.blocks = lo.Without(n.blocks, b)
	b.node = nil
	n.invalidate(nodeAllMask)
	n.setDirty()
}

// Transform applies xf to every block of the node. It stops at the first
// block that cannot be paged in.
func (n *Node) Transform(xf spatial.Affine) error {
	for _, b := range n.blocks {
		if err := b.Transform(xf); err != nil {
			return errors.Wrapf(err, "node %q", n.name)
		}
	}
	for a := n; a != nil; a = a.parent {
		a.uptodate &^= nodeBBoxUpToDate
	}
	n.setDirty()
	return nil
}

// SetMarks sets or clears the mark of every surfel in the node's blocks.
func (n *Node) SetMarks(mark bool) {
	for _, b := range n.blocks {
		b.SetMarks(mark)
	}
}

// ReadBlocks takes a lease on every database block of the node, and of the
// whole subtree when subtree is set.
func (n *Node) ReadBlocks(subtree bool) error {
	for _, b := range n.blocks {
		if b.database == nil {
			continue
		}
		if err := b.database.ReadBlock(b); err != nil {
			return err
		}
	}
	if subtree {
		for _, p := range n.parts {
			if err := p.ReadBlocks(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReleaseBlocks returns the leases taken by ReadBlocks.
func (n *Node) ReleaseBlocks(subtree bool) error {
	for _, b := range n.blocks {
		if b.database == nil {
			continue
		}
		if err := b.database.ReleaseBlock(b); err != nil {
			return err
		}
	}
	if subtree {
		for _, p := range n.parts {
			if err := p.ReleaseBlocks(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// AreBlocksResident reports whether every block of the node is paged in.
func (n *Node) AreBlocksResident() bool {
	return lo.EveryBy(n.blocks, func(b *Block) bool { return b.IsResident() })
}

// PointSet returns the surfels of the node's blocks, or of the leaf nodes
// below it when leafLevel is set, subsampled to at most maxResolution when
// it is positive.
func (n *Node) PointSet(leafLevel bool, maxResolution float64) (*PointSet, error) {
	set := NewPointSet()
	if err := n.insertIntoPointSet(set, leafLevel, maxResolution); err != nil {
		utils.UncheckedError(set.Empty())
		return nil, err
	}
	return set, nil
}

func (n *Node) insertIntoPointSet(set *PointSet, leafLevel bool, maxResolution float64) error {
	if leafLevel && len(n.parts) > 0 {
		for _, p := range n.parts {
			if err := p.insertIntoPointSet(set, leafLevel, maxResolution); err != nil {
				return err
			}
		}
		return nil
	}
	for _, b := range n.blocks {
		var err error
		if maxResolution > 0 {
			err = set.InsertPointsAtResolution(b, maxResolution)
		} else {
			err = set.InsertPoints(b)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
