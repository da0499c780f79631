package surfel

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/be2rlab/OpenSemanticMapping-sub001/kdtree"
	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// PointGraph links every point of a set to its nearest neighbors. Neighbor
// lists never contain the point itself and are sorted by distance.
type PointGraph struct {
	set          *PointSet
	positions    []r3.Vector
	neighbors    [][]int
	maxNeighbors int
	maxDistance  float64
	tree         *kdtree.Tree
}

// NewPointGraph finds, for each point of set, up to maxNeighbors other points
// within maxDistance. The graph refers to the set's points without leasing
// them; the set must outlive the graph.
func NewPointGraph(set *PointSet, maxNeighbors int, maxDistance float64) *PointGraph {
	positions := set.Positions()
	tree := kdtree.New(positions)
	neighbors := make([][]int, len(positions))
	for i, pos := range positions {
		neighbors[i] = tree.FindClosest(pos, i, 0, maxDistance, maxNeighbors)
	}
	return &PointGraph{
		set:          set,
		positions:    positions,
		neighbors:    neighbors,
		maxNeighbors: maxNeighbors,
		maxDistance:  maxDistance,
		tree:         tree,
	}
}

// PointSet returns the set the graph was built over.
func (g *PointGraph) PointSet() *PointSet {
	return g.set
}

// NPoints returns the number of vertices.
func (g *PointGraph) NPoints() int {
	return len(g.positions)
}

// Point returns the i-th vertex.
func (g *PointGraph) Point(i int) *Point {
	return g.set.Point(i)
}

// Position returns the world position of the i-th vertex.
func (g *PointGraph) Position(i int) r3.Vector {
	return g.positions[i]
}

// NNeighbors returns the number of neighbors of the i-th vertex.
func (g *PointGraph) NNeighbors(i int) int {
	return len(g.neighbors[i])
}

// Neighbor returns the vertex index of the k-th neighbor of vertex i.
func (g *PointGraph) Neighbor(i, k int) int {
	return g.neighbors[i][k]
}

// Neighbors returns the neighbor indices of vertex i. The slice must not be modified.
func (g *PointGraph) Neighbors(i int) []int {
	return g.neighbors[i]
}

// PointIndex returns the vertex index of the point referring to the same
// surfel as p, or -1.
func (g *PointGraph) PointIndex(p *Point) int {
	return g.set.PointIndex(p)
}

// MaxNeighbors returns the neighbor limit the graph was built with.
func (g *PointGraph) MaxNeighbors() int {
	return g.maxNeighbors
}

// MaxDistance returns the neighbor distance the graph was built with.
func (g *PointGraph) MaxDistance() float64 {
	return g.maxDistance
}

// BBox returns the bounding box of the vertices.
func (g *PointGraph) BBox() spatial.Box {
	box := spatial.EmptyBox()
	for _, p := range g.positions {
		box = box.UnionPoint(p)
	}
	return box
}

// NearestPoint returns the vertex closest to pos.
func (g *PointGraph) NearestPoint(pos r3.Vector) (int, bool) {
	return g.tree.FindNearest(pos, 0, 0)
}

// Normals estimates a normal per vertex from the principal axes of the vertex
// and its neighbors, signed to be positive along its dominant axis. Vertices
// with fewer than two neighbors get the zero vector.
func (g *PointGraph) Normals() []r3.Vector {
	normals := make([]r3.Vector, len(g.positions))
	var buf []r3.Vector
	for i, nbrs := range g.neighbors {
		if len(nbrs) < 2 {
			continue
		}
		buf = append(buf[:0], g.positions[i])
		for _, j := range nbrs {
			buf = append(buf, g.positions[j])
		}
		centroid := spatial.Centroid(buf, nil)
		axes, _ := spatial.PrincipleAxes(centroid, buf, nil)
		n := axes[2]
		if dominant(n) < 0 {
			n = n.Mul(-1)
		}
		normals[i] = n
	}
	return normals
}

// dominant returns the component of v with the largest magnitude.
func dominant(v r3.Vector) float64 {
	switch {
	case math.Abs(v.X) >= math.Abs(v.Y) && math.Abs(v.X) >= math.Abs(v.Z):
		return v.X
	case math.Abs(v.Y) >= math.Abs(v.Z):
		return v.Y
	default:
		return v.Z
	}
}
