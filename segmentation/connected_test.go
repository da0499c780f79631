package segmentation

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// twoClusters returns a graph over five points along X near the origin
// followed by three points near x=5.
func twoClusters(t *testing.T) *surfel.PointGraph {
	t.Helper()
	var positions []r3.Vector
	for i := 0; i < 5; i++ {
		positions = append(positions, r3.Vector{X: 0.1 * float64(i)})
	}
	for i := 0; i < 3; i++ {
		positions = append(positions, r3.Vector{X: 5 + 0.1*float64(i)})
	}
	return surfel.NewPointGraph(pointSet(t, positions), 4, 0.25)
}

func TestConnectedPointSet(t *testing.T) {
	graph := twoClusters(t)

	set := ConnectedPointSet(graph, 0)
	test.That(t, set.NPoints(), test.ShouldEqual, 5)
	test.That(t, set.Point(0).Index(), test.ShouldEqual, 0)
	test.That(t, set.BBox().Max.X, test.ShouldBeLessThan, 1)

	set = ConnectedPointSetNearest(graph, r3.Vector{X: 5.1, Y: 1})
	test.That(t, set.NPoints(), test.ShouldEqual, 3)
	test.That(t, set.BBox().Min.X, test.ShouldBeGreaterThan, 4)

	set = ConnectedPointSetFromPoint(graph, graph.Point(6))
	test.That(t, set.NPoints(), test.ShouldEqual, 3)

	other := pointSet(t, []r3.Vector{{X: 1}})
	test.That(t, ConnectedPointSetFromPoint(graph, other.Point(0)), test.ShouldBeNil)
	test.That(t, ConnectedPointSet(graph, -1), test.ShouldBeNil)
	test.That(t, ConnectedPointSet(graph, graph.NPoints()), test.ShouldBeNil)

	empty := surfel.NewPointGraph(surfel.NewPointSet(), 4, 0.25)
	test.That(t, ConnectedPointSetNearest(empty, r3.Vector{}), test.ShouldBeNil)
}

func TestConnectedIndices(t *testing.T) {
	graph := twoClusters(t)
	indices := ConnectedIndices(graph, 2)
	test.That(t, indices[0], test.ShouldEqual, 2)
	test.That(t, indices, test.ShouldHaveLength, 5)
	test.That(t, indices, test.ShouldContain, 0)
	test.That(t, indices, test.ShouldContain, 4)
	test.That(t, indices, test.ShouldNotContain, 5)
}

func TestConnectedComponents(t *testing.T) {
	graph := twoClusters(t)

	components := ConnectedComponents(graph, 1)
	test.That(t, components, test.ShouldResemble, [][]int{{0, 1, 2, 3, 4}, {5, 6, 7}})

	components = ConnectedComponents(graph, 4)
	test.That(t, components, test.ShouldResemble, [][]int{{0, 1, 2, 3, 4}})

	test.That(t, ConnectedComponents(graph, 6), test.ShouldBeEmpty)
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	test.That(t, uf.find(3), test.ShouldEqual, 3)
	uf.union(0, 1)
	uf.union(2, 3)
	root := uf.union(1, 3)
	test.That(t, uf.find(0), test.ShouldEqual, root)
	test.That(t, uf.find(2), test.ShouldEqual, root)
	test.That(t, uf.size[root], test.ShouldEqual, 4)
	test.That(t, uf.find(4), test.ShouldNotEqual, root)
	test.That(t, uf.union(4, 4), test.ShouldEqual, 4)
}
