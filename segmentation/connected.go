package segmentation

import (
	"github.com/golang/geo/r3"

	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// ConnectedIndices returns the vertices reachable from seed over neighbor
// edges, seed first, in depth first order.
func ConnectedIndices(graph *surfel.PointGraph, seed int) []int {
	if seed < 0 || seed >= graph.NPoints() {
		return nil
	}
	visited := make([]bool, graph.NPoints())
	visited[seed] = true
	stack := []int{seed}
	var ret []int
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ret = append(ret, i)
		for _, j := range graph.Neighbors(i) {
			if !visited[j] {
				visited[j] = true
				stack = append(stack, j)
			}
		}
	}
	return ret
}

// PointSetOf returns a new set holding the given vertices of the graph.
func PointSetOf(graph *surfel.PointGraph, indices []int) *surfel.PointSet {
	set := surfel.NewPointSet()
	for _, i := range indices {
		set.InsertPoint(graph.Point(i))
	}
	return set
}

// ConnectedPointSet returns the points reachable from the seed vertex, or nil
// when seed is not a vertex.
func ConnectedPointSet(graph *surfel.PointGraph, seed int) *surfel.PointSet {
	indices := ConnectedIndices(graph, seed)
	if indices == nil {
		return nil
	}
	return PointSetOf(graph, indices)
}

// ConnectedPointSetFromPoint is like ConnectedPointSet, seeded at the vertex
// referring to the same surfel as p. It returns nil when p is not in the graph.
func ConnectedPointSetFromPoint(graph *surfel.PointGraph, p *surfel.Point) *surfel.PointSet {
	return ConnectedPointSet(graph, graph.PointIndex(p))
}

// ConnectedPointSetNearest is like ConnectedPointSet, seeded at the vertex
// closest to pos. It returns nil for an empty graph.
func ConnectedPointSetNearest(graph *surfel.PointGraph, pos r3.Vector) *surfel.PointSet {
	seed, ok := graph.NearestPoint(pos)
	if !ok {
		return nil
	}
	return ConnectedPointSet(graph, seed)
}
