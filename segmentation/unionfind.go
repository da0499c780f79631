package segmentation

import (
	"sort"

	"github.com/samber/lo"

	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// unionFind is a disjoint-set forest with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = -1 // root
		size[i] = 1
	}
	return &unionFind{parent: parent, size: size}
}

// find returns the root of the set containing x.
func (uf *unionFind) find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	for x != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets containing x and y and returns the new root.
func (uf *unionFind) union(x, y int) int {
	rootX, rootY := uf.find(x), uf.find(y)
	if rootX == rootY {
		return rootX
	}
	if uf.size[rootX] < uf.size[rootY] {
		rootX, rootY = rootY, rootX
	}
	uf.parent[rootY] = rootX
	uf.size[rootX] += uf.size[rootY]
	return rootX
}

// ConnectedComponents partitions the graph's vertices into the components
// joined by neighbor edges and returns those with at least minSize vertices,
// largest first. Vertex indices within a component are ascending.
func ConnectedComponents(graph *surfel.PointGraph, minSize int) [][]int {
	n := graph.NPoints()
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for _, j := range graph.Neighbors(i) {
			uf.union(i, j)
		}
	}

	groups := lo.GroupBy(lo.Range(n), uf.find)
	components := lo.Filter(lo.Values(groups), func(c []int, _ int) bool { return len(c) >= minSize })
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return components
}
