// Package kdtree implements a static k-d tree over 3D positions for nearest
// neighbor and radius queries.
//
// The tree is stored as a complete binary tree in array form: node i has
// children 2*i+1 and 2*i+2, and every node keeps the bounds of the points
// below it so that subtrees can be pruned by their distance to the query.
package kdtree

import (
	"container/heap"
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// DefaultLeafSize is the maximum number of points stored in a leaf.
const DefaultLeafSize = 8

type node struct {
	start, end int
	leaf       bool
	used       bool
	min, max   r3.Vector
}

// Tree is a k-d tree over a fixed set of positions. Results refer to
// positions by their index in the slice passed to New.
type Tree struct {
	positions []r3.Vector
	idx       []int
	nodes     []node
	leafSize  int
}

// New builds a tree over positions with the default leaf size.
func New(positions []r3.Vector) *Tree {
	return NewWithLeafSize(positions, DefaultLeafSize)
}

// NewWithLeafSize builds a tree over positions whose leaves hold at most leafSize points.
func NewWithLeafSize(positions []r3.Vector, leafSize int) *Tree {
	if leafSize < 1 {
		leafSize = 1
	}
	t := &Tree{
		positions: make([]r3.Vector, len(positions)),
		idx:       make([]int, len(positions)),
		nodes:     make([]node, maxNodes(len(positions), leafSize)),
		leafSize:  leafSize,
	}
	copy(t.positions, positions)
	for i := range t.idx {
		t.idx[i] = i
	}
	if len(positions) > 0 {
		t.build(0, 0, len(positions))
	}
	return t
}

func maxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	for v := 1; v < leaves; v *= 2 {
		depth++
	}
	return (1 << (depth + 2)) - 1
}

// Len returns the number of positions in the tree.
func (t *Tree) Len() int {
	return len(t.positions)
}

// Position returns the position stored at index i.
func (t *Tree) Position(i int) r3.Vector {
	return t.positions[i]
}

func (t *Tree) build(id, start, end int) {
	for id >= len(t.nodes) {
		t.nodes = append(t.nodes, node{})
	}
	n := node{start: start, end: end, used: true}
	n.min = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	n.max = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, i := range t.idx[start:end] {
		p := t.positions[i]
		n.min = r3.Vector{X: math.Min(n.min.X, p.X), Y: math.Min(n.min.Y, p.Y), Z: math.Min(n.min.Z, p.Z)}
		n.max = r3.Vector{X: math.Max(n.max.X, p.X), Y: math.Max(n.max.Y, p.Y), Z: math.Max(n.max.Z, p.Z)}
	}

	count := end - start
	if count <= t.leafSize {
		n.leaf = true
		t.nodes[id] = n
		return
	}
	t.nodes[id] = n

	// split at the median of the widest dimension
	spread := n.max.Sub(n.min)
	dim := 0
	if spread.Y > spread.X && spread.Y >= spread.Z {
		dim = 1
	} else if spread.Z > spread.X && spread.Z > spread.Y {
		dim = 2
	}
	sub := t.idx[start:end]
	sort.Slice(sub, func(i, j int) bool {
		return coord(t.positions[sub[i]], dim) < coord(t.positions[sub[j]], dim)
	})
	mid := start + count/2
	t.build(2*id+1, start, mid)
	t.build(2*id+2, mid, end)
}

func coord(v r3.Vector, dim int) float64 {
	switch dim {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// minSquaredDistance is a lower bound on the squared distance from q to any point of node id.
func (t *Tree) minSquaredDistance(id int, q r3.Vector) float64 {
	n := &t.nodes[id]
	var d float64
	for dim := 0; dim < 3; dim++ {
		v, lo, hi := coord(q, dim), coord(n.min, dim), coord(n.max, dim)
		if v < lo {
			d += (lo - v) * (lo - v)
		} else if v > hi {
			d += (v - hi) * (v - hi)
		}
	}
	return d
}

type item struct {
	index int
	dist2 float64
}

// before orders items by distance, then by index so ties are deterministic.
func (it item) before(o item) bool {
	if it.dist2 == o.dist2 {
		return it.index < o.index
	}
	return it.dist2 < o.dist2
}

// maxHeap keeps the farthest of the current candidates on top.
type maxHeap []item

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[j].before(h[i]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type query struct {
	q          r3.Vector
	exclude    int
	min2, max2 float64
	k          int
	h          maxHeap
}

func (qr *query) bound() float64 {
	if qr.k > 0 && len(qr.h) == qr.k {
		return qr.h[0].dist2
	}
	return qr.max2
}

func (t *Tree) search(id int, qr *query) {
	if id >= len(t.nodes) || !t.nodes[id].used {
		return
	}
	if t.minSquaredDistance(id, qr.q) > qr.bound() {
		return
	}
	n := &t.nodes[id]
	if n.leaf {
		for _, i := range t.idx[n.start:n.end] {
			if i == qr.exclude {
				continue
			}
			cand := item{index: i, dist2: t.positions[i].Sub(qr.q).Norm2()}
			if cand.dist2 < qr.min2 || cand.dist2 > qr.max2 {
				continue
			}
			if qr.k > 0 && len(qr.h) == qr.k {
				if !cand.before(qr.h[0]) {
					continue
				}
				qr.h[0] = cand
				heap.Fix(&qr.h, 0)
			} else {
				heap.Push(&qr.h, cand)
			}
		}
		return
	}

	left, right := 2*id+1, 2*id+2
	if t.minSquaredDistance(right, qr.q) < t.minSquaredDistance(left, qr.q) {
		left, right = right, left
	}
	t.search(left, qr)
	t.search(right, qr)
}

func (t *Tree) run(q r3.Vector, exclude int, minDistance, maxDistance float64, k int) []int {
	if len(t.positions) == 0 {
		return nil
	}
	if maxDistance <= 0 {
		maxDistance = math.Inf(1)
	}
	qr := &query{
		q:       q,
		exclude: exclude,
		min2:    minDistance * minDistance,
		max2:    maxDistance * maxDistance,
		k:       k,
	}
	t.search(0, qr)

	items := []item(qr.h)
	sort.Slice(items, func(i, j int) bool { return items[i].before(items[j]) })
	ret := make([]int, len(items))
	for i, it := range items {
		ret[i] = it.index
	}
	return ret
}

// FindClosest returns the indices of up to maxPoints positions whose distance
// to q is within [minDistance, maxDistance], closest first. The position at
// index exclude is skipped; pass -1 to skip nothing. A maxDistance <= 0 means
// unbounded and a maxPoints <= 0 means unlimited.
func (t *Tree) FindClosest(q r3.Vector, exclude int, minDistance, maxDistance float64, maxPoints int) []int {
	return t.run(q, exclude, minDistance, maxDistance, maxPoints)
}

// FindAll returns every position within [minDistance, maxDistance] of q, closest first.
func (t *Tree) FindAll(q r3.Vector, minDistance, maxDistance float64) []int {
	return t.run(q, -1, minDistance, maxDistance, 0)
}

// FindNearest returns the closest position within [minDistance, maxDistance] of q.
func (t *Tree) FindNearest(q r3.Vector, minDistance, maxDistance float64) (int, bool) {
	found := t.run(q, -1, minDistance, maxDistance, 1)
	if len(found) == 0 {
		return -1, false
	}
	return found[0], true
}
