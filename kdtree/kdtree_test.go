package kdtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func randomPositions(r *rand.Rand, n int) []r3.Vector {
	positions := make([]r3.Vector, n)
	for i := range positions {
		positions[i] = r3.Vector{X: r.Float64() * 10, Y: r.Float64() * 10, Z: r.Float64() * 2}
	}
	return positions
}

func bruteForce(positions []r3.Vector, q r3.Vector, exclude int, minDistance, maxDistance float64, k int) []int {
	var ret []int
	for i, p := range positions {
		if i == exclude {
			continue
		}
		d := p.Sub(q).Norm()
		if d < minDistance || (maxDistance > 0 && d > maxDistance) {
			continue
		}
		ret = append(ret, i)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		di, dj := positions[ret[i]].Sub(q).Norm2(), positions[ret[j]].Sub(q).Norm2()
		if di == dj {
			return ret[i] < ret[j]
		}
		return di < dj
	})
	if k > 0 && len(ret) > k {
		ret = ret[:k]
	}
	return ret
}

func TestEmptyTree(t *testing.T) {
	tree := New(nil)
	test.That(t, tree.Len(), test.ShouldEqual, 0)
	test.That(t, tree.FindAll(r3.Vector{}, 0, 10), test.ShouldBeEmpty)
	_, ok := tree.FindNearest(r3.Vector{}, 0, 0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFindClosestMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	positions := randomPositions(r, 500)
	tree := New(positions)
	test.That(t, tree.Len(), test.ShouldEqual, 500)

	for trial := 0; trial < 50; trial++ {
		exclude := r.Intn(len(positions))
		q := positions[exclude]
		got := tree.FindClosest(q, exclude, 0, 1.5, 16)
		test.That(t, got, test.ShouldResemble, bruteForce(positions, q, exclude, 0, 1.5, 16))
		for _, i := range got {
			test.That(t, i, test.ShouldNotEqual, exclude)
		}
	}
}

func TestFindAllMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	positions := randomPositions(r, 300)
	tree := NewWithLeafSize(positions, 3)

	for trial := 0; trial < 30; trial++ {
		q := r3.Vector{X: r.Float64() * 10, Y: r.Float64() * 10, Z: 1}
		got := tree.FindAll(q, 0.5, 2)
		want := bruteForce(positions, q, -1, 0.5, 2, 0)
		test.That(t, len(got), test.ShouldEqual, len(want))
		if len(want) > 0 {
			test.That(t, got, test.ShouldResemble, want)
		}
	}
}

func TestFindNearest(t *testing.T) {
	positions := []r3.Vector{{X: 0}, {X: 1}, {X: 5}, {X: 9}}
	tree := New(positions)

	i, ok := tree.FindNearest(r3.Vector{X: 4}, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, i, test.ShouldEqual, 2)

	_, ok = tree.FindNearest(r3.Vector{X: 20}, 0, 5)
	test.That(t, ok, test.ShouldBeFalse)

	// the min distance skips the coincident position
	i, ok = tree.FindNearest(r3.Vector{X: 5}, 0.1, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, i, test.ShouldEqual, 1)
	test.That(t, tree.Position(3), test.ShouldResemble, r3.Vector{X: 9})
}

func TestDuplicatePositions(t *testing.T) {
	positions := make([]r3.Vector, 40)
	tree := New(positions)
	got := tree.FindClosest(r3.Vector{}, 0, 0, 1, 10)
	test.That(t, got, test.ShouldHaveLength, 10)
	test.That(t, got[0], test.ShouldEqual, 1)
}
