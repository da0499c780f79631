package segmentation

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// pointSet returns a set over a fresh block holding positions in order.
func pointSet(t *testing.T, positions []r3.Vector) *surfel.PointSet {
	t.Helper()
	set := surfel.NewPointSet()
	test.That(t, set.InsertPoints(surfel.NewBlockFromPositions(positions)), test.ShouldBeNil)
	return set
}

// planePositions returns an n by n grid with the given spacing, mapped
// through place.
func planePositions(n int, spacing float64, place func(u, v float64) r3.Vector) []r3.Vector {
	positions := make([]r3.Vector, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			positions = append(positions, place(float64(i)*spacing, float64(j)*spacing))
		}
	}
	return positions
}

func floor(u, v float64) r3.Vector {
	return r3.Vector{X: u, Y: v}
}
