package surfel

import (
	"github.com/golang/geo/r3"
)

// gridPositions returns an nx by ny grid of unit spacing on the plane z.
func gridPositions(nx, ny int, z float64) []r3.Vector {
	positions := make([]r3.Vector, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			positions = append(positions, r3.Vector{X: float64(i), Y: float64(j), Z: z})
		}
	}
	return positions
}

// linePositions returns n points along X starting at start.
func linePositions(n int, start r3.Vector) []r3.Vector {
	positions := make([]r3.Vector, n)
	for i := range positions {
		positions[i] = start.Add(r3.Vector{X: float64(i)})
	}
	return positions
}

type testScan struct {
	viewpoint r3.Vector
}

func (s testScan) Viewpoint() r3.Vector { return s.viewpoint }

type testObject string

func (o testObject) Name() string { return string(o) }
