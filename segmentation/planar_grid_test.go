package segmentation

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

func TestPlanarGridGeometry(t *testing.T) {
	plane := spatial.NewPlane(r3.Vector{}, r3.Vector{Z: 1})
	grid := NewPlanarGrid(plane, []r3.Vector{{}, {X: 2, Y: 2}}, 0.5)
	cols, rows := grid.Size()
	test.That(t, cols, test.ShouldEqual, 5)
	test.That(t, rows, test.ShouldEqual, 5)
	test.That(t, grid.WorldToGridScaleFactor(), test.ShouldEqual, 2.0)

	p := r3.Vector{X: 1.3, Y: 0.7}
	x, y := grid.WorldToGrid(p)
	test.That(t, grid.GridToWorld(x, y).Sub(p).Norm(), test.ShouldBeLessThan, 1e-9)

	// points off the plane rasterize at their projection
	test.That(t, grid.RasterizeWorldPoint(r3.Vector{X: 1, Y: 1, Z: 3}, 2), test.ShouldBeTrue)
	test.That(t, grid.RasterizeWorldPoint(r3.Vector{X: 9}, 1), test.ShouldBeFalse)
	test.That(t, grid.Sum(), test.ShouldEqual, 2.0)
	test.That(t, grid.Values.At(2, 2), test.ShouldEqual, 2.0)

	_, err := NewPlanarGrid(plane, nil, 0.5).Statistics()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlanarGridConnectedComponentFilter(t *testing.T) {
	plane := spatial.NewPlane(r3.Vector{}, r3.Vector{Z: 1})
	grid := NewPlanarGrid(plane, []r3.Vector{{}, {X: 2, Y: 2}}, 0.5)
	for _, c := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		grid.Values.Set(c[1], c[0], 1)
	}
	grid.Values.Set(4, 4, 3)
	grid.Values.Set(0, 3, 0.2)
	test.That(t, grid.Cardinality(), test.ShouldEqual, 6)

	grid.ConnectedComponentFilter(0.5, 2)
	test.That(t, grid.Cardinality(), test.ShouldEqual, 4)
	test.That(t, grid.Sum(), test.ShouldEqual, 4.0)
	test.That(t, grid.Area(), test.ShouldEqual, 1.0)
	test.That(t, grid.Values.At(4, 4), test.ShouldEqual, 0.0)

	stats, err := grid.Statistics()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats, test.ShouldResemble, GridStatistics{Cells: 4, Mean: 1, Median: 1, Max: 1})
}

func segmentationConfig() Config {
	conf := DefaultConfig()
	conf.MaxNeighbors = 8
	conf.MinPoints = 50
	return conf
}

func TestPlanarGridsSinglePlane(t *testing.T) {
	logger := golog.NewTestLogger(t)
	graph := surfel.NewPointGraph(pointSet(t, planePositions(20, 0.2, floor)), 8, 0.5)

	grids, err := PlanarGrids(graph, segmentationConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grids, test.ShouldHaveLength, 1)

	grid := grids[0]
	test.That(t, math.Abs(grid.Plane.Normal.Z), test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, grid.Plane.Distance(r3.Vector{X: 1, Y: 1}), test.ShouldBeLessThan, 1e-5)
	test.That(t, grid.Points, test.ShouldHaveLength, 400)
	test.That(t, grid.Sum(), test.ShouldEqual, 400.0)
	test.That(t, grid.Weight, test.ShouldAlmostEqual, 400, 1e-3)
	cols, rows := grid.Size()
	test.That(t, cols, test.ShouldEqual, 16)
	test.That(t, rows, test.ShouldEqual, 16)
	test.That(t, grid.Cardinality(), test.ShouldEqual, 256)
}

func TestPlanarGridsTwoPlanes(t *testing.T) {
	logger := golog.NewTestLogger(t)
	positions := planePositions(20, 0.2, floor)
	positions = append(positions, planePositions(20, 0.2, func(u, v float64) r3.Vector {
		return r3.Vector{X: 6, Y: u, Z: 1 + v}
	})...)
	graph := surfel.NewPointGraph(pointSet(t, positions), 8, 0.5)

	grids, err := PlanarGrids(graph, segmentationConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grids, test.ShouldHaveLength, 2)

	var horizontal, vertical int
	for _, grid := range grids {
		test.That(t, grid.Sum(), test.ShouldEqual, 400.0)
		switch {
		case math.Abs(grid.Plane.Normal.Z) > 0.999:
			horizontal++
		case math.Abs(grid.Plane.Normal.X) > 0.999:
			vertical++
		}
	}
	test.That(t, horizontal, test.ShouldEqual, 1)
	test.That(t, vertical, test.ShouldEqual, 1)
	test.That(t, grids[0].Weight, test.ShouldBeGreaterThanOrEqualTo, grids[1].Weight)
}

func TestPlanarGridsRejects(t *testing.T) {
	logger := golog.NewTestLogger(t)
	graph := surfel.NewPointGraph(pointSet(t, planePositions(20, 0.2, floor)), 8, 0.5)

	conf := segmentationConfig()
	conf.GridSpacing = -1
	_, err := PlanarGrids(graph, conf, logger)
	test.That(t, err, test.ShouldNotBeNil)

	// more support required than there are points
	conf = segmentationConfig()
	conf.MinPoints = 1000
	grids, err := PlanarGrids(graph, conf, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grids, test.ShouldBeEmpty)

	// a plane smaller than the minimum area is filtered out
	conf = segmentationConfig()
	conf.MinArea = 100
	grids, err = PlanarGrids(graph, conf, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grids, test.ShouldBeEmpty)

	empty := surfel.NewPointGraph(surfel.NewPointSet(), 8, 0.5)
	grids, err = PlanarGrids(empty, segmentationConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grids, test.ShouldBeEmpty)
}
