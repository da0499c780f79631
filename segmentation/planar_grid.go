package segmentation

import (
	"math"
	"math/rand"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// maxGridResolution bounds the number of cells along either grid axis.
const maxGridResolution = 4096

// PlanarGrid is a raster of point counts laid out on a plane. Cell (ix, iy)
// is centered at Origin + ix*Spacing*XAxis + iy*Spacing*YAxis and is stored
// in row iy, column ix of Values.
type PlanarGrid struct {
	Plane   spatial.Plane
	Origin  r3.Vector
	XAxis   r3.Vector
	YAxis   r3.Vector
	Spacing float64
	Values  *mat.Dense

	// Weight is the support of the plane hypothesis the grid was built from.
	Weight float64
	// Points are the graph vertices rasterized into the grid.
	Points []int
}

// planeAxes returns two unit vectors spanning the plane orthogonal to normal.
func planeAxes(normal r3.Vector) (r3.Vector, r3.Vector) {
	ref := r3.Vector{Z: 1}
	if math.Abs(normal.Z) > 0.9 {
		ref = r3.Vector{X: 1}
	}
	x := ref.Cross(normal).Normalize()
	return x, normal.Cross(x).Normalize()
}

// NewPlanarGrid returns an empty grid on plane covering the projections of
// positions. The spacing grows when the extent would exceed the maximum
// resolution.
func NewPlanarGrid(plane spatial.Plane, positions []r3.Vector, spacing float64) *PlanarGrid {
	xaxis, yaxis := planeAxes(plane.Normal)
	anchor := plane.Point()
	extent := spatial.EmptyBox()
	for _, p := range positions {
		d := p.Sub(anchor)
		extent = extent.UnionPoint(r3.Vector{X: d.Dot(xaxis), Y: d.Dot(yaxis)})
	}
	if extent.IsEmpty() {
		extent = spatial.NewBox(r3.Vector{}, r3.Vector{})
	}
	lengths := extent.Lengths()
	if longest := math.Max(lengths.X, lengths.Y); longest/spacing >= maxGridResolution {
		spacing = longest / (maxGridResolution - 1)
	}
	cols := int(math.Round(lengths.X/spacing)) + 1
	rows := int(math.Round(lengths.Y/spacing)) + 1
	return &PlanarGrid{
		Plane:   plane,
		Origin:  anchor.Add(xaxis.Mul(extent.Min.X)).Add(yaxis.Mul(extent.Min.Y)),
		XAxis:   xaxis,
		YAxis:   yaxis,
		Spacing: spacing,
		Values:  mat.NewDense(rows, cols, nil),
	}
}

// Size returns the number of cells along the X and Y axes.
func (g *PlanarGrid) Size() (int, int) {
	rows, cols := g.Values.Dims()
	return cols, rows
}

// WorldToGrid returns the continuous grid coordinates of the projection of p.
func (g *PlanarGrid) WorldToGrid(p r3.Vector) (float64, float64) {
	d := p.Sub(g.Origin)
	return d.Dot(g.XAxis) / g.Spacing, d.Dot(g.YAxis) / g.Spacing
}

// GridToWorld returns the world position of the given grid coordinates.
func (g *PlanarGrid) GridToWorld(x, y float64) r3.Vector {
	return g.Origin.Add(g.XAxis.Mul(x * g.Spacing)).Add(g.YAxis.Mul(y * g.Spacing))
}

// WorldToGridScaleFactor returns the number of cells per world unit.
func (g *PlanarGrid) WorldToGridScaleFactor() float64 {
	return 1 / g.Spacing
}

// RasterizeWorldPoint adds value to the cell nearest the projection of p. It
// reports false when p projects outside the grid.
func (g *PlanarGrid) RasterizeWorldPoint(p r3.Vector, value float64) bool {
	x, y := g.WorldToGrid(p)
	ix, iy := int(math.Round(x)), int(math.Round(y))
	cols, rows := g.Size()
	if ix < 0 || ix >= cols || iy < 0 || iy >= rows {
		return false
	}
	g.Values.Set(iy, ix, g.Values.At(iy, ix)+value)
	return true
}

// Sum returns the total of all cell values.
func (g *PlanarGrid) Sum() float64 {
	return mat.Sum(g.Values)
}

// Cardinality returns the number of non zero cells.
func (g *PlanarGrid) Cardinality() int {
	var count int
	for _, v := range g.Values.RawMatrix().Data {
		if v != 0 {
			count++
		}
	}
	return count
}

// Area returns the world area covered by non zero cells.
func (g *PlanarGrid) Area() float64 {
	return float64(g.Cardinality()) * g.Spacing * g.Spacing
}

// GridStatistics summarizes the non zero cells of a grid.
type GridStatistics struct {
	Cells  int
	Mean   float64
	Median float64
	Max    float64
}

// Statistics summarizes the non zero cell values. It fails on an empty grid.
func (g *PlanarGrid) Statistics() (GridStatistics, error) {
	var data stats.Float64Data
	for _, v := range g.Values.RawMatrix().Data {
		if v != 0 {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		return GridStatistics{}, errors.New("planar grid has no occupied cells")
	}
	ret := GridStatistics{Cells: len(data)}
	var err error
	if ret.Mean, err = data.Mean(); err != nil {
		return GridStatistics{}, err
	}
	if ret.Median, err = data.Median(); err != nil {
		return GridStatistics{}, err
	}
	if ret.Max, err = data.Max(); err != nil {
		return GridStatistics{}, err
	}
	return ret, nil
}

// ConnectedComponentFilter clears cells below minValue, then clears every
// 4-connected region of remaining cells smaller than minCells. Surviving
// cells keep their values.
func (g *PlanarGrid) ConnectedComponentFilter(minValue float64, minCells int) {
	cols, rows := g.Size()
	data := g.Values.RawMatrix().Data
	stride := g.Values.RawMatrix().Stride
	for iy := 0; iy < rows; iy++ {
		for ix := 0; ix < cols; ix++ {
			if data[iy*stride+ix] < minValue {
				data[iy*stride+ix] = 0
			}
		}
	}

	visited := make([]bool, rows*cols)
	var region, stack []int
	for start := range visited {
		if visited[start] || data[(start/cols)*stride+start%cols] == 0 {
			continue
		}
		visited[start] = true
		region = region[:0]
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, c)
			ix, iy := c%cols, c/cols
			for _, nb := range [4][2]int{{ix - 1, iy}, {ix + 1, iy}, {ix, iy - 1}, {ix, iy + 1}} {
				if nb[0] < 0 || nb[0] >= cols || nb[1] < 0 || nb[1] >= rows {
					continue
				}
				k := nb[1]*cols + nb[0]
				if visited[k] || data[nb[1]*stride+nb[0]] == 0 {
					continue
				}
				visited[k] = true
				stack = append(stack, k)
			}
		}
		if len(region) < minCells {
			for _, c := range region {
				data[(c/cols)*stride+c%cols] = 0
			}
		}
	}
}

type planeHypothesis struct {
	plane   spatial.Plane
	indices []int
	weights []float64
	weight  float64
}

// gaussianFactor returns the exponent scale of a gaussian whose sigma is half of limit.
func gaussianFactor(limit float64) float64 {
	sigma := 0.5 * limit
	return -1 / (2 * sigma * sigma)
}

// supportOf gathers the vertices near plane with a normal close to the
// plane's, weighted by how close they are in both respects.
func supportOf(
	graph *surfel.PointGraph,
	normals []r3.Vector,
	plane spatial.Plane,
	conf *Config,
) planeHypothesis {
	offplaneFactor := gaussianFactor(conf.MaxOffplaneDistance)
	angleFactor := gaussianFactor(conf.MaxNormalAngle)
	h := planeHypothesis{plane: plane}
	for i := 0; i < graph.NPoints(); i++ {
		d := plane.Distance(graph.Position(i))
		if d > conf.MaxOffplaneDistance {
			continue
		}
		dot := math.Min(1, math.Abs(plane.Normal.Dot(normals[i])))
		a := math.Acos(dot)
		if a > conf.MaxNormalAngle {
			continue
		}
		w := math.Exp(offplaneFactor*d*d) * math.Exp(angleFactor*a*a)
		h.indices = append(h.indices, i)
		h.weights = append(h.weights, w)
		h.weight += w
	}
	return h
}

// PlanarGrids segments the graph into planar regions. Plane hypotheses are
// seeded at random vertices, scored by the weighted support of nearby
// vertices with similar normals, refit, and then visited by decreasing
// support. Each vertex is rasterized into at most one grid, and each grid is
// filtered by density and connected area; grids left empty are dropped.
func PlanarGrids(graph *surfel.PointGraph, conf Config, logger golog.Logger) ([]*PlanarGrid, error) {
	if err := conf.Validate("segmentation"); err != nil {
		return nil, err
	}
	n := graph.NPoints()
	if n == 0 {
		return nil, nil
	}
	normals := graph.Normals()
	rng := rand.New(rand.NewSource(conf.Seed)) //nolint:gosec

	maxGrids := n
	if conf.MinPoints > 0 {
		if m := int(float64(n) / conf.MinPoints); m < maxGrids {
			maxGrids = m
		}
	}
	if conf.MinArea > 0 {
		if m := int(graph.BBox().Volume() / conf.MinArea); m < maxGrids {
			maxGrids = m
		}
	}
	nsamples := int(conf.AccuracyFactor*10*float64(maxGrids)) + 1
	if nsamples > n {
		nsamples = n
	}

	marks := make([]bool, n)
	var hypotheses []planeHypothesis
	for s := 0; s < nsamples; s++ {
		seed := rng.Intn(n)
		if marks[seed] || graph.NNeighbors(seed) < 2 || normals[seed].Norm2() == 0 {
			continue
		}
		h := supportOf(graph, normals, spatial.NewPlane(graph.Position(seed), normals[seed]), &conf)
		if h.weight < conf.MinPoints {
			continue
		}

		positions := make([]r3.Vector, len(h.indices))
		for k, i := range h.indices {
			positions[k] = graph.Position(i)
		}
		centroid := spatial.Centroid(positions, h.weights)
		axes, _ := spatial.PrincipleAxes(centroid, positions, h.weights)
		h = supportOf(graph, normals, spatial.NewPlane(centroid, axes[2]), &conf)
		for _, i := range h.indices {
			marks[i] = true
		}
		if h.weight >= conf.MinPoints {
			hypotheses = append(hypotheses, h)
		}
	}
	sort.SliceStable(hypotheses, func(i, j int) bool { return hypotheses[i].weight > hypotheses[j].weight })

	claimed := make([]bool, n)
	var grids []*PlanarGrid
	for _, h := range hypotheses {
		var indices []int
		var positions []r3.Vector
		for _, i := range h.indices {
			if !claimed[i] {
				indices = append(indices, i)
				positions = append(positions, graph.Position(i))
			}
		}
		if float64(len(indices)) < conf.MinPoints || len(indices) == 0 {
			continue
		}

		grid := NewPlanarGrid(h.plane, positions, conf.GridSpacing)
		grid.Weight = h.weight
		for k, i := range indices {
			if grid.RasterizeWorldPoint(positions[k], 1) {
				claimed[i] = true
				grid.Points = append(grid.Points, i)
			}
		}
		cellArea := grid.Spacing * grid.Spacing
		grid.ConnectedComponentFilter(conf.MinDensity*cellArea, int(math.Ceil(conf.MinArea/cellArea)))
		if grid.Sum() == 0 {
			continue
		}
		grids = append(grids, grid)
	}

	logger.Debugw("planar grids", "samples", nsamples, "hypotheses", len(hypotheses), "grids", len(grids))
	return grids, nil
}
