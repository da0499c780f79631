package segmentation

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// orientationSteps is the number of rotations about Z tried over a quarter turn.
const orientationSteps = 16

// EstimateOrientedBBoxWithAxes returns the box with the given axes that
// tightly bounds the set. center only anchors the projection; the returned
// box is centered on the extent of the points.
func EstimateOrientedBBoxWithAxes(set *surfel.PointSet, center r3.Vector, axes spatial.Triad) spatial.OrientedBox {
	if set.NPoints() == 0 {
		return spatial.NullOrientedBox
	}
	extent := spatial.EmptyBox()
	for _, p := range set.Points() {
		d := p.Position().Sub(center)
		extent = extent.UnionPoint(r3.Vector{X: d.Dot(axes[0]), Y: d.Dot(axes[1]), Z: d.Dot(axes[2])})
	}
	mid := extent.Centroid()
	lengths := extent.Lengths()
	return spatial.OrientedBox{
		Center: center.Add(axes[0].Mul(mid.X)).Add(axes[1].Mul(mid.Y)).Add(axes[2].Mul(mid.Z)),
		Axes:   axes,
		Radii:  [3]float64{lengths.X / 2, lengths.Y / 2, lengths.Z / 2},
	}
}

// EstimateOrientedBBox returns the smallest volume box with a vertical third
// axis, searching a quarter turn of rotations about Z. The first axis is the
// longer of the two horizontal ones.
func EstimateOrientedBBox(set *surfel.PointSet) spatial.OrientedBox {
	if set.NPoints() == 0 {
		return spatial.NullOrientedBox
	}
	centroid := set.Centroid()

	best := spatial.NullOrientedBox
	bestVolume := math.Inf(1)
	for iz := 0; iz < orientationSteps; iz++ {
		angle := float64(iz) * 0.5 * math.Pi / orientationSteps
		box := EstimateOrientedBBoxWithAxes(set, centroid, spatial.XYZTriad().RotateZ(angle))
		if v := box.Volume(); v < bestVolume {
			best, bestVolume = box, v
		}
	}

	if best.Radii[0] < best.Radii[1] {
		best.Axes = spatial.Triad{best.Axes[1], best.Axes[0].Mul(-1), best.Axes[2]}
		best.Radii = [3]float64{best.Radii[1], best.Radii[0], best.Radii[2]}
	}
	return best
}
