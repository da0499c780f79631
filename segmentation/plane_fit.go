package segmentation

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/utils"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// maxFitSamples bounds the number of points FitPlane looks at.
const maxFitSamples = 1024

// FitPlane returns the least squares plane through an evenly strided sample
// of the set's points, with the normal oriented towards +Z. An empty set
// yields spatial.NullPlane.
func FitPlane(set *surfel.PointSet) spatial.Plane {
	n := set.NPoints()
	if n == 0 {
		return spatial.NullPlane
	}
	step := 1
	if n > maxFitSamples {
		step = n / maxFitSamples
	}
	positions := make([]r3.Vector, 0, n/step+1)
	for i := 0; i < n; i += step {
		positions = append(positions, set.Point(i).Position())
	}

	centroid := spatial.Centroid(positions, nil)
	axes, _ := spatial.PrincipleAxes(centroid, positions, nil)
	normal := axes[2]
	if normal.Z < 0 {
		normal = normal.Mul(-1)
	}
	return spatial.NewPlane(centroid, normal)
}

// EstimateSupportPlane finds the horizontal plane at the most populated
// elevation of the set, searched with a vote histogram over Z at the given
// accuracy. It also returns an estimate of the number of points near that
// plane.
func EstimateSupportPlane(set *surfel.PointSet, accuracy float64) (spatial.Plane, int) {
	n := set.NPoints()
	if n == 0 {
		return spatial.NullPlane, 0
	}
	bbox := set.BBox()
	zmin := bbox.Min.Z
	zlength := bbox.Max.Z - bbox.Min.Z
	if zlength <= 0 {
		return spatial.NewPlaneFromCoefficients(0, 0, 1, -zmin), n
	}

	zres := int(2*zlength/accuracy) + 4
	step := 10*n/zres + 1
	votes := make([]float64, zres)
	for i := 0; i < n; i += step {
		z := set.Point(i).Position().Z
		iz := int(float64(zres) * (z - zmin) / zlength)
		if iz >= zres {
			iz = zres - 1
		} else if iz < 0 {
			iz = 0
		}
		// a small vote below every sample favors the lowest of equal peaks
		for k := 0; k <= iz; k++ {
			votes[k] += 0.01
		}
		votes[iz]++
	}

	blurred := make([]float64, zres)
	blurred[0] = 0.75*votes[0] + 0.25*votes[1]
	blurred[zres-1] = 0.75*votes[zres-1] + 0.25*votes[zres-2]
	for i := 1; i < zres-1; i++ {
		blurred[i] = 0.5*votes[i] + 0.25*votes[i-1] + 0.25*votes[i+1]
	}

	best := 0
	for i := 1; i < zres; i++ {
		if blurred[i] > blurred[best] {
			best = i
		}
	}
	bestZ := zlength*float64(best)/float64(zres) + zmin
	npoints := int(math.Round(float64(step) * blurred[best]))
	return spatial.NewPlaneFromCoefficients(0, 0, 1, -bestZ), npoints
}

// FitSupportPlane refines EstimateSupportPlane with a least squares fit to
// the points within five times accuracy of the estimate. The count of those
// points is returned when the refit succeeds.
func FitSupportPlane(set *surfel.PointSet, accuracy float64) (spatial.Plane, int) {
	plane, npoints := EstimateSupportPlane(set, accuracy)
	if plane.IsNull() {
		return plane, npoints
	}

	constraint := surfel.PlaneConstraint{Plane: plane, On: true, Tolerance: 5 * accuracy}
	near := surfel.NewPointSet()
	near.InsertSetWithConstraint(set, constraint)
	defer utils.UncheckedErrorFunc(near.Empty)
	if near.NPoints() > 3 {
		plane = FitPlane(near)
		npoints = near.NPoints()
	}
	return plane, npoints
}
