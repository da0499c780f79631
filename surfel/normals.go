package surfel

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/be2rlab/OpenSemanticMapping-sub001/kdtree"
	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// minNormalRadius keeps estimated radii positive for coincident points.
const minNormalRadius = 1e-6

// normalRadiusNeighbor is the rank of the neighbor whose distance sets the
// estimated surfel radius.
const normalRadiusNeighbor = 6

// UpdateNormals estimates a normal, tangent and radii for every point that
// lacks a normal or a radius, from the principal axes of up to maxPoints
// neighbors within maxRadius. Points with fewer than three neighbors are
// left alone. Normals face the viewpoint of the scan that captured the
// point's node when there is one, and away from the set's centroid
// otherwise. Fields that are already set are not overwritten.
func (s *PointSet) UpdateNormals(maxRadius float64, maxPoints int) {
	var tree *kdtree.Tree
	var positions []r3.Vector
	setCentroid := s.Centroid()
	var local []r3.Vector

	for i, p := range s.points {
		if p.HasNormal() && p.Radius(0) > 0 {
			continue
		}
		if tree == nil {
			positions = s.Positions()
			tree = kdtree.New(positions)
		}
		pos := positions[i]
		neighbors := tree.FindClosest(pos, i, 0, maxRadius, maxPoints)
		if len(neighbors) < 3 {
			continue
		}

		local = append(local[:0], pos)
		for _, j := range neighbors {
			local = append(local, positions[j])
		}
		k := len(local) - 1
		if k > normalRadiusNeighbor {
			k = normalRadiusNeighbor
		}
		radius0 := math.Max(local[k].Sub(pos).Norm(), minNormalRadius)

		centroid := spatial.Centroid(local, nil)
		axes, variances := spatial.PrincipleAxes(centroid, local, nil)
		normal, tangent := axes[2], axes[0]
		aspect := 1.0
		if variances[0] > 0 {
			aspect = math.Sqrt(variances[1] / variances[0])
		}
		radius1 := aspect * radius0

		var scan Scan
		if node := p.Node(); node != nil {
			scan = node.Scan()
		}
		if scan != nil {
			if spatial.NewPlane(centroid, normal).SignedDistance(scan.Viewpoint()) < 0 {
				normal = normal.Mul(-1)
			}
		} else if pos.Sub(setCentroid).Dot(normal) < 0 {
			normal = normal.Mul(-1)
		}

		if !p.HasNormal() {
			p.SetNormal(normal)
		}
		if !p.HasTangent() {
			p.SetTangent(tangent)
		}
		if p.Radius(0) == 0 {
			p.SetRadii(radius0, radius1)
		}
	}
}
