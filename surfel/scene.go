package surfel

import "github.com/golang/geo/r3"

// Scene is notified whenever the database or tree it owns changes.
type Scene interface {
	SetDirty()
}

// Scan is the capture that produced the surfels of a node.
type Scan interface {
	// Viewpoint is the sensor position, used to orient estimated normals.
	Viewpoint() r3.Vector
}

// Object is a semantic grouping of nodes.
type Object interface {
	Name() string
}
