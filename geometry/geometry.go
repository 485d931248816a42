// Package geometry models GeoJSON-shaped geometries with fixed-precision
// decimal coordinates and derives bounding extents from them.
package geometry

// Geometry is a shape kind plus its nested coordinate tree. The wire form
// matches the GeoJSON geometry object.
type Geometry struct {
	Kind        string `json:"type"`
	Coordinates Tree   `json:"coordinates"`
}

// Round returns a copy with coordinates rescaled to the given precision.
func (g Geometry) Round(places int32) Geometry {
	return Geometry{Kind: g.Kind, Coordinates: g.Coordinates.Round(places)}
}

// Extent returns the bounding extent of the geometry's coordinates.
func (g Geometry) Extent() Extent {
	return g.Coordinates.Extent()
}
