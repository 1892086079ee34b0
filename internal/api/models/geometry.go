package models

// GeometryInspectRequest is the body of POST /v1/geometry/inspect. Exactly
// one of Footprint and Points is expected.
type GeometryInspectRequest struct {
	Footprint string  `json:"footprint,omitempty"`
	Points    []Point `json:"points,omitempty"`

	// Query is tested for containment when set.
	Query *Point `json:"query,omitempty"`
}

// GeometryInspection describes a footprint.
type GeometryInspection struct {
	Valid            bool    `json:"valid"`
	SelfIntersecting bool    `json:"selfIntersecting"`
	VertexCount      int     `json:"vertexCount"`
	Centroid         *Point  `json:"centroid,omitempty"`
	AreaSquareMeters float64 `json:"areaSquareMeters"`
	PerimeterMeters  float64 `json:"perimeterMeters"`
	Bounds           *GeoBox `json:"bounds,omitempty"`
	Encoded          string  `json:"encoded,omitempty"`
	ContainsQuery    *bool   `json:"containsQuery,omitempty"`
}
