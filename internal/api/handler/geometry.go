package handler

import (
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/geo"
)

// GeometryHandler handles footprint inspection.
type GeometryHandler struct{}

// NewGeometryHandler creates a new GeometryHandler.
func NewGeometryHandler() *GeometryHandler {
	return &GeometryHandler{}
}

// Inspect handles POST /v1/geometry/inspect - decode a footprint or point
// list and report its shape.
func (h *GeometryHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	var input models.GeometryInspectRequest
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var v models.ValidationError
	switch {
	case input.Footprint == "" && len(input.Points) == 0:
		v.Add("footprint", models.CodeRequired, "footprint or points is required")
	case input.Footprint != "" && len(input.Points) > 0:
		v.Add("points", models.CodeInvalid, "must not be combined with footprint")
	}
	for i, p := range input.Points {
		models.ValidatePoint(&v, fmt.Sprintf("points[%d]", i), p)
	}
	if input.Query != nil {
		models.ValidatePoint(&v, "query", *input.Query)
	}
	if err := v.Err(); err != nil {
		response.FromError(w, r, err)
		return
	}

	points := lo.Map(input.Points, func(p models.Point, _ int) geo.Coordinate { return p.Coordinate() })
	if input.Footprint != "" {
		decoded, err := geo.DecodePolygon(input.Footprint)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		points = decoded
	}

	response.JSON(w, r, http.StatusOK, inspect(points, input.Query))
}

func inspect(points []geo.Coordinate, query *models.Point) models.GeometryInspection {
	out := models.GeometryInspection{
		Valid:            geo.IsValidPolygon(points),
		SelfIntersecting: geo.IsSelfIntersecting(points),
		VertexCount:      len(points),
		AreaSquareMeters: geo.Area(points),
	}

	if c, err := geo.Centroid(points); err == nil {
		p := models.PointFrom(c)
		out.Centroid = &p
	}
	if b, err := geo.BoundsOf(points); err == nil {
		out.Bounds = &models.GeoBox{MinLat: b.MinLat, MinLon: b.MinLon, MaxLat: b.MaxLat, MaxLon: b.MaxLon}
	}
	if len(points) >= 3 {
		out.PerimeterMeters = geo.TotalDistance(append(append([]geo.Coordinate(nil), points...), points[0]))
	}
	if encoded, err := geo.EncodePolygon(points); err == nil {
		out.Encoded = encoded
	}
	if query != nil {
		inside := geo.ContainsPoint(points, query.Coordinate())
		out.ContainsQuery = &inside
	}
	return out
}
