package handler

import (
	"net/http"

	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
)

// LocationHandler handles device location endpoints.
type LocationHandler struct {
	sink PositionSink
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(sink PositionSink) *LocationHandler {
	return &LocationHandler{sink: sink}
}

// UpdateLocation handles PUT /v1/location - record the device position used
// as the start for planning and navigation.
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var input models.PositionUpdate
	if err := decodeJSON(w, r, &input, false); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := input.Validate(); err != nil {
		response.FromError(w, r, err)
		return
	}

	h.sink.Update(input.Fix())
	response.NoContent(w, r)
}
