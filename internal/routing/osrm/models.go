package osrm

// routeResponse is the OSRM /route/v1 response.
type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
	Legs     []leg   `json:"legs"`
}

type leg struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []step  `json:"steps"`
}

type step struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Name     string   `json:"name"`
	Ref      string   `json:"ref,omitempty"`
	Maneuver maneuver `json:"maneuver"`
}

type maneuver struct {
	Type     string    `json:"type"`
	Modifier string    `json:"modifier,omitempty"`
	Location []float64 `json:"location"`
}

// tripResponse is the OSRM /trip/v1 response. Only the waypoint order is read.
type tripResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message,omitempty"`
	Waypoints []tripWaypoint `json:"waypoints"`
}

type tripWaypoint struct {
	// WaypointIndex is this input's position within its trip.
	WaypointIndex int `json:"waypoint_index"`
	TripsIndex    int `json:"trips_index"`
}

// OSRM response codes.
const (
	codeOk           = "Ok"
	codeNoRoute      = "NoRoute"
	codeNoSegment    = "NoSegment"
	codeNoTrips      = "NoTrips"
	codeInvalidInput = "InvalidInput"
	codeInvalidQuery = "InvalidQuery"
	codeTooBig       = "TooBig"
)
