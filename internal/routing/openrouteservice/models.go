package openrouteservice

// directionsRequest is the ORS /v2/directions request body.
type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
	Language     string      `json:"language"`
}

// directionsResponse is the ORS /v2/directions JSON response.
type directionsResponse struct {
	Routes []orsRoute `json:"routes"`
	BBox   []float64  `json:"bbox,omitempty"`
}

type orsRoute struct {
	Summary  routeSummary   `json:"summary"`
	Segments []routeSegment `json:"segments,omitempty"`
	BBox     []float64      `json:"bbox,omitempty"`
	Geometry string         `json:"geometry"`
}

type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

type routeSegment struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Steps    []routeStep `json:"steps,omitempty"`
}

type routeStep struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Type        int     `json:"type"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
	ExitNumber  int     `json:"exit_number,omitempty"`
}

// optimizationRequest is the ORS /optimization (VROOM) request body.
type optimizationRequest struct {
	Jobs     []job     `json:"jobs"`
	Vehicles []vehicle `json:"vehicles"`
}

type job struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
}

type vehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
}

// optimizationResponse is the ORS /optimization response.
type optimizationResponse struct {
	Code       int              `json:"code"`
	Error      string           `json:"error,omitempty"`
	Routes     []optimizedRoute `json:"routes"`
	Unassigned []unassignedJob  `json:"unassigned"`
}

type optimizedRoute struct {
	Vehicle int             `json:"vehicle"`
	Steps   []optimizedStep `json:"steps"`
}

type optimizedStep struct {
	Type string `json:"type"` // start, job, end
	Job  int    `json:"job,omitempty"`
}

type unassignedJob struct {
	ID int `json:"id"`
}

// orsErrorResponse is an ORS error body.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeInvalidParam  = 2003
	orsErrorCodeOutOfBounds   = 2004
	orsErrorCodeRouteNotFound = 2009
	orsErrorCodePointNotFound = 2010
)

// ORS step types.
const (
	stepLeft = iota
	stepRight
	stepSharpLeft
	stepSharpRight
	stepSlightLeft
	stepSlightRight
	stepStraight
	stepEnterRoundabout
	stepExitRoundabout
	stepUTurn
	stepGoal
	stepDepart
	stepKeepLeft
	stepKeepRight
)
