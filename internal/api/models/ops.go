package models

// Health is the body of the liveness and readiness checks.
type Health struct {
	Status    HealthStatus `json:"status"`
	Time      Timestamp    `json:"time"`
	Version   string       `json:"version,omitempty"`
	BuildTime string       `json:"buildTime,omitempty"`
	// Checks holds one entry per subsystem on readiness.
	Checks map[string]HealthStatus `json:"checks,omitempty"`
}

// SystemStatus reports subsystems, routing providers and navigation load.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Version    string            `json:"version"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	// ActiveSessions is the number of open navigation sessions.
	ActiveSessions int `json:"activeSessions"`
	// ActiveDegradationFlags names the features running on fallbacks, e.g.
	// "routing:osrm" while its breaker is not closed.
	ActiveDegradationFlags []string `json:"activeDegradationFlags,omitempty"`
}

// SubsystemStatus is the outcome of one subsystem ping.
type SubsystemStatus struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	LatencyMs int64        `json:"latencyMs"`
	Detail    *string      `json:"detail,omitempty"`
}

// ProviderStatus is the breaker view of one routing provider.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}
