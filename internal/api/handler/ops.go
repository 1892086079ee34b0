// Package handler provides HTTP handlers for the fieldtour API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldtour/fieldtour/internal/api/models"
	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/provider/resilience"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Subsystem is a named dependency checked by readiness and status.
type Subsystem struct {
	Name   string
	Pinger Pinger
}

// SessionCounter reports open navigation sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// OpsConfig holds dependencies for the ops endpoints.
type OpsConfig struct {
	Version    string
	BuildTime  string
	Subsystems []Subsystem
	// Providers tracks routing provider health. Optional.
	Providers *resilience.Registry
	// Sessions reports navigation load. Optional.
	Sessions SessionCounter
	// PingTimeout bounds each subsystem check (default: 2s).
	PingTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	buildTime   string
	subsystems  []Subsystem
	providers   *resilience.Registry
	sessions    SessionCounter
	pingTimeout time.Duration
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	h := &OpsHandler{
		version:     cfg.Version,
		buildTime:   cfg.BuildTime,
		subsystems:  cfg.Subsystems,
		providers:   cfg.Providers,
		sessions:    cfg.Sessions,
		pingTimeout: cfg.PingTimeout,
	}
	if h.pingTimeout == 0 {
		h.pingTimeout = 2 * time.Second
	}
	return h
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Version:   h.version,
		BuildTime: h.buildTime,
	})
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Any failing
// subsystem makes the service unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(time.Now()),
		Version: h.version,
		Checks:  map[string]models.HealthStatus{},
	}
	for _, s := range h.checkSubsystems(r.Context()) {
		health.Checks[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
// Routing provider trouble degrades the service without failing it, since
// planning and navigation fall back to local estimates.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Version:    h.version,
		Subsystems: h.checkSubsystems(r.Context()),
		Providers:  []models.ProviderStatus{},
	}
	if h.sessions != nil {
		status.ActiveSessions = h.sessions.ActiveSessions()
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	if h.providers != nil {
		for _, p := range h.providers.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(p))
			if !p.IsHealthy() {
				status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "routing:"+p.Name)
			}
		}
		if status.Status == models.HealthStatusOK && h.providers.Overall() != resilience.HealthOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            p.Name,
		Status:              models.HealthStatus(p.Status()),
		CircuitState:        p.CircuitState.String(),
		ConsecutiveFailures: p.Counts.ConsecutiveFailures,
		LastSuccessAt:       models.TimestampPtr(p.LastSuccessAt),
		LastFailureAt:       models.TimestampPtr(p.LastFailureAt),
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.subsystems))
	for _, s := range h.subsystems {
		pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		started := time.Now()
		err := s.Pinger.Ping(pingCtx)
		cancel()

		st := models.SubsystemStatus{
			Name:      s.Name,
			Status:    models.HealthStatusOK,
			LatencyMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			detail := err.Error()
			st.Status = models.HealthStatusFail
			st.Detail = &detail
		}
		out = append(out, st)
	}
	return out
}
