package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker reports whether the upstream clients and database this
// process depends on are reachable. Implemented by a small adapter in
// cmd/subbot that pings the database and reads the pixiv/e-hentai circuit
// breaker states.
type HealthChecker interface {
	Check() map[string]ComponentStatus
}

// ComponentStatus is one dependency's health, e.g. "database" or
// "pixiv_breaker".
type ComponentStatus struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"` // healthy|degraded|unhealthy
	UptimeSecs float64                    `json:"uptime_secs"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

type healthHandler struct {
	check     HealthChecker
	startedAt time.Time
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}

	if h.check != nil {
		resp.Components = h.check.Check()
		unhealthy := 0
		for _, c := range resp.Components {
			if !c.Healthy {
				unhealthy++
			}
		}
		switch {
		case unhealthy == 0:
			resp.Status = "healthy"
		case unhealthy < len(resp.Components):
			resp.Status = "degraded"
		default:
			resp.Status = "unhealthy"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	switch resp.Status {
	case "unhealthy":
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
