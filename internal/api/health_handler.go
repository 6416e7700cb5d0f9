package api

import (
	"net/http"
	"time"

	"github.com/ignite/loyalty-core/internal/pkg/httputil"
)

type componentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type healthStatus struct {
	Status string                    `json:"status"`
	Uptime string                    `json:"uptime"`
	Checks map[string]componentCheck `json:"checks"`
}

// handleHealth pings the database and Redis. Redis down degrades the
// service (caching and locking fall back); database down makes it
// unhealthy.
//
//	GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := make(map[string]componentCheck)
	overall := "healthy"

	if s.db != nil {
		start := time.Now()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = componentCheck{Status: "down", Message: err.Error()}
			overall = "unhealthy"
		} else {
			checks["database"] = componentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	} else {
		checks["database"] = componentCheck{Status: "not_configured"}
		overall = "unhealthy"
	}

	if s.redisClient != nil {
		start := time.Now()
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = componentCheck{Status: "down", Message: err.Error()}
			if overall == "healthy" {
				overall = "degraded"
			}
		} else {
			checks["redis"] = componentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	} else {
		checks["redis"] = componentCheck{Status: "not_configured"}
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, healthStatus{
		Status: overall,
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}
