package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/pkg/httputil"
	"github.com/ignite/loyalty-core/internal/pkg/logger"
)

// handleEvent accepts one inbound business event and runs it through the
// trigger pipeline. Responds 202: trigger and attribution outcomes are
// observable via the read endpoints, not this response.
//
//	POST /api/events
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if !httputil.Decode(w, r, &ev) {
		return
	}
	if ev.Type == "" {
		httputil.BadRequest(w, "type is required")
		return
	}
	if ev.OrganizationID == uuid.Nil {
		httputil.BadRequest(w, "organization_id is required")
		return
	}
	if ev.Type != domain.EventClockTick && ev.ClientID == uuid.Nil {
		httputil.BadRequest(w, "client_id is required")
		return
	}

	if err := s.events.Process(r.Context(), ev); err != nil {
		logger.Error("event processing failed",
			"type", ev.Type, "organization_id", ev.OrganizationID, "error", err)
		httputil.InternalError(w, err)
		return
	}
	logger.Info("event accepted", "type", ev.Type, "organization_id", ev.OrganizationID)
	httputil.Accepted(w, map[string]string{"status": "accepted"})
}
