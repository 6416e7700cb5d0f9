package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/pkg/httputil"
)

// orgParam reads the organization scope from the query string. Everything
// under /api/campaigns is organization-scoped.
func orgParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(r.URL.Query().Get("org_id"))
	if err != nil {
		httputil.BadRequest(w, "org_id query parameter is required")
		return uuid.Nil, false
	}
	return orgID, true
}

// handleListCampaigns lists an organization's campaigns.
//
//	GET /api/campaigns?org_id=...&limit=N&offset=N
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	campaigns, err := s.campaigns.List(r.Context(), orgID, limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, campaigns)
}

// handleGetCampaign reads one campaign.
//
//	GET /api/campaigns/{id}?org_id=...
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}

	c, err := s.campaigns.Get(r.Context(), orgID, id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if c == nil {
		httputil.NotFound(w, "campaign not found")
		return
	}
	httputil.OK(w, c)
}

type createCampaignRequest struct {
	OrganizationID      uuid.UUID               `json:"organization_id"`
	Name                string                  `json:"name"`
	Active              bool                    `json:"active"`
	TriggerType         domain.TriggerType      `json:"trigger_type"`
	Params              json.RawMessage         `json:"params"`
	Recurrence          domain.Recurrence       `json:"recurrence"`
	SendOffset          domain.SendOffset       `json:"send_offset"`
	AttributionModel    domain.AttributionModel `json:"attribution_model"`
	AttributionWindow   int                     `json:"attribution_window_days"`
	AttributionEligible bool                    `json:"attribution_eligible"`
	Reward              *domain.Reward          `json:"reward,omitempty"`
	MessageTemplate     string                  `json:"message_template"`
	TemplateID          string                  `json:"template_id"`
}

// handleCreateCampaign inserts a campaign and invalidates the trigger
// cache for its organization.
//
//	POST /api/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.OrganizationID == uuid.Nil || req.Name == "" {
		httputil.BadRequest(w, "organization_id and name are required")
		return
	}

	params, err := domain.DecodeTriggerParams(req.TriggerType, req.Params)
	if err != nil {
		httputil.BadRequest(w, "invalid trigger params: "+err.Error())
		return
	}

	c := &domain.Campaign{
		OrganizationID:      req.OrganizationID,
		Name:                req.Name,
		Active:              req.Active,
		TriggerType:         req.TriggerType,
		Params:              params,
		Recurrence:          req.Recurrence,
		SendOffset:          req.SendOffset,
		AttributionModel:    req.AttributionModel,
		AttributionWindow:   req.AttributionWindow,
		AttributionEligible: req.AttributionEligible,
		Reward:              req.Reward,
		MessageTemplate:     req.MessageTemplate,
		TemplateID:          req.TemplateID,
	}
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(r.Context(), c.OrganizationID)
	}
	httputil.Created(w, c)
}

// handleCampaignConversions lists a campaign's attributed conversions.
//
//	GET /api/campaigns/{id}/conversions?limit=N
func (s *Server) handleCampaignConversions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	conversions, err := s.conversions.ListByCampaign(r.Context(), id, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, conversions)
}

// handleConversionRevenue reports attributed revenue per campaign.
//
//	GET /api/conversions/revenue?org_id=...
func (s *Server) handleConversionRevenue(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(w, r)
	if !ok {
		return
	}
	totals, err := s.conversions.RevenueByCampaign(r.Context(), orgID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, totals)
}

// handleListInteractions filters interactions by client and/or campaign.
//
//	GET /api/interactions?client_id=...&campaign_id=...&limit=N
func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	var clientID, campaignID *uuid.UUID
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.BadRequest(w, "invalid client_id")
			return
		}
		clientID = &id
	}
	if v := r.URL.Query().Get("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.BadRequest(w, "invalid campaign_id")
			return
		}
		campaignID = &id
	}
	if clientID == nil && campaignID == nil {
		httputil.BadRequest(w, "client_id or campaign_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	interactions, err := s.interactions.List(r.Context(), clientID, campaignID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, interactions)
}
