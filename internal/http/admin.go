package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/ratings"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
)

type seedRequest struct {
	FakeAverage     decimal.Decimal  `json:"fakeAverage"`
	FakeCount       int64            `json:"fakeCount"`
	RealWeight      *decimal.Decimal `json:"realWeight"`
	FakeWeight      *decimal.Decimal `json:"fakeWeight"`
	Mode            *string          `json:"mode"`
	AllowNewRatings *bool            `json:"allowNewRatings"`
	Reason          string           `json:"reason"`
}

type seedResetRequest struct {
	Reason string `json:"reason"`
}

type seedResponse struct {
	EntityID        string                 `json:"entityId"`
	CategoryID      string                 `json:"categoryId"`
	FakeAverage     float64                `json:"fakeAverage"`
	FakeCount       int64                  `json:"fakeCount"`
	RealWeight      float64                `json:"realWeight"`
	FakeWeight      float64                `json:"fakeWeight"`
	Mode            string                 `json:"mode"`
	AllowNewRatings bool                   `json:"allowNewRatings"`
	UpdatedBy       string                 `json:"updatedBy,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	Resolved        resolvedRatingResponse `json:"resolved"`
}

type auditEntryResponse struct {
	ID        int64           `json:"id"`
	ActorID   string          `json:"actorId"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type auditListResponse struct {
	Items      []auditEntryResponse `json:"items"`
	NextCursor *string              `json:"nextCursor,omitempty"`
}

func (s *Server) handleSetSeed(w http.ResponseWriter, r *http.Request) {
	entityID, categoryID, err := decodeKeyParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req seedRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	in := ratings.SetSeedInput{
		EntityID:        entityID,
		CategoryID:      categoryID,
		FakeAverage:     req.FakeAverage,
		FakeCount:       req.FakeCount,
		RealWeight:      req.RealWeight,
		FakeWeight:      req.FakeWeight,
		AllowNewRatings: req.AllowNewRatings,
		Reason:          req.Reason,
		ActorID:         actorID(r),
	}
	if req.Mode != nil {
		mode := domain.DisplayMode(strings.TrimSpace(*req.Mode))
		in.Mode = &mode
	}

	result, err := s.svc.SetSeed(r.Context(), in)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update seed")
		return
	}
	s.respondJSON(w, http.StatusOK, toSeedResponse(result))
}

func (s *Server) handleResetSeed(w http.ResponseWriter, r *http.Request) {
	entityID, categoryID, err := decodeKeyParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req seedResetRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	result, err := s.svc.ResetSeed(r.Context(), entityID, categoryID, req.Reason, actorID(r))
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to reset seed")
		return
	}
	s.respondJSON(w, http.StatusOK, toSeedResponse(result))
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	filters, err := buildAuditFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.svc.ListAudit(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list audit entries")
		return
	}

	resp := auditListResponse{Items: make([]auditEntryResponse, 0, len(result.Items))}
	for _, e := range result.Items {
		resp.Items = append(resp.Items, auditEntryResponse{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Target:    e.Target,
			Before:    e.Before,
			After:     e.After,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	if result.NextCursor != nil {
		next := strconv.FormatInt(*result.NextCursor, 10)
		resp.NextCursor = &next
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildAuditFilters(query url.Values) (repository.AuditListFilters, error) {
	var filters repository.AuditListFilters

	if val := strings.TrimSpace(query.Get("target")); val != "" {
		filters.Target = &val
	}
	if val := strings.TrimSpace(query.Get("action")); val != "" {
		filters.Action = &val
	}
	limit, err := parseLimit(query)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.BeforeID = id
	}
	return filters, nil
}

func (s *Server) handleRefreshFeatured(w http.ResponseWriter, r *http.Request) {
	snap, err := s.featured.Refresh(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to refresh featured list")
		return
	}
	s.respondJSON(w, http.StatusOK, toFeaturedResponse(snap.Entries, snap.GeneratedAt))
}

func toSeedResponse(result ratings.SeedResult) seedResponse {
	seed := result.Seed
	return seedResponse{
		EntityID:        seed.EntityID,
		CategoryID:      seed.CategoryID,
		FakeAverage:     seed.FakeAverage.InexactFloat64(),
		FakeCount:       seed.FakeCount,
		RealWeight:      seed.RealWeight.InexactFloat64(),
		FakeWeight:      seed.FakeWeight.InexactFloat64(),
		Mode:            string(seed.Mode),
		AllowNewRatings: seed.AllowNewRatings,
		UpdatedBy:       seed.UpdatedBy,
		UpdatedAt:       seed.UpdatedAt,
		Resolved: resolvedRatingResponse{
			EntityID:   seed.EntityID,
			CategoryID: seed.CategoryID,
			Average:    ratings.Float(result.Resolved.Average),
			Count:      result.Resolved.Count,
			Mode:       string(result.Resolved.Mode),
		},
	}
}
