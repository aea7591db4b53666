package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/ratings"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
)

type entityCreateRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type entityResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type entityListResponse struct {
	Items      []entityResponse `json:"items"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

type categoryResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	IsPrimary bool    `json:"isPrimary"`
}

type categoryRatingResponse struct {
	CategoryID string   `json:"categoryId"`
	Name       string   `json:"name"`
	Average    *float64 `json:"average"`
	Count      int64    `json:"count"`
	Mode       string   `json:"mode"`
}

type entitySummaryResponse struct {
	Entity     entityResponse           `json:"entity"`
	Overall    *float64                 `json:"overall"`
	Categories []categoryRatingResponse `json:"categories"`
}

type featuredEntryResponse struct {
	EntityID string  `json:"entityId"`
	Average  float64 `json:"average"`
	Count    int64   `json:"count"`
}

type featuredResponse struct {
	Items       []featuredEntryResponse `json:"items"`
	GeneratedAt *time.Time              `json:"generatedAt,omitempty"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	filters, err := buildEntityFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.svc.ListEntities(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list entities")
		return
	}

	items := make([]entityResponse, 0, len(result.Items))
	for _, entity := range result.Items {
		items = append(items, toEntityResponse(entity))
	}
	s.respondJSON(w, http.StatusOK, entityListResponse{Items: items, NextCursor: result.NextCursor})
}

func buildEntityFilters(query url.Values) (repository.EntityListFilters, error) {
	var filters repository.EntityListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	limit, err := parseLimit(query)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func parseLimit(query url.Values) (int, error) {
	val := strings.TrimSpace(query.Get("limit"))
	if val == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit value")
	}
	return limit, nil
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	entity, err := s.svc.OnboardEntity(r.Context(), req.ID, req.Name)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to create entity")
		return
	}

	w.Header().Set("Location", "/entities/"+url.PathEscape(entity.ID))
	s.respondJSON(w, http.StatusCreated, toEntityResponse(entity))
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityID, err := decodePathParam(r, "entityID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	entity, err := s.svc.GetEntity(r.Context(), entityID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch entity")
		return
	}
	s.respondJSON(w, http.StatusOK, toEntityResponse(entity))
}

func (s *Server) handleGetEntitySummary(w http.ResponseWriter, r *http.Request) {
	entityID, err := decodePathParam(r, "entityID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	summary, err := s.svc.GetEntitySummary(r.Context(), entityID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch entity summary")
		return
	}

	resp := entitySummaryResponse{
		Entity:     toEntityResponse(summary.Entity),
		Overall:    ratings.Float(summary.Overall),
		Categories: make([]categoryRatingResponse, 0, len(summary.Categories)),
	}
	for _, c := range summary.Categories {
		resp.Categories = append(resp.Categories, categoryRatingResponse{
			CategoryID: c.Category.ID,
			Name:       c.Category.Name,
			Average:    ratings.Float(c.Resolved.Average),
			Count:      c.Resolved.Count,
			Mode:       string(c.Resolved.Mode),
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list categories")
		return
	}
	items := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		if !c.IsActive {
			continue
		}
		items = append(items, categoryResponse{
			ID:        c.ID,
			Name:      c.Name,
			Weight:    c.Weight.InexactFloat64(),
			IsPrimary: c.IsPrimary,
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleListFeatured(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	snap := s.featured.Snapshot()
	s.respondJSON(w, http.StatusOK, toFeaturedResponse(snap.Head(limit), snap.GeneratedAt))
}

func toFeaturedResponse(entries []ratings.FeaturedEntry, generatedAt time.Time) featuredResponse {
	resp := featuredResponse{Items: make([]featuredEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Items = append(resp.Items, featuredEntryResponse{
			EntityID: e.EntityID,
			Average:  e.Average.InexactFloat64(),
			Count:    e.Count,
		})
	}
	if !generatedAt.IsZero() {
		resp.GeneratedAt = &generatedAt
	}
	return resp
}

func toEntityResponse(entity domain.Entity) entityResponse {
	return entityResponse{
		ID:        entity.ID,
		Name:      entity.Name,
		CreatedAt: entity.CreatedAt,
	}
}
