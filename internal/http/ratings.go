package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/smart-ratings/internal/ratings"
)

type ratingRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

type ratingSubmittedResponse struct {
	RatingID   string   `json:"ratingId"`
	EntityID   string   `json:"entityId"`
	CategoryID string   `json:"categoryId"`
	Stars      int      `json:"stars"`
	NewAverage *float64 `json:"newAverage"`
	NewCount   int64    `json:"newCount"`
}

type resolvedRatingResponse struct {
	EntityID   string   `json:"entityId"`
	CategoryID string   `json:"categoryId"`
	Average    *float64 `json:"average"`
	Count      int64    `json:"count"`
	Mode       string   `json:"mode"`
}

type ratingStatsResponse struct {
	EntityID     string   `json:"entityId"`
	CategoryID   string   `json:"categoryId"`
	RealCount    int64    `json:"realCount"`
	RealSum      int64    `json:"realSum"`
	RealAverage  *float64 `json:"realAverage"`
	Distribution []int64  `json:"distribution"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	entityID, categoryID, err := decodeKeyParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	raterID := strings.TrimSpace(r.Header.Get("X-Rater-Id"))
	if raterID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	result, err := s.svc.SubmitRating(r.Context(), ratings.SubmitRatingInput{
		RaterID:    raterID,
		EntityID:   entityID,
		CategoryID: categoryID,
		Stars:      req.Stars,
		Comment:    req.Comment,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to process rating")
		return
	}

	s.respondJSON(w, http.StatusCreated, ratingSubmittedResponse{
		RatingID:   result.Event.ID,
		EntityID:   entityID,
		CategoryID: categoryID,
		Stars:      result.Event.Stars,
		NewAverage: ratings.Float(result.NewAverage(s.svc.Options().Precision)),
		NewCount:   result.Aggregate.RealCount,
	})
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	entityID, categoryID, err := decodeKeyParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	resolved, err := s.svc.GetResolvedRating(r.Context(), entityID, categoryID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating")
		return
	}

	s.respondJSON(w, http.StatusOK, resolvedRatingResponse{
		EntityID:   entityID,
		CategoryID: categoryID,
		Average:    ratings.Float(resolved.Average),
		Count:      resolved.Count,
		Mode:       string(resolved.Mode),
	})
}

func (s *Server) handleGetRatingStats(w http.ResponseWriter, r *http.Request) {
	entityID, categoryID, err := decodeKeyParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	stats, err := s.svc.GetRatingStats(r.Context(), entityID, categoryID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch rating stats")
		return
	}

	s.respondJSON(w, http.StatusOK, ratingStatsResponse{
		EntityID:     entityID,
		CategoryID:   categoryID,
		RealCount:    stats.Aggregate.RealCount,
		RealSum:      stats.Aggregate.RealSum,
		RealAverage:  ratings.Float(stats.RealAverage),
		Distribution: stats.Aggregate.Distribution[:],
	})
}

func decodeKeyParams(r *http.Request) (string, string, error) {
	entityID, err := decodePathParam(r, "entityID")
	if err != nil {
		return "", "", err
	}
	categoryID, err := decodePathParam(r, "categoryID")
	if err != nil {
		return "", "", err
	}
	return entityID, categoryID, nil
}

func decodePathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return "", fmt.Errorf("missing %s parameter", name)
	}
	val, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s parameter", name)
	}
	return val, nil
}
