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

type reportRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type reportReviewRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"adminNotes"`
}

type reportResponse struct {
	ID          int64      `json:"id"`
	RatingID    string     `json:"ratingId"`
	ReporterID  string     `json:"reporterId"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AdminNotes  string     `json:"adminNotes,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type reportListResponse struct {
	Items      []reportResponse `json:"items"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

func (s *Server) handleFileReport(w http.ResponseWriter, r *http.Request) {
	ratingID, err := decodePathParam(r, "ratingID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	reporterID := strings.TrimSpace(r.Header.Get("X-Rater-Id"))
	if reporterID == "" {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req reportRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	report, err := s.svc.FileReport(r.Context(), ratings.FileReportInput{
		RatingID:    ratingID,
		ReporterID:  reporterID,
		Type:        domain.ReportType(strings.TrimSpace(req.Type)),
		Description: req.Description,
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to file report")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/admin/reports/%d", report.ID))
	s.respondJSON(w, http.StatusCreated, toReportResponse(report))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := decodeReportID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	report, err := s.svc.GetReport(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch report")
		return
	}
	s.respondJSON(w, http.StatusOK, toReportResponse(report))
}

func (s *Server) handleReviewReport(w http.ResponseWriter, r *http.Request) {
	id, err := decodeReportID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req reportReviewRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	report, err := s.svc.ReviewReport(r.Context(), ratings.ReviewReportInput{
		ReportID:   id,
		Status:     domain.ReportStatus(strings.TrimSpace(req.Status)),
		AdminNotes: req.AdminNotes,
		ActorID:    actorID(r),
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to review report")
		return
	}
	s.respondJSON(w, http.StatusOK, toReportResponse(report))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	filters, err := buildReportFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.svc.ListReports(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to list reports")
		return
	}

	resp := reportListResponse{Items: make([]reportResponse, 0, len(result.Items))}
	for _, report := range result.Items {
		resp.Items = append(resp.Items, toReportResponse(report))
	}
	if result.NextCursor != nil {
		next := strconv.FormatInt(*result.NextCursor, 10)
		resp.NextCursor = &next
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildReportFilters(query url.Values) (repository.ReportListFilters, error) {
	var filters repository.ReportListFilters

	if val := strings.TrimSpace(query.Get("status")); val != "" {
		status := domain.ReportStatus(val)
		if !status.Valid() {
			return filters, fmt.Errorf("invalid status")
		}
		filters.Status = &status
	}
	if val := strings.TrimSpace(query.Get("ratingId")); val != "" {
		filters.RatingID = &val
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

func decodeReportID(r *http.Request) (int64, error) {
	raw, err := decodePathParam(r, "reportID")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid reportID parameter")
	}
	return id, nil
}

func toReportResponse(report domain.RatingReport) reportResponse {
	return reportResponse{
		ID:          report.ID,
		RatingID:    report.RatingID,
		ReporterID:  report.ReporterID,
		Type:        string(report.Type),
		Description: report.Description,
		Status:      string(report.Status),
		AdminNotes:  report.AdminNotes,
		ReviewedBy:  report.ReviewedBy,
		ReviewedAt:  report.ReviewedAt,
		CreatedAt:   report.CreatedAt,
	}
}
