package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps domain errors onto status codes. Anything unknown
// is logged and reported as INTERNAL_ERROR with the given fallback message.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ve.Error())
	case errors.Is(err, domain.ErrDuplicateRating):
		s.respondError(w, http.StatusConflict, "DUPLICATE_RATING", err.Error())
	case errors.Is(err, domain.ErrEntityExists):
		s.respondError(w, http.StatusConflict, "ENTITY_EXISTS", err.Error())
	case errors.Is(err, domain.ErrRatingsClosed):
		s.respondError(w, http.StatusConflict, "RATINGS_CLOSED", err.Error())
	case errors.Is(err, domain.ErrDuplicateReport):
		s.respondError(w, http.StatusConflict, "DUPLICATE_REPORT", err.Error())
	case errors.Is(err, domain.ErrReportClosed):
		s.respondError(w, http.StatusConflict, "REPORT_CLOSED", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" || s.cfg.AuthToken == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token == s.cfg.AuthToken
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.verifyBearer(r.Header.Get("Authorization")) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor-Id"))
}
