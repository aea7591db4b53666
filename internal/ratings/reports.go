package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
)

// MaxReportTextLength bounds report descriptions and moderator notes, in runes.
const MaxReportTextLength = 1000

// FileReportInput is a user's report against a rating.
type FileReportInput struct {
	RatingID    string
	ReporterID  string
	Type        domain.ReportType
	Description string
}

// ReviewReportInput is a moderator decision on a report.
type ReviewReportInput struct {
	ReportID   int64
	Status     domain.ReportStatus
	AdminNotes string
	ActorID    string
}

func validateReport(in FileReportInput) error {
	if strings.TrimSpace(in.ReporterID) == "" {
		return domain.NewValidationError("reporterId", "is required")
	}
	if strings.TrimSpace(in.RatingID) == "" {
		return domain.NewValidationError("ratingId", "is required")
	}
	if !in.Type.Valid() {
		return domain.NewValidationError("type", "must be one of spam, fake, offensive, inappropriate, misleading, other")
	}
	if in.Description == "" {
		return domain.NewValidationError("description", "is required")
	}
	if utf8.RuneCountInString(in.Description) > MaxReportTextLength {
		return domain.NewValidationError("description", "must be at most %d characters", MaxReportTextLength)
	}
	return nil
}

// FileReport records a report against a rating and audits it in the same
// transaction. Raters cannot report their own rating and each reporter may
// report a rating once.
func (s *Service) FileReport(ctx context.Context, in FileReportInput) (domain.RatingReport, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := validateReport(in); err != nil {
		monitoring.RecordReportAction(domain.AuditActionReportFiled, "invalid")
		return domain.RatingReport{}, err
	}

	var report domain.RatingReport
	err := s.repo.InTx(ctx, func(q repository.Querier) error {
		event, err := s.repo.Ratings.GetEventByID(ctx, q, in.RatingID)
		if err != nil {
			return err
		}
		if event.RaterID == in.ReporterID {
			return domain.NewValidationError("ratingId", "cannot report your own rating")
		}

		report, err = s.repo.Reports.Create(ctx, q, repository.ReportCreateParams{
			RatingID:    in.RatingID,
			ReporterID:  in.ReporterID,
			Type:        in.Type,
			Description: in.Description,
		})
		if err != nil {
			return err
		}

		after, err := json.Marshal(report)
		if err != nil {
			return err
		}
		_, err = s.repo.Audit.Append(ctx, q, repository.AuditAppendParams{
			ActorID: in.ReporterID,
			Action:  domain.AuditActionReportFiled,
			Target:  domain.ReportTarget(report.ID),
			After:   after,
			Reason:  string(in.Type),
		})
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStorageConflict):
			monitoring.RecordReportAction(domain.AuditActionReportFiled, "duplicate")
			return domain.RatingReport{}, domain.ErrDuplicateReport
		case errors.Is(err, domain.ErrNotFound), domain.IsValidation(err):
			monitoring.RecordReportAction(domain.AuditActionReportFiled, "rejected")
			return domain.RatingReport{}, err
		}
		return domain.RatingReport{}, fmt.Errorf("file report: %w", err)
	}

	monitoring.RecordReportAction(domain.AuditActionReportFiled, string(report.Status))
	s.logger.Info().
		Int64("report_id", report.ID).
		Str("rating_id", report.RatingID).
		Str("type", string(report.Type)).
		Msg("rating reported")
	return report, nil
}

func validateReview(in ReviewReportInput) error {
	if in.ReportID <= 0 {
		return domain.NewValidationError("reportId", "must be positive")
	}
	if !in.Status.Valid() || in.Status == domain.ReportStatusPending {
		return domain.NewValidationError("status", "must be one of reviewed, resolved, rejected")
	}
	if utf8.RuneCountInString(in.AdminNotes) > MaxReportTextLength {
		return domain.NewValidationError("adminNotes", "must be at most %d characters", MaxReportTextLength)
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return domain.NewValidationError("actorId", "is required")
	}
	return nil
}

// ReviewReport moves a report to reviewed, resolved or rejected. Resolved and
// rejected reports are final and fail with ErrReportClosed.
func (s *Service) ReviewReport(ctx context.Context, in ReviewReportInput) (domain.RatingReport, error) {
	in.AdminNotes = strings.TrimSpace(in.AdminNotes)
	if err := validateReview(in); err != nil {
		return domain.RatingReport{}, err
	}

	target := domain.ReportTarget(in.ReportID)
	var reviewed domain.RatingReport
	err := s.repo.InTx(ctx, func(q repository.Querier) error {
		current, err := s.repo.Reports.GetForUpdate(ctx, q, in.ReportID)
		if err != nil {
			return err
		}
		if current.Status.Closed() {
			return domain.ErrReportClosed
		}

		reviewed, err = s.repo.Reports.Review(ctx, q, repository.ReportReviewParams{
			ID:         in.ReportID,
			Status:     in.Status,
			AdminNotes: in.AdminNotes,
			ReviewedBy: in.ActorID,
		})
		if err != nil {
			return err
		}

		before, err := json.Marshal(current)
		if err != nil {
			return err
		}
		after, err := json.Marshal(reviewed)
		if err != nil {
			return err
		}
		_, err = s.repo.Audit.Append(ctx, q, repository.AuditAppendParams{
			ActorID: in.ActorID,
			Action:  domain.AuditActionReportReviewed,
			Target:  target,
			Before:  before,
			After:   after,
			Reason:  in.AdminNotes,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrReportClosed) {
			return domain.RatingReport{}, err
		}
		return domain.RatingReport{}, fmt.Errorf("review report: %w", err)
	}

	monitoring.RecordReportAction(domain.AuditActionReportReviewed, string(reviewed.Status))
	logging.LogAdminAction(in.ActorID, domain.AuditActionReportReviewed, target, in.AdminNotes)
	return reviewed, nil
}

// GetReport returns a single report.
func (s *Service) GetReport(ctx context.Context, id int64) (domain.RatingReport, error) {
	return s.repo.Reports.GetByID(ctx, id)
}

// ListReports pages through reports newest first.
func (s *Service) ListReports(ctx context.Context, filters repository.ReportListFilters) (repository.ReportListResult, error) {
	if filters.Status != nil && !filters.Status.Valid() {
		return repository.ReportListResult{}, domain.NewValidationError("status", "unknown status %q", *filters.Status)
	}
	return s.repo.Reports.List(ctx, filters)
}
