package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// ReportsRepository stores moderation reports filed against ratings.
type ReportsRepository struct {
	pool *pgxpool.Pool
}

// ReportCreateParams describes a new report.
type ReportCreateParams struct {
	RatingID    string
	ReporterID  string
	Type        domain.ReportType
	Description string
}

// ReportReviewParams records a moderator decision.
type ReportReviewParams struct {
	ID         int64
	Status     domain.ReportStatus
	AdminNotes string
	ReviewedBy string
}

// ReportListFilters narrows a report listing. BeforeID pages backwards by id.
type ReportListFilters struct {
	Status   *domain.ReportStatus
	RatingID *string
	BeforeID int64
	Limit    int
}

// ReportListResult returns the paginated payload.
type ReportListResult struct {
	Items      []domain.RatingReport
	NextCursor *int64
}

const reportColumns = `id, rating_id, reporter_id, report_type, description, status,
        admin_notes, reviewed_by, reviewed_at, created_at`

// Create files a report. A second report of the same rating by the same
// reporter fails with ErrStorageConflict.
func (r *ReportsRepository) Create(ctx context.Context, q Querier, params ReportCreateParams) (domain.RatingReport, error) {
	query := fmt.Sprintf(`
        INSERT INTO rating_reports (rating_id, reporter_id, report_type, description)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, reportColumns)

	report, err := scanReport(q.QueryRow(ctx, query,
		params.RatingID,
		params.ReporterID,
		string(params.Type),
		params.Description,
	))
	if err != nil {
		return domain.RatingReport{}, translatePgError(err)
	}
	return report, nil
}

// GetByID reads a report without locking.
func (r *ReportsRepository) GetByID(ctx context.Context, id int64) (domain.RatingReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM rating_reports WHERE id = $1`, reportColumns)
	return getReport(r.pool.QueryRow(ctx, query, id))
}

// GetForUpdate reads a report and locks it until the transaction ends.
func (r *ReportsRepository) GetForUpdate(ctx context.Context, q Querier, id int64) (domain.RatingReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM rating_reports WHERE id = $1 FOR UPDATE`, reportColumns)
	return getReport(q.QueryRow(ctx, query, id))
}

// Review stores a moderator decision and returns the updated report.
func (r *ReportsRepository) Review(ctx context.Context, q Querier, params ReportReviewParams) (domain.RatingReport, error) {
	query := fmt.Sprintf(`
        UPDATE rating_reports SET
            status      = $2,
            admin_notes = $3,
            reviewed_by = $4,
            reviewed_at = now()
        WHERE id = $1
        RETURNING %s
    `, reportColumns)
	return getReport(q.QueryRow(ctx, query,
		params.ID,
		string(params.Status),
		params.AdminNotes,
		params.ReviewedBy,
	))
}

// List returns reports newest first.
func (r *ReportsRepository) List(ctx context.Context, filters ReportListFilters) (ReportListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	} else if filters.Limit > 200 {
		filters.Limit = 200
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Status != nil {
		where = append(where, "status = "+arg(string(*filters.Status)))
	}
	if filters.RatingID != nil && *filters.RatingID != "" {
		where = append(where, "rating_id = "+arg(*filters.RatingID))
	}
	if filters.BeforeID > 0 {
		where = append(where, "id < "+arg(filters.BeforeID))
	}

	var b strings.Builder
	b.WriteString("SELECT " + reportColumns + " FROM rating_reports")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(fmt.Sprintf(" ORDER BY id DESC LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return ReportListResult{}, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]domain.RatingReport, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return ReportListResult{}, err
		}
		items = append(items, report)
	}
	if err := rows.Err(); err != nil {
		return ReportListResult{}, err
	}

	var next *int64
	if len(items) == filters.Limit {
		id := items[len(items)-1].ID
		next = &id
	}
	return ReportListResult{Items: items, NextCursor: next}, nil
}

func getReport(row pgx.Row) (domain.RatingReport, error) {
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingReport{}, ErrNotFound
		}
		return domain.RatingReport{}, err
	}
	return report, nil
}

func scanReport(row pgx.Row) (domain.RatingReport, error) {
	var (
		report     domain.RatingReport
		reportType string
		status     string
		reviewedBy *string
		reviewedAt *time.Time
	)
	err := row.Scan(
		&report.ID,
		&report.RatingID,
		&report.ReporterID,
		&reportType,
		&report.Description,
		&status,
		&report.AdminNotes,
		&reviewedBy,
		&reviewedAt,
		&report.CreatedAt,
	)
	if err != nil {
		return domain.RatingReport{}, err
	}
	report.Type = domain.ReportType(reportType)
	report.Status = domain.ReportStatus(status)
	if reviewedBy != nil {
		report.ReviewedBy = *reviewedBy
	}
	report.ReviewedAt = reviewedAt
	return report, nil
}
