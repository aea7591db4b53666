package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audit actions recorded by the service.
const (
	AuditActionRatingSubmitted = "rating.submitted"
	AuditActionSeedSet         = "seed.set"
	AuditActionSeedReset       = "seed.reset"
	AuditActionReportFiled     = "report.filed"
	AuditActionReportReviewed  = "report.reviewed"
)

// AuditEntry is an append-only record of a committed mutation.
type AuditEntry struct {
	ID        int64
	ActorID   string
	Action    string
	Target    string
	Before    json.RawMessage
	After     json.RawMessage
	Reason    string
	CreatedAt time.Time
}

// AuditTarget formats the target key for an (entity, category) pair.
func AuditTarget(entityID, categoryID string) string {
	return fmt.Sprintf("%s/%s", entityID, categoryID)
}

// ReportTarget formats the audit target for a rating report.
func ReportTarget(reportID int64) string {
	return fmt.Sprintf("report/%d", reportID)
}
