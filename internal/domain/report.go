package domain

import "time"

// ReportType classifies why a rating was reported.
type ReportType string

const (
	ReportTypeSpam          ReportType = "spam"
	ReportTypeFake          ReportType = "fake"
	ReportTypeOffensive     ReportType = "offensive"
	ReportTypeInappropriate ReportType = "inappropriate"
	ReportTypeMisleading    ReportType = "misleading"
	ReportTypeOther         ReportType = "other"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeSpam, ReportTypeFake, ReportTypeOffensive,
		ReportTypeInappropriate, ReportTypeMisleading, ReportTypeOther:
		return true
	}
	return false
}

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusReviewed ReportStatus = "reviewed"
	ReportStatusResolved ReportStatus = "resolved"
	ReportStatusRejected ReportStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusReviewed, ReportStatusResolved, ReportStatusRejected:
		return true
	}
	return false
}

// Closed reports whether no further review is accepted.
func (s ReportStatus) Closed() bool {
	return s == ReportStatusResolved || s == ReportStatusRejected
}

// RatingReport flags a rating for moderator attention.
type RatingReport struct {
	ID          int64        `json:"id"`
	RatingID    string       `json:"ratingId"`
	ReporterID  string       `json:"reporterId"`
	Type        ReportType   `json:"type"`
	Description string       `json:"description"`
	Status      ReportStatus `json:"status"`
	AdminNotes  string       `json:"adminNotes,omitempty"`
	ReviewedBy  string       `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
