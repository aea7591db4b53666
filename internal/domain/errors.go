package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown entity, category or record.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRating is returned when the rater already rated the key.
	ErrDuplicateRating = errors.New("rater already rated this entity in this category")
	// ErrEntityExists is returned when onboarding an id that is already taken.
	ErrEntityExists = errors.New("entity already exists")
	// ErrRatingsClosed is returned when new ratings are frozen for a key.
	ErrRatingsClosed = errors.New("new ratings are closed for this entity in this category")
	// ErrDuplicateReport is returned when the reporter already reported the rating.
	ErrDuplicateReport = errors.New("rating already reported by this user")
	// ErrReportClosed is returned when reviewing a resolved or rejected report.
	ErrReportClosed = errors.New("report is already closed")
)

// ValidationError reports input rejected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a *ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
