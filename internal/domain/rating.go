package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinStars = 1
	MaxStars = 5
)

// RatingEvent is a single committed rating. It is never updated.
type RatingEvent struct {
	ID         string
	EntityID   string
	CategoryID string
	RaterID    string
	Stars      int
	Comment    string
	CreatedAt  time.Time
}

// AggregateRating is the running total of real ratings for one key.
type AggregateRating struct {
	EntityID     string
	CategoryID   string
	RealCount    int64
	RealSum      int64
	Distribution [MaxStars]int64
	UpdatedAt    time.Time
}

// RealAverage returns real_sum/real_count, or an invalid NullDecimal when
// nothing has been rated yet.
func (a AggregateRating) RealAverage() decimal.NullDecimal {
	if a.RealCount <= 0 {
		return decimal.NullDecimal{}
	}
	avg := decimal.NewFromInt(a.RealSum).Div(decimal.NewFromInt(a.RealCount))
	return decimal.NullDecimal{Decimal: avg, Valid: true}
}

// ResolvedRating is what callers are shown.
type ResolvedRating struct {
	EntityID   string
	CategoryID string
	Average    decimal.NullDecimal
	Count      int64
	Mode       DisplayMode
}
