package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisplayMode selects how real and seeded ratings are blended.
type DisplayMode string

const (
	DisplayModeReal     DisplayMode = "real"
	DisplayModeFake     DisplayMode = "fake"
	DisplayModeMixed    DisplayMode = "mixed"
	DisplayModeWeighted DisplayMode = "weighted"
)

// Valid reports whether m is one of the known display modes.
func (m DisplayMode) Valid() bool {
	switch m {
	case DisplayModeReal, DisplayModeFake, DisplayModeMixed, DisplayModeWeighted:
		return true
	}
	return false
}

// SeedConfig is the administrator-owned baseline for one key.
// A zero FakeAverage means unset. AllowNewRatings false freezes the key
// against further submissions.
type SeedConfig struct {
	EntityID        string          `json:"entityId"`
	CategoryID      string          `json:"categoryId"`
	FakeCount       int64           `json:"fakeCount"`
	FakeAverage     decimal.Decimal `json:"fakeAverage"`
	RealWeight      decimal.Decimal `json:"realWeight"`
	FakeWeight      decimal.Decimal `json:"fakeWeight"`
	Mode            DisplayMode     `json:"mode"`
	AllowNewRatings bool            `json:"allowNewRatings"`
	UpdatedBy       string          `json:"updatedBy,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// HasFakeSide reports whether the seed contributes anything to blending.
func (s SeedConfig) HasFakeSide() bool {
	return s.FakeCount > 0 && s.FakeAverage.IsPositive()
}
