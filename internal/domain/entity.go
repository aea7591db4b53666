package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity is the subject being rated. The service treats its id as opaque.
type Entity struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is one axis an entity can be rated on.
type Category struct {
	ID           string
	Name         string
	Weight       decimal.Decimal
	IsPrimary    bool
	IsActive     bool
	DisplayOrder int
}
