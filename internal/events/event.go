// Package events delivers "rating committed" notifications to downstream
// consumers after the write transaction has committed.
package events

import (
	"context"
	"time"
)

// RatingCommitted is emitted once per successfully committed rating.
// NewAverage is nil when the aggregate has no defined average.
type RatingCommitted struct {
	EntityID    string    `json:"entityId"`
	CategoryID  string    `json:"categoryId"`
	RatingID    string    `json:"ratingId"`
	NewAverage  *float64  `json:"newAverage"`
	NewCount    int64     `json:"newCount"`
	CommittedAt time.Time `json:"committedAt"`
}

// Publisher sends a single event to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt RatingCommitted) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(evt RatingCommitted)
}

// Discard is an Emitter that drops every event.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(RatingCommitted) {}
