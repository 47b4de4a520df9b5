// Package events publishes domain notifications after a mutation commits.
// Delivery is best effort: the database is the source of truth and callers
// log publish failures instead of failing the request.
package events

import (
	"context"
	"time"
)

// GoalCompleted is emitted once per archived goal.
type GoalCompleted struct {
	ArchiveID     uint             `json:"archive_id"`
	ProjectID     uint             `json:"project_id"`
	ProjectName   string           `json:"project_name"`
	CompletedDate time.Time        `json:"completed_date"`
	Contributors  map[string]int   `json:"contributors"` // user id -> units across all parts
}

// Publisher delivers domain events.
type Publisher interface {
	PublishGoalCompleted(ctx context.Context, ev GoalCompleted) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishGoalCompleted(context.Context, GoalCompleted) error { return nil }
func (Nop) Close() error                                              { return nil }
