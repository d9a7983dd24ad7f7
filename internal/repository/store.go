package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

var tracer = otel.Tracer("github.com/sharifulalam-dev/todoserver/internal/repository")

// TaskStore persists task documents. Every read and write except Insert and
// Count is scoped to an owner; a document of another owner behaves exactly
// like a missing one and yields model.ErrTaskNotFound.
type TaskStore interface {
	// Insert assigns the task an ID and stores it.
	Insert(ctx context.Context, task *model.Task) error
	FindOwned(ctx context.Context, ownerID, id string) (*model.Task, error)
	// ListByOwner returns the owner's tasks sorted by category, then order,
	// then insertion sequence.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error)
	// MaxOrder returns the highest order in the (owner, category) partition.
	// found is false when the partition is empty.
	MaxOrder(ctx context.Context, ownerID, category string) (order int, found bool, err error)
	// Update writes the present patch fields of an owned task. modified is
	// false when every present field already held the given value; updatedAt
	// is only written when something changed.
	Update(ctx context.Context, ownerID, id string, patch model.TaskPatch, updatedAt time.Time) (modified bool, err error)
	DeleteOwned(ctx context.Context, ownerID, id string) error
	// Count returns the number of stored tasks across all owners.
	Count(ctx context.Context) (int64, error)
}
