package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

type memoryRecord struct {
	task *model.Task
	seq  uint64
}

// MemoryStore provides an in-memory storage for tasks.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*memoryRecord
	nextSeq uint64
}

var _ TaskStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*memoryRecord),
	}
}

// Insert adds a new task to the store.
func (s *MemoryStore) Insert(ctx context.Context, task *model.Task) error {
	_, span := tracer.Start(ctx, "MemoryStore.Insert",
		trace.WithAttributes(attribute.String("task.category", task.Category)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task.ID = uuid.New().String()
	s.nextSeq++
	s.tasks[task.ID] = &memoryRecord{task: task.Clone(), seq: s.nextSeq}

	span.SetAttributes(attribute.String("task.id", task.ID))
	return nil
}

// FindOwned retrieves a task by its ID if it belongs to ownerID.
func (s *MemoryStore) FindOwned(ctx context.Context, ownerID, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.FindOwned",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.owned(ownerID, id)
	span.SetAttributes(attribute.Bool("task.found", ok))
	if !ok {
		return nil, model.ErrTaskNotFound
	}
	return rec.task.Clone(), nil
}

// ListByOwner returns the owner's tasks in board order.
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryStore.ListByOwner")
	defer span.End()

	s.mu.RLock()
	recs := make([]*memoryRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if rec.task.OwnerID == ownerID {
			recs = append(recs, &memoryRecord{task: rec.task.Clone(), seq: rec.seq})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b *memoryRecord) int {
		return cmp.Or(
			cmp.Compare(a.task.Category, b.task.Category),
			cmp.Compare(a.task.Order, b.task.Order),
			cmp.Compare(a.seq, b.seq),
		)
	})

	tasks := make([]*model.Task, len(recs))
	for i, rec := range recs {
		tasks[i] = rec.task
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// MaxOrder returns the largest order in the (ownerID, category) partition.
func (s *MemoryStore) MaxOrder(ctx context.Context, ownerID, category string) (int, bool, error) {
	_, span := tracer.Start(ctx, "MemoryStore.MaxOrder",
		trace.WithAttributes(attribute.String("task.category", category)),
	)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	highest, found := 0, false
	for _, rec := range s.tasks {
		if rec.task.OwnerID != ownerID || rec.task.Category != category {
			continue
		}
		if !found || rec.task.Order > highest {
			highest = rec.task.Order
			found = true
		}
	}
	return highest, found, nil
}

// Update modifies fields of an owned task.
func (s *MemoryStore) Update(ctx context.Context, ownerID, id string, patch model.TaskPatch, updatedAt time.Time) (bool, error) {
	_, span := tracer.Start(ctx, "MemoryStore.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.owned(ownerID, id)
	span.SetAttributes(attribute.Bool("task.found", ok))
	if !ok {
		return false, model.ErrTaskNotFound
	}

	if !patch.Apply(rec.task) {
		return false, nil
	}
	rec.task.UpdatedAt = &updatedAt
	return true, nil
}

// DeleteOwned removes an owned task from the store.
func (s *MemoryStore) DeleteOwned(ctx context.Context, ownerID, id string) error {
	_, span := tracer.Start(ctx, "MemoryStore.DeleteOwned",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(ownerID, id); !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.ErrTaskNotFound
	}

	delete(s.tasks, id)
	span.SetAttributes(attribute.Bool("task.found", true))
	return nil
}

// Count returns the current number of tasks.
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.tasks)), nil
}

// owned must be called with mu held.
func (s *MemoryStore) owned(ownerID, id string) (*memoryRecord, bool) {
	rec, ok := s.tasks[id]
	if !ok || rec.task.OwnerID != ownerID {
		return nil, false
	}
	return rec, true
}
