package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharifulalam-dev/todoserver/internal/model"
	"github.com/sharifulalam-dev/todoserver/internal/ordering"
	"github.com/sharifulalam-dev/todoserver/internal/repository"
)

var tracer = otel.Tracer("github.com/sharifulalam-dev/todoserver/internal/service")

// EventPublisher receives one event per persisted mutation. Publishing is
// fire-and-forget and must not block the caller on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.TaskEvent)
}

// TaskService orchestrates task mutations and emits their events.
type TaskService struct {
	store  repository.TaskStore
	engine *ordering.Engine
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store repository.TaskStore, engine *ordering.Engine, events EventPublisher, logger *slog.Logger) *TaskService {
	return &TaskService{
		store:  store,
		engine: engine,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and stores a new task at the end of its column.
func (s *TaskService) Create(ctx context.Context, ownerID string, in model.CreateTaskInput) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Create")
	defer span.End()

	if ownerID == "" {
		return nil, model.ErrOwnerRequired
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	category := in.Category
	if category == "" {
		category = model.DefaultCategory
	}

	order, err := s.engine.NextOrder(ctx, ownerID, category)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		Category:    category,
		Order:       order,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Insert(ctx, task); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("task.id", task.ID), attribute.Int("task.order", task.Order))
	s.events.Publish(ctx, model.TaskCreatedEvent(task.Clone()))
	return task, nil
}

// Update applies a partial patch to an owned task and returns the reloaded task.
func (s *TaskService) Update(ctx context.Context, ownerID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Update",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
	defer span.End()

	if _, err := s.store.FindOwned(ctx, ownerID, taskID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, model.ErrNoUpdateFields
	}

	modified, err := s.store.Update(ctx, ownerID, taskID, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, model.ErrNoChanges
	}

	task, err := s.store.FindOwned(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, model.TaskMovedEvent(task.Clone()))
	return task, nil
}

// Remove deletes an owned task.
func (s *TaskService) Remove(ctx context.Context, ownerID, taskID string) error {
	ctx, span := tracer.Start(ctx, "TaskService.Remove",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
	defer span.End()

	if err := s.store.DeleteOwned(ctx, ownerID, taskID); err != nil {
		return err
	}

	s.events.Publish(ctx, model.TaskDeletedEvent(ownerID, taskID))
	return nil
}

// Get returns an owned task.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Get",
		trace.WithAttributes(attribute.String("task.id", taskID)),
	)
	defer span.End()

	return s.store.FindOwned(ctx, ownerID, taskID)
}

// List returns the owner's tasks sorted by category and order.
func (s *TaskService) List(ctx context.Context, ownerID string) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.List")
	defer span.End()

	tasks, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Reorder applies a reorder batch and emits a moved event per changed task.
func (s *TaskService) Reorder(ctx context.Context, ownerID string, req model.ReorderRequest) (model.ReorderResult, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Reorder")
	defer span.End()

	res, err := s.engine.ApplyReorder(ctx, ownerID, req)
	if err != nil {
		return res, err
	}

	if len(res.Failed) > 0 {
		s.logger.WarnContext(ctx, "reorder applied partially",
			slog.Int("updated", res.Updated),
			slog.Int("failed", len(res.Failed)),
		)
	}

	for _, id := range res.Modified {
		task, err := s.store.FindOwned(ctx, ownerID, id)
		if err != nil {
			// Deleted between the write and the reload; its deleted event covers it.
			s.logger.WarnContext(ctx, "reordered task vanished before broadcast",
				slog.String("id", id),
				slog.Any("error", err),
			)
			continue
		}
		s.events.Publish(ctx, model.TaskMovedEvent(task))
	}
	return res, nil
}
