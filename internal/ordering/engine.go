// Package ordering assigns positions to new tasks and applies client-driven
// column reorders.
package ordering

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharifulalam-dev/todoserver/internal/model"
	"github.com/sharifulalam-dev/todoserver/internal/repository"
)

var tracer = otel.Tracer("github.com/sharifulalam-dev/todoserver/internal/ordering")

const (
	DefaultWorkers = 8

	reasonSuperseded = "Superseded by a later entry for the same task."
	reasonInternal   = "Internal error."
)

// Engine computes order values on top of a TaskStore.
type Engine struct {
	store   repository.TaskStore
	workers int
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many reorder items are written concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock overrides the time source used for updatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(store repository.TaskStore, opts ...Option) *Engine {
	e := &Engine{store: store, workers: DefaultWorkers, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NextOrder returns one past the highest order in the (ownerID, category)
// partition, or 0 for an empty partition. Concurrent callers may receive the
// same value.
func (e *Engine) NextOrder(ctx context.Context, ownerID, category string) (int, error) {
	if ownerID == "" {
		return 0, model.ErrOwnerRequired
	}
	if category == "" {
		return 0, model.ErrCategoryRequired
	}

	ctx, span := tracer.Start(ctx, "Engine.NextOrder",
		trace.WithAttributes(attribute.String("task.category", category)),
	)
	defer span.End()

	highest, found, err := e.store.MaxOrder(ctx, ownerID, category)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return highest + 1, nil
}

type reorderJob struct {
	taskID   string
	category string
	order    int
}

type reorderOutcome struct {
	modified bool
	err      error
}

// ApplyReorder writes each item's order and category directly, without
// touching tasks the request does not mention and without closing gaps.
// Items are independent: one that does not resolve to a task of ownerID is
// reported in Failed and the rest still apply. Only a malformed request
// fails as a whole.
func (e *Engine) ApplyReorder(ctx context.Context, ownerID string, req model.ReorderRequest) (model.ReorderResult, error) {
	result := model.ReorderResult{Modified: []string{}, Failed: []model.ReorderFailure{}}
	if ownerID == "" {
		return result, model.ErrOwnerRequired
	}
	if err := req.Validate(); err != nil {
		return result, err
	}

	ctx, span := tracer.Start(ctx, "Engine.ApplyReorder",
		trace.WithAttributes(
			attribute.Int("reorder.groups", len(req.Groups)),
			attribute.Int("reorder.items", req.ItemCount()),
		),
	)
	defer span.End()

	jobs := make([]reorderJob, 0, req.ItemCount())
	for _, g := range req.Groups {
		for _, it := range g.Items {
			jobs = append(jobs, reorderJob{taskID: it.TaskID, category: it.TargetCategory(g.Category), order: it.Order})
		}
	}

	// The last entry for a task wins; earlier ones are skipped so no two
	// workers write the same document.
	last := make(map[string]int, len(jobs))
	for i, job := range jobs {
		last[job.taskID] = i
	}

	now := e.now()
	outcomes := make([]reorderOutcome, len(jobs))
	p := pool.New().WithMaxGoroutines(e.workers)
	for i, job := range jobs {
		if last[job.taskID] != i {
			continue
		}
		p.Go(func() {
			category, order := job.category, job.order
			modified, err := e.store.Update(ctx, ownerID, job.taskID, model.TaskPatch{
				Category: &category,
				Order:    &order,
			}, now)
			outcomes[i] = reorderOutcome{modified: modified, err: err}
		})
	}
	p.Wait()

	for i, job := range jobs {
		out := outcomes[i]
		switch {
		case last[job.taskID] != i:
			result.Failed = append(result.Failed, model.ReorderFailure{TaskID: job.taskID, Reason: reasonSuperseded})
		case out.err == nil:
			result.Updated++
			if out.modified {
				result.Modified = append(result.Modified, job.taskID)
			}
		case model.KindOf(out.err) == model.KindNotFound:
			result.Failed = append(result.Failed, model.ReorderFailure{TaskID: job.taskID, Reason: model.ErrTaskNotFound.Message})
		default:
			span.RecordError(out.err)
			result.Failed = append(result.Failed, model.ReorderFailure{TaskID: job.taskID, Reason: reasonInternal})
		}
	}

	span.SetAttributes(
		attribute.Int("reorder.updated", result.Updated),
		attribute.Int("reorder.failed", len(result.Failed)),
	)
	return result, nil
}
