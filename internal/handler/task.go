package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sharifulalam-dev/todoserver/internal/auth"
	"github.com/sharifulalam-dev/todoserver/internal/model"
	"github.com/sharifulalam-dev/todoserver/internal/telemetry"
)

var tracer = otel.Tracer("github.com/sharifulalam-dev/todoserver/internal/handler")

const (
	routeTasks   = "/tasks"
	routeTask    = "/tasks/{id}"
	routeReorder = "/tasks/reorderColumn"

	greeting = "Hello from ToDo Backend with real user data + JWT!"
)

// TaskService is the task use-case layer the handler drives.
type TaskService interface {
	Create(ctx context.Context, ownerID string, in model.CreateTaskInput) (*model.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch model.TaskPatch) (*model.Task, error)
	Remove(ctx context.Context, ownerID, taskID string) error
	Get(ctx context.Context, ownerID, taskID string) (*model.Task, error)
	List(ctx context.Context, ownerID string) ([]*model.Task, error)
	Reorder(ctx context.Context, ownerID string, req model.ReorderRequest) (model.ReorderResult, error)
}

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	svc     TaskService
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc TaskService, logger *slog.Logger, metrics *telemetry.Metrics) *TaskHandler {
	return &TaskHandler{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
	}
}

// Routes returns the chi router with task routes. Callers must place the
// owner middleware in front of it.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/reorderColumn", h.Reorder)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

// List returns the caller's tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TaskHandler.List")
	defer span.End()
	start := time.Now()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		h.fail(ctx, w, http.MethodGet, routeTasks, start, model.ErrNoToken)
		return
	}

	tasks, err := h.svc.List(ctx, owner)
	if err != nil {
		h.fail(ctx, w, http.MethodGet, routeTasks, start, err)
		return
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	h.logger.InfoContext(ctx, "tasks listed", slog.Int("count", len(tasks)))

	h.respond(ctx, w, http.MethodGet, routeTasks, http.StatusOK, start, tasks)
}

// Create adds a new task at the end of its column.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Create")
	defer span.End()
	start := time.Now()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		h.fail(ctx, w, http.MethodPost, routeTasks, start, model.ErrNoToken)
		return
	}

	var body createTaskBody
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(ctx, w, http.MethodPost, routeTasks, start, err)
		return
	}

	task, err := h.svc.Create(ctx, owner, body.input())
	if err != nil {
		h.fail(ctx, w, http.MethodPost, routeTasks, start, err)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.InfoContext(ctx, "task created",
		slog.String("id", task.ID),
		slog.String("category", task.Category),
		slog.Int("order", task.Order),
	)

	h.respond(ctx, w, http.MethodPost, routeTasks, http.StatusCreated, start, task)
}

// Update applies a partial update to an owned task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	start := time.Now()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		h.fail(ctx, w, http.MethodPut, routeTask, start, model.ErrNoToken)
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeBody(w, r, &raw); err != nil {
		h.fail(ctx, w, http.MethodPut, routeTask, start, err)
		return
	}
	patch, err := parsePatch(raw)
	if err != nil {
		// Another owner's task is reported missing whatever the body holds.
		if _, ferr := h.svc.Get(ctx, owner, id); ferr != nil {
			err = ferr
		}
		h.fail(ctx, w, http.MethodPut, routeTask, start, err)
		return
	}

	task, err := h.svc.Update(ctx, owner, id, patch)
	if err != nil {
		h.fail(ctx, w, http.MethodPut, routeTask, start, err)
		return
	}

	h.logger.InfoContext(ctx, "task updated", slog.String("id", id))

	h.respond(ctx, w, http.MethodPut, routeTask, http.StatusOK, start, task)
}

// Delete removes an owned task.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	start := time.Now()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		h.fail(ctx, w, http.MethodDelete, routeTask, start, model.ErrNoToken)
		return
	}

	if err := h.svc.Remove(ctx, owner, id); err != nil {
		h.fail(ctx, w, http.MethodDelete, routeTask, start, err)
		return
	}

	h.logger.InfoContext(ctx, "task deleted", slog.String("id", id))

	h.respond(ctx, w, http.MethodDelete, routeTask, http.StatusOK, start, messageResponse{Message: "Task deleted successfully."})
}

// Reorder applies client-chosen positions to one or more columns.
func (h *TaskHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Reorder")
	defer span.End()
	start := time.Now()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		h.fail(ctx, w, http.MethodPost, routeReorder, start, model.ErrNoToken)
		return
	}

	var body reorderBody
	if err := decodeBody(w, r, &body); err != nil {
		h.fail(ctx, w, http.MethodPost, routeReorder, start, err)
		return
	}
	req, err := body.request()
	if err != nil {
		h.fail(ctx, w, http.MethodPost, routeReorder, start, err)
		return
	}

	res, err := h.svc.Reorder(ctx, owner, req)
	if err != nil {
		h.fail(ctx, w, http.MethodPost, routeReorder, start, err)
		return
	}

	if n := len(res.Failed); n > 0 {
		h.metrics.ReorderItemFailures.Add(ctx, int64(n))
	}
	h.logger.InfoContext(ctx, "columns reordered",
		slog.Int("updated", res.Updated),
		slog.Int("modified", len(res.Modified)),
		slog.Int("failed", len(res.Failed)),
	)

	h.respond(ctx, w, http.MethodPost, routeReorder, http.StatusOK, start, reorderResponse{
		Message:       "Tasks reordered.",
		ReorderResult: res,
	})
}

// Logout clears the token cookie.
func (h *TaskHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.respondJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root answers the bare greeting.
func (h *TaskHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(greeting))
}

// Unauthorized writes a rejection from the owner middleware.
func (h *TaskHandler) Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, "request rejected",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	h.respondError(w, http.StatusUnauthorized, model.PublicMessage(err))
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation, model.KindNoOp:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *TaskHandler) fail(ctx context.Context, w http.ResponseWriter, method, route string, start time.Time, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	if kind == model.KindInternal {
		trace.SpanFromContext(ctx).RecordError(err)
		h.logger.ErrorContext(ctx, "request failed",
			slog.String("route", route),
			slog.Any("error", err),
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			slog.String("route", route),
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)
	}

	h.respondError(w, status, model.PublicMessage(err))
	h.recordMetrics(ctx, method, route, status, start)
}

func (h *TaskHandler) respond(ctx context.Context, w http.ResponseWriter, method, route string, status int, start time.Time, data any) {
	h.respondJSON(w, status, data)
	h.recordMetrics(ctx, method, route, status, start)
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := sonic.ConfigStd.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("failed to write response", slog.Any("error", err))
		}
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, messageResponse{Message: message})
}

func (h *TaskHandler) recordMetrics(ctx context.Context, method, route string, status int, start time.Time) {
	duration := time.Since(start).Seconds()

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)

	h.metrics.RequestCounter.Add(ctx, 1, attrs)
	h.metrics.RequestDuration.Record(ctx, duration, attrs)
}
