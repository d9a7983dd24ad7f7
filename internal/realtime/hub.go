// Package realtime fans task events out to connected viewers.
package realtime

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const DefaultBufferSize = 64

type subscriber struct {
	ownerID string
	ch      chan model.TaskEvent
}

// Hub is an in-process subscriber registry. Delivery is best effort: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]subscriber
	bufSize     int
	published   metric.Int64Counter
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscribers: make(map[string]subscriber),
		bufSize:     DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetPublishCounter counts every event handed to the hub from now on.
func (h *Hub) SetPublishCounter(c metric.Int64Counter) {
	h.mu.Lock()
	h.published = c
	h.mu.Unlock()
}

// Subscribe registers a viewer. An empty ownerID receives every owner's
// events; otherwise only events of that owner are delivered.
func (h *Hub) Subscribe(ownerID string) (string, <-chan model.TaskEvent) {
	id := ulid.Make().String()
	ch := make(chan model.TaskEvent, h.bufSize)
	h.mu.Lock()
	h.subscribers[id] = subscriber{ownerID: ownerID, ch: ch}
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, ev model.TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.published != nil {
		h.published.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(ev.Type))))
	}
	for _, sub := range h.subscribers {
		if sub.ownerID != "" && sub.ownerID != ev.OwnerID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
