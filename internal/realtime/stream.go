package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/net/websocket"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const heartbeatInterval = 25 * time.Second

// OwnerResolver authenticates a realtime connection.
type OwnerResolver interface {
	OwnerFromRequest(r *http.Request) (string, error)
}

// Frame is the envelope sent to WebSocket viewers.
type Frame struct {
	Event model.EventType `json:"event"`
	Data  any             `json:"data"`
}

// StreamHandler serves the SSE and WebSocket transports.
type StreamHandler struct {
	hub            *Hub
	owners         OwnerResolver
	scopeByOwner   bool
	allowedOrigins []string
	logger         *slog.Logger
}

func NewStreamHandler(hub *Hub, owners OwnerResolver, scopeByOwner bool, allowedOrigins []string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:            hub,
		owners:         owners,
		scopeByOwner:   scopeByOwner,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// subscriberOwner returns the owner filter for a new connection, or "" when
// the viewer receives every event.
func (h *StreamHandler) subscriberOwner(r *http.Request) (string, error) {
	if !h.scopeByOwner {
		return "", nil
	}
	return h.owners.OwnerFromRequest(r)
}

// Events streams task events as Server-Sent Events.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := h.subscriberOwner(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.ErrorContext(ctx, "streaming unsupported", slog.Any("error", err))
		return
	}

	id, events := h.hub.Subscribe(owner)
	defer h.hub.Unsubscribe(id)
	h.logger.InfoContext(ctx, "sse viewer connected", slog.String("subscriber", id))

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "sse viewer disconnected", slog.String("subscriber", id))
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := sonic.Marshal(ev.Payload())
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// WebSocket streams task events as JSON text frames.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	owner, err := h.subscriberOwner(r)
	if err != nil {
		writeUnauthorized(w, err)
		return
	}

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	srv := websocket.Server{
		Handshake: h.checkOrigin,
		Handler: func(ws *websocket.Conn) {
			h.serveSocket(ws, owner)
		},
	}
	srv.ServeHTTP(w, r)
}

func (h *StreamHandler) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	// Non-browser clients send no Origin.
	if origin == nil {
		return nil
	}
	cfg.Origin = origin
	got := origin.Scheme + "://" + origin.Host
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == got {
			return nil
		}
	}
	return fmt.Errorf("origin %q not allowed", got)
}

func (h *StreamHandler) serveSocket(ws *websocket.Conn, owner string) {
	defer ws.Close()

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	// Viewers only listen; the read loop notices when they leave.
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	id, events := h.hub.Subscribe(owner)
	defer h.hub.Unsubscribe(id)
	h.logger.InfoContext(ctx, "websocket viewer connected", slog.String("subscriber", id))

	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "websocket viewer disconnected", slog.String("subscriber", id))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := sonic.MarshalString(Frame{Event: ev.Type, Data: ev.Payload()})
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode event", slog.Any("error", err))
				continue
			}
			if err := websocket.Message.Send(ws, data); err != nil {
				return
			}
		}
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := model.ErrInvalidToken.Message
	if model.KindOf(err) == model.KindUnauthorized {
		msg = model.PublicMessage(err)
	}
	body, _ := sonic.Marshal(map[string]string{"message": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(body)
}
