package realtime

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

type staticOwner struct {
	owner string
	err   error
}

func (s staticOwner) OwnerFromRequest(*http.Request) (string, error) {
	return s.owner, s.err
}

var testOrigins = []string{"http://localhost:5173"}

func TestEventsStreamsSSE(t *testing.T) {
	hub := NewHub()
	h := NewStreamHandler(hub, staticOwner{}, false, testOrigins, discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), model.TaskMovedEvent(&model.Task{ID: "t1", OwnerID: "U2", Title: "A", Category: "Done"}))
	hub.Publish(context.Background(), model.TaskDeletedEvent("U2", "t1"))

	r := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimRight(line, "\n")
	}

	assert.Equal(t, "event: taskMoved", readLine())
	data := strings.TrimPrefix(readLine(), "data: ")
	var task model.Task
	require.NoError(t, sonic.UnmarshalString(data, &task))
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, "Done", task.Category)
	assert.Equal(t, "", readLine())

	assert.Equal(t, "event: taskDeleted", readLine())
	assert.Equal(t, `data: "t1"`, readLine())

	resp.Body.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsScopedRequiresOwner(t *testing.T) {
	hub := NewHub()
	h := NewStreamHandler(hub, staticOwner{err: model.ErrNoToken}, true, testOrigins, discardLogger())

	rec := httptest.NewRecorder()
	h.Events(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"No token provided."}`, rec.Body.String())
	assert.Equal(t, 0, hub.Len())

	rec = httptest.NewRecorder()
	h = NewStreamHandler(hub, staticOwner{err: errors.New("boom")}, true, testOrigins, discardLogger())
	h.WebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid token."}`, rec.Body.String())
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketFrames(t *testing.T) {
	hub := NewHub()
	h := NewStreamHandler(hub, staticOwner{owner: "U1"}, true, testOrigins, discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.WebSocket))
	defer srv.Close()

	ws, err := websocket.Dial(wsURL(srv), "", "http://localhost:5173")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), model.TaskDeletedEvent("U2", "foreign"))
	hub.Publish(context.Background(), model.TaskCreatedEvent(&model.Task{ID: "t1", OwnerID: "U1", Title: "A"}))

	var msg string
	require.NoError(t, websocket.Message.Receive(ws, &msg))

	var frame struct {
		Event string     `json:"event"`
		Data  model.Task `json:"data"`
	}
	require.NoError(t, sonic.UnmarshalString(msg, &frame))
	assert.Equal(t, "taskCreated", frame.Event)
	assert.Equal(t, "t1", frame.Data.ID)

	ws.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub()
	h := NewStreamHandler(hub, staticOwner{}, false, testOrigins, discardLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.WebSocket))
	defer srv.Close()

	_, err := websocket.Dial(wsURL(srv), "", "http://evil.example")
	require.Error(t, err)
	assert.Equal(t, 0, hub.Len())
}
