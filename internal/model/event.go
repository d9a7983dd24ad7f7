package model

// EventType is the name a realtime event is pushed under.
type EventType string

const (
	EventTaskCreated EventType = "taskCreated"
	EventTaskMoved   EventType = "taskMoved"
	EventTaskDeleted EventType = "taskDeleted"
)

// TaskEvent is emitted once per persisted task mutation.
type TaskEvent struct {
	Type    EventType `json:"type"`
	OwnerID string    `json:"ownerId"`
	Task    *Task     `json:"task,omitempty"`
	TaskID  string    `json:"taskId,omitempty"`
}

// Payload is what clients receive: the full task, or the bare id on delete.
func (e TaskEvent) Payload() any {
	if e.Type == EventTaskDeleted {
		return e.TaskID
	}
	return e.Task
}

func TaskCreatedEvent(t *Task) TaskEvent {
	return TaskEvent{Type: EventTaskCreated, OwnerID: t.OwnerID, Task: t, TaskID: t.ID}
}

func TaskMovedEvent(t *Task) TaskEvent {
	return TaskEvent{Type: EventTaskMoved, OwnerID: t.OwnerID, Task: t, TaskID: t.ID}
}

func TaskDeletedEvent(ownerID, taskID string) TaskEvent {
	return TaskEvent{Type: EventTaskDeleted, OwnerID: ownerID, TaskID: taskID}
}
