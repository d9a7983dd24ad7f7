package model

import (
	"time"
	"unicode/utf8"
)

// DefaultCategory is the column a task lands in when none is given.
const DefaultCategory = "To-Do"

const (
	MaxTitleLength       = 50
	MaxDescriptionLength = 200
)

// Task represents a todo item in one of its owner's columns.
type Task struct {
	ID          string     `json:"_id"`
	OwnerID     string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		c.UpdatedAt = &u
	}
	return &c
}

// CreateTaskInput carries the client-supplied fields of a new task.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Validate checks if the CreateTaskInput is valid.
func (in *CreateTaskInput) Validate() error {
	if in.Title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// TaskPatch is a field-level partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Category    *string
	Order       *int
}

// IsEmpty reports whether the patch sets no field at all.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Order == nil
}

// Validate applies the create-time constraints to every present field.
func (p TaskPatch) Validate() error {
	if p.Title != nil {
		if *p.Title == "" {
			return ErrTitleEmpty
		}
		if utf8.RuneCountInString(*p.Title) > MaxTitleLength {
			return ErrTitleTooLong
		}
	}
	if p.Description != nil && utf8.RuneCountInString(*p.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Apply writes the present fields onto t and reports whether any value changed.
func (p TaskPatch) Apply(t *Task) bool {
	changed := false
	if p.Title != nil && *p.Title != t.Title {
		t.Title = *p.Title
		changed = true
	}
	if p.Description != nil && *p.Description != t.Description {
		t.Description = *p.Description
		changed = true
	}
	if p.Category != nil && *p.Category != t.Category {
		t.Category = *p.Category
		changed = true
	}
	if p.Order != nil && *p.Order != t.Order {
		t.Order = *p.Order
		changed = true
	}
	return changed
}
