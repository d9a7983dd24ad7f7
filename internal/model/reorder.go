package model

import "fmt"

// ReorderItem is one task's desired position. Category, when set, overrides
// the category of the group the item was sent in.
type ReorderItem struct {
	TaskID   string
	Order    int
	Category *string
}

// TargetCategory is the category the item is written to.
func (it ReorderItem) TargetCategory(group string) string {
	if it.Category != nil && *it.Category != "" {
		return *it.Category
	}
	return group
}

// ReorderGroup is the desired ordering of one column.
type ReorderGroup struct {
	Category string
	Items    []ReorderItem
}

// ReorderRequest is the uniform form of both reorder payload shapes: a single
// {category, tasks} pair becomes one group, categoryUpdates become one group each.
type ReorderRequest struct {
	Groups []ReorderGroup
}

// Validate checks the request shape. Task existence is not checked here.
func (r ReorderRequest) Validate() error {
	if len(r.Groups) == 0 {
		return NewValidationError("At least one category update is required.")
	}
	for i, g := range r.Groups {
		if g.Category == "" {
			return NewValidationError(fmt.Sprintf("Category update %d is missing a category.", i))
		}
		for j, it := range g.Items {
			if it.TaskID == "" {
				return NewValidationError(fmt.Sprintf("Task %d in category %q is missing an _id.", j, g.Category))
			}
		}
	}
	return nil
}

// ItemCount returns the number of items across all groups.
func (r ReorderRequest) ItemCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Items)
	}
	return n
}

// ReorderFailure names an item that could not be applied.
type ReorderFailure struct {
	TaskID string `json:"_id"`
	Reason string `json:"reason"`
}

// ReorderResult summarizes a best-effort reorder batch.
type ReorderResult struct {
	// Updated counts items that resolved to a task of the caller.
	Updated int `json:"updated"`
	// Modified lists the ids whose stored category or order actually changed.
	Modified []string         `json:"modified"`
	Failed   []ReorderFailure `json:"failed"`
}
