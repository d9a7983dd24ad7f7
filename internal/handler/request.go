package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const maxBodyBytes = 1 << 20

var null = []byte("null")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidBody, err)
	}
	return nil
}

type createTaskBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (b createTaskBody) input() model.CreateTaskInput {
	return model.CreateTaskInput{Title: b.Title, Description: b.Description, Category: b.Category}
}

// parsePatch builds a patch from the fields present in raw. Unknown fields
// are ignored.
func parsePatch(raw map[string]json.RawMessage) (model.TaskPatch, error) {
	var patch model.TaskPatch

	if v, ok := raw["title"]; ok {
		if bytes.Equal(bytes.TrimSpace(v), null) {
			return patch, model.ErrTitleEmpty
		}
		var title string
		if err := sonic.Unmarshal(v, &title); err != nil {
			return patch, model.ErrInvalidBody
		}
		patch.Title = &title
	}

	if v, ok := raw["description"]; ok {
		var desc string
		if bytes.Equal(bytes.TrimSpace(v), null) || sonic.Unmarshal(v, &desc) != nil {
			return patch, model.ErrInvalidBody
		}
		patch.Description = &desc
	}

	if v, ok := raw["category"]; ok {
		var category string
		if bytes.Equal(bytes.TrimSpace(v), null) || sonic.Unmarshal(v, &category) != nil {
			return patch, model.ErrInvalidBody
		}
		if category == "" {
			return patch, model.ErrCategoryRequired
		}
		patch.Category = &category
	}

	if v, ok := raw["order"]; ok {
		order, err := parseOrder(v)
		if err != nil {
			return patch, err
		}
		patch.Order = &order
	}

	return patch, nil
}

// parseOrder accepts JSON integers only; numeric strings are rejected.
func parseOrder(v json.RawMessage) (int, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || (v[0] != '-' && (v[0] < '0' || v[0] > '9')) {
		return 0, model.ErrOrderNotNumber
	}
	var n json.Number
	if err := sonic.Unmarshal(v, &n); err != nil {
		return 0, model.ErrOrderNotNumber
	}
	i, err := n.Int64()
	if err != nil {
		return 0, model.ErrOrderNotNumber
	}
	return int(i), nil
}

type reorderItemBody struct {
	ID       string          `json:"_id"`
	Order    json.RawMessage `json:"order"`
	Category *string         `json:"category"`
}

type reorderGroupBody struct {
	Category string            `json:"category"`
	Tasks    []reorderItemBody `json:"tasks"`
}

// reorderBody accepts either a single column {category, tasks} or several
// columns {categoryUpdates: [...]}, never both.
type reorderBody struct {
	Category        *string            `json:"category"`
	Tasks           []reorderItemBody  `json:"tasks"`
	CategoryUpdates []reorderGroupBody `json:"categoryUpdates"`
}

func (b reorderBody) request() (model.ReorderRequest, error) {
	var groups []reorderGroupBody
	switch {
	case b.CategoryUpdates != nil && (b.Category != nil || b.Tasks != nil):
		return model.ReorderRequest{}, model.NewValidationError("Use either category and tasks, or categoryUpdates.")
	case b.CategoryUpdates != nil:
		groups = b.CategoryUpdates
	case b.Category != nil:
		groups = []reorderGroupBody{{Category: *b.Category, Tasks: b.Tasks}}
	default:
		return model.ReorderRequest{}, model.NewValidationError("Reorder payload requires category and tasks, or categoryUpdates.")
	}

	req := model.ReorderRequest{Groups: make([]model.ReorderGroup, 0, len(groups))}
	for _, g := range groups {
		// An explicit [] is a valid empty column; a missing or null list is not.
		if g.Tasks == nil {
			return model.ReorderRequest{}, model.NewValidationError(fmt.Sprintf("Category %q requires a tasks list.", g.Category))
		}
		group := model.ReorderGroup{Category: g.Category, Items: make([]model.ReorderItem, 0, len(g.Tasks))}
		for _, t := range g.Tasks {
			if t.Order == nil {
				return model.ReorderRequest{}, model.ErrOrderNotNumber
			}
			order, err := parseOrder(t.Order)
			if err != nil {
				return model.ReorderRequest{}, err
			}
			group.Items = append(group.Items, model.ReorderItem{TaskID: t.ID, Order: order, Category: t.Category})
		}
		req.Groups = append(req.Groups, group)
	}
	return req, nil
}

type reorderResponse struct {
	Message string `json:"message"`
	model.ReorderResult
}

type messageResponse struct {
	Message string `json:"message"`
}
