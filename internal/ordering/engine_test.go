package ordering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharifulalam-dev/todoserver/internal/model"
	"github.com/sharifulalam-dev/todoserver/internal/repository"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T, s repository.TaskStore, owner, title, category string, order int) *model.Task {
	t.Helper()
	task := &model.Task{OwnerID: owner, Title: title, Category: category, Order: order, CreatedAt: time.Now()}
	require.NoError(t, s.Insert(context.Background(), task))
	return task
}

func TestNextOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)

	order, err := e.NextOrder(ctx, "u1", "To-Do")
	require.NoError(t, err)
	assert.Equal(t, 0, order, "empty partition starts at 0")

	seed(t, store, "u1", "A", "To-Do", 0)
	seed(t, store, "u1", "B", "To-Do", 7)
	seed(t, store, "u1", "C", "Done", 20)
	seed(t, store, "u2", "D", "To-Do", 40)

	order, err = e.NextOrder(ctx, "u1", "To-Do")
	require.NoError(t, err)
	assert.Equal(t, 8, order, "one past the max, gaps are kept")

	order, err = e.NextOrder(ctx, "u2", "Done")
	require.NoError(t, err)
	assert.Equal(t, 0, order)
}

func TestNextOrderRequiresOwnerAndCategory(t *testing.T) {
	e := NewEngine(repository.NewMemoryStore())

	_, err := e.NextOrder(context.Background(), "", "To-Do")
	assert.ErrorIs(t, err, model.ErrOwnerRequired)

	_, err = e.NextOrder(context.Background(), "u1", "")
	assert.ErrorIs(t, err, model.ErrCategoryRequired)
}

func TestApplyReorderSingleColumn(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)

	a := seed(t, store, "u1", "A", "To-Do", 0)
	b := seed(t, store, "u1", "B", "To-Do", 1)

	res, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{
		Category: "To-Do",
		Items:    []model.ReorderItem{{TaskID: a.ID, Order: 1}, {TaskID: b.ID, Order: 0}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, res.Modified)
	assert.Empty(t, res.Failed)

	tasks, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "B", tasks[0].Title)
	assert.Equal(t, "A", tasks[1].Title)
}

func TestApplyReorderAcrossCategories(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store, WithWorkers(2))

	a := seed(t, store, "u1", "A", "To-Do", 0)
	b := seed(t, store, "u1", "B", "To-Do", 1)
	c := seed(t, store, "u1", "C", "Done", 0)
	untouched := seed(t, store, "u1", "Untouched", "To-Do", 5)

	res, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{
		{Category: "To-Do", Items: []model.ReorderItem{{TaskID: b.ID, Order: 0}}},
		{Category: "Done", Items: []model.ReorderItem{{TaskID: a.ID, Order: 0}, {TaskID: c.ID, Order: 1}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)
	assert.Empty(t, res.Failed)

	got, err := store.FindOwned(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Done", got.Category)
	assert.Equal(t, 0, got.Order)

	got, err = store.FindOwned(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Order)

	got, err = store.FindOwned(ctx, "u1", untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, "To-Do", got.Category)
	assert.Equal(t, 5, got.Order)
	assert.Nil(t, got.UpdatedAt)
}

func TestApplyReorderItemCategoryOverridesGroup(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)
	a := seed(t, store, "u1", "A", "To-Do", 0)

	_, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{
		Category: "To-Do",
		Items:    []model.ReorderItem{{TaskID: a.ID, Order: 3, Category: strPtr("In Progress")}},
	}}})
	require.NoError(t, err)

	got, err := store.FindOwned(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "In Progress", got.Category)
	assert.Equal(t, 3, got.Order)
}

func TestApplyReorderBestEffort(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)

	mine := seed(t, store, "u1", "Mine", "To-Do", 0)
	theirs := seed(t, store, "u2", "Theirs", "To-Do", 0)

	res, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{
		Category: "To-Do",
		Items: []model.ReorderItem{
			{TaskID: "missing", Order: 0},
			{TaskID: theirs.ID, Order: 1},
			{TaskID: mine.ID, Order: 2},
		},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{mine.ID}, res.Modified)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "missing", res.Failed[0].TaskID)
	assert.Equal(t, theirs.ID, res.Failed[1].TaskID)
	assert.Equal(t, model.ErrTaskNotFound.Message, res.Failed[1].Reason)

	got, err := store.FindOwned(ctx, "u2", theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Order, "other owner's task is untouched")

	got, err = store.FindOwned(ctx, "u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Order)
}

func TestApplyReorderUnchangedItemCountsAsUpdated(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)
	a := seed(t, store, "u1", "A", "To-Do", 0)

	res, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{
		Category: "To-Do",
		Items:    []model.ReorderItem{{TaskID: a.ID, Order: 0}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Modified)
}

func TestApplyReorderDuplicateEntriesLastWins(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := NewEngine(store)
	a := seed(t, store, "u1", "A", "To-Do", 0)

	res, err := e.ApplyReorder(ctx, "u1", model.ReorderRequest{Groups: []model.ReorderGroup{
		{Category: "To-Do", Items: []model.ReorderItem{{TaskID: a.ID, Order: 4}}},
		{Category: "Done", Items: []model.ReorderItem{{TaskID: a.ID, Order: 2}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, reasonSuperseded, res.Failed[0].Reason)

	got, err := store.FindOwned(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Done", got.Category)
	assert.Equal(t, 2, got.Order)
}

func TestApplyReorderMalformed(t *testing.T) {
	e := NewEngine(repository.NewMemoryStore())

	_, err := e.ApplyReorder(context.Background(), "u1", model.ReorderRequest{})
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = e.ApplyReorder(context.Background(), "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{Category: ""}}})
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

type failingStore struct {
	repository.TaskStore
}

func (failingStore) Update(context.Context, string, string, model.TaskPatch, time.Time) (bool, error) {
	return false, errors.New("connection reset")
}

func TestApplyReorderStoreFailureIsPerItem(t *testing.T) {
	e := NewEngine(failingStore{TaskStore: repository.NewMemoryStore()})

	res, err := e.ApplyReorder(context.Background(), "u1", model.ReorderRequest{Groups: []model.ReorderGroup{{
		Category: "To-Do",
		Items:    []model.ReorderItem{{TaskID: "a", Order: 0}, {TaskID: "b", Order: 1}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, reasonInternal, res.Failed[0].Reason)
}
