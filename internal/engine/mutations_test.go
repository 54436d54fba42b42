package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTodo_MirrorStaysNewestFirst(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()

	for _, title := range []string{"one", "two", "three"} {
		h.addTodo(title)
		todos := h.c.Todos()
		for i := 1; i < len(todos); i++ {
			assert.False(t, todos[i].CreatedAt.After(todos[i-1].CreatedAt), "out of order at %d", i)
		}
	}
	assert.Equal(t, "three", h.c.Todos()[0].Title)
	assert.Equal(t, "one", h.c.Todos()[2].Title)
}

func TestAddTodo_DoesNotTouchMirror(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()

	h.settle(h.c.AddTodo("  milk  "))

	assert.Empty(t, h.c.Todos(), "only a reload brings the change in")
	h.push(docEvent)
	require.Len(t, h.c.Todos(), 1)
	todo := h.c.Todos()[0]
	assert.Equal(t, "milk", todo.Title)
	assert.False(t, todo.Completed)
	assert.NotNil(t, todo.Steps)
	assert.Empty(t, todo.Steps)
}

func TestAddTodo_Rejected(t *testing.T) {
	h := newHarness(t, true)
	assert.Nil(t, h.c.AddTodo("milk"), "signed out")

	h.signIn()
	assert.Nil(t, h.c.AddTodo("   "))
}

func TestToggleTodo_TwiceRestores(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("milk")

	h.settle(h.c.ToggleTodo(todo.ID))
	h.push(docEvent)
	got, _ := h.c.Todo(todo.ID)
	assert.True(t, got.Completed)

	h.settle(h.c.ToggleTodo(todo.ID))
	h.push(docEvent)
	got, _ = h.c.Todo(todo.ID)
	assert.False(t, got.Completed)
}

func TestToggleTodo_ComputedFromMirror(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("milk")

	// two toggles before any reload both read completed=false
	h.settle(h.c.ToggleTodo(todo.ID))
	h.settle(h.c.ToggleTodo(todo.ID))
	h.push(docEvent)

	got, _ := h.c.Todo(todo.ID)
	assert.True(t, got.Completed)
}

func TestAddStep_ConcurrentWritesLoseOne(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")

	first := h.run(h.c.AddStep(todo.ID, "passport"))
	second := h.run(h.c.AddStep(todo.ID, "tickets"))
	h.apply(first...)
	h.apply(second...)
	h.push(docEvent)
	h.push(docEvent)

	got, _ := h.c.Todo(todo.ID)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "tickets", got.Steps[0].Title)
}

func TestAddStep_AppendsWithFreshID(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")

	h.settle(h.c.AddStep(todo.ID, "passport"))
	h.push(docEvent)
	h.settle(h.c.AddStep(todo.ID, "tickets"))
	h.push(docEvent)

	got, _ := h.c.Todo(todo.ID)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "passport", got.Steps[0].Title)
	assert.Equal(t, "tickets", got.Steps[1].Title)
	assert.NotEmpty(t, got.Steps[0].ID)
	assert.NotEqual(t, got.Steps[0].ID, got.Steps[1].ID)
	assert.False(t, got.Steps[1].Completed)
}

func TestAddStep_Rejected(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")

	assert.Nil(t, h.c.AddStep(todo.ID, ""))
	assert.Nil(t, h.c.AddStep("missing", "passport"))
}

func TestToggleStep_PreservesOrder(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")
	for _, s := range []string{"a", "b", "c"} {
		h.settle(h.c.AddStep(todo.ID, s))
		h.push(docEvent)
	}
	todo, _ = h.c.Todo(todo.ID)

	h.settle(h.c.ToggleStep(todo.ID, todo.Steps[1].ID))
	h.push(docEvent)

	got, _ := h.c.Todo(todo.ID)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got.Steps[0].Title, got.Steps[1].Title, got.Steps[2].Title})
	assert.False(t, got.Steps[0].Completed)
	assert.True(t, got.Steps[1].Completed)
	assert.False(t, got.Steps[2].Completed)
	assert.Nil(t, h.store.lastUpdate.Completed, "only steps is written")
}

func TestToggleStep_UnknownStepRewritesListUnchanged(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")
	h.settle(h.c.AddStep(todo.ID, "a"))
	h.push(docEvent)
	todo, _ = h.c.Todo(todo.ID)

	h.settle(h.c.ToggleStep(todo.ID, "nope"))

	require.NotNil(t, h.store.lastUpdate.Steps)
	assert.Equal(t, todo.Steps, *h.store.lastUpdate.Steps)
}

func TestDeleteStep_LeavesEmbeddedList(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")
	h.settle(h.c.AddStep(todo.ID, "passport"))
	h.push(docEvent)
	todo, _ = h.c.Todo(todo.ID)
	stepID := todo.Steps[0].ID

	h.settle(h.c.DeleteStep(todo.ID, stepID))
	h.push(docEvent)

	assert.NotContains(t, h.store.steps, stepID)
	got, _ := h.c.Todo(todo.ID)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, stepID, got.Steps[0].ID)
	assert.Nil(t, h.c.Notice())
}

func TestDeleteStep_MissingDocumentFails(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("trip")

	h.settle(h.c.DeleteStep(todo.ID, "never-created"))

	require.NotNil(t, h.c.Notice())
	assert.Equal(t, OpDeleteStep, h.c.Notice().Op)
}

func TestDeleteTodo_RemovedOnReload(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("milk")

	h.settle(h.c.DeleteTodo(todo.ID))
	_, still := h.c.Todo(todo.ID)
	assert.True(t, still)

	h.push(docEvent)
	_, still = h.c.Todo(todo.ID)
	assert.False(t, still)
}

func TestMutation_FailureLeavesMirrorAndSetsNotice(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("milk")
	before := h.c.Todos()

	h.store.failNext("update")
	h.settle(h.c.ToggleTodo(todo.ID))

	assert.Equal(t, before, h.c.Todos())
	assert.False(t, h.store.todo(todo.ID).Completed)
	require.NotNil(t, h.c.Notice())
	assert.Equal(t, OpToggleTodo, h.c.Notice().Op)
	assert.ErrorIs(t, h.c.Notice().Err, errInjected)

	h.settle(h.c.ToggleTodo(todo.ID))
	assert.Nil(t, h.c.Notice())
}

func TestMutation_ResultAfterLogoutIsDropped(t *testing.T) {
	h := newHarness(t, true)
	h.signIn()
	todo := h.addTodo("milk")

	h.store.failNext("update")
	pending := h.c.ToggleTodo(todo.ID)
	h.settle(h.c.Terminate())
	h.apply(h.run(pending)...)

	assert.Nil(t, h.c.Notice())
}

func TestMutation_SignedOutOrUnknownTodoIsNoop(t *testing.T) {
	h := newHarness(t, true)
	assert.Nil(t, h.c.ToggleTodo("t1"))
	assert.Nil(t, h.c.ToggleStep("t1", "s1"))
	assert.Nil(t, h.c.DeleteStep("t1", "s1"))
	assert.Nil(t, h.c.DeleteTodo("t1"))

	h.signIn()
	assert.Nil(t, h.c.ToggleTodo("t1"))
	assert.Nil(t, h.c.ToggleStep("t1", "s1"))
}
