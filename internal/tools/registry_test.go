// ABOUTME: Tests for the tool registry: registration, replacement, removal and events
// ABOUTME: Also covers snapshot isolation and concurrent access under the race detector

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFactory(config json.RawMessage) (Handler, error) {
	return func(ctx context.Context, args json.RawMessage, cc CallContext) (*Result, error) {
		return TextResult(string(args)), nil
	}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	d := NewDispatch()
	d.RegisterFactory("echo", echoFactory)
	return NewRegistry(RegistryConfig{Dispatch: d})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	def := Definition{
		Name:           "greet",
		Description:    "Say hello",
		InputSchema:    json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
		Annotations:    Annotations{Title: "Greet", ReadOnlyHint: Bool(true)},
		HandlerType:    "echo",
		RolesPermitted: []string{"user"},
		Creator:        "a@x.com",
	}

	ev, err := r.Register(def)
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: EventAdded, Name: "greet"}, ev)

	got, ok := r.Get("greet")
	require.True(t, ok)
	assert.Equal(t, def, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnknownHandlerTypeLeavesRegistryUnchanged(t *testing.T) {
	r := newTestRegistry(t)

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	_, err := r.Register(Definition{Name: "x", HandlerType: "missing"})
	require.ErrorIs(t, err, ErrUnknownHandlerType)

	_, ok := r.Get("x")
	assert.False(t, ok)
	assert.Empty(t, events)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register(Definition{HandlerType: "echo"})
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = r.Register(Definition{Name: "bad", HandlerType: "echo", InputSchema: json.RawMessage(`{"type":"nonsense"}`)})
	require.ErrorIs(t, err, ErrInvalidSchema)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ReplaceIsLastWriteWins(t *testing.T) {
	r := newTestRegistry(t)

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	_, err := r.Register(Definition{Name: "t", Description: "v1", HandlerType: "echo"})
	require.NoError(t, err)
	ev, err := r.Register(Definition{Name: "t", Description: "v2", HandlerType: "echo"})
	require.NoError(t, err)
	assert.Equal(t, EventReplaced, ev.Kind)

	got, _ := r.Get("t")
	assert.Equal(t, "v2", got.Description)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []Event{{EventAdded, "t"}, {EventReplaced, "t"}}, events)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	_, err := r.Register(Definition{Name: "x", HandlerType: "echo"})
	require.NoError(t, err)

	first := r.Remove("x")
	second := r.Remove("x")
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, []Event{{EventAdded, "x"}, {EventRemoved, "x"}}, events)
}

func TestRegistry_SnapshotsDoNotAlias(t *testing.T) {
	r := newTestRegistry(t)

	def := Definition{Name: "x", HandlerType: "echo", RolesPermitted: []string{"admin"}}
	_, err := r.Register(def)
	require.NoError(t, err)

	// Mutating the caller's copy after registration has no effect.
	def.RolesPermitted[0] = "user"

	got, _ := r.Get("x")
	got.RolesPermitted[0] = "mutated"

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, []string{"admin"}, list[0].RolesPermitted)
}

func TestRegistry_ListAndNamesSorted(t *testing.T) {
	r := newTestRegistry(t)
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Register(Definition{Name: name, HandlerType: "echo"})
		require.NoError(t, err)
	}
	_, err := r.Register(Definition{Name: "sys", HandlerType: "echo", Creator: SystemCreator})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "sys"}, r.Names())
	assert.Equal(t, []string{"sys"}, r.SystemNames())

	list := r.List()
	require.Len(t, list, 4)
	assert.Equal(t, "a", list[0].Name)
}

func TestRegistry_ListenerMayReadRegistry(t *testing.T) {
	r := newTestRegistry(t)

	var seen []string
	r.Subscribe(func(ev Event) {
		// Listeners run after the lock is released.
		seen = r.Names()
	})

	_, err := r.Register(Definition{Name: "x", HandlerType: "echo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, seen)
}

func TestRegistry_UnregisterFactoryKeepsResolvedTools(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(Definition{Name: "x", HandlerType: "echo"})
	require.NoError(t, err)

	assert.True(t, r.Dispatch().UnregisterFactory("echo"))

	entry, ok := r.Entry("x")
	require.True(t, ok)
	res := entry.Invoke(context.Background(), json.RawMessage(`{"a":1}`), CallContext{})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"a":1}`, res.Text())

	_, err = r.Register(Definition{Name: "y", HandlerType: "echo"})
	require.ErrorIs(t, err, ErrUnknownHandlerType)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tool-%d", i%5)
			_, _ = r.Register(Definition{Name: name, HandlerType: "echo"})
			_ = r.List()
			_, _ = r.Get(name)
			if i%3 == 0 {
				r.Remove(name)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 5)
}
