// ABOUTME: Thread-safe registry of tool definitions and their resolved handlers.
// ABOUTME: Emits added/replaced/removed events to subscribers after each mutation.

package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidDefinition indicates a definition is missing required fields.
var ErrInvalidDefinition = errors.New("invalid tool definition")

// ErrInvalidSchema indicates a tool's input schema does not compile.
var ErrInvalidSchema = errors.New("invalid input schema")

// DefaultTimeout bounds a tool call when neither the tool nor the registry sets one.
const DefaultTimeout = 30 * time.Second

// EventKind identifies a structural change to the registry.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventReplaced EventKind = "replaced"
	EventRemoved  EventKind = "removed"
)

// Event describes one structural change.
type Event struct {
	Kind EventKind
	Name string
}

// Entry is an immutable registered tool: its definition snapshot, the handler
// resolved at registration, and the compiled input schema.
type Entry struct {
	def     Definition
	handler Handler
	schema  *jsonschema.Schema
	timeout time.Duration
}

// Definition returns a copy of the entry's definition.
func (e *Entry) Definition() Definition {
	return e.def.Clone()
}

// Name returns the tool name.
func (e *Entry) Name() string {
	return e.def.Name
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Dispatch       *Dispatch
	Logger         *slog.Logger
	DefaultTimeout time.Duration
}

// Registry is the authoritative catalog of tools.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	listenersMu sync.RWMutex
	listeners   []func(Event)

	dispatch       *Dispatch
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = NewDispatch()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		entries:        make(map[string]*Entry),
		dispatch:       dispatch,
		defaultTimeout: timeout,
		logger:         logger.With("component", "registry"),
	}
}

// Dispatch returns the registry's dispatch table.
func (r *Registry) Dispatch() *Dispatch {
	return r.dispatch
}

// Subscribe installs fn to receive every structural change event.
// fn runs on the mutating goroutine after the registry lock is released.
func (r *Registry) Subscribe(fn func(Event)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

func (r *Registry) emit(ev Event) {
	r.listenersMu.RLock()
	listeners := make([]func(Event), len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Register inserts def or replaces the definition with the same name.
// The handler is resolved and the schema compiled before the registry is
// touched, so a failed registration leaves it unchanged.
func (r *Registry) Register(def Definition) (Event, error) {
	if def.Name == "" {
		return Event{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	def = def.Clone()
	handler, err := r.dispatch.Resolve(def.HandlerType, def.HandlerConfig)
	if err != nil {
		return Event{}, err
	}

	schema, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, def.Name, err)
	}

	timeout := r.defaultTimeout
	if def.TimeoutSeconds > 0 {
		timeout = time.Duration(def.TimeoutSeconds) * time.Second
	}

	entry := &Entry{def: def, handler: handler, schema: schema, timeout: timeout}

	r.mu.Lock()
	_, replaced := r.entries[def.Name]
	r.entries[def.Name] = entry
	total := len(r.entries)
	r.mu.Unlock()

	ev := Event{Kind: EventAdded, Name: def.Name}
	if replaced {
		ev.Kind = EventReplaced
		r.logger.Info("tool replaced", "tool_name", def.Name, "handler_type", def.HandlerType, "creator", def.Creator)
	} else {
		r.logger.Info("tool registered", "tool_name", def.Name, "handler_type", def.HandlerType, "creator", def.Creator, "total_tools", total)
	}

	r.emit(ev)
	return ev, nil
}

// Remove deletes the named tool. It reports whether a tool was present and
// only emits an event when one was.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	total := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info("tool removed", "tool_name", name, "total_tools", total)
	r.emit(Event{Kind: EventRemoved, Name: name})
	return true
}

// Get returns a copy of the named definition.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	return entry.def.Clone(), true
}

// Entry returns the named entry for invocation.
func (r *Registry) Entry(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// List returns copies of all definitions, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.entries))
	for _, entry := range r.entries {
		defs = append(defs, entry.def.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// SystemNames returns the names of tools created by the server, sorted.
func (r *Registry) SystemNames() []string {
	r.mu.RLock()
	var names []string
	for name, entry := range r.entries {
		if entry.def.IsSystem() {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
