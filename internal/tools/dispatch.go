// ABOUTME: Handler dispatch table mapping a tool's handler type to a factory.
// ABOUTME: Factories are resolved once at registration into a typed Handler.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/2389/toolhub/internal/auth"
)

// ErrUnknownHandlerType indicates no factory is registered for a handler type.
var ErrUnknownHandlerType = errors.New("unknown handler type")

// ErrInvalidHandlerConfig indicates a factory rejected a tool's handler config.
var ErrInvalidHandlerConfig = errors.New("invalid handler config")

// Host is the handle a running handler gets back into the server, so a tool
// can itself add or remove tools or trigger list-changed notifications.
type Host interface {
	Registry() *Registry
	NotifyToolListChanged(ctx context.Context, email string)
}

// CallContext carries the caller's bound identity into a handler.
type CallContext struct {
	Identity  auth.Identity
	SessionID string
	RequestID string
	Host      Host
}

// Handler executes one tool call. Returning an error produces an
// error-marked result; it never terminates the caller's session.
type Handler func(ctx context.Context, args json.RawMessage, cc CallContext) (*Result, error)

// Factory turns a tool's handler config into a Handler.
type Factory func(config json.RawMessage) (Handler, error)

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the outcome of a tool call.
type Result struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// TextResult returns a successful single-text result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult returns an error-marked single-text result.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// JSONResult marshals v as the text content and structured content of a result.
func JSONResult(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Result{
		Content:           []Content{{Type: "text", Text: string(data)}},
		StructuredContent: v,
	}, nil
}

// Text joins the text content blocks of r.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// Dispatch maps handler types to factories.
type Dispatch struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewDispatch creates an empty dispatch table.
func NewDispatch() *Dispatch {
	return &Dispatch{factories: make(map[string]Factory)}
}

// RegisterFactory installs f for handlerType, replacing any previous factory.
func (d *Dispatch) RegisterFactory(handlerType string, f Factory) {
	d.mu.Lock()
	d.factories[handlerType] = f
	d.mu.Unlock()
}

// UnregisterFactory removes the factory for handlerType. Tools that were
// already resolved keep working.
func (d *Dispatch) UnregisterFactory(handlerType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.factories[handlerType]
	delete(d.factories, handlerType)
	return ok
}

// Types returns the registered handler types, sorted.
func (d *Dispatch) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.factories))
	for t := range d.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Resolve builds the Handler for handlerType from config.
func (d *Dispatch) Resolve(handlerType string, config json.RawMessage) (Handler, error) {
	d.mu.RLock()
	f, ok := d.factories[handlerType]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandlerType, handlerType)
	}

	h, err := f(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHandlerConfig, handlerType, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s: factory returned no handler", ErrInvalidHandlerConfig, handlerType)
	}
	return h, nil
}
