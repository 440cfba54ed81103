// ABOUTME: Tool invocation: argument validation, timeout and failure containment.
// ABOUTME: Handler errors and panics become error-marked results, never session errors.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles a tool's input schema. An empty schema compiles to nil
// and accepts any arguments.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	loc := "https://toolhub.invalid/schemas/" + url.PathEscape(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("adding schema: %w", err)
	}
	return c.Compile(loc)
}

// normalizeArgs maps missing arguments to an empty object.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return args
}

// ValidateArgs checks args against the entry's input schema.
func (e *Entry) ValidateArgs(args json.RawMessage) error {
	if e.schema == nil {
		return nil
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalizeArgs(args)))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := e.schema.Validate(value); err != nil {
		return fmt.Errorf("arguments do not match input schema: %w", err)
	}
	return nil
}

// invokeOutcome carries a handler's return across the goroutine boundary.
type invokeOutcome struct {
	result *Result
	err    error
}

// Invoke runs the tool. It validates args, bounds the call by the tool's
// timeout and never returns a nil result. The caller must not hold any
// registry or session lock.
func (e *Entry) Invoke(ctx context.Context, args json.RawMessage, cc CallContext) *Result {
	args = normalizeArgs(args)
	if err := e.ValidateArgs(args); err != nil {
		return ErrorResult("invalid arguments for %s: %v", e.def.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invokeOutcome{err: fmt.Errorf("handler panicked: %v", p)}
			}
		}()
		res, err := e.handler(ctx, args, cc)
		done <- invokeOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return ErrorResult("tool %s timed out after %s", e.def.Name, e.timeout)
			}
			return ErrorResult("tool %s failed: %v", e.def.Name, out.err)
		}
		if out.result == nil {
			return &Result{Content: []Content{}}
		}
		return out.result
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrorResult("tool %s timed out after %s", e.def.Name, e.timeout)
		}
		return ErrorResult("tool %s cancelled", e.def.Name)
	}
}
