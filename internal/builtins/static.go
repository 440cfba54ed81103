// ABOUTME: "static" handler type: returns a fixed text or JSON payload.
// ABOUTME: Useful for announcements and for testing registration end to end.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/toolhub/internal/tools"
)

// StaticHandlerType is the dispatch key for fixed-response tools.
const StaticHandlerType = "static"

// StaticConfig is the handler config for "static" tools. Exactly one of Text
// or JSON is set.
type StaticConfig struct {
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// StaticFactory builds a handler that always returns the configured payload.
func StaticFactory(config json.RawMessage) (tools.Handler, error) {
	var cfg StaticConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("decoding static config: %w", err)
		}
	}

	switch {
	case cfg.Text != "" && len(cfg.JSON) > 0:
		return nil, errors.New("static config sets both text and json")
	case len(cfg.JSON) > 0:
		var payload any
		if err := json.Unmarshal(cfg.JSON, &payload); err != nil {
			return nil, fmt.Errorf("decoding static json: %w", err)
		}
		text := string(cfg.JSON)
		return func(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
			return &tools.Result{
				Content:           []tools.Content{{Type: "text", Text: text}},
				StructuredContent: payload,
			}, nil
		}, nil
	case cfg.Text != "":
		text := cfg.Text
		return func(ctx context.Context, args json.RawMessage, cc tools.CallContext) (*tools.Result, error) {
			return tools.TextResult(text), nil
		}, nil
	default:
		return nil, errors.New("static config needs text or json")
	}
}
