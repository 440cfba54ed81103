// ABOUTME: Built-in tool packs and the "builtin" handler type that dispatches to them.
// ABOUTME: A Catalog collects packs and yields the system definitions synced at startup.

package builtins

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/2389/toolhub/internal/tools"
)

// HandlerType is the dispatch key for in-process built-in tools.
const HandlerType = "builtin"

// Tool is one built-in tool: its definition and the code behind it.
type Tool struct {
	Definition tools.Definition
	Handler    tools.Handler
}

// Pack is a named collection of built-in tools.
type Pack struct {
	ID    string
	Tools []*Tool
}

// builtinConfig is the handler config of a built-in definition.
type builtinConfig struct {
	Tool string `json:"tool"`
}

// Catalog indexes built-in tools by name.
type Catalog struct {
	tools  map[string]*Tool
	packOf map[string]string
	logger *slog.Logger
}

// NewCatalog builds a catalog from packs. Duplicate tool names are an error.
func NewCatalog(logger *slog.Logger, packs ...*Pack) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		tools:  make(map[string]*Tool),
		packOf: make(map[string]string),
		logger: logger.With("component", "builtins"),
	}
	for _, pack := range packs {
		for _, t := range pack.Tools {
			name := t.Definition.Name
			if other, exists := c.packOf[name]; exists {
				return nil, fmt.Errorf("builtin tool %q defined by both %s and %s", name, other, pack.ID)
			}
			c.tools[name] = t
			c.packOf[name] = pack.ID
		}
		c.logger.Debug("builtin pack loaded", "pack_id", pack.ID, "tool_count", len(pack.Tools))
	}
	return c, nil
}

// Definitions returns the system-owned definitions of every catalog tool,
// sorted by name, wired to the "builtin" handler type.
func (c *Catalog) Definitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(c.tools))
	for name, t := range c.tools {
		def := t.Definition.Clone()
		def.Creator = tools.SystemCreator
		def.HandlerType = HandlerType
		def.HandlerConfig, _ = json.Marshal(builtinConfig{Tool: name})
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Factory resolves {"tool": name} to the catalog handler.
func (c *Catalog) Factory() tools.Factory {
	return func(config json.RawMessage) (tools.Handler, error) {
		var cfg builtinConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("decoding builtin config: %w", err)
		}
		t, ok := c.tools[cfg.Tool]
		if !ok {
			return nil, fmt.Errorf("no builtin tool %q", cfg.Tool)
		}
		return t.Handler, nil
	}
}

// Install registers the builtin, static and http handler types on d.
func Install(d *tools.Dispatch, c *Catalog) {
	d.RegisterFactory(HandlerType, c.Factory())
	d.RegisterFactory(StaticHandlerType, StaticFactory)
	d.RegisterFactory(HTTPHandlerType, HTTPFactory)
}

// decodeInput unmarshals tool arguments, treating empty input as {}.
func decodeInput(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
