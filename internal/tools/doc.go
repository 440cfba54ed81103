// Package tools provides the dynamic tool registry and the handler dispatch table.
//
// # Overview
//
// A tool is a named, schema-described callable exposed to MCP clients. The
// Registry is the single source of truth for which tools exist. Each tool
// names a handler type; the Dispatch table maps that type to a Factory that
// turns the tool's configuration into an executable Handler.
//
// # Registration
//
// Resolution happens once, when a tool is registered:
//
//	dispatch := tools.NewDispatch()
//	dispatch.RegisterFactory("static", builtins.StaticFactory)
//
//	registry := tools.NewRegistry(tools.RegistryConfig{Dispatch: dispatch, Logger: logger})
//	_, err := registry.Register(tools.Definition{
//	    Name:        "greet",
//	    HandlerType: "static",
//	    HandlerConfig: json.RawMessage(`{"text":"hello"}`),
//	})
//
// Registering a name that already exists replaces the previous definition.
// Registering with an unknown handler type fails with ErrUnknownHandlerType and
// leaves the registry unchanged. Removing a factory later does not affect tools
// that were already resolved.
//
// # Events
//
// Every structural change emits an Event (added, replaced, removed) to the
// listeners installed with Subscribe. Listeners run after the registry lock is
// released, so they may read the registry.
//
// # Invocation
//
// Entry.Invoke validates arguments against the tool's input schema, runs the
// handler under a timeout without holding any registry lock, and converts
// handler errors and panics into error-marked results.
package tools
