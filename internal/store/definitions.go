// ABOUTME: Persisted tool definitions for tools registered at runtime
// ABOUTME: Definitions are stored as JSON so new fields need no migration

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/toolhub/internal/tools"
)

// SaveToolDefinition inserts or replaces a tool definition by name.
func (s *SQLiteStore) SaveToolDefinition(ctx context.Context, def tools.Definition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", tools.ErrInvalidDefinition)
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshaling tool definition: %w", err)
	}

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_definitions (name, creator, handler_type, definition_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			creator = excluded.creator,
			handler_type = excluded.handler_type,
			definition_json = excluded.definition_json,
			updated_at = excluded.updated_at
	`, def.Name, def.Creator, def.HandlerType, string(data), now, now)
	if err != nil {
		return fmt.Errorf("saving tool definition: %w", err)
	}

	s.logger.Debug("saved tool definition", "tool_name", def.Name, "creator", def.Creator)
	return nil
}

// DeleteToolDefinition removes a definition. It reports whether one existed.
func (s *SQLiteStore) DeleteToolDefinition(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_definitions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("deleting tool definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ListToolDefinitions returns every persisted definition, sorted by name.
func (s *SQLiteStore) ListToolDefinitions(ctx context.Context) ([]tools.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition_json FROM tool_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tool definitions: %w", err)
	}
	defer rows.Close()

	defs := []tools.Definition{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning tool definition: %w", err)
		}
		var def tools.Definition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("unmarshaling tool definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool definitions: %w", err)
	}
	return defs, nil
}
