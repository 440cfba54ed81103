// ABOUTME: Per-user tool grants: shares and hidden tools in the SQLite store
// ABOUTME: CheckToolAccess is the live share lookup used by the authorization gate

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) listShares(ctx context.Context, email string) ([]SharedTool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, shared_by, access_level, shared_at
		FROM shared_tools
		WHERE email = ?
		ORDER BY tool_name
	`, email)
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	shares := []SharedTool{}
	for rows.Next() {
		var st SharedTool
		var sharedBy sql.NullString
		var level, sharedAtStr string
		if err := rows.Scan(&st.ToolID, &sharedBy, &level, &sharedAtStr); err != nil {
			return nil, fmt.Errorf("scanning share: %w", err)
		}
		st.SharedBy = sharedBy.String
		st.AccessLevel = AccessLevel(level)
		if st.SharedAt, err = parseTime(sharedAtStr); err != nil {
			return nil, fmt.Errorf("parsing shared_at: %w", err)
		}
		shares = append(shares, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shares: %w", err)
	}
	return shares, nil
}

// CheckToolAccess reports whether toolName is shared with email.
func (s *SQLiteStore) CheckToolAccess(ctx context.Context, email, toolName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM shared_tools WHERE email = ? AND tool_name = ?
	`, email, toolName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking tool access: %w", err)
	}
	return count > 0, nil
}

// ShareTool grants share.ToolID to email, replacing any previous grant.
// Returns ErrNotFound for unknown users.
func (s *SQLiteStore) ShareTool(ctx context.Context, email string, share SharedTool) error {
	if share.AccessLevel == "" {
		share.AccessLevel = AccessRead
	}
	if !share.AccessLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccessLevel, share.AccessLevel)
	}
	if share.SharedAt.IsZero() {
		share.SharedAt = time.Now().UTC()
	}

	ok, err := userExists(ctx, s.db, email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shared_tools (email, tool_name, shared_by, access_level, shared_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email, tool_name) DO UPDATE SET
			shared_by = excluded.shared_by,
			access_level = excluded.access_level,
			shared_at = excluded.shared_at
	`, email, share.ToolID, nullString(share.SharedBy), share.AccessLevel, formatTime(share.SharedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("sharing tool: %w", err)
	}

	s.logger.Debug("shared tool", "email", email, "tool_name", share.ToolID, "access_level", share.AccessLevel)
	return nil
}

// UnshareTool revokes a grant. It reports whether one existed.
func (s *SQLiteStore) UnshareTool(ctx context.Context, email, toolName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shared_tools WHERE email = ? AND tool_name = ?`, email, toolName)
	if err != nil {
		return false, fmt.Errorf("unsharing tool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// HideTool hides toolName from email's listings. Idempotent.
// Returns ErrNotFound for unknown users.
func (s *SQLiteStore) HideTool(ctx context.Context, email, toolName string) error {
	ok, err := userExists(ctx, s.db, email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO hidden_tools (email, tool_name, created_at)
		VALUES (?, ?, ?)
	`, email, toolName, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("hiding tool: %w", err)
	}
	return nil
}

// UnhideTool removes a hide entry. It reports whether one existed.
func (s *SQLiteStore) UnhideTool(ctx context.Context, email, toolName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hidden_tools WHERE email = ? AND tool_name = ?`, email, toolName)
	if err != nil {
		return false, fmt.Errorf("unhiding tool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// PruneSharedTool removes all grants and hide entries for toolName and
// returns the emails that held a share, sorted.
func (s *SQLiteStore) PruneSharedTool(ctx context.Context, toolName string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT email FROM shared_tools WHERE tool_name = ? ORDER BY email`, toolName)
	if err != nil {
		return nil, fmt.Errorf("listing affected users: %w", err)
	}
	affected := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning affected user: %w", err)
		}
		affected = append(affected, email)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating affected users: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shared_tools WHERE tool_name = ?`, toolName); err != nil {
		return nil, fmt.Errorf("pruning shares: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hidden_tools WHERE tool_name = ?`, toolName); err != nil {
		return nil, fmt.Errorf("pruning hidden entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing prune: %w", err)
	}

	if len(affected) > 0 {
		s.logger.Info("pruned shared tool", "tool_name", toolName, "affected_users", len(affected))
	}
	return affected, nil
}

