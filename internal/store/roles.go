// ABOUTME: User identity and role persistence for the SQLite store
// ABOUTME: Users carry role tags and an optional tool allow-list; grants live in shares.go

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// userExists reports whether email has a users row.
func userExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, email string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return true, nil
}

// UpsertUser creates or updates a user's roles and allow-list. Existing
// shares and hidden entries are kept.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *UserIdentity) error {
	if u.Email == "" {
		return errors.New("email is required")
	}

	var toolsJSON *string
	if u.ToolsAvailable != nil {
		data, err := json.Marshal(u.ToolsAvailable)
		if err != nil {
			return fmt.Errorf("marshaling tools_available: %w", err)
		}
		str := string(data)
		toolsJSON = &str
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (email, tools_available_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			tools_available_json = excluded.tools_available_json,
			updated_at = excluded.updated_at
	`, u.Email, toolsJSON, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	if err := replaceRoles(ctx, tx, u.Email, u.Roles, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}

	s.logger.Debug("upserted user", "email", u.Email, "roles", u.Roles)
	return nil
}

// SetRoles replaces a user's roles. Returns ErrNotFound for unknown users.
func (s *SQLiteStore) SetRoles(ctx context.Context, email string, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ok, err := userExists(ctx, tx, email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	if err := replaceRoles(ctx, tx, email, roles, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET updated_at = ? WHERE email = ?`, formatTime(now), email); err != nil {
		return fmt.Errorf("touching user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing roles: %w", err)
	}

	s.logger.Debug("set roles", "email", email, "roles", roles)
	return nil
}

func replaceRoles(ctx context.Context, tx *sql.Tx, email string, roles []string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE email = ?`, email); err != nil {
		return fmt.Errorf("clearing roles: %w", err)
	}
	for _, role := range roles {
		if role == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_roles (email, role, created_at)
			VALUES (?, ?, ?)
		`, email, role, formatTime(now))
		if err != nil {
			return fmt.Errorf("adding role: %w", err)
		}
	}
	return nil
}

// FindIdentity loads a user with roles, shares and hidden tools.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) FindIdentity(ctx context.Context, email string) (*UserIdentity, error) {
	var u UserIdentity
	var createdAtStr, updatedAtStr string
	var toolsJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT email, tools_available_json, created_at, updated_at
		FROM users
		WHERE email = ?
	`, email).Scan(&u.Email, &toolsJSON, &createdAtStr, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if u.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if toolsJSON.Valid {
		u.ToolsAvailable = []string{}
		if err := json.Unmarshal([]byte(toolsJSON.String), &u.ToolsAvailable); err != nil {
			return nil, fmt.Errorf("unmarshaling tools_available: %w", err)
		}
	}

	if err := s.loadGrants(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// loadGrants fills roles, shares and hidden tools for u.
func (s *SQLiteStore) loadGrants(ctx context.Context, u *UserIdentity) error {
	roles, err := s.queryStrings(ctx, `SELECT role FROM user_roles WHERE email = ? ORDER BY role`, u.Email)
	if err != nil {
		return fmt.Errorf("listing roles: %w", err)
	}
	u.Roles = roles

	hidden, err := s.queryStrings(ctx, `SELECT tool_name FROM hidden_tools WHERE email = ? ORDER BY tool_name`, u.Email)
	if err != nil {
		return fmt.Errorf("listing hidden tools: %w", err)
	}
	u.HiddenTools = hidden

	shares, err := s.listShares(ctx, u.Email)
	if err != nil {
		return err
	}
	u.SharedTools = shares
	return nil
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListUsers returns every user with grants, sorted by email.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*UserIdentity, error) {
	emails, err := s.queryStrings(ctx, `SELECT email FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]*UserIdentity, 0, len(emails))
	for _, email := range emails {
		u, err := s.FindIdentity(ctx, email)
		if errors.Is(err, ErrNotFound) {
			// Deleted between the two queries.
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// sortedRoles returns a sorted, deduplicated copy of roles with blanks removed.
func sortedRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
