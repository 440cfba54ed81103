// ABOUTME: Audit log entity and store methods for authorization decisions and admin actions
// ABOUTME: Records who did what to which tool, with the outcome and reason

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEvent names an auditable event.
type AuditEvent string

const (
	AuditToolCallAuthorization AuditEvent = "tool_call_authorization"
	AuditToolRegistered        AuditEvent = "tool_registered"
	AuditToolRemoved           AuditEvent = "tool_removed"
	AuditToolShared            AuditEvent = "tool_shared"
	AuditToolUnshared          AuditEvent = "tool_unshared"
	AuditToolHidden            AuditEvent = "tool_hidden"
	AuditToolUnhidden          AuditEvent = "tool_unhidden"
	AuditRolesChanged          AuditEvent = "roles_changed"
	AuditUserUpserted          AuditEvent = "user_upserted"
	AuditBuiltinSync           AuditEvent = "builtin_sync"
)

// Audit statuses.
const (
	AuditStatusAuthorized = "authorized"
	AuditStatusDenied     = "denied"
	AuditStatusOK         = "ok"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string         `json:"id"`     // UUID v4
	Event     AuditEvent     `json:"event"`  // what happened
	User      string         `json:"user"`   // the caller or acting admin
	Tool      string         `json:"tool"`   // affected tool, if any
	Status    string         `json:"status"` // authorized, denied, ok
	Reason    string         `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"` // additional context (max 64KB JSON)
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since *time.Time  // entries after this time
	Until *time.Time  // entries before this time
	User  *string     // filter by user
	Tool  *string     // filter by tool
	Event *AuditEvent // filter by event
	Limit int         // max results (default 100, max 1000)
}

// maxAuditDetailBytes bounds the serialized detail payload.
const maxAuditDetailBytes = 64 * 1024

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		if len(data) > maxAuditDetailBytes {
			return fmt.Errorf("audit detail too large: %d bytes", len(data))
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, event, user_email, tool_name, status, reason, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Event,
		e.User,
		nullString(e.Tool),
		e.Status,
		nullString(e.Reason),
		formatTime(e.Timestamp),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"event", e.Event,
		"user", e.User,
		"tool", e.Tool,
		"status", e.Status,
	)
	return nil
}

// prepareAuditEntry fills in ID and Timestamp when unset.
func prepareAuditEntry(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// auditQueryArgs builds the query arguments from an AuditFilter.
type auditQueryArgs struct {
	sinceStr *string
	untilStr *string
	eventStr *string
}

// buildAuditQueryArgs converts filter time/event fields to query args.
func buildAuditQueryArgs(f AuditFilter) auditQueryArgs {
	var args auditQueryArgs
	if f.Since != nil {
		s := formatTime(*f.Since)
		args.sinceStr = &s
	}
	if f.Until != nil {
		s := formatTime(*f.Until)
		args.untilStr = &s
	}
	if f.Event != nil {
		ev := string(*f.Event)
		args.eventStr = &ev
	}
	return args
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var eventStr, tsStr string
	var tool, reason, detailJSON sql.NullString

	if err := scanner.Scan(
		&e.ID,
		&eventStr,
		&e.User,
		&tool,
		&e.Status,
		&reason,
		&tsStr,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Event = AuditEvent(eventStr)
	e.Tool = tool.String
	e.Reason = reason.String
	var err error
	e.Timestamp, err = parseTime(tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON.Valid {
		if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

const auditLogQuery = `
	SELECT audit_id, event, user_email, tool_name, status, reason, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR user_email = ?)
	  AND (? IS NULL OR tool_name = ?)
	  AND (? IS NULL OR event = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter criteria.
// Results are returned newest first (DESC by timestamp).
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeAuditLimit(f.Limit)
	args := buildAuditQueryArgs(f)

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		args.sinceStr, args.sinceStr,
		args.untilStr, args.untilStr,
		f.User, f.User,
		f.Tool, f.Tool,
		args.eventStr, args.eventStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
