// ABOUTME: Audit log of key administration and article review actions
// ABOUTME: Records which actor did what to which key or article, newest entries listed first

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction names an auditable action.
type AuditAction string

const (
	AuditIssueKey       AuditAction = "issue_key"
	AuditRevokeKey      AuditAction = "revoke_key"
	AuditDeleteKey      AuditAction = "delete_key"
	AuditCreateArticle  AuditAction = "create_article"
	AuditReviewArticle  AuditAction = "review_article"
	AuditPublishArticle AuditAction = "publish_article"
)

// Audit target types.
const (
	AuditTargetKey     = "api_key"
	AuditTargetArticle = "article"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditIssueKey,
	AuditRevokeKey,
	AuditDeleteKey,
	AuditCreateArticle,
	AuditReviewArticle,
	AuditPublishArticle,
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID         string         `json:"id"`          // UUID v4
	Actor      string         `json:"actor"`       // key name, "cli" or "anonymous"
	Action     AuditAction    `json:"action"`      // what was done
	TargetType string         `json:"target_type"` // "api_key" or "article"
	TargetID   string         `json:"target_id"`
	Timestamp  time.Time      `json:"ts"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// AuditFilter narrows ListAuditLog results.
type AuditFilter struct {
	Since      *time.Time
	Actor      *string
	Action     *AuditAction
	TargetType *string
	TargetID   *string
	Limit      int // max results (default 100, max 1000)
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, actor, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Actor,
		string(e.Action),
		e.TargetType,
		e.TargetID,
		e.Timestamp.UTC().Format(time.RFC3339),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor", e.Actor,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
	)
	return nil
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

const auditLogQuery = `
	SELECT audit_id, actor, action, target_type, target_id, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR actor = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR target_type = ?)
	  AND (? IS NULL OR target_id = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	var since, action *string
	if f.Since != nil {
		str := f.Since.UTC().Format(time.RFC3339)
		since = &str
	}
	if f.Action != nil {
		str := string(*f.Action)
		action = &str
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		f.Actor, f.Actor,
		action, action,
		f.TargetType, f.TargetType,
		f.TargetID, f.TargetID,
		normalizeAuditLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
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
	return entries, nil
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var e AuditEntry
	var action, ts string
	var detailJSON *string

	if err := row.Scan(
		&e.ID,
		&e.Actor,
		&action,
		&e.TargetType,
		&e.TargetID,
		&ts,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(action)
	var err error
	e.Timestamp, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}
