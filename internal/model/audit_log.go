// internal/model/audit_log.go
package model

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/database"
)

// Audit actions recorded on mutating operations.
const (
	AuditSessionCreated   = "session.created"
	AuditSessionDeleted   = "session.deleted"
	AuditBroadcastCreated = "broadcast.created"
	AuditBroadcastDeleted = "broadcast.deleted"
)

type AuditLog struct {
	ID         int64                  `json:"id"`
	UserID     sql.NullInt64          `json:"-"`
	Action     string                 `json:"action"`
	ResourceID sql.NullString         `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// LogAction records one audit entry. Best effort: callers log the error and
// carry on, an audit write must never fail the operation it describes.
func LogAction(userID int64, action, resourceID string, details map[string]interface{}) error {
	var detailsJSON interface{}
	if len(details) > 0 {
		jsonBytes, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = jsonBytes
	}

	query := `
		INSERT INTO audit_logs (user_id, action, resource_id, details)
		VALUES ($1, $2, NULLIF($3, ''), $4)`
	actor := sql.NullInt64{Int64: userID, Valid: userID != 0}
	if _, err := database.AppDB.Exec(query, actor, action, resourceID, detailsJSON); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type AuditLogResp struct {
	ID         int64                  `json:"id"`
	UserID     int64                  `json:"user_id,omitempty"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ListAuditLogs returns the newest entries first.
func ListAuditLogs(limit int) ([]AuditLogResp, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
		SELECT id, user_id, action, resource_id, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := database.AppDB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLogResp
	for rows.Next() {
		var (
			entry      AuditLogResp
			userID     sql.NullInt64
			resourceID sql.NullString
			details    []byte
		)
		if err := rows.Scan(&entry.ID, &userID, &entry.Action, &resourceID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if userID.Valid {
			entry.UserID = userID.Int64
		}
		if resourceID.Valid {
			entry.ResourceID = resourceID.String
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &entry.Details)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
