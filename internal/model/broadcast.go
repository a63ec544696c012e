// internal/model/broadcast.go
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/database"
)

const (
	BroadcastActive = "ACTIVE"
	BroadcastPaused = "PAUSED"

	BroadcastResultSent   = "SENT"
	BroadcastResultFailed = "FAILED"
)

var ErrBroadcastNotFound = errors.New("broadcast not found")

// Broadcast is a scheduled bulk send. Recipients is a comma-separated list
// of raw addresses; GroupAddress, when set, expands to the group's current
// members at run time.
type Broadcast struct {
	ID           string
	Name         string
	SessionID    string
	Recipients   sql.NullString
	GroupAddress sql.NullString
	Body         string
	Schedule     string
	Status       string
	NextRunAt    sql.NullTime
	LastRunAt    sql.NullTime
	CreatedBy    sql.NullInt64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (b *Broadcast) RecipientList() []string {
	if !b.Recipients.Valid || strings.TrimSpace(b.Recipients.String) == "" {
		return nil
	}
	parts := strings.Split(b.Recipients.String, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type BroadcastResp struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SessionID    string     `json:"session_id"`
	Recipients   []string   `json:"recipients,omitempty"`
	GroupAddress string     `json:"group_address,omitempty"`
	Body         string     `json:"body"`
	Schedule     string     `json:"schedule"`
	Status       string     `json:"status"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (b *Broadcast) ToResponse() BroadcastResp {
	resp := BroadcastResp{
		ID:         b.ID,
		Name:       b.Name,
		SessionID:  b.SessionID,
		Recipients: b.RecipientList(),
		Body:       b.Body,
		Schedule:   b.Schedule,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
	}
	if b.GroupAddress.Valid {
		resp.GroupAddress = b.GroupAddress.String
	}
	if b.NextRunAt.Valid {
		t := b.NextRunAt.Time
		resp.NextRunAt = &t
	}
	if b.LastRunAt.Valid {
		t := b.LastRunAt.Time
		resp.LastRunAt = &t
	}
	return resp
}

const broadcastColumns = `id, name, session_id, recipients, group_address, body,
	schedule, status, next_run_at, last_run_at, created_by, created_at, updated_at`

func scanBroadcast(row interface{ Scan(...interface{}) error }) (*Broadcast, error) {
	var b Broadcast
	err := row.Scan(
		&b.ID, &b.Name, &b.SessionID, &b.Recipients, &b.GroupAddress, &b.Body,
		&b.Schedule, &b.Status, &b.NextRunAt, &b.LastRunAt, &b.CreatedBy,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func InsertBroadcast(b *Broadcast) error {
	query := `
		INSERT INTO broadcasts (id, name, session_id, recipients, group_address,
			body, schedule, status, next_run_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := database.AppDB.Exec(query,
		b.ID, b.Name, b.SessionID, b.Recipients, b.GroupAddress,
		b.Body, b.Schedule, b.Status, b.NextRunAt, b.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert broadcast: %w", err)
	}
	return nil
}

func GetBroadcastByID(id string) (*Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id = $1`
	b, err := scanBroadcast(database.AppDB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBroadcastNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", err)
	}
	return b, nil
}

func ListBroadcasts() ([]*Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts ORDER BY created_at DESC`
	return queryBroadcasts(query)
}

// ListDueBroadcasts returns active broadcasts whose next run has passed.
func ListDueBroadcasts(now time.Time) ([]*Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts
		WHERE status = $1 AND next_run_at IS NOT NULL AND next_run_at <= $2
		ORDER BY next_run_at`
	return queryBroadcasts(query, BroadcastActive, now)
}

func queryBroadcasts(query string, args ...interface{}) ([]*Broadcast, error) {
	rows, err := database.AppDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, rows.Err()
}

func UpdateBroadcastStatus(id, status string) error {
	query := `UPDATE broadcasts SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := database.AppDB.Exec(query, id, status); err != nil {
		return fmt.Errorf("update broadcast status: %w", err)
	}
	return nil
}

// MarkBroadcastRun records a completed run and schedules the next one.
func MarkBroadcastRun(id string, nextRun time.Time) error {
	query := `
		UPDATE broadcasts
		SET last_run_at = NOW(), next_run_at = $2, updated_at = NOW()
		WHERE id = $1`
	if _, err := database.AppDB.Exec(query, id, nextRun); err != nil {
		return fmt.Errorf("mark broadcast run: %w", err)
	}
	return nil
}

func DeleteBroadcast(id string) error {
	if _, err := database.AppDB.Exec(`DELETE FROM broadcasts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete broadcast: %w", err)
	}
	return nil
}

func InsertBroadcastResult(broadcastID, recipient, status, waMessageID, errMsg string) error {
	query := `
		INSERT INTO broadcast_results (broadcast_id, recipient, status, wa_message_id, error_message)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`
	_, err := database.AppDB.Exec(query, broadcastID, recipient, status, waMessageID, errMsg)
	if err != nil {
		return fmt.Errorf("insert broadcast result: %w", err)
	}
	return nil
}

type BroadcastResult struct {
	ID           int64          `json:"id"`
	BroadcastID  string         `json:"broadcast_id"`
	Recipient    string         `json:"recipient"`
	Status       string         `json:"status"`
	WaMessageID  sql.NullString `json:"-"`
	ErrorMessage sql.NullString `json:"-"`
	ExecutedAt   time.Time      `json:"executed_at"`
}

func ListBroadcastResults(broadcastID string, limit int) ([]*BroadcastResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `
		SELECT id, broadcast_id, recipient, status, wa_message_id, error_message, executed_at
		FROM broadcast_results
		WHERE broadcast_id = $1
		ORDER BY executed_at DESC
		LIMIT $2`
	rows, err := database.AppDB.Query(query, broadcastID, limit)
	if err != nil {
		return nil, fmt.Errorf("list broadcast results: %w", err)
	}
	defer rows.Close()

	var results []*BroadcastResult
	for rows.Next() {
		var r BroadcastResult
		err := rows.Scan(&r.ID, &r.BroadcastID, &r.Recipient, &r.Status,
			&r.WaMessageID, &r.ErrorMessage, &r.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
