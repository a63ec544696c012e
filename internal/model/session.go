// internal/model/session.go
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session statuses. qr_pending means a pairing challenge is being shown;
// connected is the only state that accepts sends.
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusQRPending    = "qr_pending"
	StatusConnected    = "connected"
)

var ErrSessionRecordNotFound = errors.New("session record not found")

type Session struct {
	ID            string
	Name          string
	Status        string
	PhoneNumber   sql.NullString
	QRCode        sql.NullString
	QRExpiresAt   sql.NullTime
	WebhookURL    sql.NullString
	WebhookSecret sql.NullString
	AutoReply     bool
	AIContext     sql.NullString
	CreatedBy     sql.NullInt64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConnectedAt   sql.NullTime
	LastSeen      sql.NullTime
}

// SessionResp is the JSON shape handlers return. Secrets stay server-side.
type SessionResp struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	QRCode      string     `json:"qr_code,omitempty"`
	WebhookURL  string     `json:"webhook_url,omitempty"`
	AutoReply   bool       `json:"auto_reply"`
	CreatedBy   int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

func (s *Session) ToResponse() SessionResp {
	resp := SessionResp{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		AutoReply: s.AutoReply,
		CreatedAt: s.CreatedAt,
	}
	if s.PhoneNumber.Valid {
		resp.PhoneNumber = s.PhoneNumber.String
	}
	if s.QRCode.Valid && s.Status == StatusQRPending {
		resp.QRCode = s.QRCode.String
	}
	if s.WebhookURL.Valid {
		resp.WebhookURL = s.WebhookURL.String
	}
	if s.CreatedBy.Valid {
		resp.CreatedBy = s.CreatedBy.Int64
	}
	if s.ConnectedAt.Valid {
		t := s.ConnectedAt.Time
		resp.ConnectedAt = &t
	}
	if s.LastSeen.Valid {
		t := s.LastSeen.Time
		resp.LastSeen = &t
	}
	return resp
}

// SessionStore persists session records. All writes bump updated_at so
// drift checks have a trustworthy clock.
type SessionStore struct {
	DB *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{DB: db}
}

const sessionColumns = `id, name, status, phone_number, qr_code, qr_expires_at,
	webhook_url, webhook_secret, auto_reply, ai_context, created_by,
	created_at, updated_at, connected_at, last_seen`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.Name, &s.Status, &s.PhoneNumber, &s.QRCode, &s.QRExpiresAt,
		&s.WebhookURL, &s.WebhookSecret, &s.AutoReply, &s.AIContext, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt, &s.ConnectedAt, &s.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *SessionStore) Insert(id, name string, createdBy int64) error {
	query := `
		INSERT INTO sessions (id, name, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`
	owner := sql.NullInt64{Int64: createdBy, Valid: createdBy != 0}
	if _, err := st.DB.Exec(query, id, name, StatusConnecting, owner); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (st *SessionStore) GetByID(id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(st.DB.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (st *SessionStore) ListAll() ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`
	return st.queryList(query)
}

// ListPaired returns sessions that completed pairing at least once, most
// recently connected first. Startup restore walks this set.
func (st *SessionStore) ListPaired() ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE connected_at IS NOT NULL
		ORDER BY connected_at DESC`
	return st.queryList(query)
}

func (st *SessionStore) ListByOwner(createdBy int64) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE created_by = $1 ORDER BY created_at DESC`
	return st.queryList(query, createdBy)
}

func (st *SessionStore) queryList(query string, args ...interface{}) ([]*Session, error) {
	rows, err := st.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateOnQR stores a fresh pairing challenge. The phone number is cleared:
// a session showing a QR has no proven identity.
func (st *SessionStore) UpdateOnQR(id, qrCode string, expiresAt sql.NullTime) error {
	query := `
		UPDATE sessions
		SET status = $2, qr_code = $3, qr_expires_at = $4,
		    phone_number = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := st.DB.Exec(query, id, StatusQRPending, qrCode, expiresAt)
	if err != nil {
		return fmt.Errorf("update session qr: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateOnAuthenticated(id string) error {
	query := `
		UPDATE sessions
		SET status = $2, qr_code = NULL, qr_expires_at = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := st.DB.Exec(query, id, StatusConnecting)
	if err != nil {
		return fmt.Errorf("update session authenticated: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateOnConnected(id, phoneNumber string) error {
	query := `
		UPDATE sessions
		SET status = $2, phone_number = $3, qr_code = NULL, qr_expires_at = NULL,
		    connected_at = NOW(), last_seen = NOW(), updated_at = NOW()
		WHERE id = $1`
	_, err := st.DB.Exec(query, id, StatusConnected, phoneNumber)
	if err != nil {
		return fmt.Errorf("update session connected: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateOnDisconnected(id string) error {
	query := `
		UPDATE sessions
		SET status = $2, qr_code = NULL, qr_expires_at = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := st.DB.Exec(query, id, StatusDisconnected)
	if err != nil {
		return fmt.Errorf("update session disconnected: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateStatus(id, status string) error {
	query := `UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := st.DB.Exec(query, id, status); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// TouchSeen records a successful liveness probe.
func (st *SessionStore) TouchSeen(id string) error {
	query := `UPDATE sessions SET last_seen = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := st.DB.Exec(query, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// TouchUpdated bumps updated_at without claiming liveness. Used while a
// client is mid-handshake and last_seen would overstate its health.
func (st *SessionStore) TouchUpdated(id string) error {
	query := `UPDATE sessions SET updated_at = NOW() WHERE id = $1`
	if _, err := st.DB.Exec(query, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ExpireStaleQR demotes sessions whose pairing challenge outlived its TTL.
// Returns the ids it demoted so callers can log them.
func (st *SessionStore) ExpireStaleQR() ([]string, error) {
	query := `
		UPDATE sessions
		SET status = $1, qr_code = NULL, qr_expires_at = NULL, updated_at = NOW()
		WHERE status = $2 AND qr_expires_at IS NOT NULL AND qr_expires_at < NOW()
		RETURNING id`
	rows, err := st.DB.Query(query, StatusDisconnected, StatusQRPending)
	if err != nil {
		return nil, fmt.Errorf("expire stale qr: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (st *SessionStore) UpdateWebhook(id, url, secret string) error {
	query := `
		UPDATE sessions
		SET webhook_url = NULLIF($2, ''), webhook_secret = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`
	if _, err := st.DB.Exec(query, id, url, secret); err != nil {
		return fmt.Errorf("update session webhook: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateAutoReply(id string, enabled bool, aiContext string) error {
	query := `
		UPDATE sessions
		SET auto_reply = $2, ai_context = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`
	if _, err := st.DB.Exec(query, id, enabled, aiContext); err != nil {
		return fmt.Errorf("update session auto reply: %w", err)
	}
	return nil
}

func (st *SessionStore) Delete(id string) error {
	if _, err := st.DB.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
