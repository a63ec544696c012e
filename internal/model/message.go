// internal/model/message.go
package model

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"

	MessageStatusSent     = "sent"
	MessageStatusFailed   = "failed"
	MessageStatusReceived = "received"
)

// Message is one row of the per-session message log. Recipient keeps the
// address exactly as the caller supplied it; Address is the canonical form
// that went to the network.
type Message struct {
	ID               int64
	SessionID        string
	Direction        string
	Status           string
	Recipient        sql.NullString
	Address          sql.NullString
	Sender           sql.NullString
	Body             string
	WaMessageID      sql.NullString
	ErrorMessage     sql.NullString
	NetworkTimestamp sql.NullTime
	CreatedAt        time.Time
}

type MessageResp struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	Direction        string     `json:"direction"`
	Status           string     `json:"status"`
	Recipient        string     `json:"recipient,omitempty"`
	Sender           string     `json:"sender,omitempty"`
	Body             string     `json:"body"`
	WaMessageID      string     `json:"wa_message_id,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	NetworkTimestamp *time.Time `json:"network_timestamp,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (m *Message) ToResponse() MessageResp {
	resp := MessageResp{
		ID:        m.ID,
		SessionID: m.SessionID,
		Direction: m.Direction,
		Status:    m.Status,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
	if m.Recipient.Valid {
		resp.Recipient = m.Recipient.String
	}
	if m.Sender.Valid {
		resp.Sender = m.Sender.String
	}
	if m.WaMessageID.Valid {
		resp.WaMessageID = m.WaMessageID.String
	}
	if m.ErrorMessage.Valid {
		resp.ErrorMessage = m.ErrorMessage.String
	}
	if m.NetworkTimestamp.Valid {
		t := m.NetworkTimestamp.Time
		resp.NetworkTimestamp = &t
	}
	return resp
}

type MessageStore struct {
	DB *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{DB: db}
}

// LogOutgoing records a send attempt, successful or not.
func (st *MessageStore) LogOutgoing(sessionID, recipient, address, body, waMessageID, errMsg string) error {
	status := MessageStatusSent
	if errMsg != "" {
		status = MessageStatusFailed
	}
	query := `
		INSERT INTO messages (session_id, direction, status, recipient, address, body, wa_message_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))`
	_, err := st.DB.Exec(query, sessionID, DirectionOutgoing, status, recipient, address, body, waMessageID, errMsg)
	if err != nil {
		return fmt.Errorf("log outgoing message: %w", err)
	}
	return nil
}

func (st *MessageStore) LogIncoming(sessionID, sender, body string, networkTS time.Time) error {
	query := `
		INSERT INTO messages (session_id, direction, status, sender, body, network_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := st.DB.Exec(query, sessionID, DirectionIncoming, MessageStatusReceived, sender, body, networkTS)
	if err != nil {
		return fmt.Errorf("log incoming message: %w", err)
	}
	return nil
}

func (st *MessageStore) ListBySession(sessionID string, limit, offset int) ([]*Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, session_id, direction, status, recipient, address, sender,
		       body, wa_message_id, error_message, network_timestamp, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := st.DB.Query(query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		err := rows.Scan(
			&m.ID, &m.SessionID, &m.Direction, &m.Status, &m.Recipient, &m.Address,
			&m.Sender, &m.Body, &m.WaMessageID, &m.ErrorMessage, &m.NetworkTimestamp, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (st *MessageStore) CountBySession(sessionID string) (int, error) {
	var count int
	err := st.DB.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (st *MessageStore) DeleteBySession(sessionID string) error {
	if _, err := st.DB.Exec(`DELETE FROM messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	return nil
}
