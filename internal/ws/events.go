package ws

import "time"

// Event names pushed over the realtime channel.
const (
	EventSessionStatusChanged = "session.status_changed"
	EventQRGenerated          = "session.qr_generated"
	EventSessionConnected     = "session.connected"
	EventSessionDeleted       = "session.deleted"
	EventMessageReceived      = "message.received"
	EventMessageSent          = "message.sent"
	EventBroadcastExecuted    = "broadcast.executed"
)

// WsEvent is the envelope every realtime event travels in.
type WsEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type StatusChangedData struct {
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type QRGeneratedData struct {
	QRImage string `json:"qr_image"`
}

type MessageReceivedData struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSentData struct {
	Recipient   string `json:"recipient"`
	WaMessageID string `json:"wa_message_id,omitempty"`
	Status      string `json:"status"`
}

type BroadcastExecutedData struct {
	BroadcastID string `json:"broadcast_id"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
}
