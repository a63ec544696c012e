// Package client defines the messaging-network client the session manager
// drives, plus the whatsmeow-backed production implementation. The manager
// only ever sees this interface, so tests can plug in fakes.
package client

import (
	"context"
	"errors"
	"time"
)

// State is the last observed condition of a client connection.
type State int

const (
	StateOther State = iota
	StateConnecting
	StateConnected
	StateConflict // another device took over the account
	StateUnpaired // no stored pairing, QR scan required
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConflict:
		return "conflict"
	case StateUnpaired:
		return "unpaired"
	default:
		return "other"
	}
}

// Disconnect reasons. Logout is terminal: the manager must never schedule an
// automatic reconnect for it.
const (
	ReasonLogout         = "logout"
	ReasonConnectionLost = "connection_lost"
)

var (
	ErrRecipientUnreachable = errors.New("recipient is not registered on the network")
	ErrNotConnected         = errors.New("client is not connected")
)

// Lifecycle events delivered to registered handlers. Events for one client
// arrive in emission order; there is no ordering across clients.
type (
	// QRCode carries a fresh pairing challenge.
	QRCode struct {
		Code string
	}

	// Authenticated fires when pairing succeeds; the connection is not
	// ready to send yet.
	Authenticated struct{}

	// Ready fires when the connection is fully usable.
	Ready struct {
		Phone string
	}

	// AuthFailure fires when pairing is rejected, times out, or runs out
	// of QR regenerations. Requires a fresh pairing; never auto-retried.
	AuthFailure struct {
		Reason string
	}

	// Disconnected fires when the connection drops for any reason.
	Disconnected struct {
		Reason string
	}

	// Message is an inbound message.
	Message struct {
		From      string
		Body      string
		Timestamp time.Time
	}
)

type EventHandler func(evt interface{})

// Client is one connection to the messaging network. Implementations emit
// the lifecycle events above to every registered handler.
type Client interface {
	AddEventHandler(handler EventHandler)
	Initialize(ctx context.Context) error
	GetState(ctx context.Context) (State, error)
	SendText(ctx context.Context, address, body string) (string, error)
	Info(ctx context.Context) (Identity, error)
	Destroy(ctx context.Context) error
}

// Identity is the client's own resolved account info, readable once ready.
type Identity struct {
	Phone    string
	Platform string
}

// Factory builds a client for a session bound to its credential directory.
type Factory func(sessionID, authDir string) (Client, error)

// Logouter is implemented by clients that can unlink the account from the
// network. Used on explicit session deletion only; plain Destroy keeps the
// pairing valid so the session can reconnect later.
type Logouter interface {
	Logout(ctx context.Context) error
}

// GroupInfo describes a group chat the account participates in.
type GroupInfo struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// GroupLister is implemented by clients that can enumerate groups and their
// members. The broadcast worker uses it to expand group recipients.
type GroupLister interface {
	JoinedGroups(ctx context.Context) ([]GroupInfo, error)
	GroupMembers(ctx context.Context, groupAddress string) ([]string, error)
}
