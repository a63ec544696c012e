package client

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
)

const (
	qrWaitTimeout    = 3 * time.Minute
	maxQRGenerations = 5
	presenceInterval = 5 * time.Minute
)

// Wameow drives one WhatsApp connection through whatsmeow. The device store
// is a sqlite file inside the session's auth directory, so the directory's
// existence is what decides whether the session can reconnect without a new
// QR scan.
type Wameow struct {
	sessionID string
	authDir   string

	mu        sync.Mutex
	handlers  []EventHandler
	wa        *whatsmeow.Client
	container *sqlstore.Container
	conflict  bool
	pairing   bool
	destroyed bool

	presenceCancel context.CancelFunc
}

// NewWameow is the production client.Factory.
func NewWameow(sessionID, authDir string) (Client, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	return &Wameow{sessionID: sessionID, authDir: authDir}, nil
}

func (c *Wameow) AddEventHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

func (c *Wameow) emit(evt interface{}) {
	c.mu.Lock()
	handlers := make([]EventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Initialize opens the device store and connects. When the device was never
// paired the QR flow starts automatically; callers that must not trigger
// pairing (restore, health repair) guard with an auth-material existence
// check before building the client.
func (c *Wameow) Initialize(ctx context.Context) error {
	store.DeviceProps.Os = proto.String("WhatsApp Platform")

	dsn := "file:" + filepath.Join(c.authDir, "session.db") + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Stdout("wa-"+shortID(c.sessionID), "WARN", true))
	// The manager owns the retry policy; whatsmeow must not fight it.
	wa.EnableAutoReconnect = false
	wa.AddEventHandler(c.translate)

	c.mu.Lock()
	c.wa = wa
	c.container = container
	c.mu.Unlock()

	if device.ID == nil {
		return c.connectWithPairing(wa)
	}

	if err := wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// connectWithPairing runs the QR handshake. Bounded by qrWaitTimeout and
// maxQRGenerations; either limit exhausted surfaces as an AuthFailure event.
func (c *Wameow) connectWithPairing(wa *whatsmeow.Client) error {
	qrCtx, cancel := context.WithTimeout(context.Background(), qrWaitTimeout)

	qrChan, err := wa.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("get qr channel: %w", err)
	}

	c.mu.Lock()
	c.pairing = true
	c.mu.Unlock()

	if err := wa.Connect(); err != nil {
		cancel()
		c.mu.Lock()
		c.pairing = false
		c.mu.Unlock()
		return fmt.Errorf("connect for pairing: %w", err)
	}

	go func() {
		defer cancel()
		defer func() {
			c.mu.Lock()
			c.pairing = false
			c.mu.Unlock()
		}()

		codes := 0
		for evt := range qrChan {
			switch {
			case evt.Event == "code":
				codes++
				if codes > maxQRGenerations {
					fmt.Println("✗ QR regenerations exhausted for session:", c.sessionID)
					c.emit(AuthFailure{Reason: "qr regenerations exhausted"})
					wa.Disconnect()
					return
				}
				c.emit(QRCode{Code: evt.Code})

			case evt.Event == "success":
				fmt.Println("✓ QR scanned, pairing successful for session:", c.sessionID)
				c.emit(Authenticated{})
				return

			case evt.Event == "timeout":
				fmt.Println("✗ QR timeout for session:", c.sessionID)
				c.emit(AuthFailure{Reason: "pairing timed out"})
				return

			case strings.HasPrefix(evt.Event, "err-"):
				fmt.Println("✗ QR error for session:", c.sessionID, "->", evt.Event)
				c.emit(AuthFailure{Reason: evt.Event})
				return
			}
		}
	}()

	return nil
}

// translate maps whatsmeow events onto the lifecycle events the manager
// understands.
func (c *Wameow) translate(evt interface{}) {
	switch v := evt.(type) {

	case *events.Connected:
		c.mu.Lock()
		wa := c.wa
		c.mu.Unlock()
		if wa == nil || wa.Store.ID == nil {
			return
		}

		if err := wa.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			fmt.Println("⚠ Failed to send presence for session:", c.sessionID, err)
		}
		c.startPresenceLoop()

		c.emit(Ready{Phone: wa.Store.ID.User})

	case *events.PairSuccess:
		fmt.Println("✓ Pair success for session:", c.sessionID)

	case *events.StreamReplaced:
		// Another device took over. Not a transient drop; the health
		// monitor demotes the session without scheduling a retry.
		fmt.Println("⚠ Stream replaced (account conflict) for session:", c.sessionID)
		c.mu.Lock()
		c.conflict = true
		c.mu.Unlock()

	case *events.LoggedOut:
		fmt.Println("✗ Logged out from phone, session:", c.sessionID)
		c.stopPresenceLoop()
		c.mu.Lock()
		wa := c.wa
		container := c.container
		c.mu.Unlock()
		if wa != nil {
			if wa.Store != nil && wa.Store.ID != nil && container != nil {
				if err := container.DeleteDevice(context.Background(), wa.Store); err != nil {
					fmt.Println("⚠ Failed to delete device store:", err)
				}
			}
			wa.Disconnect()
		}
		c.emit(Disconnected{Reason: ReasonLogout})

	case *events.Disconnected:
		c.stopPresenceLoop()
		c.mu.Lock()
		pairing := c.pairing
		c.mu.Unlock()
		if pairing {
			// The QR loop reports its own outcome.
			return
		}
		c.emit(Disconnected{Reason: ReasonConnectionLost})

	case *events.Message:
		if v.Info.IsFromMe {
			return
		}
		body := v.Message.GetConversation()
		if body == "" {
			body = v.Message.GetExtendedTextMessage().GetText()
		}
		if body == "" {
			return
		}
		c.emit(Message{
			From:      v.Info.Sender.User,
			Body:      body,
			Timestamp: v.Info.Timestamp,
		})
	}
}

func (c *Wameow) GetState(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed || c.wa == nil {
		return StateOther, nil
	}
	if c.conflict {
		return StateConflict, nil
	}
	if c.wa.Store.ID == nil {
		if c.pairing {
			return StateConnecting, nil
		}
		return StateUnpaired, nil
	}
	if c.wa.IsConnected() && c.wa.IsLoggedIn() {
		return StateConnected, nil
	}
	return StateOther, nil
}

func (c *Wameow) SendText(ctx context.Context, address, body string) (string, error) {
	c.mu.Lock()
	wa := c.wa
	c.mu.Unlock()

	if wa == nil || !wa.IsConnected() {
		return "", ErrNotConnected
	}

	jid, err := JIDForAddress(address)
	if err != nil {
		return "", err
	}

	if !helper.IsGroupAddress(address) {
		registered, err := wa.IsOnWhatsApp(ctx, []string{jid.User})
		if err != nil {
			return "", fmt.Errorf("verify recipient: %w", err)
		}
		if len(registered) == 0 || !registered[0].IsIn {
			return "", ErrRecipientUnreachable
		}
	}

	resp, err := wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return string(resp.ID), nil
}

func (c *Wameow) Info(ctx context.Context) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wa == nil || c.wa.Store.ID == nil {
		return Identity{}, ErrNotConnected
	}
	return Identity{
		Phone:    c.wa.Store.ID.User,
		Platform: c.wa.Store.Platform,
	}, nil
}

// Logout unlinks the device from the account. Only called on explicit
// session deletion; Destroy alone keeps the pairing reusable.
func (c *Wameow) Logout(ctx context.Context) error {
	c.mu.Lock()
	wa := c.wa
	c.mu.Unlock()

	if wa == nil || wa.Store.ID == nil {
		return nil
	}
	return wa.Logout(ctx)
}

func (c *Wameow) Destroy(ctx context.Context) error {
	c.stopPresenceLoop()

	c.mu.Lock()
	wa := c.wa
	container := c.container
	c.wa = nil
	c.container = nil
	c.destroyed = true
	c.mu.Unlock()

	if wa != nil {
		wa.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			return fmt.Errorf("close device store: %w", err)
		}
	}
	return nil
}

func (c *Wameow) JoinedGroups(ctx context.Context) ([]GroupInfo, error) {
	c.mu.Lock()
	wa := c.wa
	c.mu.Unlock()

	if wa == nil || !wa.IsConnected() {
		return nil, ErrNotConnected
	}

	groups, err := wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}

	result := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		result = append(result, GroupInfo{
			Address:      g.JID.String(),
			Name:         g.Name,
			Participants: len(g.Participants),
		})
	}
	return result, nil
}

func (c *Wameow) GroupMembers(ctx context.Context, groupAddress string) ([]string, error) {
	c.mu.Lock()
	wa := c.wa
	c.mu.Unlock()

	if wa == nil || !wa.IsConnected() {
		return nil, ErrNotConnected
	}

	jid, err := JIDForAddress(groupAddress)
	if err != nil {
		return nil, err
	}

	info, err := wa.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("get group info: %w", err)
	}

	var members []string
	for _, p := range info.Participants {
		if p.JID.User == wa.Store.ID.User {
			continue
		}
		members = append(members, p.JID.User)
	}
	return members, nil
}

// startPresenceLoop keeps the account showing online. WhatsApp drops idle
// companions well before this interval would let it.
func (c *Wameow) startPresenceLoop() {
	c.mu.Lock()
	if c.presenceCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.presenceCancel = cancel
	wa := c.wa
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(presenceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if wa == nil || !wa.IsConnected() {
					return
				}
				if err := wa.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
					fmt.Println("⚠ Presence heartbeat failed for session:", c.sessionID, err)
				}
			}
		}
	}()
}

func (c *Wameow) stopPresenceLoop() {
	c.mu.Lock()
	cancel := c.presenceCancel
	c.presenceCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// JIDForAddress turns a canonical address into a wire JID. Bare digits get
// the individual-user suffix; addresses that already carry a suffix are
// parsed as-is.
func JIDForAddress(address string) (types.JID, error) {
	if strings.Contains(address, "@") {
		jid, err := types.ParseJID(address)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse address %q: %w", address, err)
		}
		return jid, nil
	}
	return types.JID{User: address, Server: types.DefaultUserServer}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
