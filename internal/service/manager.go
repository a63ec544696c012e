// internal/service/manager.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legendisdaname/whatsapp-platform-backend/config"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/authstore"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/ws"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotConnected = errors.New("session is not connected")
	ErrUnauthorized        = errors.New("not allowed to access this session")
)

// RecordStore is the slice of the session table the manager needs.
// *model.SessionStore satisfies it; tests plug in an in-memory fake.
type RecordStore interface {
	Insert(id, name string, createdBy int64) error
	GetByID(id string) (*model.Session, error)
	ListPaired() ([]*model.Session, error)
	UpdateOnQR(id, qrCode string, expiresAt sql.NullTime) error
	UpdateOnAuthenticated(id string) error
	UpdateOnConnected(id, phoneNumber string) error
	UpdateOnDisconnected(id string) error
	UpdateStatus(id, status string) error
	TouchSeen(id string) error
	TouchUpdated(id string) error
	ExpireStaleQR() ([]string, error)
	Delete(id string) error
}

// MessageLogger records message traffic. *model.MessageStore satisfies it.
type MessageLogger interface {
	LogOutgoing(sessionID, recipient, address, body, waMessageID, errMsg string) error
	LogIncoming(sessionID, sender, body string, networkTS time.Time) error
}

// Handle is one live session: the client plus the goroutines serving it.
type Handle struct {
	ID     string
	Client client.Client

	keepaliveCancel context.CancelFunc
}

// SendResult reports a successful send. Recipient is echoed back exactly as
// the caller supplied it; Address is what actually went to the network.
type SendResult struct {
	WaMessageID string `json:"wa_message_id"`
	Recipient   string `json:"recipient"`
	Address     string `json:"address"`
}

// Manager owns the handle map and every session's lifecycle: creation,
// pairing, keepalive, reconnect tiers, teardown. All handle-map access goes
// through mu; per-session work happens in goroutines off the hot path.
type Manager struct {
	cfg     config.Lifecycle
	store   RecordStore
	msgs    MessageLogger
	auth    *authstore.Store
	factory client.Factory

	// Realtime is optional; nil disables event pushes.
	Realtime ws.RealtimePublisher

	// OnInbound runs for every inbound message after it is logged.
	// Webhook delivery and auto-reply hang off this.
	OnInbound func(sessionID string, msg client.Message)

	mu       sync.RWMutex
	handles  map[string]*Handle
	deleting map[string]bool
}

func NewManager(cfg config.Lifecycle, store RecordStore, msgs MessageLogger, auth *authstore.Store, factory client.Factory) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		msgs:     msgs,
		auth:     auth,
		factory:  factory,
		handles:  make(map[string]*Handle),
		deleting: make(map[string]bool),
	}
}

// CreateSession registers a new session record and starts connecting it in
// the background. The caller gets the id immediately; pairing progress
// arrives via the record and realtime events.
func (m *Manager) CreateSession(name string, createdBy int64) (string, error) {
	id := uuid.NewString()

	if err := m.store.Insert(id, name, createdBy); err != nil {
		return "", err
	}

	handle, created, err := m.ensureHandle(id)
	if err != nil {
		_ = m.store.UpdateOnDisconnected(id)
		return "", err
	}
	if created {
		go m.initialize(handle, false)
	}
	fmt.Println("✓ Session created:", id, "("+name+")")
	return id, nil
}

// ReconnectSession brings an existing session back up. Idempotent: if a
// handle already exists the call is a no-op, so concurrent callers collapse
// into a single connection attempt.
func (m *Manager) ReconnectSession(id string) error {
	if _, err := m.store.GetByID(id); err != nil {
		if errors.Is(err, model.ErrSessionRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return m.reconnect(id, true)
}

func (m *Manager) reconnect(id string, allowRetry bool) error {
	handle, created, err := m.ensureHandle(id)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if err := m.store.UpdateStatus(id, model.StatusConnecting); err != nil {
		fmt.Println("⚠ Failed to mark session connecting:", id, err)
	}
	m.publishStatus(id, model.StatusConnecting, "")
	go m.initialize(handle, allowRetry)
	return nil
}

// ensureHandle registers a handle for the session, building the client if
// none exists. The registration happens before any I/O so concurrent
// callers race on the map, not on the network; losers get created=false.
func (m *Manager) ensureHandle(id string) (*Handle, bool, error) {
	m.mu.Lock()
	if m.deleting[id] {
		m.mu.Unlock()
		return nil, false, ErrSessionNotFound
	}
	if existing, ok := m.handles[id]; ok {
		m.mu.Unlock()
		return existing, false, nil
	}
	handle := &Handle{ID: id}
	m.handles[id] = handle
	m.mu.Unlock()

	authDir, err := m.auth.Ensure(id)
	if err != nil {
		m.dropHandle(id)
		return nil, false, err
	}
	cl, err := m.factory(id, authDir)
	if err != nil {
		m.dropHandle(id)
		return nil, false, fmt.Errorf("build client for %s: %w", id, err)
	}
	cl.AddEventHandler(m.eventHandler(id))

	// Publish the client under the lock; readers go through ClientFor. If
	// the placeholder was removed while the factory ran (delete won the
	// race), the fresh client must not outlive it.
	m.mu.Lock()
	if m.handles[id] != handle {
		m.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if derr := cl.Destroy(ctx); derr != nil {
			fmt.Println("⚠ Failed to destroy orphaned client:", id, derr)
		}
		cancel()
		return nil, false, ErrSessionNotFound
	}
	handle.Client = cl
	m.mu.Unlock()

	return handle, true, nil
}

// ClientFor returns the session's live client, or nil. This is the only safe
// way to read a handle's client outside the manager's lock.
func (m *Manager) ClientFor(id string) client.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.handles[id]; ok {
		return h.Client
	}
	return nil
}

// startKeepalive binds a keepalive loop to the session's handle. Runs when
// the client reaches ready; no-op if one is already running.
func (m *Manager) startKeepalive(id string) {
	m.mu.Lock()
	handle, ok := m.handles[id]
	if !ok || handle.Client == nil || handle.keepaliveCancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle.keepaliveCancel = cancel
	cl := handle.Client
	m.mu.Unlock()

	go m.keepalive(ctx, id, cl)
}

func (m *Manager) initialize(h *Handle, allowRetry bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := h.Client.Initialize(ctx); err != nil {
		fmt.Println("✗ Failed to initialize session:", h.ID, "->", err)
		m.removeHandle(h.ID, true)
		if uerr := m.store.UpdateOnDisconnected(h.ID); uerr != nil {
			fmt.Println("⚠ Failed to mark session disconnected:", h.ID, uerr)
		}
		m.publishStatus(h.ID, model.StatusDisconnected, "")

		if allowRetry {
			// One cold retry after the long delay, and only one: a second
			// failure leaves the session down until the health monitor or
			// an operator picks it up.
			fmt.Println("⚠ Scheduling cold retry for session:", h.ID, "in", m.cfg.LongRetryDelay)
			time.AfterFunc(m.cfg.LongRetryDelay, func() {
				if err := m.reconnect(h.ID, false); err != nil && !errors.Is(err, ErrSessionNotFound) {
					fmt.Println("✗ Cold retry failed for session:", h.ID, err)
				}
			})
		}
	}
}

// eventHandler builds the per-session closure that reacts to client
// lifecycle events.
func (m *Manager) eventHandler(id string) client.EventHandler {
	return func(evt interface{}) {
		switch v := evt.(type) {

		case client.QRCode:
			image, err := helper.QRImageDataURL(v.Code)
			if err != nil {
				fmt.Println("⚠ Failed to render QR for session:", id, err)
				image = v.Code
			}
			var expires sql.NullTime
			if m.cfg.QRPendingTTL > 0 {
				expires = sql.NullTime{Time: time.Now().Add(m.cfg.QRPendingTTL), Valid: true}
			}
			if err := m.store.UpdateOnQR(id, image, expires); err != nil {
				fmt.Println("⚠ Failed to store QR for session:", id, err)
			}
			m.publish(ws.WsEvent{
				Event:     ws.EventQRGenerated,
				SessionID: id,
				Data:      ws.QRGeneratedData{QRImage: image},
			})
			fmt.Println("✓ QR generated for session:", id)

		case client.Authenticated:
			if err := m.store.UpdateOnAuthenticated(id); err != nil {
				fmt.Println("⚠ Failed to mark session authenticated:", id, err)
			}
			m.publishStatus(id, model.StatusConnecting, "")

		case client.Ready:
			if err := m.store.UpdateOnConnected(id, v.Phone); err != nil {
				fmt.Println("⚠ Failed to mark session connected:", id, err)
			}
			if err := m.auth.MarkBackup(id); err != nil {
				fmt.Println("⚠ Failed to mark auth backup:", id, err)
			}
			m.startKeepalive(id)
			m.publish(ws.WsEvent{
				Event:     ws.EventSessionConnected,
				SessionID: id,
				Data:      ws.StatusChangedData{Status: model.StatusConnected, PhoneNumber: v.Phone},
			})
			fmt.Println("✓ Session connected:", id, "as", v.Phone)

		case client.AuthFailure:
			fmt.Println("✗ Authentication failed for session:", id, "->", v.Reason)
			m.removeHandle(id, true)
			if err := m.store.UpdateOnDisconnected(id); err != nil {
				fmt.Println("⚠ Failed to mark session disconnected:", id, err)
			}
			m.publishStatus(id, model.StatusDisconnected, "")

		case client.Disconnected:
			m.handleDisconnected(id, v.Reason)

		case client.Message:
			m.handleInbound(id, v)
		}
	}
}

func (m *Manager) handleDisconnected(id, reason string) {
	if err := m.store.UpdateOnDisconnected(id); err != nil {
		fmt.Println("⚠ Failed to mark session disconnected:", id, err)
	}
	m.publishStatus(id, model.StatusDisconnected, "")

	if reason == client.ReasonLogout {
		// Terminal. The pairing is gone, so the credential material is
		// useless; drop it so restore does not try to resurrect this.
		fmt.Println("✗ Session logged out:", id)
		m.removeHandle(id, true)
		if err := m.auth.Delete(id); err != nil {
			fmt.Println("⚠ Failed to delete auth material:", id, err)
		}
		return
	}

	m.mu.RLock()
	deleting := m.deleting[id]
	m.mu.RUnlock()
	if deleting {
		return
	}

	// Free the handle right away so a manual reconnect is not blocked by
	// the idempotency guard while the retry timer runs. The retry itself is
	// a plain reconnect: if something else already built a handle, it
	// no-ops instead of tearing that handle down.
	m.removeHandle(id, true)

	fmt.Println("⚠ Session disconnected:", id, "-> retrying in", m.cfg.ShortRetryDelay)
	time.AfterFunc(m.cfg.ShortRetryDelay, func() {
		if err := m.reconnect(id, true); err != nil && !errors.Is(err, ErrSessionNotFound) {
			fmt.Println("✗ Reconnect failed for session:", id, err)
		}
	})
}

func (m *Manager) handleInbound(id string, msg client.Message) {
	if m.msgs != nil {
		if err := m.msgs.LogIncoming(id, msg.From, msg.Body, msg.Timestamp); err != nil {
			fmt.Println("⚠ Failed to log inbound message:", id, err)
		}
	}
	if config.EnableWebsocketIncomingMessage {
		m.publish(ws.WsEvent{
			Event:     ws.EventMessageReceived,
			SessionID: id,
			Data: ws.MessageReceivedData{
				From:      msg.From,
				Body:      msg.Body,
				Timestamp: msg.Timestamp,
			},
		})
	}
	if m.OnInbound != nil {
		m.OnInbound(id, msg)
	}
}

// keepalive probes the client every heartbeat interval and records liveness
// on the session record. The loop dies with its context when the handle is
// removed; the cancel is idempotent, so the probe's own repair path and the
// disconnect event handler can race on teardown safely.
func (m *Manager) keepalive(ctx context.Context, id string, cl client.Client) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, err := cl.GetState(ctx)
			if err != nil {
				// Unrecoverable client; same treatment as dead.
				state = client.StateOther
			}
			switch state {
			case client.StateConnected:
				if err := m.store.TouchSeen(id); err != nil {
					fmt.Println("⚠ Keepalive failed to touch session:", id, err)
				}
			case client.StateConnecting:
				// Transitional; record activity without touching status.
				if err := m.store.TouchUpdated(id); err != nil {
					fmt.Println("⚠ Keepalive failed to touch session:", id, err)
				}
			case client.StateConflict, client.StateUnpaired:
				// Needs re-pairing; the health monitor demotes it and no
				// retry helps, so the probe just keeps watching.
			default:
				fmt.Println("💓 Keepalive found dead client for session:", id)
				m.removeHandle(id, true)
				if err := m.store.UpdateOnDisconnected(id); err != nil {
					fmt.Println("⚠ Failed to mark session disconnected:", id, err)
				}
				if err := m.reconnect(id, true); err != nil && !errors.Is(err, ErrSessionNotFound) {
					fmt.Println("✗ Keepalive repair failed for session:", id, err)
				}
				return
			}
		}
	}
}

// SendMessage normalizes the recipient, sends through the session's client
// and logs the attempt. The stored recipient is the caller's original
// string; the canonical address only exists on the wire and in the log's
// address column.
func (m *Manager) SendMessage(ctx context.Context, id, recipient, body string) (*SendResult, error) {
	address, err := helper.NormalizePhone(recipient)
	if err != nil {
		return nil, err
	}

	cl := m.ClientFor(id)
	if cl == nil {
		return nil, ErrSessionNotConnected
	}
	state, err := cl.GetState(ctx)
	if err != nil || state != client.StateConnected {
		return nil, ErrSessionNotConnected
	}

	waID, sendErr := cl.SendText(ctx, address, body)

	// Logging must not block or fail the send path.
	go func(errMsg string) {
		if m.msgs == nil {
			return
		}
		if err := m.msgs.LogOutgoing(id, recipient, address, body, waID, errMsg); err != nil {
			fmt.Println("⚠ Failed to log outgoing message:", id, err)
		}
	}(errString(sendErr))

	if sendErr != nil {
		if errors.Is(sendErr, client.ErrRecipientUnreachable) {
			return nil, sendErr
		}
		if errors.Is(sendErr, client.ErrNotConnected) {
			return nil, ErrSessionNotConnected
		}
		return nil, fmt.Errorf("send message via %s: %w", id, sendErr)
	}

	m.publish(ws.WsEvent{
		Event:     ws.EventMessageSent,
		SessionID: id,
		Data:      ws.MessageSentData{Recipient: recipient, WaMessageID: waID, Status: model.MessageStatusSent},
	})

	return &SendResult{WaMessageID: waID, Recipient: recipient, Address: address}, nil
}

// DeleteSession tears a session down completely: keepalive, then client,
// then auth material, then the record. A crash mid-way leaves remnants that
// are harmless rather than orphaned records pointing at nothing.
func (m *Manager) DeleteSession(id string) error {
	if _, err := m.store.GetByID(id); err != nil {
		if errors.Is(err, model.ErrSessionRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	m.mu.Lock()
	if m.deleting[id] {
		m.mu.Unlock()
		return nil
	}
	m.deleting[id] = true
	handle := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.deleting, id)
		m.mu.Unlock()
	}()

	if handle != nil {
		if handle.keepaliveCancel != nil {
			handle.keepaliveCancel()
		}
		if handle.Client != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if lo, ok := handle.Client.(client.Logouter); ok {
				if err := lo.Logout(ctx); err != nil {
					fmt.Println("⚠ Logout failed during delete:", id, err)
				}
			}
			if err := handle.Client.Destroy(ctx); err != nil {
				fmt.Println("⚠ Destroy failed during delete:", id, err)
			}
			cancel()
		}
	}

	if err := m.auth.Delete(id); err != nil {
		fmt.Println("⚠ Failed to delete auth material:", id, err)
	}

	if err := m.store.Delete(id); err != nil {
		return err
	}

	m.publish(ws.WsEvent{Event: ws.EventSessionDeleted, SessionID: id})
	fmt.Println("✓ Session deleted:", id)
	return nil
}

// ForceReconnect tears down whatever handle exists and starts fresh. This
// is the escape hatch for conflict states, which never auto-retry.
func (m *Manager) ForceReconnect(id string) error {
	m.removeHandle(id, true)
	return m.ReconnectSession(id)
}

// Handle returns the live handle for a session, or nil.
func (m *Manager) Handle(id string) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handles[id]
}

// HandleCount reports how many sessions currently hold a handle.
func (m *Manager) HandleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// JoinedGroups lists the groups the session's account participates in.
func (m *Manager) JoinedGroups(ctx context.Context, id string) ([]client.GroupInfo, error) {
	gl, ok := m.ClientFor(id).(client.GroupLister)
	if !ok {
		return nil, ErrSessionNotConnected
	}
	return gl.JoinedGroups(ctx)
}

// GroupMembers lists member addresses of one group.
func (m *Manager) GroupMembers(ctx context.Context, id, groupAddress string) ([]string, error) {
	gl, ok := m.ClientFor(id).(client.GroupLister)
	if !ok {
		return nil, ErrSessionNotConnected
	}
	return gl.GroupMembers(ctx, groupAddress)
}

// removeHandle unregisters a session's handle. destroy controls whether the
// client is torn down too; the keepalive cancel is idempotent so racing
// removals are safe.
func (m *Manager) removeHandle(id string, destroy bool) {
	m.mu.Lock()
	handle := m.handles[id]
	delete(m.handles, id)
	m.mu.Unlock()

	if handle == nil {
		return
	}
	if handle.keepaliveCancel != nil {
		handle.keepaliveCancel()
	}
	if destroy && handle.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := handle.Client.Destroy(ctx); err != nil {
			fmt.Println("⚠ Failed to destroy client:", id, err)
		}
		cancel()
	}
}

// dropHandle removes a placeholder that never got a client.
func (m *Manager) dropHandle(id string) {
	m.mu.Lock()
	delete(m.handles, id)
	m.mu.Unlock()
}

func (m *Manager) publish(event ws.WsEvent) {
	if m.Realtime != nil {
		m.Realtime.Publish(event)
	}
}

func (m *Manager) publishStatus(id, status, phone string) {
	m.publish(ws.WsEvent{
		Event:     ws.EventSessionStatusChanged,
		SessionID: id,
		Data:      ws.StatusChangedData{Status: status, PhoneNumber: phone},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
