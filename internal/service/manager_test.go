package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legendisdaname/whatsapp-platform-backend/config"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/authstore"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

func testLifecycle() config.Lifecycle {
	return config.Lifecycle{
		HeartbeatInterval: 10 * time.Millisecond,
		MissedThreshold:   3,
		ShortRetryDelay:   20 * time.Millisecond,
		LongRetryDelay:    30 * time.Millisecond,
		RestoreGrace:      0,
		RestorePause:      0,
		HealthInterval:    50 * time.Millisecond,
	}
}

// fakeStore is an in-memory RecordStore.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*model.Session

	onDelete func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*model.Session)}
}

func (s *fakeStore) seed(id, status string, connectedAt time.Time, lastSeen time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &model.Session{ID: id, Name: id, Status: status}
	if !connectedAt.IsZero() {
		rec.ConnectedAt = sql.NullTime{Time: connectedAt, Valid: true}
	}
	if !lastSeen.IsZero() {
		rec.LastSeen = sql.NullTime{Time: lastSeen, Valid: true}
	}
	s.records[id] = rec
}

func (s *fakeStore) get(id string) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return *rec
	}
	return model.Session{}
}

func (s *fakeStore) Insert(id, name string, createdBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = &model.Session{ID: id, Name: name, Status: model.StatusConnecting}
	return nil
}

func (s *fakeStore) GetByID(id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, model.ErrSessionRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) ListPaired() ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Session
	for _, rec := range s.records {
		if rec.ConnectedAt.Valid {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateOnQR(id, qrCode string, expiresAt sql.NullTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = model.StatusQRPending
		rec.QRCode = sql.NullString{String: qrCode, Valid: true}
		rec.QRExpiresAt = expiresAt
		rec.PhoneNumber = sql.NullString{}
	}
	return nil
}

func (s *fakeStore) UpdateOnAuthenticated(id string) error {
	return s.UpdateStatus(id, model.StatusConnecting)
}

func (s *fakeStore) UpdateOnConnected(id, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = model.StatusConnected
		rec.PhoneNumber = sql.NullString{String: phoneNumber, Valid: true}
		rec.ConnectedAt = sql.NullTime{Time: time.Now(), Valid: true}
		rec.LastSeen = sql.NullTime{Time: time.Now(), Valid: true}
		rec.QRCode = sql.NullString{}
	}
	return nil
}

func (s *fakeStore) UpdateOnDisconnected(id string) error {
	return s.UpdateStatus(id, model.StatusDisconnected)
}

func (s *fakeStore) UpdateStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = status
	}
	return nil
}

func (s *fakeStore) TouchUpdated(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (s *fakeStore) TouchSeen(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.LastSeen = sql.NullTime{Time: time.Now(), Valid: true}
	}
	return nil
}

func (s *fakeStore) ExpireStaleQR() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, rec := range s.records {
		if rec.Status == model.StatusQRPending && rec.QRExpiresAt.Valid && rec.QRExpiresAt.Time.Before(time.Now()) {
			rec.Status = model.StatusDisconnected
			rec.QRCode = sql.NullString{}
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (s *fakeStore) Delete(id string) error {
	s.mu.Lock()
	onDelete := s.onDelete
	delete(s.records, id)
	s.mu.Unlock()
	if onDelete != nil {
		onDelete(id)
	}
	return nil
}

// fakeLogger records message log calls.
type fakeLogger struct {
	mu       sync.Mutex
	outgoing []loggedMessage
}

type loggedMessage struct {
	sessionID, recipient, address, body, waID, errMsg string
}

func (l *fakeLogger) LogOutgoing(sessionID, recipient, address, body, waMessageID, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outgoing = append(l.outgoing, loggedMessage{sessionID, recipient, address, body, waMessageID, errMsg})
	return nil
}

func (l *fakeLogger) LogIncoming(sessionID, sender, body string, networkTS time.Time) error {
	return nil
}

func (l *fakeLogger) last() (loggedMessage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.outgoing) == 0 {
		return loggedMessage{}, false
	}
	return l.outgoing[len(l.outgoing)-1], true
}

// fakeClient is a controllable client.Client.
type fakeClient struct {
	mu        sync.Mutex
	handlers  []client.EventHandler
	state     client.State
	initErr   error
	initCalls int
	destroyed bool
	loggedOut bool

	sentAddress string
	sendID      string
	sendErr     error
}

func (f *fakeClient) AddEventHandler(handler client.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

func (f *fakeClient) emit(evt interface{}) {
	f.mu.Lock()
	handlers := make([]client.EventHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (f *fakeClient) setState(s client.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeClient) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initErr != nil {
		return f.initErr
	}
	f.state = client.StateConnecting
	return nil
}

func (f *fakeClient) GetState(ctx context.Context) (client.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeClient) SendText(ctx context.Context, address, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentAddress = address
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendID, nil
}

func (f *fakeClient) Info(ctx context.Context) (client.Identity, error) {
	return client.Identity{Phone: "15551234567"}, nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeClient) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	f.state = client.StateOther
	return nil
}

func (f *fakeClient) isDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeClient) initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls > 0
}

// fakeFactory hands out fake clients and counts constructions.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	count   atomic.Int32
}

func (ff *fakeFactory) build(sessionID, authDir string) (client.Client, error) {
	ff.count.Add(1)
	fc := &fakeClient{sendID: "WAMID-1"}
	ff.mu.Lock()
	ff.clients = append(ff.clients, fc)
	ff.mu.Unlock()
	return fc, nil
}

func (ff *fakeFactory) client(i int) *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if i >= len(ff.clients) {
		return nil
	}
	return ff.clients[i]
}

func newTestManager(t *testing.T) (*Manager, *fakeStore, *fakeLogger, *fakeFactory, *authstore.Store) {
	t.Helper()
	store := newFakeStore()
	logger := &fakeLogger{}
	factory := &fakeFactory{}
	auth := authstore.New(t.TempDir())
	m := NewManager(testLifecycle(), store, logger, auth, factory.build)
	return m, store, logger, factory, auth
}

func writeAuthMaterial(t *testing.T, auth *authstore.Store, id string) {
	t.Helper()
	dir, err := auth.Ensure(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.db"), []byte("x"), 0o644))
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestCreateSessionLifecycle(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)

	id, err := m.CreateSession("main", 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, model.StatusConnecting, store.get(id).Status)

	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)

	fc.emit(client.QRCode{Code: "qr-challenge-1"})
	eventually(t, func() bool {
		rec := store.get(id)
		return rec.Status == model.StatusQRPending && rec.QRCode.Valid
	}, "QR should be stored")
	assert.Contains(t, store.get(id).QRCode.String, "data:image/png;base64,")

	fc.emit(client.Authenticated{})
	eventually(t, func() bool {
		return store.get(id).Status == model.StatusConnecting
	}, "authenticated should move back to connecting")

	fc.setState(client.StateConnected)
	fc.emit(client.Ready{Phone: "15551234567"})
	eventually(t, func() bool {
		rec := store.get(id)
		return rec.Status == model.StatusConnected && rec.PhoneNumber.String == "15551234567"
	}, "ready should mark session connected")

	// Successful connect leaves a backup marker in the auth dir.
	eventually(t, func() bool { return auth.Exists(id) }, "auth material should be marked")
}

func TestReconnectSessionSingleFlight(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusDisconnected, time.Now(), time.Time{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.ReconnectSession("s1"))
		}()
	}
	wg.Wait()

	eventually(t, func() bool { return factory.count.Load() == 1 }, "exactly one client should be built")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), factory.count.Load())
}

func TestReconnectSessionUnknownID(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.ReconnectSession("missing"), ErrSessionNotFound)
}

func TestLogoutIsTerminal(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())
	writeAuthMaterial(t, auth, "s1")

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")

	factory.client(0).emit(client.Disconnected{Reason: client.ReasonLogout})

	eventually(t, func() bool { return m.Handle("s1") == nil }, "handle should be removed")
	eventually(t, func() bool { return !auth.Exists("s1") }, "auth material should be deleted")
	assert.Equal(t, model.StatusDisconnected, store.get("s1").Status)

	// No retry tier fires after a logout.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), factory.count.Load())
}

func TestConnectionLostTriggersReconnect(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")

	factory.client(0).emit(client.Disconnected{Reason: client.ReasonConnectionLost})

	eventually(t, func() bool { return factory.count.Load() == 2 }, "a fresh client should be built after the short delay")
	eventually(t, func() bool { return factory.client(0).isDestroyed() }, "old client should be destroyed")
}

func TestDisconnectFreesHandleImmediately(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")

	factory.client(0).emit(client.Disconnected{Reason: client.ReasonConnectionLost})

	// The dead handle must be gone before the retry timer fires, so a
	// manual reconnect inside the retry window is not blocked.
	assert.Nil(t, m.Handle("s1"))
	assert.True(t, factory.client(0).isDestroyed())

	require.NoError(t, m.ForceReconnect("s1"))
	eventually(t, func() bool {
		fc := factory.client(1)
		return fc != nil && fc.initialized()
	}, "replacement client should be initialized")
	second := factory.client(1)
	second.setState(client.StateConnected)

	// The pending retry must no-op against the replacement, not tear it down.
	time.Sleep(3 * m.cfg.ShortRetryDelay)
	assert.False(t, second.isDestroyed(), "retry must not destroy the replacement client")
	assert.Equal(t, int32(2), factory.count.Load())
}

func TestClientForDuringConcurrentReconnect(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if cl := m.ClientFor("s1"); cl != nil {
				_, _ = cl.GetState(context.Background())
			}
		}
	}()

	require.NoError(t, m.ReconnectSession("s1"))
	<-done

	eventually(t, func() bool { return m.ClientFor("s1") != nil }, "client should be published")
	assert.Equal(t, int32(1), factory.count.Load())
}

func TestEnsureHandleLosesToDelete(t *testing.T) {
	m, store, _, _, auth := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())
	writeAuthMaterial(t, auth, "s1")

	// Factory blocks until the delete has gone through, so the placeholder
	// is orphaned by the time the client is built.
	built := make(chan *fakeClient, 1)
	release := make(chan struct{})
	m.factory = func(sessionID, authDir string) (client.Client, error) {
		<-release
		fc := &fakeClient{}
		built <- fc
		return fc, nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- m.ReconnectSession("s1") }()
	eventually(t, func() bool { return m.Handle("s1") != nil }, "placeholder should be registered")

	require.NoError(t, m.DeleteSession("s1"))
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSessionNotFound)
	fc := <-built
	eventually(t, func() bool { return fc.isDestroyed() }, "orphaned client must be destroyed")
	assert.Nil(t, m.Handle("s1"))
}

func TestInitializeFailureSchedulesOneColdRetry(t *testing.T) {
	m, store, _, _, _ := newTestManager(t)
	store.seed("s1", model.StatusDisconnected, time.Now(), time.Time{})

	var count atomic.Int32
	m.factory = func(sessionID, authDir string) (client.Client, error) {
		count.Add(1)
		return &fakeClient{initErr: errors.New("network down")}, nil
	}

	require.NoError(t, m.ReconnectSession("s1"))

	// Initial attempt plus exactly one cold retry.
	eventually(t, func() bool { return count.Load() == 2 }, "cold retry should run once")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), count.Load())
	assert.Equal(t, model.StatusDisconnected, store.get("s1").Status)
}

func TestDeleteSessionOrdering(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())
	writeAuthMaterial(t, auth, "s1")

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)
	fc.setState(client.StateConnected)

	// When the record goes, the client and auth material must already be gone.
	var orderOK atomic.Bool
	store.mu.Lock()
	store.onDelete = func(id string) {
		orderOK.Store(fc.isDestroyed() && !auth.Exists(id))
	}
	store.mu.Unlock()

	require.NoError(t, m.DeleteSession("s1"))

	assert.True(t, orderOK.Load(), "client and auth material must be gone before the record")
	assert.True(t, fc.loggedOut, "delete should unlink the device")
	assert.Nil(t, m.Handle("s1"))
	_, err := store.GetByID("s1")
	assert.ErrorIs(t, err, model.ErrSessionRecordNotFound)

	assert.ErrorIs(t, m.DeleteSession("s1"), ErrSessionNotFound)
}

func TestSendMessageKeepsOriginalRecipient(t *testing.T) {
	m, store, logger, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)
	fc.setState(client.StateConnected)

	res, err := m.SendMessage(context.Background(), "s1", "+1 (555) 123-4567", "hello")
	require.NoError(t, err)

	// Canonical form on the wire, original form in the result.
	assert.Equal(t, "15551234567", fc.sentAddress)
	assert.Equal(t, "+1 (555) 123-4567", res.Recipient)
	assert.Equal(t, "15551234567", res.Address)
	assert.Equal(t, "WAMID-1", res.WaMessageID)

	eventually(t, func() bool {
		logged, ok := logger.last()
		return ok && logged.recipient == "+1 (555) 123-4567" && logged.address == "15551234567"
	}, "log should keep the original recipient")
}

func TestSendMessageErrors(t *testing.T) {
	m, store, logger, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	_, err := m.SendMessage(context.Background(), "s1", "12-34", "hi")
	assert.ErrorIs(t, err, helper.ErrInvalidAddress)

	_, err = m.SendMessage(context.Background(), "s1", "15551234567", "hi")
	assert.ErrorIs(t, err, ErrSessionNotConnected, "no handle yet")

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)

	_, err = m.SendMessage(context.Background(), "s1", "15551234567", "hi")
	assert.ErrorIs(t, err, ErrSessionNotConnected, "connecting state rejects sends")

	fc.setState(client.StateConnected)
	fc.mu.Lock()
	fc.sendErr = client.ErrRecipientUnreachable
	fc.mu.Unlock()

	_, err = m.SendMessage(context.Background(), "s1", "15551234567", "hi")
	assert.ErrorIs(t, err, client.ErrRecipientUnreachable)

	eventually(t, func() bool {
		logged, ok := logger.last()
		return ok && logged.errMsg != ""
	}, "failed attempt should be logged")
}

func TestKeepaliveTouchesLastSeen(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)
	fc.setState(client.StateConnected)
	fc.emit(client.Ready{Phone: "15551234567"})
	eventually(t, func() bool {
		return store.get("s1").Status == model.StatusConnected
	}, "ready should land before staleness is injected")

	// Backdate last_seen; the heartbeat loop must bring it forward again.
	stale := time.Now().Add(-time.Hour)
	store.mu.Lock()
	store.records["s1"].LastSeen = sql.NullTime{Time: stale, Valid: true}
	store.mu.Unlock()

	eventually(t, func() bool {
		rec := store.get("s1")
		return rec.LastSeen.Valid && rec.LastSeen.Time.After(stale)
	}, "keepalive should touch last_seen")
}

func TestKeepaliveRepairsDeadClient(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	fc := factory.client(0)
	fc.setState(client.StateConnected)
	fc.emit(client.Ready{Phone: "15551234567"})
	eventually(t, func() bool {
		return store.get("s1").Status == model.StatusConnected
	}, "ready should mark session connected")

	// Client dies without emitting a disconnect event; the probe must notice.
	fc.setState(client.StateOther)

	eventually(t, func() bool { return factory.count.Load() == 2 }, "probe should rebuild the client")
	eventually(t, func() bool { return fc.isDestroyed() }, "dead client should be destroyed")
}
