package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

func TestSweepRevivesSessionWithAuthMaterial(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())
	writeAuthMaterial(t, auth, "s1")

	NewHealthMonitor(m).Sweep(context.Background())

	eventually(t, func() bool { return factory.count.Load() == 1 }, "session should be revived")
	assert.NotNil(t, m.Handle("s1"))
}

func TestSweepDemotesSessionWithoutAuthMaterial(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	NewHealthMonitor(m).Sweep(context.Background())

	assert.Equal(t, model.StatusDisconnected, store.get("s1").Status)
	assert.Equal(t, int32(0), factory.count.Load(), "no reconnect without credentials")
}

func TestSweepReconcilesDriftedRecord(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	stale := time.Now().Add(-time.Hour)
	store.seed("s1", model.StatusConnected, time.Now(), stale)

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	factory.client(0).setState(client.StateConnected)

	// Record drifted to disconnected while the client stayed up.
	require.NoError(t, store.UpdateStatus("s1", model.StatusDisconnected))

	NewHealthMonitor(m).Sweep(context.Background())

	rec := store.get("s1")
	assert.Equal(t, model.StatusConnected, rec.Status)
	assert.True(t, rec.LastSeen.Time.After(stale), "sweep should touch last_seen")
}

func TestSweepRepairsStaleSession(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now().Add(-time.Hour))

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	// Client stuck in a dead state while the record still says connected
	// and the heartbeat has been silent far past the threshold.
	factory.client(0).setState(client.StateOther)
	require.NoError(t, store.UpdateStatus("s1", model.StatusConnected))

	NewHealthMonitor(m).Sweep(context.Background())

	eventually(t, func() bool { return factory.count.Load() == 2 }, "stale session should be rebuilt")
	eventually(t, func() bool { return factory.client(0).isDestroyed() }, "stale client should be destroyed")
}

func TestSweepConflictDemotesWithoutRetry(t *testing.T) {
	m, store, _, factory, _ := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())

	require.NoError(t, m.ReconnectSession("s1"))
	eventually(t, func() bool {
		fc := factory.client(0)
		return fc != nil && fc.initialized()
	}, "client should be initialized")
	factory.client(0).setState(client.StateConflict)

	hm := NewHealthMonitor(m)
	hm.Sweep(context.Background())
	hm.Sweep(context.Background())

	assert.Equal(t, model.StatusDisconnected, store.get("s1").Status)
	assert.Equal(t, int32(1), factory.count.Load(), "conflict never auto-reconnects")
	assert.NotNil(t, m.Handle("s1"), "dead handle stays registered to block revival")
}

func TestSweepExpiresStaleQR(t *testing.T) {
	m, store, _, _, _ := newTestManager(t)
	m.cfg.QRPendingTTL = time.Minute

	store.seed("s1", model.StatusQRPending, time.Time{}, time.Time{})
	store.mu.Lock()
	store.records["s1"].QRCode = sql.NullString{String: "data:image/png;base64,x", Valid: true}
	store.records["s1"].QRExpiresAt = sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true}
	store.mu.Unlock()

	NewHealthMonitor(m).Sweep(context.Background())

	rec := store.get("s1")
	assert.Equal(t, model.StatusDisconnected, rec.Status)
	assert.False(t, rec.QRCode.Valid)
}
