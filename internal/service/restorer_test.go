package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

func TestRestoreStartsPairedSessions(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)
	store.seed("with-auth", model.StatusConnected, time.Now(), time.Now())
	store.seed("without-auth", model.StatusConnected, time.Now().Add(-time.Hour), time.Now())
	writeAuthMaterial(t, auth, "with-auth")

	NewRestorer(m).Run(context.Background())

	eventually(t, func() bool { return factory.count.Load() == 1 }, "only the session with auth material restores")
	assert.NotNil(t, m.Handle("with-auth"))

	// The unrestorable one is demoted, never re-paired automatically.
	assert.Nil(t, m.Handle("without-auth"))
	assert.Equal(t, model.StatusDisconnected, store.get("without-auth").Status)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), factory.count.Load())
}

func TestRestoreWithNoSessions(t *testing.T) {
	m, _, _, factory, _ := newTestManager(t)

	NewRestorer(m).Run(context.Background())

	assert.Equal(t, int32(0), factory.count.Load())
}

func TestRestoreStopsOnCancel(t *testing.T) {
	m, store, _, factory, auth := newTestManager(t)
	store.seed("s1", model.StatusConnected, time.Now(), time.Now())
	writeAuthMaterial(t, auth, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.cfg.RestoreGrace = 10 * time.Millisecond

	NewRestorer(m).Run(ctx)

	assert.Equal(t, int32(0), factory.count.Load(), "cancelled restore must not start sessions")
}
