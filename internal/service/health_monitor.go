// internal/service/health_monitor.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

// HealthMonitor is the periodic safety net under the event-driven reconnect
// paths. It reconciles record status with observed client state, revives
// sessions that lost their handle, and repairs ones whose heartbeat went
// silent.
type HealthMonitor struct {
	manager *Manager
}

func NewHealthMonitor(manager *Manager) *HealthMonitor {
	return &HealthMonitor{manager: manager}
}

// Run sweeps on the configured interval until the context is done.
func (hm *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(hm.manager.cfg.HealthInterval)
	defer ticker.Stop()

	fmt.Println("💓 Health monitor started, interval:", hm.manager.cfg.HealthInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Exported so tests and admin endpoints can force
// a check without waiting for the ticker.
func (hm *HealthMonitor) Sweep(ctx context.Context) {
	m := hm.manager

	if m.cfg.QRPendingTTL > 0 {
		expired, err := m.store.ExpireStaleQR()
		if err != nil {
			fmt.Println("⚠ Failed to expire stale QR sessions:", err)
		}
		for _, id := range expired {
			fmt.Println("💓 Expired stale QR for session:", id)
			m.publishStatus(id, model.StatusDisconnected, "")
		}
	}

	sessions, err := m.store.ListPaired()
	if err != nil {
		fmt.Println("⚠ Health sweep failed to list sessions:", err)
		return
	}

	for _, s := range sessions {
		select {
		case <-ctx.Done():
			return
		default:
		}
		hm.check(ctx, s)
	}
}

func (hm *HealthMonitor) check(ctx context.Context, s *model.Session) {
	m := hm.manager

	cl := m.ClientFor(s.ID)
	if cl == nil {
		// No live handle. Revive if the credential material survived,
		// otherwise just make the record tell the truth.
		if m.auth.Exists(s.ID) {
			fmt.Println("💓 Reviving session without handle:", s.ID)
			if err := m.ReconnectSession(s.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
				fmt.Println("✗ Failed to revive session:", s.ID, err)
			}
			return
		}
		if s.Status != model.StatusDisconnected {
			fmt.Println("💓 Demoting session without auth material:", s.ID)
			if err := m.store.UpdateOnDisconnected(s.ID); err != nil {
				fmt.Println("⚠ Failed to demote session:", s.ID, err)
			}
			m.publishStatus(s.ID, model.StatusDisconnected, "")
		}
		return
	}

	state, err := cl.GetState(ctx)
	if err != nil {
		fmt.Println("⚠ Health probe error for session:", s.ID, err)
		return
	}

	switch state {
	case client.StateConnected:
		if s.Status != model.StatusConnected {
			// Record drifted behind reality; reconcile without touching
			// the connection.
			fmt.Println("💓 Reconciling status for session:", s.ID, s.Status, "-> connected")
			if err := m.store.UpdateStatus(s.ID, model.StatusConnected); err != nil {
				fmt.Println("⚠ Failed to reconcile session:", s.ID, err)
			}
		}
		if err := m.store.TouchSeen(s.ID); err != nil {
			fmt.Println("⚠ Failed to touch session:", s.ID, err)
		}

	case client.StateConflict, client.StateUnpaired:
		// Needs human action (re-pair or resolve the takeover). Demote
		// but keep the dead handle registered so nothing auto-retries.
		if s.Status != model.StatusDisconnected {
			fmt.Println("💓 Session needs re-pairing:", s.ID, "state:", state)
			if err := m.store.UpdateOnDisconnected(s.ID); err != nil {
				fmt.Println("⚠ Failed to demote session:", s.ID, err)
			}
			m.publishStatus(s.ID, model.StatusDisconnected, "")
		}

	default:
		if s.Status == model.StatusConnected && hm.isStale(s) {
			hm.repairStale(s.ID)
			return
		}
		// Not stale yet: probe identity info so a wedged client surfaces in
		// the logs before the heartbeat threshold trips.
		if _, err := cl.Info(ctx); err != nil {
			fmt.Println("⚠ Liveness probe failed for session:", s.ID, err)
		}
	}
}

// isStale reports whether the session missed too many heartbeats.
func (hm *HealthMonitor) isStale(s *model.Session) bool {
	cfg := hm.manager.cfg
	threshold := cfg.HeartbeatInterval * time.Duration(cfg.MissedThreshold)
	if !s.LastSeen.Valid {
		return true
	}
	return time.Since(s.LastSeen.Time) > threshold
}

// repairStale tears down a handle whose heartbeat went silent and starts a
// fresh connection attempt.
func (hm *HealthMonitor) repairStale(id string) {
	m := hm.manager

	fmt.Println("💓 Repairing stale session:", id)
	m.removeHandle(id, true)
	if err := m.store.UpdateOnDisconnected(id); err != nil {
		fmt.Println("⚠ Failed to demote stale session:", id, err)
	}
	m.publishStatus(id, model.StatusDisconnected, "")

	if err := m.reconnect(id, true); err != nil && !errors.Is(err, ErrSessionNotFound) {
		fmt.Println("✗ Failed to repair session:", id, err)
	}
}
