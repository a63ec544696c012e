// internal/service/restorer.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Restorer brings previously paired sessions back up after a process
// restart. Most recently connected sessions go first, with a pause between
// attempts so a large fleet does not stampede the network.
type Restorer struct {
	manager *Manager
}

func NewRestorer(manager *Manager) *Restorer {
	return &Restorer{manager: manager}
}

// Run executes one restore pass. Call in a goroutine at startup; the grace
// delay lets the HTTP server and database settle first.
func (r *Restorer) Run(ctx context.Context) {
	m := r.manager

	if !sleepCtx(ctx, m.cfg.RestoreGrace) {
		return
	}

	sessions, err := m.store.ListPaired()
	if err != nil {
		fmt.Println("✗ Restore failed to list sessions:", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("✓ No sessions to restore")
		return
	}

	fmt.Println("✓ Restoring", len(sessions), "session(s)...")
	restored, skipped := 0, 0

	for _, s := range sessions {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !m.auth.Exists(s.ID) {
			// Never re-pair on behalf of the user: without credential
			// material the session stays down until someone asks for a
			// fresh QR.
			fmt.Println("⚠ Skipping session without auth material:", s.ID)
			if err := m.store.UpdateOnDisconnected(s.ID); err != nil {
				fmt.Println("⚠ Failed to demote session:", s.ID, err)
			}
			skipped++
			continue
		}

		if err := m.ReconnectSession(s.ID); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			fmt.Println("✗ Failed to restore session:", s.ID, err)
			continue
		}
		restored++

		if !sleepCtx(ctx, m.cfg.RestorePause) {
			return
		}
	}

	fmt.Println("✓ Restore finished: started", restored, "skipped", skipped)
}

// sleepCtx waits d or until the context is done; returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
