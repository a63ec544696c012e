// internal/worker/broadcast_worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/ws"
)

// BroadcastWorker polls for due broadcasts and executes them. One recipient
// failing never aborts the run; every attempt lands in broadcast_results.
type BroadcastWorker struct {
	Manager  *service.Manager
	Realtime ws.RealtimePublisher

	PollInterval time.Duration
}

func NewBroadcastWorker(manager *service.Manager, realtime ws.RealtimePublisher) *BroadcastWorker {
	return &BroadcastWorker{
		Manager:      manager,
		Realtime:     realtime,
		PollInterval: time.Minute,
	}
}

func (w *BroadcastWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	fmt.Println("✓ Broadcast worker started, poll interval:", w.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *BroadcastWorker) tick(ctx context.Context) {
	due, err := model.ListDueBroadcasts(time.Now())
	if err != nil {
		fmt.Println("⚠ Broadcast worker failed to list due broadcasts:", err)
		return
	}

	for _, b := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.execute(ctx, b)
	}
}

func (w *BroadcastWorker) execute(ctx context.Context, b *model.Broadcast) {
	recipients, err := w.resolveRecipients(ctx, b)
	if err != nil {
		fmt.Println("⚠ Broadcast", b.ID, "failed to resolve recipients:", err)
		w.reschedule(b)
		return
	}

	fmt.Println("✓ Executing broadcast:", b.ID, "to", len(recipients), "recipient(s)")
	sent, failed := 0, 0

	for _, recipient := range recipients {
		// Spintax alternatives render per recipient, so a bulk run does
		// not emit identical bodies.
		body := helper.RenderSpintax(b.Body)

		result, err := w.Manager.SendMessage(ctx, b.SessionID, recipient, body)
		if err != nil {
			failed++
			if rerr := model.InsertBroadcastResult(b.ID, recipient, model.BroadcastResultFailed, "", err.Error()); rerr != nil {
				fmt.Println("⚠ Failed to record broadcast result:", rerr)
			}
			// A dead session fails every remaining recipient the same
			// way; stop early instead of hammering it.
			if errors.Is(err, service.ErrSessionNotConnected) {
				fmt.Println("⚠ Broadcast", b.ID, "aborted: session not connected")
				break
			}
			continue
		}
		sent++
		if rerr := model.InsertBroadcastResult(b.ID, recipient, model.BroadcastResultSent, result.WaMessageID, ""); rerr != nil {
			fmt.Println("⚠ Failed to record broadcast result:", rerr)
		}

		// Space sends out a little so bulk traffic looks less robotic.
		time.Sleep(2 * time.Second)
	}

	w.reschedule(b)

	if w.Realtime != nil {
		w.Realtime.Publish(ws.WsEvent{
			Event:     ws.EventBroadcastExecuted,
			SessionID: b.SessionID,
			Data:      ws.BroadcastExecutedData{BroadcastID: b.ID, Sent: sent, Failed: failed},
		})
	}
	fmt.Println("✓ Broadcast finished:", b.ID, "sent:", sent, "failed:", failed)
}

// resolveRecipients merges the explicit list with the group expansion.
func (w *BroadcastWorker) resolveRecipients(ctx context.Context, b *model.Broadcast) ([]string, error) {
	seen := make(map[string]bool)
	var recipients []string

	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			recipients = append(recipients, r)
		}
	}

	for _, r := range b.RecipientList() {
		add(r)
	}

	if b.GroupAddress.Valid && b.GroupAddress.String != "" {
		members, err := w.Manager.GroupMembers(ctx, b.SessionID, b.GroupAddress.String)
		if err != nil {
			if errors.Is(err, client.ErrNotConnected) || errors.Is(err, service.ErrSessionNotConnected) {
				return nil, err
			}
			return nil, fmt.Errorf("expand group %s: %w", b.GroupAddress.String, err)
		}
		for _, m := range members {
			add(m)
		}
	}

	return recipients, nil
}

// reschedule computes the next run from the cron expression. A broadcast
// whose schedule no longer parses gets paused instead of spinning.
func (w *BroadcastWorker) reschedule(b *model.Broadcast) {
	schedule, err := cron.ParseStandard(b.Schedule)
	if err != nil {
		fmt.Println("⚠ Broadcast", b.ID, "has invalid schedule, pausing:", err)
		if uerr := model.UpdateBroadcastStatus(b.ID, model.BroadcastPaused); uerr != nil {
			fmt.Println("⚠ Failed to pause broadcast:", uerr)
		}
		return
	}
	if err := model.MarkBroadcastRun(b.ID, schedule.Next(time.Now())); err != nil {
		fmt.Println("⚠ Failed to reschedule broadcast:", b.ID, err)
	}
}
