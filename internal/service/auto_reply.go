// internal/service/auto_reply.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/config"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service/ai"
)

// InboundDispatcher fans inbound messages out to the session's webhook and,
// when enabled, the AI auto-reply. Wired into Manager.OnInbound at startup.
type InboundDispatcher struct {
	manager *Manager

	mu        sync.Mutex
	lastReply map[string]time.Time // session_id + sender -> last auto-reply
}

func NewInboundDispatcher(manager *Manager) *InboundDispatcher {
	return &InboundDispatcher{
		manager:   manager,
		lastReply: make(map[string]time.Time),
	}
}

// Dispatch runs on the client's event goroutine; everything slow happens in
// spawned goroutines.
func (d *InboundDispatcher) Dispatch(sessionID string, msg client.Message) {
	record, err := d.manager.store.GetByID(sessionID)
	if err != nil {
		return
	}

	if config.EnableWebhook && record.WebhookURL.Valid {
		secret := ""
		if record.WebhookSecret.Valid {
			secret = record.WebhookSecret.String
		}
		DeliverWebhook(record.WebhookURL.String, secret, sessionID, "incoming_message", map[string]interface{}{
			"from":      msg.From,
			"body":      msg.Body,
			"timestamp": msg.Timestamp,
		})
	}

	if config.AIEnabled && record.AutoReply {
		aiContext := ""
		if record.AIContext.Valid {
			aiContext = record.AIContext.String
		}
		go d.autoReply(sessionID, aiContext, msg)
	}
}

func (d *InboundDispatcher) autoReply(sessionID, aiContext string, msg client.Message) {
	if !d.cooldownPassed(sessionID, msg.From) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, err := ai.GenerateReply(ctx, aiContext, msg.Body)
	if err != nil {
		fmt.Println("⚠ Auto-reply generation failed:", sessionID, err)
		return
	}

	if _, err := d.manager.SendMessage(ctx, sessionID, msg.From, reply); err != nil {
		fmt.Println("⚠ Auto-reply send failed:", sessionID, err)
	}
}

// cooldownPassed rate-limits auto-replies per sender so a chatty contact
// does not burn API quota.
func (d *InboundDispatcher) cooldownPassed(sessionID, sender string) bool {
	key := sessionID + "|" + sender

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastReply[key]; ok && time.Since(last) < config.AIAutoReplyCooldown {
		return false
	}
	d.lastReply[key] = time.Now()
	return true
}
