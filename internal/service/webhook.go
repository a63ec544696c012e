package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type WebhookPayload struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var webhookClient = &http.Client{Timeout: 5 * time.Second}

// DeliverWebhook posts an event to a session's webhook URL. Fire and
// forget: delivery failures are logged, never retried.
func DeliverWebhook(url, secret, sessionID, event string, data interface{}) {
	if url == "" {
		return
	}

	payload := WebhookPayload{
		Event:     event,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook: marshal error: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: new request error: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	go func() {
		resp, err := webhookClient.Do(req)
		if err != nil {
			log.Printf("webhook: send error: %v", err)
			return
		}
		_ = resp.Body.Close()
	}()
}
