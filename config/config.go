package config

import (
	"os"
	"strconv"
	"time"
)

var EnableWebsocketIncomingMessage bool
var EnableWebhook bool
var BroadcastWorkerEnabled bool

// AI auto-reply configuration
var AIEnabled bool
var GeminiAPIKey string
var GeminiDefaultModel string
var AIAutoReplyCooldown time.Duration
var AIDefaultTemperature float64
var AIDefaultMaxTokens int

// Lifecycle holds the tunables of the session lifecycle subsystem
// (keepalive, retry tiers, restore pacing, health sweep).
type Lifecycle struct {
	HeartbeatInterval time.Duration // keepalive probe interval
	MissedThreshold   int           // heartbeats missed before a session counts as stale
	ShortRetryDelay   time.Duration // reconnect delay after a live-session drop
	LongRetryDelay    time.Duration // cold retry after a failed reconnect attempt
	RestoreGrace      time.Duration // startup delay before the restore pass
	RestorePause      time.Duration // pause between successive restorations
	HealthInterval    time.Duration // health monitor sweep interval
	QRPendingTTL      time.Duration // 0 = pending pairings never expire
}

func LoadLifecycle() Lifecycle {
	return Lifecycle{
		HeartbeatInterval: getEnvDuration("SESSION_HEARTBEAT_INTERVAL", 30*time.Second),
		MissedThreshold:   getEnvInt("SESSION_HEARTBEAT_MISSED_THRESHOLD", 3),
		ShortRetryDelay:   getEnvDuration("SESSION_SHORT_RETRY_DELAY", 15*time.Second),
		LongRetryDelay:    getEnvDuration("SESSION_LONG_RETRY_DELAY", 5*time.Minute),
		RestoreGrace:      getEnvDuration("SESSION_RESTORE_GRACE", 10*time.Second),
		RestorePause:      getEnvDuration("SESSION_RESTORE_PAUSE", 2*time.Second),
		HealthInterval:    getEnvDuration("SESSION_HEALTH_INTERVAL", 2*time.Minute),
		QRPendingTTL:      time.Duration(getEnvInt("SESSION_QR_PENDING_TTL_MINUTES", 0)) * time.Minute,
	}
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
