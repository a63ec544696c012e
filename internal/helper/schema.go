// internal/helper/schema.go
package helper

import (
	"log"

	"github.com/legendisdaname/whatsapp-platform-backend/database"
)

func InitCustomSchema() {
	db := database.AppDB

	sessionSchema := `
        CREATE TABLE IF NOT EXISTS sessions (
            id              VARCHAR(64) PRIMARY KEY,
            name            VARCHAR(255) NOT NULL,
            status          VARCHAR(50) NOT NULL DEFAULT 'disconnected',
            phone_number    VARCHAR(50),
            qr_code         TEXT,
            qr_expires_at   TIMESTAMP,
            webhook_url     TEXT,
            webhook_secret  TEXT,
            auto_reply      BOOLEAN NOT NULL DEFAULT false,
            ai_context      TEXT,
            created_by      BIGINT,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            connected_at    TIMESTAMP,
            last_seen       TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
        CREATE INDEX IF NOT EXISTS idx_sessions_phone ON sessions(phone_number);
        CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions(created_by);
    `
	if _, err := db.Exec(sessionSchema); err != nil {
		log.Fatalf("failed to init sessions schema: %v", err)
	}

	messageSchema := `
        CREATE TABLE IF NOT EXISTS messages (
            id                  BIGSERIAL PRIMARY KEY,
            session_id          VARCHAR(64) NOT NULL,
            direction           VARCHAR(10) NOT NULL CHECK (direction IN ('outgoing', 'incoming')),
            status              VARCHAR(10) NOT NULL CHECK (status IN ('sent', 'failed', 'received')),
            recipient           VARCHAR(255),
            address             VARCHAR(255),
            sender              VARCHAR(255),
            body                TEXT NOT NULL,
            wa_message_id       VARCHAR(255),
            error_message       TEXT,
            network_timestamp   TIMESTAMP,
            created_at          TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
        CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at DESC);
    `
	if _, err := db.Exec(messageSchema); err != nil {
		log.Fatalf("failed to init messages schema: %v", err)
	}

	userSchema := `
        CREATE TABLE IF NOT EXISTS users (
            id              BIGSERIAL PRIMARY KEY,
            username        VARCHAR(100) UNIQUE NOT NULL,
            email           VARCHAR(255) UNIQUE NOT NULL,
            password_hash   TEXT NOT NULL,
            full_name       VARCHAR(255),
            role            VARCHAR(20) NOT NULL DEFAULT 'user',
            is_active       BOOLEAN NOT NULL DEFAULT true,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            last_login_at   TIMESTAMP
        );

        CREATE TABLE IF NOT EXISTS refresh_tokens (
            id          BIGSERIAL PRIMARY KEY,
            user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            token_hash  VARCHAR(128) UNIQUE NOT NULL,
            expires_at  TIMESTAMP NOT NULL,
            revoked     BOOLEAN NOT NULL DEFAULT false,
            created_at  TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
    `
	if _, err := db.Exec(userSchema); err != nil {
		log.Fatalf("failed to init users schema: %v", err)
	}

	broadcastSchema := `
        CREATE TABLE IF NOT EXISTS broadcasts (
            id              UUID PRIMARY KEY,
            name            VARCHAR(255) NOT NULL,
            session_id      VARCHAR(64) NOT NULL,
            recipients      TEXT,
            group_address   VARCHAR(255),
            body            TEXT NOT NULL,
            schedule        VARCHAR(100) NOT NULL,
            status          VARCHAR(20) NOT NULL DEFAULT 'ACTIVE'
                            CHECK (status IN ('ACTIVE', 'PAUSED')),
            next_run_at     TIMESTAMP,
            last_run_at     TIMESTAMP,
            created_by      BIGINT,
            created_at      TIMESTAMP NOT NULL DEFAULT NOW(),
            updated_at      TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_broadcasts_status_next_run ON broadcasts(status, next_run_at);

        CREATE TABLE IF NOT EXISTS broadcast_results (
            id              BIGSERIAL PRIMARY KEY,
            broadcast_id    UUID NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
            recipient       VARCHAR(255) NOT NULL,
            status          VARCHAR(10) NOT NULL CHECK (status IN ('SENT', 'FAILED')),
            wa_message_id   VARCHAR(255),
            error_message   TEXT,
            executed_at     TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_broadcast_results_broadcast ON broadcast_results(broadcast_id, executed_at DESC);
    `
	if _, err := db.Exec(broadcastSchema); err != nil {
		log.Fatalf("failed to init broadcasts schema: %v", err)
	}

	auditSchema := `
        CREATE TABLE IF NOT EXISTS audit_logs (
            id          BIGSERIAL PRIMARY KEY,
            user_id     BIGINT,
            action      VARCHAR(100) NOT NULL,
            resource_id VARCHAR(255),
            details     JSONB,
            created_at  TIMESTAMP NOT NULL DEFAULT NOW()
        );

        CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC);
    `
	if _, err := db.Exec(auditSchema); err != nil {
		log.Fatalf("failed to init audit schema: %v", err)
	}

	log.Println("schema created/ensured successfully")
}
