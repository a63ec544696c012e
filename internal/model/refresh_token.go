// internal/model/refresh_token.go
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/database"
)

var ErrRefreshTokenInvalid = errors.New("refresh token invalid or expired")

type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

func InsertRefreshToken(userID int64, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`
	if _, err := database.AppDB.Exec(query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetActiveRefreshToken looks up a usable token by hash. Revoked or expired
// rows count as absent.
func GetActiveRefreshToken(tokenHash string) (*RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = false AND expires_at > NOW()`
	var t RefreshToken
	err := database.AppDB.QueryRow(query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

func RevokeRefreshToken(tokenHash string) error {
	query := `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`
	if _, err := database.AppDB.Exec(query, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func RevokeUserRefreshTokens(userID int64) error {
	query := `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1`
	if _, err := database.AppDB.Exec(query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
