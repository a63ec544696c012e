// internal/service/auth_service.go
package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
)

// InitAuthConfig must run before any token is issued or checked.
func InitAuthConfig(secret string) {
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	jwtSecret = []byte(secret)
	accessTokenTTL = time.Duration(helper.GetEnvAsInt("JWT_ACCESS_TTL_MINUTES", 60)) * time.Minute
	refreshTokenTTL = time.Duration(helper.GetEnvAsInt("JWT_REFRESH_TTL_HOURS", 720)) * time.Hour
}

type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates a user account. The first account ever created becomes
// admin so a fresh deployment is manageable without seeding.
func Register(username, email, password, fullName string) (*model.User, error) {
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	hash, err := helper.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleUser
	if count, err := model.CountUsers(); err == nil && count == 0 {
		role = model.RoleAdmin
	}

	id, err := model.InsertUser(username, email, hash, fullName, role)
	if err != nil {
		return nil, err
	}
	return model.GetUserByID(id)
}

// Login checks credentials and issues a token pair.
func Login(username, password string) (*model.User, *TokenPair, error) {
	user, err := model.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}
	if err := helper.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	if err := model.TouchUserLogin(user.ID); err != nil {
		fmt.Println("⚠ Failed to record login:", err)
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair is
// issued, so a leaked token is only good once.
func Refresh(refreshToken string) (*TokenPair, error) {
	hash := hashToken(refreshToken)

	stored, err := model.GetActiveRefreshToken(hash)
	if err != nil {
		if errors.Is(err, model.ErrRefreshTokenInvalid) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	user, err := model.GetUserByID(stored.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidToken
	}

	if err := model.RevokeRefreshToken(hash); err != nil {
		return nil, err
	}
	return issueTokens(user)
}

// Logout revokes one refresh token.
func Logout(refreshToken string) error {
	return model.RevokeRefreshToken(hashToken(refreshToken))
}

func issueTokens(user *model.User) (*TokenPair, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshRaw := make([]byte, 32)
	if _, err := rand.Read(refreshRaw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refresh := hex.EncodeToString(refreshRaw)

	if err := model.InsertRefreshToken(user.ID, hashToken(refresh), now.Add(refreshTokenTTL)); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateToken parses and verifies an access token.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
