// internal/model/user.go
package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/database"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     sql.NullString
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  sql.NullTime
}

type UserResp struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() UserResp {
	resp := UserResp{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
	if u.FullName.Valid {
		resp.FullName = u.FullName.String
	}
	return resp
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func InsertUser(username, email, passwordHash, fullName, role string) (int64, error) {
	query := `
		INSERT INTO users (username, email, password_hash, full_name, role)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id`
	var id int64
	err := database.AppDB.QueryRow(query, username, email, passwordHash, fullName, role).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func GetUserByUsername(username string) (*User, error) {
	return getUser(`WHERE username = $1`, username)
}

func GetUserByID(id int64) (*User, error) {
	return getUser(`WHERE id = $1`, id)
}

func getUser(where string, arg interface{}) (*User, error) {
	query := `
		SELECT id, username, email, password_hash, full_name, role, is_active,
		       created_at, updated_at, last_login_at
		FROM users ` + where
	var u User
	err := database.AppDB.QueryRow(query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func TouchUserLogin(id int64) error {
	query := `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := database.AppDB.Exec(query, id); err != nil {
		return fmt.Errorf("touch user login: %w", err)
	}
	return nil
}

func CountUsers() (int, error) {
	var count int
	if err := database.AppDB.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
