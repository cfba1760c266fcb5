package models

import "time"

const (
	RoleClient   = "client"
	RoleProvider = "provider"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"` // client, provider
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsProvider() bool {
	return u != nil && u.Role == RoleProvider
}

func ValidRole(role string) bool {
	return role == RoleClient || role == RoleProvider
}

// Session is an authenticated sign-in kept in the session store.
type Session struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"jti"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
