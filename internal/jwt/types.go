package jwt

import (
	"errors"
	"time"
)

type Role int

const (
	RoleAdmin Role = iota
)

const (
	DefaultAccessTokenTTL = 15 * time.Minute
	RefreshTokenTTL       = 24 * 30 * time.Hour
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Admin is the identity carried by access and refresh tokens.
type Admin struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
