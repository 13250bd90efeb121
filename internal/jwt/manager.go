package jwt

import (
	"context"
	"fmt"
	"time"

	"livechat-backend/utils"

	"github.com/golang-jwt/jwt"
)

// Manager issues HS256 access tokens for admins and keeps their refresh tokens in a
// RefreshStore. Tokens carry a trailing role character so a token minted for one role is
// rejected by another.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
	store     RefreshStore
	now       func() time.Time
}

func NewManager(secret string, accessTTL time.Duration, store RefreshStore) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if store == nil {
		store = NewMemoryRefreshStore()
	}
	return &Manager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		store:     store,
		now:       time.Now,
	}, nil
}

func roleChar(role Role) string {
	switch role {
	case RoleAdmin:
		return "a"
	}
	return ""
}

func (m *Manager) CreateToken(admin Admin) (string, error) {
	claims := jwt.MapClaims{
		"id":    admin.ID,
		"email": admin.Email,
		"name":  admin.Name,
		"iat":   m.now().Unix(),
		"exp":   m.now().Add(m.accessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}
	return tokenString + roleChar(RoleAdmin), nil
}

func (m *Manager) CreateTokenWithRefresh(ctx context.Context, admin Admin) (TokenPair, error) {
	accessToken, err := m.CreateToken(admin)
	if err != nil {
		return TokenPair{}, err
	}

	refreshRaw := utils.NewRefreshToken()
	if err := m.store.Save(ctx, refreshRaw, admin, RefreshTokenTTL); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshRaw + roleChar(RoleAdmin),
	}, nil
}

func stripRole(token string, role Role) (string, bool) {
	suffix := roleChar(role)
	if len(token) <= len(suffix) || token[len(token)-len(suffix):] != suffix {
		return "", false
	}
	return token[:len(token)-len(suffix)], true
}

// ParseToken validates an access token and returns the admin it was issued to.
func (m *Manager) ParseToken(tokenString string) (Admin, error) {
	raw, ok := stripRole(tokenString, RoleAdmin)
	if !ok {
		return Admin{}, fmt.Errorf("%w: wrong role", ErrInvalidToken)
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return Admin{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Admin{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Admin{}, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	id, _ := claims["id"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if id == "" {
		return Admin{}, fmt.Errorf("%w: missing id", ErrInvalidToken)
	}
	return Admin{ID: id, Email: email, Name: name}, nil
}

// RefreshToken mints a new access token and slides the refresh token's expiry.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	raw, ok := stripRole(refreshToken, RoleAdmin)
	if !ok {
		return "", ErrInvalidRefreshToken
	}

	admin, err := m.store.Load(ctx, raw)
	if err != nil {
		return "", err
	}
	if err := m.store.Extend(ctx, raw, RefreshTokenTTL); err != nil {
		return "", fmt.Errorf("failed to update refresh token expiration: %w", err)
	}
	return m.CreateToken(admin)
}

func (m *Manager) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	raw, ok := stripRole(refreshToken, RoleAdmin)
	if !ok {
		return ErrInvalidRefreshToken
	}
	return m.store.Delete(ctx, raw)
}
