package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/model"

	"github.com/google/uuid"
)

type Service struct {
	repo   Repository
	tokens *internaljwt.Manager
	now    func() time.Time
}

func NewService(repo Repository, tokens *internaljwt.Manager, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   repo,
		tokens: tokens,
		now:    now,
	}
}

// SeedAdmin creates the admin account if no admin with that email exists yet.
func (s *Service) SeedAdmin(ctx context.Context, params SeedParams) (bool, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	if email == "" || password == "" {
		return false, newError(ErrorCodeValidation, "admin email and password are required", nil)
	}

	if _, err := s.repo.GetAdminByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, newError(ErrorCodeInternal, "failed to look up admin", err)
	}

	hash, err := internaljwt.HashPassword(password)
	if err != nil {
		return false, newError(ErrorCodeInternal, "failed to hash password", err)
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	admin := model.AdminItem{
		Email:        email,
		AdminID:      uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		return false, newError(ErrorCodeInternal, "failed to create admin", err)
	}
	return true, nil
}

func (s *Service) Login(ctx context.Context, params LoginParams) (AuthResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	if email == "" || password == "" {
		return AuthResult{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	admin, err := s.repo.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", err)
		}
		return AuthResult{}, newError(ErrorCodeInternal, "failed to load admin", err)
	}
	if !internaljwt.ValidatePassword(admin.PasswordHash, password) {
		return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	tokens, err := s.tokens.CreateTokenWithRefresh(ctx, internaljwt.Admin{
		ID:    admin.AdminID,
		Email: admin.Email,
		Name:  admin.Name,
	})
	if err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return AuthResult{Admin: admin, Tokens: tokens}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", newError(ErrorCodeValidation, "refresh token is required", nil)
	}

	access, err := s.tokens.RefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, internaljwt.ErrInvalidRefreshToken) {
			return "", newError(ErrorCodeUnauthorized, "invalid refresh token", err)
		}
		return "", newError(ErrorCodeInternal, "failed to refresh token", err)
	}
	return access, nil
}

func (s *Service) Profile(ctx context.Context, identity Identity) (model.AdminItem, error) {
	admin, err := s.repo.GetAdminByID(ctx, identity.AdminID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AdminItem{}, newError(ErrorCodeNotFound, "admin not found", err)
		}
		return model.AdminItem{}, newError(ErrorCodeInternal, "failed to load admin", err)
	}
	return admin, nil
}

func (s *Service) IdentityFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}
	return s.IdentityFromToken(strings.TrimPrefix(authHeader, "Bearer "))
}

func (s *Service) IdentityFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	admin, err := s.tokens.ParseToken(token)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}
	return Identity{AdminID: admin.ID, Email: admin.Email, Name: admin.Name}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
