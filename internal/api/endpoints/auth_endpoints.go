package endpoints

import (
	"net/http"
	"time"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	authsvc "livechat-backend/internal/service/auth"
)

type AuthEndpoints interface {
	Login(http.ResponseWriter, *http.Request) error
	Refresh(http.ResponseWriter, *http.Request) error
	Me(http.ResponseWriter, *http.Request) error
}

type authEndpoints struct {
	service *authsvc.Service
}

func NewAuthEndpoints(service *authsvc.Service) AuthEndpoints {
	return &authEndpoints{service: service}
}

func (h *authEndpoints) Login(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleLogin,
	})
}

func (h *authEndpoints) Refresh(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleRefresh,
	})
}

// Me expects RequireAdmin to have resolved the caller.
func (h *authEndpoints) Me(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleMe,
	})
}

func (h *authEndpoints) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.service.Login(r.Context(), authsvc.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.AuthResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		Admin:        toAdminResponse(result.Admin),
	})
}

func (h *authEndpoints) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	var req dto.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	accessToken, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.RefreshResponse{AccessToken: accessToken})
}

func (h *authEndpoints) handleMe(w http.ResponseWriter, r *http.Request) error {
	identity, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		var err error
		identity, err = h.service.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
		if err != nil {
			return serviceError(err)
		}
	}

	admin, err := h.service.Profile(r.Context(), identity)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.MeResponse{Admin: toAdminResponse(admin)})
}

func toAdminResponse(admin model.AdminItem) dto.AdminResponse {
	res := dto.AdminResponse{
		AdminID: admin.AdminID,
		Email:   admin.Email,
		Name:    admin.Name,
	}
	if !admin.CreatedAt.IsZero() {
		res.CreatedAt = admin.CreatedAt.UTC().Format(time.RFC3339)
	}
	return res
}
