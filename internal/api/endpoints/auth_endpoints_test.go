package endpoints_test

import (
	"net/http"
	"testing"

	"livechat-backend/internal/dto"
)

func login(t *testing.T, env *testEnv) string {
	t.Helper()
	res := doJSONRequest[dto.AuthResponse](t, env.handler, http.MethodPost, adminPrefix+"/auth/login",
		dto.LoginRequest{Email: adminEmail, Password: adminPassword}, nil, http.StatusOK)
	if res.AccessToken == "" {
		t.Fatal("missing access token")
	}
	return res.AccessToken
}

func TestAuthEndpointsEndToEnd(t *testing.T) {
	env := setupServer(t)

	res := doJSONRequest[dto.AuthResponse](t, env.handler, http.MethodPost, adminPrefix+"/auth/login",
		dto.LoginRequest{Email: "SUPPORT@example.com", Password: adminPassword}, nil, http.StatusOK)
	if res.RefreshToken == "" || res.Admin.Email != adminEmail || res.Admin.Name != "Support" {
		t.Fatalf("unexpected login response %+v", res)
	}

	me := doJSONRequest[dto.MeResponse](t, env.handler, http.MethodGet, adminPrefix+"/auth/me", nil, bearer(res.AccessToken), http.StatusOK)
	if me.Admin.AdminID != res.Admin.AdminID {
		t.Fatalf("unexpected profile %+v", me.Admin)
	}

	refreshed := doJSONRequest[dto.RefreshResponse](t, env.handler, http.MethodPost, adminPrefix+"/auth/refresh",
		dto.RefreshRequest{RefreshToken: res.RefreshToken}, nil, http.StatusOK)
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
	doJSONRequest[dto.MeResponse](t, env.handler, http.MethodGet, adminPrefix+"/auth/me", nil, bearer(refreshed.AccessToken), http.StatusOK)
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	env := setupServer(t)

	doJSONRequest[errorBody](t, env.handler, http.MethodPost, adminPrefix+"/auth/login",
		dto.LoginRequest{Email: adminEmail, Password: "wrong"}, nil, http.StatusUnauthorized)
	doJSONRequest[errorBody](t, env.handler, http.MethodPost, adminPrefix+"/auth/login",
		dto.LoginRequest{Email: adminEmail}, nil, http.StatusBadRequest)
	doJSONRequest[errorBody](t, env.handler, http.MethodPost, adminPrefix+"/auth/refresh",
		dto.RefreshRequest{RefreshToken: "rt_bogus"}, nil, http.StatusUnauthorized)
	doJSONRequest[errorBody](t, env.handler, http.MethodGet, adminPrefix+"/auth/me", nil, nil, http.StatusUnauthorized)
	doJSONRequest[errorBody](t, env.handler, http.MethodGet, adminPrefix+"/auth/login", nil, nil, http.StatusMethodNotAllowed)
}
