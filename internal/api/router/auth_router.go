package router

import (
	"net/http"
	"strings"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
)

func AuthRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		authEndpoints := endpoints.NewAuthEndpoints(s.Auth())

		mux.HandleFunc(base+"/auth/login", s.MakeHTTPHandleFunc(authEndpoints.Login))
		mux.HandleFunc(base+"/auth/refresh", s.MakeHTTPHandleFunc(authEndpoints.Refresh))
		mux.HandleFunc(base+"/auth/me", s.MakeHTTPHandleFunc(authEndpoints.Me, middleware.RequireAdmin(s.Auth())))
	}
}
