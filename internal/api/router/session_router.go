package router

import (
	"net/http"
	"strings"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
)

// SessionPublicRoutes serves the widget: no admin auth, the session token is the only
// credential.
func SessionPublicRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		sessionEndpoints := endpoints.NewSessionEndpoints(s.Chat(), base+"/sessions/current")

		mux.HandleFunc(base+"/sessions", s.MakeHTTPHandleFunc(sessionEndpoints.Sessions))
		mux.HandleFunc(base+"/sessions/current", s.MakeHTTPHandleFunc(sessionEndpoints.Current))
		mux.HandleFunc(base+"/sessions/current/", s.MakeHTTPHandleFunc(sessionEndpoints.Current))
	}
}

func SessionAdminRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		adminEndpoints := endpoints.NewAdminSessionEndpoints(s.Chat(), base+"/sessions/")
		requireAdmin := middleware.RequireAdmin(s.Auth())

		mux.HandleFunc(base+"/sessions", s.MakeHTTPHandleFunc(adminEndpoints.Sessions, requireAdmin))
		mux.HandleFunc(base+"/sessions/", s.MakeHTTPHandleFunc(adminEndpoints.Session, requireAdmin))
	}
}

func SessionWebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		wsEndpoints := endpoints.NewWebsocketEndpoints(s.Chat(), s.Auth(), s.Websocket(), base+"/sessions/")

		mux.HandleFunc(base+"/sessions", s.MakeHTTPHandleFunc(wsEndpoints.SessionFeed))
		mux.HandleFunc(base+"/sessions/", s.MakeHTTPHandleFunc(wsEndpoints.Session))
		mux.HandleFunc(base+"/rooms", s.MakeHTTPHandleFunc(wsEndpoints.Rooms))
	}
}
