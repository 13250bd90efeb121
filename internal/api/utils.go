package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *APIServer) corsConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch,
			http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "Authorization", "X-Session-Token"},
		AllowCredentials: true,
	}
}

// MakeHTTPHandleFunc runs f on the request queue behind CORS, logging and any route
// specific middleware. Errors returned by f become an ApiError body.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, routeMiddleware ...middleware.Middleware) http.HandlerFunc {
	queued := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)
		s.requestQueueManager.EnqueueJob(queue.Job{
			Fn:   func() error { return f(w, r) },
			Errc: errc,
		})
		if err := <-errc; err != nil {
			writeError(w, r, err)
		}
	}

	handler := middleware.Chain(queued, routeMiddleware...)
	return middleware.Chain(handler, middleware.CORS(s.corsConfig()), middleware.Logging())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		_ = errors.As(ServiceError(err), &httpErr)
	}
	if httpErr.StatusCode >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, httpErr.ErrorLog)
	}
	WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
}
