package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"livechat-backend/internal/queue"
	"livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Dependencies are handed to route registrars through the server. Servers that do not
// serve a concern leave it nil.
type Dependencies struct {
	Chat           *chat.Service
	Auth           *auth.Service
	Websocket      *websocket.Handler
	AllowedOrigins []string
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	deps                Dependencies
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, deps Dependencies, registrars ...RouteRegistrar) *APIServer {
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		deps:                deps,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
	}
}

// HTTPHandler builds the instrumented mux with every registered route plus /metrics.
func (s *APIServer) HTTPHandler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[api] server listening on http://localhost%s", s.listenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[api] shutting down %s", s.listenAddr)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) Chat() *chat.Service {
	return s.deps.Chat
}

func (s *APIServer) Auth() *auth.Service {
	return s.deps.Auth
}

func (s *APIServer) Websocket() *websocket.Handler {
	return s.deps.Websocket
}
